package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// methodNavigate marks a navigation boundary in a capture file. A
// recording driver writes one marker line per page navigation, so each
// collection unit's events sit between two markers.
const methodNavigate = "NAVIGATE"

// ReplaySession replays response events captured from a live session,
// one JSON object per line. It exists for offline reprocessing and for
// driving the collection loop where no browser driver is available.
//
// Captures with navigation markers replay a whole unit segment per
// Navigate. Markerless captures fall back to feed boundaries: Navigate
// emits the first feed batch and each scroll advances one more, so a
// paginated unit still replays all of its pages. Reveal stays a no-op
// because the captured stream already contains every fragment the live
// session produced.
type ReplaySession struct {
	events  chan ResponseEvent
	lines   []capturedEvent
	pos     int
	markers bool
}

type capturedEvent struct {
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// NewReplaySession loads a capture file.
func NewReplaySession(path string) (*ReplaySession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: open capture %s", path)
	}
	defer f.Close() //nolint:errcheck

	var lines []capturedEvent
	markers := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev capturedEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, eris.Wrapf(err, "collector: parse capture %s", path)
		}
		if ev.Method == methodNavigate {
			markers = true
		}
		lines = append(lines, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "collector: read capture %s", path)
	}

	return &ReplaySession{
		events:  make(chan ResponseEvent, 64),
		lines:   lines,
		markers: markers,
	}, nil
}

// Navigate emits the next captured unit. In a marked capture that is the
// whole segment up to the following marker; in a markerless one it is a
// single feed batch, with later pages left to ScrollToBottom.
func (s *ReplaySession) Navigate(ctx context.Context, url string) error {
	if s.markers {
		if s.pos < len(s.lines) && s.lines[s.pos].Method == methodNavigate {
			s.pos++
		}
		return s.emitUntilMarker(ctx)
	}
	return s.emitFeedBatch(ctx)
}

// ScrollToBottom advances a markerless capture by one feed batch, the
// replay equivalent of the page loading its next feed page. In a marked
// capture the segment was already emitted on Navigate.
func (s *ReplaySession) ScrollToBottom(ctx context.Context) error {
	if s.markers {
		return nil
	}
	return s.emitFeedBatch(ctx)
}

func (s *ReplaySession) emitUntilMarker(ctx context.Context) error {
	for s.pos < len(s.lines) {
		ev := s.lines[s.pos]
		if ev.Method == methodNavigate {
			return nil
		}
		s.pos++
		if err := s.emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// emitFeedBatch emits one feed response plus the detail and photo
// fragments that follow it, stopping short of the next feed.
func (s *ReplaySession) emitFeedBatch(ctx context.Context) error {
	emittedFeed := false
	for s.pos < len(s.lines) {
		ev := s.lines[s.pos]
		kind := Classify(ResponseEvent{URL: ev.URL, Method: ev.Method, Body: ev.Body})
		if kind == KindFeed {
			if emittedFeed {
				return nil
			}
			emittedFeed = true
		}
		s.pos++
		if err := s.emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReplaySession) emit(ctx context.Context, ev capturedEvent) error {
	select {
	case s.events <- ResponseEvent{URL: ev.URL, Method: ev.Method, Body: ev.Body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReplaySession) LoggedIn(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *ReplaySession) Reveal(ctx context.Context, key string) error { return nil }

func (s *ReplaySession) Responses() <-chan ResponseEvent { return s.events }

func (s *ReplaySession) Close() error {
	close(s.events)
	return nil
}
