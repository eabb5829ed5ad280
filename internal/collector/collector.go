package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/accumulator"
	"github.com/scriptify-labs/worker-cli/internal/model"
)

// ErrSessionExpired reports that the browser session lost its login.
// Continuing would collect an empty or anonymized feed, so the whole run
// fails rather than retrying.
var ErrSessionExpired = eris.New("collector: session is not logged in")

// Unit is one collection unit: a named feed to exhaust before moving on.
type Unit struct {
	Name string
	URL  string
}

// Config tunes the collection loop.
type Config struct {
	// LinkBase is the site origin listing links are built against.
	LinkBase string
	// TargetPerUnit stops a unit after this many completed listings.
	TargetPerUnit int
	// MaxStallRounds aborts a unit after this many consecutive rounds
	// that neither discovered nor completed anything.
	MaxStallRounds int
	// SettleWait is how long a round waits for in-flight responses
	// after interacting with the page.
	SettleWait time.Duration
	// PageLoadWait is the pause after navigating to a unit's feed.
	PageLoadWait time.Duration
	// LastNDays skips listings older than this many days. Zero keeps
	// everything.
	LastNDays int
}

// FlushFunc persists the result snapshot after each drain. It receives
// the full accumulated result, not a delta.
type FlushFunc func(ctx context.Context, result *model.ScrapeResult) error

// Collector runs the collection loop for one scrape run. A single
// accumulator spans all units so a listing discovered by two units is
// still emitted once.
type Collector struct {
	session Session
	cfg     Config
	flush   FlushFunc
	acc     *accumulator.Accumulator
	reveal  chan string
}

// New creates a collector on an open session.
func New(session Session, cfg Config, flush FlushFunc) *Collector {
	if cfg.TargetPerUnit <= 0 {
		cfg.TargetPerUnit = 50
	}
	if cfg.MaxStallRounds <= 0 {
		cfg.MaxStallRounds = 3
	}
	if cfg.LinkBase == "" {
		cfg.LinkBase = "https://www.facebook.com"
	}
	return &Collector{
		session: session,
		cfg:     cfg,
		flush:   flush,
		acc:     accumulator.New(),
		reveal:  make(chan string, 1024),
	}
}

// Collect works through the units in order and returns the assembled
// result. The returned result is also flushed after every drain, so a
// cancelled or failed run leaves its partial result behind.
func (c *Collector) Collect(ctx context.Context, units []Unit) (*model.ScrapeResult, error) {
	ok, err := c.session.LoggedIn(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "collector: login check")
	}
	if !ok {
		return nil, ErrSessionExpired
	}

	result := &model.ScrapeResult{
		Cities:    make(map[string][]model.Listing),
		Timestamp: time.Now().UTC(),
	}

	cctx, cancel := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go c.consume(cctx, consumerDone)
	defer func() {
		cancel()
		<-consumerDone
	}()

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := c.collectUnit(ctx, unit, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// collectUnit exhausts one unit: discover by scrolling, interact to
// trigger fragment loads, wait for them to land, then flush whatever
// completed. A unit ends at its target, at the stall ceiling, or on
// cancellation.
func (c *Collector) collectUnit(ctx context.Context, unit Unit, result *model.ScrapeResult) error {
	log := zap.L().With(zap.String("unit", unit.Name))
	log.Info("collecting unit", zap.String("url", unit.URL))

	if err := c.session.Navigate(ctx, unit.URL); err != nil {
		return eris.Wrap(err, "collector: navigate")
	}
	if err := sleepCtx(ctx, c.cfg.PageLoadWait); err != nil {
		return err
	}

	collected := 0
	stall := 0
	for collected < c.cfg.TargetPerUnit {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.session.ScrollToBottom(ctx); err != nil {
			return eris.Wrap(err, "collector: scroll")
		}
		revealed := c.revealPending(ctx)
		if err := sleepCtx(ctx, c.cfg.SettleWait); err != nil {
			return err
		}

		batch := c.acc.DrainComplete()
		if len(batch) > 0 {
			result.Cities[unit.Name] = append(result.Cities[unit.Name], batch...)
			result.TotalCount += len(batch)
			collected += len(batch)
			if c.flush != nil {
				if err := c.flush(ctx, result); err != nil {
					return eris.Wrap(err, "collector: flush")
				}
			}
		}

		if len(batch) == 0 && revealed == 0 {
			stall++
			log.Debug("stalled round", zap.Int("stall", stall))
			if stall >= c.cfg.MaxStallRounds {
				log.Warn("unit stalled, moving on",
					zap.Int("collected", collected),
					zap.Int("live", c.acc.Live()))
				break
			}
		} else {
			stall = 0
		}
	}

	// Incomplete leftovers are dropped; a later unit may rediscover and
	// finish them.
	c.acc.Discard()
	log.Info("unit done", zap.Int("collected", collected))
	return nil
}

// consume classifies and extracts every response the session captures,
// merging fragments into the accumulator and queueing newly discovered
// listings for interaction.
func (c *Collector) consume(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var cutoff time.Time
	if c.cfg.LastNDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -c.cfg.LastNDays)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.session.Responses():
			if !ok {
				return
			}
			c.handle(ev, cutoff)
		}
	}
}

func (c *Collector) handle(ev ResponseEvent, cutoff time.Time) {
	switch Classify(ev) {
	case KindFeed:
		for _, entry := range ExtractFeed(ev.Body, c.cfg.LinkBase) {
			if !cutoff.IsZero() && entry.Fields.ListedAt != nil && entry.Fields.ListedAt.Before(cutoff) {
				continue
			}
			if c.acc.Track(entry.Key) {
				c.acc.Upsert(entry.Key, entry.Fields)
				select {
				case c.reveal <- entry.Key:
				default:
					zap.L().Warn("reveal queue full, dropping key",
						zap.String("key", entry.Key))
				}
			} else {
				c.acc.Upsert(entry.Key, entry.Fields)
			}
		}
	case KindDetails:
		if entry, ok := ExtractDetails(ev.Body, c.cfg.LinkBase); ok {
			c.acc.Upsert(entry.Key, entry.Fields)
		}
	case KindPhotos:
		if key, urls := ExtractPhotos(ev.Body); key != "" && len(urls) > 0 {
			c.acc.Upsert(key, accumulator.Fields{ImageURLs: urls})
		}
	}
}

// revealPending interacts with every listing discovered since the last
// round so the page loads their detail and photo fragments.
func (c *Collector) revealPending(ctx context.Context) int {
	n := 0
	for {
		select {
		case key := <-c.reveal:
			if err := c.session.Reveal(ctx, key); err != nil {
				zap.L().Debug("reveal failed", zap.String("key", key), zap.Error(err))
				continue
			}
			n++
		default:
			return n
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
