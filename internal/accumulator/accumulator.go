// Package accumulator assembles marketplace listings from fragments that
// arrive on independent, uncorrelated response streams. The source never
// delivers one message containing a full record: feed responses carry the
// key, title, and price; photo responses carry images; detail responses
// carry the description. Fragments are merged by the provider-assigned
// opaque key regardless of arrival order, and a record is emitted exactly
// once, no matter how many collection units of the same run rediscover it.
package accumulator

import (
	"sort"
	"sync"
	"time"

	"github.com/scriptify-labs/worker-cli/internal/model"
)

// Fields is a partial update for one record. Empty fields are ignored on
// merge so a later sparse fragment never blanks an earlier one.
type Fields struct {
	Link        string
	Title       string
	Description string
	Price       string
	Currency    string
	ImageURLs   []string
	ListedAt    *time.Time
}

type record struct {
	key    string
	seq    int
	fields Fields
}

// Accumulator is a keyed store of partially-filled records, scoped to one
// run. All methods are safe for concurrent use: multiple response handlers
// upsert while a single drainer flushes, and drain must never race an
// upsert into a half-moved record, so one mutex guards both paths.
type Accumulator struct {
	mu      sync.Mutex
	live    map[string]*record
	seen    map[string]struct{}
	nextIdx int
	nextSeq int
}

// New returns an empty accumulator with a fresh job-lifetime seen set.
func New() *Accumulator {
	return &Accumulator{
		live: make(map[string]*record),
		seen: make(map[string]struct{}),
	}
}

// Track registers a key for collection, creating an empty live record.
// It returns false when the key was already emitted by any collection
// unit of this run, or is already being tracked.
func (a *Accumulator) Track(key string) bool {
	if key == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[key]; dup {
		return false
	}
	if _, live := a.live[key]; live {
		return false
	}
	a.nextSeq++
	a.live[key] = &record{key: key, seq: a.nextSeq}
	return true
}

// Upsert merges non-empty fields into the record for key, creating it if
// absent. Keys already emitted are ignored.
func (a *Accumulator) Upsert(key string, f Fields) {
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[key]; dup {
		return
	}
	rec, ok := a.live[key]
	if !ok {
		a.nextSeq++
		rec = &record{key: key, seq: a.nextSeq}
		a.live[key] = rec
	}
	merge(&rec.fields, f)
}

func merge(dst *Fields, src Fields) {
	if src.Link != "" {
		dst.Link = src.Link
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.Price != "" {
		dst.Price = src.Price
	}
	if src.Currency != "" {
		dst.Currency = src.Currency
	}
	if len(src.ImageURLs) > 0 {
		dst.ImageURLs = src.ImageURLs
	}
	if src.ListedAt != nil {
		dst.ListedAt = src.ListedAt
	}
}

// complete is the completeness predicate: every required field non-empty.
// Pure, no side effects.
func complete(f Fields) bool {
	return f.Link != "" &&
		f.Title != "" &&
		f.Description != "" &&
		f.Price != "" &&
		len(f.ImageURLs) > 0
}

// Complete reports whether the record for key currently passes the
// completeness predicate.
func (a *Accumulator) Complete(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.live[key]
	return ok && complete(rec.fields)
}

// DrainComplete atomically removes and returns all currently-complete
// records, assigning each a run-local sequential display index in
// discovery order. Drained keys move to the seen set, so a second drain
// with no intervening upsert returns nothing and no key is ever emitted
// twice.
func (a *Accumulator) DrainComplete() []model.Listing {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ready []*record
	for _, rec := range a.live {
		if complete(rec.fields) {
			ready = append(ready, rec)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].seq < ready[j].seq })

	var out []model.Listing
	for _, rec := range ready {
		a.nextIdx++
		out = append(out, model.Listing{
			DisplayID:   a.nextIdx,
			Key:         rec.key,
			Link:        rec.fields.Link,
			Title:       rec.fields.Title,
			Description: rec.fields.Description,
			Price:       rec.fields.Price,
			Currency:    rec.fields.Currency,
			ImageURLs:   rec.fields.ImageURLs,
			ListedAt:    rec.fields.ListedAt,
		})
		a.seen[rec.key] = struct{}{}
		delete(a.live, rec.key)
	}
	return out
}

// Seen reports whether key has been emitted at any point in this run.
func (a *Accumulator) Seen(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.seen[key]
	return ok
}

// SeenCount returns the number of keys emitted so far across all
// collection units.
func (a *Accumulator) SeenCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Live returns the number of records currently being assembled.
func (a *Accumulator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Discard drops all incomplete live records, typically at the end of a
// collection unit. Their keys stay untracked so a later unit may retry
// them.
func (a *Accumulator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = make(map[string]*record)
}
