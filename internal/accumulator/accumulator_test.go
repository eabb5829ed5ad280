package accumulator

import (
	"fmt"
	"sync"
	"testing"
)

func fullFields() Fields {
	return Fields{
		Link:        "https://example.com/item/1",
		Title:       "Canon PG-540",
		Description: "Unopened, original packaging",
		Price:       "12",
		Currency:    "EUR",
		ImageURLs:   []string{"https://cdn.example.com/a.jpg"},
	}
}

func TestUpsert_MergesFragmentsInAnyOrder(t *testing.T) {
	a := New()
	a.Track("k1")

	a.Upsert("k1", Fields{ImageURLs: []string{"img1"}})
	a.Upsert("k1", Fields{Title: "Printer", Price: "30", Currency: "EUR"})
	if a.Complete("k1") {
		t.Fatal("record should not be complete without link and description")
	}

	a.Upsert("k1", Fields{Link: "https://x", Description: "works fine"})
	if !a.Complete("k1") {
		t.Fatal("record should be complete after all fragments merged")
	}
}

func TestUpsert_EmptyFieldsDoNotOverwrite(t *testing.T) {
	a := New()
	a.Upsert("k1", fullFields())
	a.Upsert("k1", Fields{Title: ""}) // sparse fragment

	got := a.DrainComplete()
	if len(got) != 1 || got[0].Title != "Canon PG-540" {
		t.Fatalf("sparse fragment overwrote merged record: %+v", got)
	}
}

func TestDrainComplete_CompletenessGate(t *testing.T) {
	a := New()

	incomplete := []Fields{
		{Title: "t", Description: "d", Price: "1", ImageURLs: []string{"i"}},          // no link
		{Link: "l", Description: "d", Price: "1", ImageURLs: []string{"i"}},           // no title
		{Link: "l", Title: "t", Price: "1", ImageURLs: []string{"i"}},                 // no description
		{Link: "l", Title: "t", Description: "d", ImageURLs: []string{"i"}},           // no price
		{Link: "l", Title: "t", Description: "d", Price: "1"},                         // no images
		{Link: "l", Title: "t", Description: "d", Price: "1", ImageURLs: []string{}},  // empty images
	}
	for i, f := range incomplete {
		a.Upsert(fmt.Sprintf("k%d", i), f)
	}

	if got := a.DrainComplete(); len(got) != 0 {
		t.Fatalf("drain returned %d records missing required fields", len(got))
	}
	if a.Live() != len(incomplete) {
		t.Errorf("incomplete records should remain live, have %d", a.Live())
	}
}

func TestDrainComplete_Idempotent(t *testing.T) {
	a := New()
	a.Upsert("k1", fullFields())

	first := a.DrainComplete()
	if len(first) != 1 {
		t.Fatalf("expected 1 record, got %d", len(first))
	}
	second := a.DrainComplete()
	if len(second) != 0 {
		t.Fatalf("second drain with no upserts must be empty, got %d", len(second))
	}
}

func TestDrainComplete_AtMostOnceAcrossUnits(t *testing.T) {
	a := New()

	// Unit 1 discovers and flushes the key.
	if !a.Track("k1") {
		t.Fatal("first track should succeed")
	}
	a.Upsert("k1", fullFields())
	if got := a.DrainComplete(); len(got) != 1 {
		t.Fatalf("expected 1 record from unit 1, got %d", len(got))
	}

	// Unit 2 rediscovers the same key: tracking is refused and even a
	// direct upsert cannot resurrect it.
	if a.Track("k1") {
		t.Fatal("tracking an emitted key must be refused")
	}
	a.Upsert("k1", fullFields())
	if got := a.DrainComplete(); len(got) != 0 {
		t.Fatalf("emitted key re-drained by unit 2: %d records", len(got))
	}
	if a.SeenCount() != 1 {
		t.Errorf("expected 1 seen key, got %d", a.SeenCount())
	}
}

func TestDrainComplete_SequentialDisplayIDs(t *testing.T) {
	a := New()
	a.Upsert("b", fullFields())
	first := a.DrainComplete()

	a.Upsert("c", fullFields())
	a.Upsert("d", fullFields())
	second := a.DrainComplete()

	ids := map[int]bool{}
	for _, l := range append(first, second...) {
		ids[l.DisplayID] = true
	}
	for want := 1; want <= 3; want++ {
		if !ids[want] {
			t.Errorf("missing sequential display id %d (got %v)", want, ids)
		}
	}
}

func TestDrainComplete_DiscoveryOrder(t *testing.T) {
	a := New()

	// Keys deliberately out of lexical order; discovery order must win.
	keys := []string{"zeta", "alpha", "mid", "beta", "omega"}
	for _, key := range keys {
		a.Track(key)
		a.Upsert(key, fullFields())
	}

	got := a.DrainComplete()
	if len(got) != len(keys) {
		t.Fatalf("expected %d records, got %d", len(keys), len(got))
	}
	for i, l := range got {
		if l.Key != keys[i] {
			t.Errorf("position %d: got %q, want %q", i, l.Key, keys[i])
		}
		if l.DisplayID != i+1 {
			t.Errorf("key %q: display id %d, want %d", l.Key, l.DisplayID, i+1)
		}
	}
}

func TestDiscard_KeepsSeenSet(t *testing.T) {
	a := New()
	a.Upsert("done", fullFields())
	a.DrainComplete()
	a.Upsert("half", Fields{Title: "partial"})

	a.Discard()
	if a.Live() != 0 {
		t.Errorf("discard should empty live records, have %d", a.Live())
	}
	if !a.Seen("done") {
		t.Error("discard must not forget emitted keys")
	}
	if !a.Track("half") {
		t.Error("a discarded incomplete key should be trackable again")
	}
}

func TestConcurrentUpsertAndDrain(t *testing.T) {
	a := New()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d-i%d", w, i)
				f := fullFields()
				a.Upsert(key, Fields{Title: f.Title, Price: f.Price})
				a.Upsert(key, Fields{Link: f.Link, Description: f.Description, ImageURLs: f.ImageURLs})
			}
		}(w)
	}

	stop := make(chan struct{})
	counts := make(chan int, 1)
	go func() {
		total := 0
		for {
			total += len(a.DrainComplete())
			select {
			case <-stop:
				total += len(a.DrainComplete())
				counts <- total
				return
			default:
			}
		}
	}()

	wg.Wait()
	close(stop)
	if total := <-counts; total != writers*perWriter {
		t.Errorf("expected %d drained records, got %d", writers*perWriter, total)
	}
	if a.SeenCount() != writers*perWriter {
		t.Errorf("expected %d unique emissions, got %d", writers*perWriter, a.SeenCount())
	}
}
