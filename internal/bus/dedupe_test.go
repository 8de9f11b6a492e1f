package bus

import (
	"fmt"
	"testing"
	"time"
)

func TestDeduplicator_FirstSeenThenDuplicate(t *testing.T) {
	d := NewDeduplicator(10*time.Minute, 100)

	if d.IsDuplicate("M1") {
		t.Error("first sighting of M1 reported as duplicate")
	}
	if !d.IsDuplicate("M1") {
		t.Error("second sighting of M1 not reported as duplicate")
	}
	if d.IsDuplicate("M2") {
		t.Error("unrelated id M2 reported as duplicate")
	}
}

func TestDeduplicator_TTLExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(10*time.Minute, 100)
	d.now = func() time.Time { return now }

	d.IsDuplicate("M1")

	now = now.Add(9 * time.Minute)
	if !d.IsDuplicate("M1") {
		t.Error("M1 expired before TTL elapsed")
	}

	now = now.Add(2 * time.Minute) // 11m after first sighting
	if d.IsDuplicate("M1") {
		t.Error("M1 still duplicate after TTL elapsed")
	}
}

func TestDeduplicator_DuplicateHitDoesNotExtendTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(10*time.Minute, 100)
	d.now = func() time.Time { return now }

	d.IsDuplicate("M1")
	now = now.Add(5 * time.Minute)
	d.IsDuplicate("M1") // duplicate hit at t+5m

	now = now.Add(6 * time.Minute) // t+11m from first sighting
	if d.IsDuplicate("M1") {
		t.Error("duplicate hit extended the TTL")
	}
}

func TestDeduplicator_CapEvictsOldest(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(time.Hour, 3)
	d.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d.IsDuplicate(fmt.Sprintf("M%d", i))
		now = now.Add(time.Second)
	}
	if got := d.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	d.IsDuplicate("M3") // evicts M0, the oldest

	if got := d.Len(); got != 3 {
		t.Errorf("Len() = %d after eviction, want 3", got)
	}
	if d.IsDuplicate("M0") {
		t.Error("evicted M0 still reported as duplicate")
	}
	if !d.IsDuplicate("M2") {
		t.Error("recent M2 lost during eviction")
	}
}

func TestDeduplicator_Concurrent(t *testing.T) {
	d := NewDeduplicator(time.Minute, 100)

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- d.IsDuplicate("M1") }()
	}

	a, b := <-results, <-results
	if a == b {
		t.Errorf("concurrent sightings of the same id: got (%v, %v), want exactly one duplicate", a, b)
	}
}
