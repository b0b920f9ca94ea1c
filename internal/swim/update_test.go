package swim

import (
	"testing"

	"github.com/zbo14/floaty/internal/domain"
)

func TestBufferLimit(t *testing.T) {
	b := newBuffer(6, 3, func() int { return 20 })
	if got, want := b.limit(), 9; got != want {
		t.Errorf("limit() with N=20 = %d, want %d", got, want)
	}
}

// TestBufferTakeEviction checks a concrete eviction scenario: with
// N=20 (limit=9) and counts {6,7,8,8,8,9}, the count=9 entry is evicted
// and the remaining five return in ascending-count order, each incremented.
func TestBufferTakeEviction(t *testing.T) {
	b := newBuffer(6, 3, func() int { return 20 })
	counts := []int{6, 7, 8, 8, 8, 9}
	for i, c := range counts {
		b.add(i, 1, domain.Alive, "", 0)
		b.entries[i].Count = c
	}

	got := b.take()
	if len(got) != 5 {
		t.Fatalf("take() returned %d updates, want 5", len(got))
	}

	wantCounts := []int{7, 8, 9, 9, 9}
	for i, u := range got {
		if u.Count != wantCounts[i] {
			t.Errorf("take()[%d].Count = %d, want %d", i, u.Count, wantCounts[i])
		}
	}
	if b.size() != 5 {
		t.Errorf("size() after take() = %d, want 5 (evicted entry dropped)", b.size())
	}
}

func TestBufferTakeCapsAtMaxPiggyback(t *testing.T) {
	b := newBuffer(6, 3, func() int { return 20 })
	for i := 0; i < 10; i++ {
		b.add(i, 1, domain.Alive, "", 0)
	}
	got := b.take()
	if len(got) != 6 {
		t.Errorf("take() = %d updates, want 6 (maxPiggyback cap)", len(got))
	}
}

func TestBufferAddDuplicatesAgeIndependently(t *testing.T) {
	b := newBuffer(6, 3, func() int { return 0 })
	b.add(1, 1, domain.Suspect, "", 0)
	b.add(1, 1, domain.Suspect, "", 0)
	if b.size() != 2 {
		t.Errorf("size() = %d, want 2 duplicate entries", b.size())
	}
}
