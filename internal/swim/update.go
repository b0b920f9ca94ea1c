package swim

import (
	"math"
	"strconv"
	"time"

	"github.com/zbo14/floaty/internal/domain"
	"github.com/zbo14/floaty/internal/infra/dsa"
	"github.com/zbo14/floaty/internal/infra/observability"
)

// Update is the dissemination-buffer unit: an assertion about some
// peer's status at some sequence, plus how many outbound messages have
// already carried it. Host/Port are optional and let an update
// bootstrap an unknown peer.
type Update struct {
	ID       int             `json:"id"`
	Sequence int             `json:"sequence"`
	Status   domain.PeerStatus `json:"status"`
	Count    int             `json:"count"`
	Host     string          `json:"host,omitempty"`
	Port     int             `json:"port,omitempty"`
}

// buffer is the bounded, priority-ordered dissemination queue. It is not
// safe for concurrent use on its own; the engine serializes all access
// through its own lock.
type buffer struct {
	entries             []Update
	maxPiggyback        int
	disseminationFactor float64
	peerCount           func() int
}

func newBuffer(maxPiggyback int, disseminationFactor float64, peerCount func() int) *buffer {
	return &buffer{
		maxPiggyback:        maxPiggyback,
		disseminationFactor: disseminationFactor,
		peerCount:           peerCount,
	}
}

// add appends an update to the buffer with count initialized to 0.
// Duplicates are allowed; they age out independently.
func (b *buffer) add(id int, seq int, status domain.PeerStatus, host string, port int) {
	b.entries = append(b.entries, Update{
		ID:       id,
		Sequence: seq,
		Status:   status,
		Count:    0,
		Host:     host,
		Port:     port,
	})
	observability.BufferDepth.Set(float64(len(b.entries)))
}

// limit is round(ln(N+1)·k), recomputed on every call from the current
// total peer-table size (including suspect/down entries, not just peers
// currently believed alive).
func (b *buffer) limit() int {
	n := 0
	if b.peerCount != nil {
		n = b.peerCount()
	}
	return int(math.Round(math.Log(float64(n+1)) * b.disseminationFactor))
}

// take evicts entries at or past limit, then returns up to maxPiggyback of
// the least-disseminated survivors (stable by insertion order on ties),
// incrementing each returned entry's count in place. Selection runs
// through a generalized min-heap (internal/infra/dsa) keyed on
// dissemination count rather than sorting the whole slice.
func (b *buffer) take() []Update {
	lim := b.limit()

	live := b.entries[:0]
	for _, u := range b.entries {
		if u.Count < lim {
			live = append(live, u)
		}
	}
	b.entries = live

	pq := dsa.NewPriorityQueue(dsa.PriorityQueueConfig{})
	for i := range b.entries {
		pq.Push(dsa.HeapItem{
			Key:         strconv.Itoa(i),
			Priority:    b.entries[i].Count,
			SubmittedAt: time.Unix(0, int64(i)),
			Value:       i,
		})
	}

	n := b.maxPiggyback
	if n > pq.Len() {
		n = pq.Len()
	}

	out := make([]Update, 0, n)
	for i := 0; i < n; i++ {
		item, ok := pq.Pop()
		if !ok {
			break
		}
		idx := item.Value.(int)
		b.entries[idx].Count++
		out = append(out, b.entries[idx])
	}
	observability.BufferDepth.Set(float64(len(b.entries)))
	observability.PiggybackedUpdates.Observe(float64(len(out)))
	return out
}

// size reports the number of entries currently held, including any at or
// past limit that the next take will evict. The buffer-depth metric reads
// the entry count directly; size is used by tests.
func (b *buffer) size() int {
	return len(b.entries)
}
