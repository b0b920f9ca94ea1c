package swim

import (
	"time"

	"github.com/zbo14/floaty/internal/domain"
	"github.com/zbo14/floaty/internal/infra/observability"
)

// probe drives one round of failure detection against peer id: direct
// PING, then on timeout an indirect PING-REQ via one or more other alive
// peers, then suspect on further timeout. It runs outside the engine
// lock except for the brief critical sections needed to read state and
// register/resolve waiters; sending and awaiting an ack are the only
// points that suspend.
func (e *Engine) probe(id int) {
	e.mu.Lock()
	target, ok := e.peers[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	ch := e.addAckWaiterLocked(id)
	sentAt := time.Now()
	e.sendLocked(target.host, target.port, message{
		Command:  cmdPing,
		SenderID: e.self.id,
		Updates:  e.buffer.take(),
	})
	e.mu.Unlock()
	observability.ProbesSent.WithLabelValues("direct").Inc()

	select {
	case <-ch:
		observability.AckLatency.Observe(float64(time.Since(sentAt).Milliseconds()))
		observability.ProbeOutcomes.WithLabelValues("direct_ack").Inc()
		return
	case <-time.After(e.config.ProbeTimeout):
	}

	e.mu.Lock()
	e.removeAckWaiterLocked(id, ch)
	indirects := e.pickIndirectLocked(id, e.config.IndirectProbes)
	if len(indirects) == 0 {
		e.suspectLocked(id)
		e.mu.Unlock()
		observability.ProbeOutcomes.WithLabelValues("suspected_no_relay").Inc()
		return
	}

	// Wait on an ack from the target itself (it may yet answer directly
	// before the indirect timeout) fanned in with an ack from any relay:
	// a relaying peer answers for itself, not with the target's id,
	// since the ack wire format carries no field naming who it vouches
	// for.
	waitIDs := append([]int{target.id}, peerIDs(indirects)...)
	success, cleanup := fanInAckWaitersLocked(e, waitIDs)
	for _, relay := range indirects {
		e.sendLocked(relay.host, relay.port, message{
			Command:  cmdPingReq,
			SenderID: e.self.id,
			Updates:  e.buffer.take(),
			TargetID: target.id,
		})
	}
	e.mu.Unlock()
	observability.ProbesSent.WithLabelValues("indirect").Inc()

	select {
	case <-success:
		e.mu.Lock()
		cleanup(e)
		target, ok := e.peers[id]
		if ok {
			armed, canceled := target.observeDirect()
			e.applyTimerEffectLocked(target, armed, canceled)
		}
		e.mu.Unlock()
		observability.ProbeOutcomes.WithLabelValues("indirect_ack").Inc()
		return
	case <-time.After(e.config.ProbeTimeout):
	}

	e.mu.Lock()
	cleanup(e)
	e.suspectLocked(id)
	e.mu.Unlock()
	observability.ProbeOutcomes.WithLabelValues("suspected").Inc()
}

func peerIDs(peers []*peer) []int {
	ids := make([]int, len(peers))
	for i, p := range peers {
		ids[i] = p.id
	}
	return ids
}

// fanInAckWaitersLocked registers one waiter per id in ids, all feeding
// the same buffered result channel so the caller can select on whichever
// resolves first. Must be called with e.mu held. The returned cleanup
// func removes any still-registered per-id waiters on timeout; it must
// itself be called with e.mu held.
func fanInAckWaitersLocked(e *Engine, ids []int) (result chan struct{}, cleanup func(*Engine)) {
	out := make(chan struct{}, 1)
	perID := make(map[int]chan struct{}, len(ids))
	for _, id := range ids {
		ch := e.addAckWaiterLocked(id)
		perID[id] = ch
		go func(ch chan struct{}) {
			<-ch
			select {
			case out <- struct{}{}:
			default:
			}
		}(ch)
	}
	return out, func(e *Engine) {
		for id, ch := range perID {
			e.removeAckWaiterLocked(id, ch)
		}
	}
}

// pickIndirectLocked returns up to k distinct alive peers other than
// target, chosen uniformly at random without replacement. Suspect/down
// peers are excluded: they are themselves unreachable or unconfirmed, so
// asking one to relay a ping-req is both spec-incorrect and pointless.
func (e *Engine) pickIndirectLocked(targetID int, k int) []*peer {
	candidates := make([]*peer, 0, len(e.peers))
	for id, p := range e.peers {
		if id != targetID && p.status == domain.Alive {
			candidates = append(candidates, p)
		}
	}
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

func (e *Engine) suspectLocked(id int) {
	p, ok := e.peers[id]
	if !ok {
		return
	}
	armed := p.suspect()
	e.applyTimerEffectLocked(p, armed, false)
}
