package swim

import (
	"time"

	"github.com/zbo14/floaty/internal/domain"
)

// peer is one remote node known to the engine: its alive/suspect/down
// status machine. All mutation happens from engine methods holding
// engine.mu, so peer itself carries no lock of its own.
type peer struct {
	id   int
	host string
	port int

	status           domain.PeerStatus
	sequence         int
	lastDownSequence int
	suspectTimer     *time.Timer

	// Callbacks, wired once by Engine.AddPeer: a strongly-typed per-peer
	// observer. The engine is the only observer. Ack notifications are
	// not modeled as a peer callback — unlike a status change there can
	// be several independent waiters for "peer X answered" at once (the
	// scheduled direct probe and a relayed ping-req can overlap), so the
	// engine tracks those itself instead.
	onStatusChange func(old, new domain.PeerStatus)
	onSequence     func(seq int)
}

func newPeer(id int, host string, port int) *peer {
	return &peer{
		id:               id,
		host:             host,
		port:             port,
		status:           domain.Alive,
		sequence:         0,
		lastDownSequence: -1,
	}
}

// bumpSequence advances the recorded sequence and fires onSequence
// whenever an incoming sequence is strictly higher than our own,
// independent of what the status transition below does.
func (p *peer) bumpSequence(seq int) {
	if seq > p.sequence {
		p.sequence = seq
		if p.onSequence != nil {
			p.onSequence(seq)
		}
	}
}

// transition changes status (no-op if unchanged) and fires onStatusChange.
// It returns whether a suspect timer should now be armed or canceled: a
// transition into suspect arms one, a transition out of suspect cancels
// the one already running. The probe, indirect-probe, and suspect timers
// never overlap for a given peer, so one timer slot is always enough.
func (p *peer) transition(to domain.PeerStatus) (armed, canceled bool) {
	old := p.status
	if old == to {
		return false, false
	}
	p.status = to
	if p.onStatusChange != nil {
		p.onStatusChange(old, to)
	}
	return to == domain.Suspect, old == domain.Suspect
}

// applyUpdate processes a gossiped (sequence, status) assertion against
// this peer.
func (p *peer) applyUpdate(seq int, status domain.PeerStatus) (armed, canceled bool) {
	prevSeq := p.sequence
	p.bumpSequence(seq)

	switch p.status {
	case domain.Alive:
		switch status {
		case domain.Suspect:
			if seq >= prevSeq {
				return p.transition(domain.Suspect)
			}
		case domain.Down:
			if p.lastDownSequence < seq {
				p.lastDownSequence = seq
				return p.transition(domain.Down)
			}
		}

	case domain.Suspect:
		switch status {
		case domain.Alive:
			if seq > prevSeq {
				return p.transition(domain.Alive)
			}
		case domain.Down:
			p.lastDownSequence = seq
			return p.transition(domain.Down)
		}

	case domain.Down:
		if status == domain.Alive && seq > prevSeq {
			return p.transition(domain.Alive)
		}
	}

	return false, false
}

// observeDirect handles a direct observation (ack, ping, or ping-req
// received from this peer itself), which always revives a suspect peer
// back to alive. There is no sequence number carried by ping/ack/ping-req
// themselves (only
// piggybacked updates carry one, applied separately) — the mere fact that
// a datagram arrived from the peer is the observation. Down peers are not
// revived by direct observation alone — only a higher-sequence alive
// update can do that, since a down peer must prove it has restarted with
// a fresh sequence, not merely that a packet arrived.
func (p *peer) observeDirect() (armed, canceled bool) {
	if p.status == domain.Suspect {
		return p.transition(domain.Alive)
	}
	return false, false
}

// suspect idempotently transitions the peer to suspect: a no-op if the
// peer is already suspect or down.
func (p *peer) suspect() (armed bool) {
	if p.status != domain.Alive {
		return false
	}
	armed, _ = p.transition(domain.Suspect)
	return armed
}

// expireSuspect transitions suspect->down on suspect-timeout expiry.
// No-op if the peer is no longer suspect (the timer fired after an
// intervening revival).
func (p *peer) expireSuspect() {
	if p.status != domain.Suspect {
		return
	}
	p.lastDownSequence = p.sequence
	p.transition(domain.Down)
}
