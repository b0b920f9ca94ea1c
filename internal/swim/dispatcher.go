package swim

import (
	"time"

	"github.com/zbo14/floaty/internal/domain"
)

// sender is the external collaborator the dispatcher needs: something
// that can fire-and-forget (bytes, host, port) over an unreliable
// datagram transport. Production code is backed by transport.go's UDP
// socket; tests back it with an in-memory fake.
type sender interface {
	SendTo(b []byte, host string, port int) error
}

// handleDatagram parses a datagram, auto-registers the sender, applies
// piggybacked updates, then dispatches on command — strictly in that
// order, so a PING carrying "self is suspect" triggers self-refutation
// before the ACK reply is built.
func (e *Engine) handleDatagram(raw []byte, fromHost string, fromPort int) {
	m, err := decode(raw)
	if err != nil {
		e.emitError(err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.ensurePeerLocked(m.SenderID, fromHost, fromPort)

	for _, u := range m.Updates {
		e.applyUpdateLocked(u)
	}

	switch m.Command {
	case cmdPing:
		e.handlePingLocked(from)
	case cmdAck:
		e.handleAckLocked(from)
	case cmdPingReq:
		e.handlePingReqLocked(m)
	case cmdEvent:
		e.handleEventLocked(m)
	case cmdEventReq:
		e.handleEventReqLocked(from, m)
	case cmdStateReq:
		e.handleStateReqLocked(from)
	case cmdState:
		e.handleStateLocked(m)
	default:
		e.emitUnrecognizedCommand(string(m.Command))
	}
}

// ensurePeerLocked auto-registers an unknown sender using the datagram's
// source host/port, so a node never has to be told about an inbound
// peer in advance. Returns nil if the sender is this node itself.
func (e *Engine) ensurePeerLocked(id int, host string, port int) *peer {
	if id == e.self.id {
		return nil
	}
	if p, ok := e.peers[id]; ok {
		return p
	}
	return e.addPeerLocked(id, host, port)
}

// applyUpdateLocked routes one piggybacked update to the named peer's
// state machine, or to self-refutation logic if it names this node.
func (e *Engine) applyUpdateLocked(u Update) {
	if !u.Status.Valid() {
		e.emitUnrecognizedStatus(u.Status.String())
		return
	}

	if u.ID == e.self.id {
		e.handleSelfUpdateLocked(u)
		return
	}

	p, ok := e.peers[u.ID]
	if !ok {
		if u.Host == "" {
			return
		}
		p = e.addPeerLocked(u.ID, u.Host, u.Port)
	} else if u.Host != "" {
		// Address learning: any piggybacked update naming a known peer
		// refreshes its address book entry, not just the first sighting,
		// so a peer that moves host/port is re-learned via gossip.
		p.host, p.port = u.Host, u.Port
	}

	armed, canceled := p.applyUpdate(u.Sequence, u.Status)
	e.applyTimerEffectLocked(p, armed, canceled)
}

// handleSelfUpdateLocked implements self-refutation: a piggybacked
// "suspect" about this node at (or, defensively, past) its current
// sequence bumps our sequence and queues a refuting "alive" before the
// next protocol period.
func (e *Engine) handleSelfUpdateLocked(u Update) {
	if u.Status == domain.Suspect && u.Sequence >= e.selfSequence {
		e.selfSequence++
		e.buffer.add(e.self.id, e.selfSequence, domain.Alive, "", 0)
	}
}

func (e *Engine) handlePingLocked(from *peer) {
	if from == nil {
		return
	}
	armed, canceled := from.observeDirect()
	e.applyTimerEffectLocked(from, armed, canceled)
	e.resolveAckWaitersLocked(from.id)

	e.sendLocked(from.host, from.port, message{
		Command:  cmdAck,
		SenderID: e.self.id,
		Updates:  e.buffer.take(),
	})
}

func (e *Engine) handleAckLocked(from *peer) {
	if from == nil {
		return
	}
	armed, canceled := from.observeDirect()
	e.applyTimerEffectLocked(from, armed, canceled)
	e.resolveAckWaitersLocked(from.id)
}

// handlePingReqLocked resolves the named target (auto-registering it from
// target_address/target_port if unknown) and probes it with no indirect
// escalation, relaying an ACK back to the original requester if the
// target answers within the probe timeout. The per-target ack waiter is
// shared with the scheduler's own direct probes.
func (e *Engine) handlePingReqLocked(m message) {
	requester, ok := e.peers[m.SenderID]
	if !ok {
		return
	}
	armed, canceled := requester.observeDirect()
	e.applyTimerEffectLocked(requester, armed, canceled)

	target, ok := e.peers[m.TargetID]
	if !ok {
		if m.TargetAddress == "" {
			return
		}
		target = e.addPeerLocked(m.TargetID, m.TargetAddress, m.TargetPort)
	}

	ackCh := e.addAckWaiterLocked(target.id)
	e.sendLocked(target.host, target.port, message{
		Command:  cmdPing,
		SenderID: e.self.id,
		Updates:  e.buffer.take(),
	})

	reqHost, reqPort := requester.host, requester.port
	timeout := e.config.ProbeTimeout
	go func() {
		select {
		case <-ackCh:
			e.mu.Lock()
			e.sendLocked(reqHost, reqPort, message{
				Command:  cmdAck,
				SenderID: e.self.id,
				Updates:  e.buffer.take(),
			})
			e.mu.Unlock()
		case <-time.After(timeout):
			e.mu.Lock()
			e.removeAckWaiterLocked(target.id, ackCh)
			e.mu.Unlock()
		}
	}()
}

func (e *Engine) handleEventLocked(m message) {
	if m.EventName == "" {
		return
	}
	e.resolveEventWaitersLocked(m.SenderID, m.EventName)
}

func (e *Engine) handleEventReqLocked(from *peer, m message) {
	if from == nil || m.EventName == "" {
		return
	}
	e.armEventForwardLocked(m.EventName, from.host, from.port)
}

func (e *Engine) handleStateReqLocked(from *peer) {
	if from == nil {
		return
	}
	e.sendLocked(from.host, from.port, message{
		Command:  cmdState,
		SenderID: e.self.id,
		Updates:  e.snapshotLocked(),
	})
}

func (e *Engine) handleStateLocked(m message) {
	e.resolveStateWaitersLocked(m.SenderID, m.Updates)
}

func (e *Engine) sendLocked(host string, port int, m message) {
	b, err := encode(m)
	if err != nil {
		e.emitError(err)
		return
	}
	if err := e.transport.SendTo(b, host, port); err != nil {
		e.emitError(&TransportError{Op: "send", Err: err})
	}
}
