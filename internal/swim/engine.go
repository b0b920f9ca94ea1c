package swim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zbo14/floaty/internal/domain"
	"github.com/zbo14/floaty/internal/infra/journal"
	"github.com/zbo14/floaty/internal/infra/observability"
)

// PeerInfo bootstraps a peer at Init or AddPeer time.
type PeerInfo struct {
	ID   int
	Host string
	Port int
}

// eventForward is a one-shot subscription armed by an incoming event-req:
// when the named event next fires locally, forward it to (host, port).
type eventForward struct {
	host string
	port int
}

// Engine is the membership owner: it holds the peer table, the update
// buffer, local identity and sequence, and glues the peer state machine,
// probe driver, dispatcher and scheduler together. All engine state is
// touched only while holding mu, a coarse lock standing in for an
// explicit mailbox.
type Engine struct {
	mu sync.Mutex

	self struct {
		id   int
		host string
		port int
	}
	selfSequence int

	peers     map[int]*peer
	order     []int // ordered peer ids for round-robin traversal
	nextIdx   int
	buffer    *buffer
	config    Config
	transport sender
	rng       *rand.Rand
	journal   *journal.Journal

	ackWaiters   map[int][]chan struct{}
	eventSubs    map[string][]eventForward
	eventWaiters map[string][]chan struct{}
	stateWaiters map[int][]chan []Update

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onError               func(error)
	onPeerStatusChange    func(id int, old, new domain.PeerStatus)
	onPeerSequence        func(id int, seq int)
	onUnrecognizedCommand func(cmd string)
	onUnrecognizedStatus  func(status string)
}

// NewEngine constructs an uninitialized engine for local identity
// (id, host, port). Call Init before Start.
func NewEngine(id int, host string, port int, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	cfg.ID, cfg.Host, cfg.Port = id, host, port

	e := &Engine{
		config:       cfg,
		peers:        make(map[int]*peer),
		ackWaiters:   make(map[int][]chan struct{}),
		eventSubs:    make(map[string][]eventForward),
		eventWaiters: make(map[string][]chan struct{}),
		stateWaiters: make(map[int][]chan []Update),
		rng:          rand.New(rand.NewSource(1)),
	}
	e.self.id, e.self.host, e.self.port = id, host, port
	e.buffer = newBuffer(cfg.MaxPiggybackUpdates, cfg.DisseminationFactor, e.peerCount)
	return e
}

// OnError, OnPeerStatusChange, OnPeerSequence, OnUnrecognizedCommand, and
// OnUnrecognizedStatus wire typed per-peer/per-engine observer callbacks,
// each a strongly-typed alternative to a string-keyed event bus. Call
// before Start.
func (e *Engine) OnError(f func(error))                                   { e.onError = f }
func (e *Engine) OnPeerStatusChange(f func(id int, old, new domain.PeerStatus)) { e.onPeerStatusChange = f }
func (e *Engine) OnPeerSequence(f func(id int, seq int))                  { e.onPeerSequence = f }
func (e *Engine) OnUnrecognizedCommand(f func(cmd string))                { e.onUnrecognizedCommand = f }
func (e *Engine) OnUnrecognizedStatus(f func(status string))              { e.onUnrecognizedStatus = f }

// SetJournal attaches a diagnostic transition journal. It plays no part
// in membership decisions: failures to record are surfaced on the error
// signal and otherwise ignored. Call before Start; nil disables
// journaling (the default).
func (e *Engine) SetJournal(j *journal.Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = j
}

// Init populates the peer table and binds the UDP transport. A bind
// failure leaves the engine un-initialized.
func (e *Engine) Init(peers []PeerInfo) error {
	e.mu.Lock()
	for _, p := range peers {
		e.addPeerLocked(p.ID, p.Host, p.Port)
	}
	e.mu.Unlock()

	t, err := newUDPTransport(e.config.Host, e.config.Port, e.handleDatagram)
	if err != nil {
		return err
	}
	e.transport = t
	return nil
}

// Teardown closes the transport and clears outstanding timers.
func (e *Engine) Teardown() error {
	e.mu.Lock()
	for _, p := range e.peers {
		if p.suspectTimer != nil {
			p.suspectTimer.Stop()
			p.suspectTimer = nil
		}
	}
	e.mu.Unlock()

	if t, ok := e.transport.(*udpTransport); ok {
		return t.Close()
	}
	return nil
}

// Start begins the protocol-period loop: an infinite cadence of (probe
// one peer; sleep) until Stop. Errors within a period are emitted on the
// error signal and do not abort the loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.transport == nil {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runScheduler(stopCh)
	return nil
}

// Stop cancels the pending scheduler sleep and waits for the loop to
// exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// AddPeer registers a remote node, ignoring self and already-known ids.
func (e *Engine) AddPeer(info PeerInfo) *peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if info.ID == e.self.id {
		return nil
	}
	if p, ok := e.peers[info.ID]; ok {
		return p
	}
	return e.addPeerLocked(info.ID, info.Host, info.Port)
}

// addPeerLocked constructs a peer record, wires its status-change and
// sequence callbacks to the update buffer and engine signals, and
// inserts it at a random position in the traversal order.
func (e *Engine) addPeerLocked(id int, host string, port int) *peer {
	p := newPeer(id, host, port)
	p.onStatusChange = func(old, new domain.PeerStatus) {
		e.buffer.add(id, p.sequence, new, "", 0)
		observability.PeerStatusTransitions.WithLabelValues(new.String()).Inc()
		observability.PeersByStatus.WithLabelValues(old.String()).Dec()
		observability.PeersByStatus.WithLabelValues(new.String()).Inc()
		if e.journal != nil {
			if err := e.journal.RecordTransition(id, old.String(), new.String(), p.sequence); err != nil {
				e.emitError(err)
			}
		}
		if e.onPeerStatusChange != nil {
			e.onPeerStatusChange(id, old, new)
		}
		e.notifyLocalEvent(new.String())
	}
	p.onSequence = func(seq int) {
		if e.onPeerSequence != nil {
			e.onPeerSequence(id, seq)
		}
		e.notifyLocalEvent("sequence")
	}

	e.peers[id] = p
	observability.PeersByStatus.WithLabelValues(domain.Alive.String()).Inc()
	if len(e.order) == 0 {
		e.order = append(e.order, id)
	} else {
		i := e.rng.Intn(len(e.order) + 1)
		e.order = append(e.order, 0)
		copy(e.order[i+1:], e.order[i:])
		e.order[i] = id
	}
	return p
}

// RandomPeer uniformly picks a known peer, or nil if none are known.
func (e *Engine) RandomPeer() *peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.order) == 0 {
		return nil
	}
	return e.peers[e.order[e.rng.Intn(len(e.order))]]
}

// peerCount reads the current peer-table size. It is wired into the
// dissemination buffer's limit() calculation, which is only ever invoked
// from call sites (probe, handlePingLocked, handlePingReqLocked) that
// already hold e.mu — this must stay lock-free itself, since sync.Mutex
// is not reentrant and a second Lock from the same goroutine would
// deadlock.
func (e *Engine) peerCount() int {
	return len(e.peers)
}

// RequestState sends a state-req to peer id and awaits its state reply.
// Primarily useful from tests.
func (e *Engine) RequestState(id int, timeout time.Duration) ([]Update, error) {
	e.mu.Lock()
	p, ok := e.peers[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownPeer
	}
	ch := make(chan []Update, 1)
	e.stateWaiters[id] = append(e.stateWaiters[id], ch)
	e.sendLocked(p.host, p.port, message{Command: cmdStateReq, SenderID: e.self.id, Updates: []Update{}})
	e.mu.Unlock()

	select {
	case updates := <-ch:
		return updates, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// EventReq sends an event-req to peer id and resolves when that peer
// emits event(name), or fails with Timeout/UnknownPeer.
func (e *Engine) EventReq(id int, name string, timeout time.Duration) error {
	e.mu.Lock()
	p, ok := e.peers[id]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownPeer
	}
	key := eventWaitKey(id, name)
	ch := make(chan struct{}, 1)
	e.eventWaiters[key] = append(e.eventWaiters[key], ch)
	e.sendLocked(p.host, p.port, message{Command: cmdEventReq, SenderID: e.self.id, Updates: []Update{}, EventName: name})
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

func eventWaitKey(id int, name string) string { return fmt.Sprintf("%d:%s", id, name) }

// Members returns a snapshot of every known peer (including self) as of
// the call, for read-only introspection (internal/statusapi).
func (e *Engine) Members() []Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// snapshotLocked dumps the full peer table as update records for a
// state-req reply.
func (e *Engine) snapshotLocked() []Update {
	out := make([]Update, 0, len(e.peers)+1)
	out = append(out, Update{ID: e.self.id, Sequence: e.selfSequence, Status: domain.Alive, Host: e.self.host, Port: e.self.port})
	for _, p := range e.peers {
		out = append(out, Update{ID: p.id, Sequence: p.sequence, Status: p.status, Host: p.host, Port: p.port})
	}
	return out
}

func (e *Engine) resolveStateWaitersLocked(id int, updates []Update) {
	waiters := e.stateWaiters[id]
	delete(e.stateWaiters, id)
	for _, ch := range waiters {
		ch <- updates
	}
}

// addAckWaiterLocked registers a fresh waiter for the next ack observed
// from peer id. Multiple concurrent waiters are supported since a peer
// can be the target of both the scheduler's direct probe and an
// in-flight ping-req relay at once.
func (e *Engine) addAckWaiterLocked(id int) chan struct{} {
	ch := make(chan struct{}, 1)
	e.ackWaiters[id] = append(e.ackWaiters[id], ch)
	return ch
}

func (e *Engine) removeAckWaiterLocked(id int, target chan struct{}) {
	waiters := e.ackWaiters[id]
	for i, ch := range waiters {
		if ch == target {
			e.ackWaiters[id] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

func (e *Engine) resolveAckWaitersLocked(id int) {
	waiters := e.ackWaiters[id]
	delete(e.ackWaiters, id)
	for _, ch := range waiters {
		ch <- struct{}{}
	}
}

// armEventForwardLocked records a one-shot forward for the next local
// firing of the named event, per an incoming event-req.
func (e *Engine) armEventForwardLocked(name string, host string, port int) {
	e.eventSubs[name] = append(e.eventSubs[name], eventForward{host: host, port: port})
}

// resolveEventWaitersLocked handles an incoming event(name) from
// senderID: resolve any local EventReq waiting on that (peer, name) pair.
func (e *Engine) resolveEventWaitersLocked(senderID int, name string) {
	key := eventWaitKey(senderID, name)
	waiters := e.eventWaiters[key]
	delete(e.eventWaiters, key)
	for _, ch := range waiters {
		ch <- struct{}{}
	}
}

// notifyLocalEvent fires whenever a named signal occurs locally
// (a peer status transition, a sequence bump). It services any
// subscriptions armed by a remote event-req; it's the single place the
// string-named event wire command and the typed callbacks above both
// flow from.
func (e *Engine) notifyLocalEvent(name string) {
	subs := e.eventSubs[name]
	if len(subs) == 0 {
		return
	}
	delete(e.eventSubs, name)
	for _, sub := range subs {
		e.sendLocked(sub.host, sub.port, message{Command: cmdEvent, SenderID: e.self.id, Updates: []Update{}, EventName: name})
	}
}

// applyTimerEffectLocked arms or cancels a peer's suspect timer
// following a state-machine transition. A single logical timer per peer
// suffices since probe, indirect-probe and suspect timeouts never
// overlap on the same peer.
func (e *Engine) applyTimerEffectLocked(p *peer, armed, canceled bool) {
	if p == nil {
		return
	}
	if canceled && p.suspectTimer != nil {
		p.suspectTimer.Stop()
		p.suspectTimer = nil
	}
	if armed {
		id := p.id
		p.suspectTimer = time.AfterFunc(e.config.ProbeTimeout, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if pp, ok := e.peers[id]; ok {
				pp.expireSuspect()
			}
		})
	}
}

func (e *Engine) emitError(err error) {
	kind := "error"
	switch err.(type) {
	case *ParseError:
		kind = "parse"
	case *TransportError:
		kind = "transport"
	case *BindError:
		kind = "bind"
	}
	observability.RecoverableErrors.WithLabelValues(kind).Inc()
	if e.onError != nil {
		e.onError(err)
	}
}

func (e *Engine) emitUnrecognizedCommand(cmd string) {
	observability.UnrecognizedWireValues.WithLabelValues("command", cmd).Inc()
	if e.onUnrecognizedCommand != nil {
		e.onUnrecognizedCommand(cmd)
	}
}

func (e *Engine) emitUnrecognizedStatus(status string) {
	observability.UnrecognizedWireValues.WithLabelValues("status", status).Inc()
	if e.onUnrecognizedStatus != nil {
		e.onUnrecognizedStatus(status)
	}
}
