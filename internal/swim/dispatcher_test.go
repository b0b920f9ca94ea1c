package swim

import (
	"sync"
	"testing"
	"time"

	"github.com/zbo14/floaty/internal/domain"
)

// fakeSender records outgoing datagrams instead of touching a real
// socket, so dispatcher behavior can be inspected directly rather than
// driving real UDP traffic for unit-level coverage.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentDatagram
}

type sentDatagram struct {
	host string
	port int
	msg  message
}

func (f *fakeSender) SendTo(b []byte, host string, port int) error {
	m, err := decode(b)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentDatagram{host: host, port: port, msg: m})
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) last() (sentDatagram, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentDatagram{}, false
	}
	return f.sent[len(f.sent)-1], true
}

// newTestEngine builds an Engine with a fake transport and no running
// scheduler, for direct unit testing of the dispatcher and API surface.
func newTestEngine(t *testing.T, id int) (*Engine, *fakeSender) {
	t.Helper()
	cfg := DefaultConfig()
	e := NewEngine(id, "127.0.0.1", 0, cfg)
	fs := &fakeSender{}
	e.transport = fs
	return e, fs
}

func TestHandleDatagramAutoRegistersUnknownSender(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	raw, _ := encode(message{Command: cmdPing, SenderID: 2})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	if _, ok := e.peers[2]; !ok {
		t.Fatal("unknown sender should be auto-registered")
	}
}

func TestHandlePingRepliesAck(t *testing.T) {
	e, fs := newTestEngine(t, 1)
	raw, _ := encode(message{Command: cmdPing, SenderID: 2})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	sent, ok := fs.last()
	if !ok {
		t.Fatal("expected a reply datagram")
	}
	if sent.msg.Command != cmdAck || sent.msg.SenderID != 1 {
		t.Errorf("reply = %+v, want ack from self", sent.msg)
	}
	if sent.host != "10.0.0.2" || sent.port != 7000 {
		t.Errorf("reply sent to %s:%d, want 10.0.0.2:7000", sent.host, sent.port)
	}
}

func TestHandleAckResolvesWaiter(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "10.0.0.2", Port: 7000})

	e.mu.Lock()
	ch := e.addAckWaiterLocked(2)
	e.mu.Unlock()

	raw, _ := encode(message{Command: cmdAck, SenderID: 2})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	select {
	case <-ch:
	default:
		t.Fatal("ack should resolve the registered waiter")
	}
}

// TestSelfRefutation checks that a piggybacked suspect-about-self at
// self.sequence bumps the sequence and queues a refuting alive update.
func TestSelfRefutation(t *testing.T) {
	e, fs := newTestEngine(t, 1)
	e.selfSequence = 1

	raw, _ := encode(message{
		Command:  cmdPing,
		SenderID: 2,
		Updates:  []Update{{ID: 1, Status: domain.Suspect, Sequence: 1}},
	})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	if e.selfSequence != 2 {
		t.Fatalf("selfSequence = %d, want 2", e.selfSequence)
	}

	sent, ok := fs.last()
	if !ok {
		t.Fatal("expected an ack reply carrying the refutation")
	}
	found := false
	for _, u := range sent.msg.Updates {
		if u.ID == 1 && u.Status == domain.Alive && u.Sequence == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("ack updates = %+v, want a refuting alive update at sequence 2", sent.msg.Updates)
	}
}

func TestHandleDatagramUnrecognizedCommand(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	var got string
	e.OnUnrecognizedCommand(func(cmd string) { got = cmd })

	raw, _ := encode(message{Command: "wat", SenderID: 2})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	if got != "wat" {
		t.Errorf("OnUnrecognizedCommand got %q, want %q", got, "wat")
	}
}

func TestHandleDatagramUnrecognizedStatus(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	var got string
	e.OnUnrecognizedStatus(func(status string) { got = status })

	raw, _ := encode(message{
		Command:  cmdPing,
		SenderID: 2,
		Updates:  []Update{{ID: 2, Status: domain.Unknown, Sequence: 1}},
	})
	e.handleDatagram(raw, "h", 1)

	if got == "" {
		t.Error("OnUnrecognizedStatus should fire for an Unknown status update")
	}
}

func TestHandlePingReqRelaysAckToRequester(t *testing.T) {
	e, fs := newTestEngine(t, 1)
	requester := e.AddPeer(PeerInfo{ID: 2, Host: "10.0.0.2", Port: 7000})
	target := e.AddPeer(PeerInfo{ID: 3, Host: "10.0.0.3", Port: 7001})
	_ = requester

	raw, _ := encode(message{Command: cmdPingReq, SenderID: 2, TargetID: 3})
	e.handleDatagram(raw, "10.0.0.2", 7000)

	sent, ok := fs.last()
	if !ok || sent.msg.Command != cmdPing || sent.host != target.host {
		t.Fatalf("expected a ping forwarded to the target, got %+v", sent)
	}

	// Simulate the target's ack arriving back at this node.
	ackRaw, _ := encode(message{Command: cmdAck, SenderID: 3})
	e.handleDatagram(ackRaw, target.host, target.port)

	// The relay runs in its own goroutine; give it a moment to observe
	// the resolved waiter and send the relayed ack.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sent, ok := fs.last(); ok && sent.msg.Command == cmdAck && sent.host == "10.0.0.2" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the target's ack to be relayed back to the requester")
}
