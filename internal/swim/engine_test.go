package swim

import (
	"testing"
	"time"

	"github.com/zbo14/floaty/internal/domain"
	"github.com/zbo14/floaty/internal/infra/journal"
)

func TestAddPeerIgnoresSelfAndDuplicates(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	if p := e.AddPeer(PeerInfo{ID: 1, Host: "h", Port: 1}); p != nil {
		t.Error("AddPeer should ignore the engine's own id")
	}

	p1 := e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	p2 := e.AddPeer(PeerInfo{ID: 2, Host: "other", Port: 2})
	if p1 != p2 {
		t.Error("AddPeer on an already-known id should return the existing record")
	}
	if len(e.peers) != 1 {
		t.Errorf("len(peers) = %d, want 1", len(e.peers))
	}
}

func TestRandomPeerEmpty(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	if p := e.RandomPeer(); p != nil {
		t.Error("RandomPeer() on an empty table should return nil")
	}
}

func TestRandomPeerPicksFromTable(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	e.AddPeer(PeerInfo{ID: 3, Host: "h", Port: 2})

	for i := 0; i < 20; i++ {
		p := e.RandomPeer()
		if p == nil || (p.id != 2 && p.id != 3) {
			t.Fatalf("RandomPeer() = %+v, want one of the two known peers", p)
		}
	}
}

func TestRequestStateUnknownPeer(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	if _, err := e.RequestState(99, time.Millisecond); err != ErrUnknownPeer {
		t.Errorf("RequestState() error = %v, want ErrUnknownPeer", err)
	}
}

func TestRequestStateTimeout(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	if _, err := e.RequestState(2, 10*time.Millisecond); err != ErrTimeout {
		t.Errorf("RequestState() error = %v, want ErrTimeout", err)
	}
}

func TestRequestStateResolvesOnReply(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "10.0.0.2", Port: 7000})

	go func() {
		time.Sleep(10 * time.Millisecond)
		raw, _ := encode(message{
			Command:  cmdState,
			SenderID: 2,
			Updates:  []Update{{ID: 2, Status: domain.Alive, Sequence: 0}},
		})
		e.handleDatagram(raw, "10.0.0.2", 7000)
	}()

	got, err := e.RequestState(2, time.Second)
	if err != nil {
		t.Fatalf("RequestState() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("RequestState() = %+v, want the peer's state dump", got)
	}
}

func TestEventReqUnknownPeer(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	if err := e.EventReq(99, "converged", time.Millisecond); err != ErrUnknownPeer {
		t.Errorf("EventReq() error = %v, want ErrUnknownPeer", err)
	}
}

func TestEventReqTimeout(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	if err := e.EventReq(2, "converged", 10*time.Millisecond); err != ErrTimeout {
		t.Errorf("EventReq() error = %v, want ErrTimeout", err)
	}
}

func TestEventReqResolvesOnIncomingEvent(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.AddPeer(PeerInfo{ID: 2, Host: "10.0.0.2", Port: 7000})

	go func() {
		time.Sleep(10 * time.Millisecond)
		raw, _ := encode(message{Command: cmdEvent, SenderID: 2, EventName: "converged"})
		e.handleDatagram(raw, "10.0.0.2", 7000)
	}()

	if err := e.EventReq(2, "converged", time.Second); err != nil {
		t.Errorf("EventReq() error = %v, want nil", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	e := NewEngine(1, "127.0.0.1", 0, DefaultConfig())
	if err := e.Start(); err != ErrNotInitialized {
		t.Fatalf("Start() before Init error = %v, want ErrNotInitialized", err)
	}

	if err := e.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer e.Teardown()

	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Start(); err != ErrAlreadyRunning {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSetJournalRecordsStatusTransitions(t *testing.T) {
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open() error: %v", err)
	}
	defer j.Close()

	e, _ := newTestEngine(t, 1)
	e.SetJournal(j)

	p := e.AddPeer(PeerInfo{ID: 2, Host: "h", Port: 1})
	e.mu.Lock()
	p.suspect()
	e.mu.Unlock()

	hist, err := j.History(2, 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(hist) != 1 || hist[0].To != domain.Suspect.String() {
		t.Fatalf("History(2) = %+v, want one alive->suspect row", hist)
	}
}
