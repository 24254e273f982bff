package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePinger struct {
	mu     sync.Mutex
	pings  []Payload
	exists bool
	err    error
}

func (f *fakePinger) Ping(ctx context.Context, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, payload)
	return nil
}

func (f *fakePinger) SessionExists(ctx context.Context, agentID, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, f.err
}

func (f *fakePinger) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pings)
}

func TestNoPingBeforeArming(t *testing.T) {
	pinger := &fakePinger{}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if n := pinger.pingCount(); n != 0 {
		t.Errorf("pings = %d before arming, want 0", n)
	}
}

func TestPingsAfterNotifySuccess(t *testing.T) {
	pinger := &fakePinger{}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	s.NotifySuccess(Payload{AgentID: "coder", SessionID: "s-1"})

	deadline := time.After(time.Second)
	for pinger.pingCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("pings = %d, want >= 2", pinger.pingCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestResumeChecksExistenceFirst(t *testing.T) {
	pinger := &fakePinger{exists: false}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	armed, err := s.Resume(context.Background(), Payload{AgentID: "coder", SessionID: "gone"})
	if err != nil {
		t.Fatal(err)
	}
	if armed || s.Armed() {
		t.Error("armed for non-existent session")
	}

	time.Sleep(50 * time.Millisecond)
	if n := pinger.pingCount(); n != 0 {
		t.Errorf("pings = %d for non-existent session, want 0", n)
	}
}

func TestResumeArmsWhenSessionExists(t *testing.T) {
	pinger := &fakePinger{exists: true}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	armed, err := s.Resume(context.Background(), Payload{AgentID: "coder", SessionID: "s-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !armed || !s.Armed() {
		t.Fatal("not armed after successful existence check")
	}
}

func TestResumeCheckErrorStaysUnarmed(t *testing.T) {
	pinger := &fakePinger{err: errors.New("unreachable")}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	_, err := s.Resume(context.Background(), Payload{AgentID: "coder", SessionID: "s-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if s.Armed() {
		t.Error("armed despite existence check failure")
	}
}

func TestRearmSameSessionIsNoop(t *testing.T) {
	pinger := &fakePinger{}
	s := NewScheduler(pinger, time.Hour)
	defer s.Stop()

	payload := Payload{AgentID: "coder", SessionID: "s-1"}
	s.NotifySuccess(payload)
	first := s.done
	s.NotifySuccess(payload)

	if s.done != first {
		t.Error("ticker restarted for identical session")
	}
}

func TestArmDifferentSessionMovesTicker(t *testing.T) {
	pinger := &fakePinger{}
	s := NewScheduler(pinger, 10*time.Millisecond)
	defer s.Stop()

	s.NotifySuccess(Payload{AgentID: "coder", SessionID: "s-1"})
	s.NotifySuccess(Payload{AgentID: "coder", SessionID: "s-2"})

	deadline := time.After(time.Second)
	for {
		pinger.mu.Lock()
		n := len(pinger.pings)
		var last Payload
		if n > 0 {
			last = pinger.pings[n-1]
		}
		pinger.mu.Unlock()

		if n > 0 && last.SessionID == "s-2" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no s-2 pings after re-arm (last: %+v)", last)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopHaltsPings(t *testing.T) {
	pinger := &fakePinger{}
	s := NewScheduler(pinger, 10*time.Millisecond)

	s.NotifySuccess(Payload{AgentID: "coder", SessionID: "s-1"})
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	n := pinger.pingCount()
	time.Sleep(50 * time.Millisecond)
	if pinger.pingCount() != n {
		t.Error("pings continued after Stop")
	}
	if s.Armed() {
		t.Error("still armed after Stop")
	}
}
