// Package heartbeat keeps server-side sessions alive while a local
// conversation is open. A session is only ever pinged after its
// existence has been confirmed: either the server itself named it in a
// live stream, or an explicit existence check passed before resuming.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"agentdeck/pkg/logger"
)

// Pinger is the slice of the backend client the scheduler needs.
type Pinger interface {
	Ping(ctx context.Context, payload Payload) error
	SessionExists(ctx context.Context, agentID, sessionID string) (bool, error)
}

// Payload identifies the session a ping extends.
type Payload struct {
	AgentID     string
	SessionID   string
	ProjectPath string
}

// Scheduler pings one session at a fixed interval once armed. The zero
// interval is rejected at construction; callers pass the configured one.
type Scheduler struct {
	pinger   Pinger
	interval time.Duration

	mu      sync.Mutex
	armed   bool
	payload Payload
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler builds an unarmed scheduler.
func NewScheduler(pinger Pinger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{pinger: pinger, interval: interval}
}

// NotifySuccess arms the scheduler after the server acknowledged the
// session in a live stream. The acknowledgement is the existence proof;
// no check round trip is made. Re-arming for the same session is a
// no-op; arming for a different session moves the ticker over.
func (s *Scheduler) NotifySuccess(payload Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed && s.payload == payload {
		return
	}
	s.stopLocked()
	s.startLocked(payload)
}

// Resume arms the scheduler for a session from a previous run. The
// session may have been reaped since, so existence is checked first;
// the scheduler stays unarmed if the check fails or the session is
// gone.
func (s *Scheduler) Resume(ctx context.Context, payload Payload) (bool, error) {
	exists, err := s.pinger.SessionExists(ctx, payload.AgentID, payload.SessionID)
	if err != nil {
		return false, err
	}
	if !exists {
		logger.Debug().Str("session", payload.SessionID).Msg("Session gone, heartbeat not armed")
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed && s.payload == payload {
		return true, nil
	}
	s.stopLocked()
	s.startLocked(payload)
	return true, nil
}

// Armed reports whether a ticker is currently running.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Stop disarms the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done := s.done
	s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) startLocked(payload Payload) {
	ctx, cancel := context.WithCancel(context.Background())
	s.armed = true
	s.payload = payload
	s.cancel = cancel
	s.done = make(chan struct{})

	logger.Debug().Str("agent", payload.AgentID).Str("session", payload.SessionID).
		Msg("Heartbeat armed")
	go s.loop(ctx, payload, s.done)
}

func (s *Scheduler) stopLocked() {
	if !s.armed {
		return
	}
	s.cancel()
	s.armed = false
	s.cancel = nil
}

func (s *Scheduler) loop(ctx context.Context, payload Payload, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.pinger.Ping(pingCtx, payload)
			cancel()
			if err != nil {
				// A failed ping is not fatal; the next tick retries. The
				// server reaps the session on its own schedule either way.
				logger.Debug().Err(err).Str("session", payload.SessionID).Msg("Heartbeat ping failed")
			}
		}
	}
}
