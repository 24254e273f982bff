package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentdeck/internal/backend"
	"agentdeck/internal/config"
	"agentdeck/pkg/logger"
)

// Authenticator is the slice of the backend client the refresher needs.
type Authenticator interface {
	Verify(ctx context.Context, token string) (bool, error)
	Refresh(ctx context.Context, token string) (backend.RefreshResult, error)
}

// ClientFactory builds an authenticator for a service URL.
type ClientFactory func(baseURL string) Authenticator

// Refresher keeps stored credentials fresh in the background. Each tick
// it walks the store and, per service: removes credentials past the hard
// TTL, refreshes ones past the soft threshold, and leaves the rest
// alone. A service with an attempt already in flight is skipped, as is
// one attempted more recently than MinCheckGap.
type Refresher struct {
	store   *Store
	policy  Policy
	factory ClientFactory
	cfg     config.AuthConfig
	cron    *cron.Cron

	mu          sync.Mutex
	inFlight    map[string]bool
	lastAttempt map[string]time.Time

	now func() time.Time
}

// NewRefresher wires a refresher over the store. Start must be called
// to begin ticking.
func NewRefresher(store *Store, cfg config.AuthConfig, factory ClientFactory) *Refresher {
	return &Refresher{
		store:       store,
		policy:      NewPolicy(cfg),
		factory:     factory,
		cfg:         cfg,
		inFlight:    make(map[string]bool),
		lastAttempt: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Start begins the background check loop.
func (r *Refresher) Start() error {
	if r.cron != nil {
		return errors.New("refresher already started")
	}
	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.cfg.CheckInterval)
	if _, err := r.cron.AddFunc(spec, func() { r.CheckAll(context.Background()) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	r.cron.Start()
	logger.Info().Dur("interval", r.cfg.CheckInterval).Msg("Credential refresher started")
	return nil
}

// Stop halts the loop and waits for in-flight checks scheduled by cron.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron = nil
}

// CheckAll runs one refresh pass over every stored credential.
func (r *Refresher) CheckAll(ctx context.Context) {
	for _, cred := range r.store.List() {
		r.CheckService(ctx, cred.ServiceID)
	}
}

// CheckService runs the refresh state machine for one service. Safe to
// call concurrently; overlapping calls for the same service are no-ops.
func (r *Refresher) CheckService(ctx context.Context, serviceID string) {
	if !r.begin(serviceID) {
		return
	}
	defer r.end(serviceID)

	cred, err := r.store.Get(serviceID)
	if err != nil {
		return
	}

	now := r.now()
	if r.policy.IsExpired(cred, now) {
		logger.Info().Str("service", serviceID).Time("issued_at", cred.IssuedAt).
			Msg("Credential past TTL, removing")
		if err := r.store.Remove(serviceID); err != nil {
			logger.Error().Err(err).Str("service", serviceID).Msg("Failed to remove expired credential")
		}
		return
	}
	if !r.policy.ShouldRefresh(cred, now) {
		return
	}

	client := r.factory(cred.ServiceURL)
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.VerifyTimeout)
	defer cancel()

	result, err := client.Refresh(attemptCtx, cred.Token)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		// The server rejected the token outright. Keeping it would just
		// repeat the rejection on every request.
		logger.Warn().Str("service", serviceID).Msg("Credential rejected by server, removing")
		if err := r.store.Remove(serviceID); err != nil {
			logger.Error().Err(err).Str("service", serviceID).Msg("Failed to remove rejected credential")
		}
	case err != nil:
		// Transient failure. The credential may still be perfectly valid;
		// keep it and retry next tick.
		logger.Debug().Err(err).Str("service", serviceID).Msg("Refresh attempt failed, keeping credential")
	case result.Refreshed:
		cred.Token = result.Token
		cred.IssuedAt = now
		if err := r.store.Set(cred); err != nil {
			logger.Error().Err(err).Str("service", serviceID).Msg("Failed to persist refreshed credential")
			return
		}
		logger.Info().Str("service", serviceID).Msg("Credential refreshed")
	default:
		logger.Debug().Str("service", serviceID).Msg("Server declined refresh, credential still young")
	}
}

// begin claims the service for one attempt. Returns false if an attempt
// is already running or one finished more recently than MinCheckGap.
func (r *Refresher) begin(serviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight[serviceID] {
		return false
	}
	if last, ok := r.lastAttempt[serviceID]; ok && r.now().Sub(last) < r.cfg.MinCheckGap {
		return false
	}
	r.inFlight[serviceID] = true
	return true
}

func (r *Refresher) end(serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, serviceID)
	r.lastAttempt[serviceID] = r.now()
}

// VerifyService checks a stored credential against the server without
// mutating it on transient failure. An explicit rejection removes it.
func (r *Refresher) VerifyService(ctx context.Context, serviceID string) (bool, error) {
	cred, err := r.store.Get(serviceID)
	if err != nil {
		return false, err
	}

	client := r.factory(cred.ServiceURL)
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.VerifyTimeout)
	defer cancel()

	valid, err := client.Verify(attemptCtx, cred.Token)
	if errors.Is(err, backend.ErrUnauthorized) || (err == nil && !valid) {
		if rmErr := r.store.Remove(serviceID); rmErr != nil {
			return false, rmErr
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
