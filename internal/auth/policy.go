package auth

import (
	"time"

	"agentdeck/internal/config"
)

// Policy decides when a credential is stale enough to refresh and when
// it is too old to use at all.
type Policy struct {
	TokenTTL     time.Duration
	RefreshAfter time.Duration
}

// NewPolicy builds a policy from the auth config section.
func NewPolicy(cfg config.AuthConfig) Policy {
	return Policy{
		TokenTTL:     cfg.TokenTTL,
		RefreshAfter: cfg.RefreshAfter,
	}
}

// IsExpired reports whether the credential has outlived the hard TTL.
// Expired credentials are never sent; they are removed on sight.
func (p Policy) IsExpired(cred Credential, now time.Time) bool {
	return now.Sub(cred.IssuedAt) >= p.TokenTTL
}

// ShouldRefresh reports whether the credential is past the soft
// threshold and worth refreshing proactively.
func (p Policy) ShouldRefresh(cred Credential, now time.Time) bool {
	return now.Sub(cred.IssuedAt) >= p.RefreshAfter
}
