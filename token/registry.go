package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/permission"
)

// Registry issues, validates and revokes tenant tokens.
// The master secret is never stored in the repo and never expires.
type Registry struct {
	repo         Repo
	masterSecret string
	nowFunc      func() time.Time
	randRead     func([]byte) (int, error)
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	// mu serialises read-check-delete sequences so a lazy expiry never removes a token issued concurrently.
	mu sync.Mutex
}

type RegistryOption func(*Registry)

func WithMasterSecret(secret string) RegistryOption {
	return func(r *Registry) {
		r.masterSecret = secret
	}
}

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithRandReader replaces the entropy source (tests only).
func WithRandReader(read func([]byte) (int, error)) RegistryOption {
	return func(r *Registry) {
		r.randRead = read
	}
}

func NewRegistry(repo Repo, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[token NewRegistry] repo is required")
	}
	r := &Registry{
		repo:     repo,
		nowFunc:  time.Now,
		randRead: rand.Read,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// HasMaster reports whether a master secret is configured.
func (r *Registry) HasMaster() bool {
	return r.masterSecret != ""
}

// Issue creates a token for tenantID, replacing any previous one. A ttl of zero never expires.
func (r *Registry) Issue(tenantID string, ttl time.Duration) (*AccessToken, error) {
	if tenantID == "" {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "[Issue] tenant id is required")
	}
	if tenantID == permission.Wildcard {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "[Issue] the wildcard tenant cannot hold a token")
	}
	if ttl < 0 {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "[Issue] ttl must not be negative")
	}

	tokenBytes := make([]byte, secretLength)
	if _, err := r.randRead(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "[Issue] rand.Read")
	}
	secret := hex.EncodeToString(tokenBytes)

	now := r.nowFunc()
	t := &AccessToken{
		Secret:    secret,
		TenantID:  tenantID,
		CreatedAt: now,
		digest:    DigestSecret(secret),
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		t.ExpiresAt = &expiresAt
	}

	r.mu.Lock()
	previous, err := r.repo.Upsert(t)
	r.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "[Issue] Upsert")
	}

	r.metrics.TokenIssued()
	event := r.logger.Info().Str("tenant", tenantID).Str("token", Redact(secret))
	if previous != nil {
		event = event.Str("replaced", Redact(previous.Secret))
	}
	event.Msg("token issued")

	issued := *t
	return &issued, nil
}

// Validate resolves a secret to its tenant. Expired tokens are revoked as a side effect.
func (r *Registry) Validate(secret string) (*Validation, bool) {
	if secret == "" {
		return nil, false
	}
	if r.masterSecret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(r.masterSecret)) == 1 {
		return &Validation{TenantID: permission.Wildcard, IsMaster: true}, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.repo.GetByDigest(DigestSecret(secret))
	if !ok {
		return nil, false
	}
	if t.Expired(r.nowFunc()) {
		r.revokeLocked(t.TenantID, "expired")
		r.metrics.TokensReclaimed(1)
		return nil, false
	}

	createdAt := t.CreatedAt
	return &Validation{
		TenantID:  t.TenantID,
		IsMaster:  false,
		CreatedAt: &createdAt,
		ExpiresAt: t.ExpiresAt,
	}, true
}

// Revoke removes the tenant's token. It reports whether anything was removed.
func (r *Registry) Revoke(tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(tenantID, "revoked")
}

func (r *Registry) revokeLocked(tenantID, reason string) bool {
	t, ok := r.repo.Delete(tenantID)
	if !ok {
		return false
	}
	r.logger.Info().Str("tenant", tenantID).Str("token", Redact(t.Secret)).Str("reason", reason).Msg("token revoked")
	return true
}

// ListActive returns redacted summaries of every unexpired token, revoking expired ones found on the way.
func (r *Registry) ListActive() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	summaries := make([]Summary, 0)
	expired := 0
	for _, t := range r.repo.List() {
		if t.Expired(now) {
			if r.revokeLocked(t.TenantID, "expired") {
				expired++
			}
			continue
		}
		summaries = append(summaries, t.summary())
	}
	r.metrics.TokensReclaimed(expired)
	return summaries
}

// SweepExpired revokes every expired token and returns how many were removed.
func (r *Registry) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for _, t := range r.repo.List() {
		if t.Expired(now) && r.revokeLocked(t.TenantID, "expired") {
			removed++
		}
	}
	r.metrics.TokensReclaimed(removed)
	return removed
}
