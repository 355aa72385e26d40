// Package token keeps a gateway bearer token cached in the credential store and
// refreshes it at most once per expiry window, however many requests are waiting.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
	"github.com/smallbiznis/smallbiznis-checkout/internal/metrics"
	"github.com/smallbiznis/smallbiznis-checkout/internal/repository"
)

const (
	refreshKey = "gateway-token"
	tracerName = "github.com/smallbiznis/smallbiznis-checkout/internal/token"
)

// Authenticator obtains a fresh token from the gateway.
type Authenticator interface {
	Authenticate(ctx context.Context) (gateway.Token, error)
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager hands out a valid gateway token, refreshing it through a single
// in-flight authentication call when the cached one has expired.
type Manager struct {
	store          repository.CredentialRepository
	auth           Authenticator
	lease          time.Duration
	refreshTimeout time.Duration
	storeTimeout   time.Duration
	now            func() time.Time
	group          singleflight.Group
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewManager validates that the lease is shorter than the gateway's token lifetime.
func NewManager(store repository.CredentialRepository, auth Authenticator, cfg config.Config, logger *zap.Logger, m *metrics.Metrics, opts ...Option) (*Manager, error) {
	if cfg.TokenLease <= 0 || cfg.TokenLease >= cfg.TokenLifetime {
		return nil, fmt.Errorf("token lease %s must be positive and shorter than lifetime %s", cfg.TokenLease, cfg.TokenLifetime)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	refreshTimeout := cfg.TokenRefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}

	mgr := &Manager{
		store:          store,
		auth:           auth,
		lease:          cfg.TokenLease,
		refreshTimeout: refreshTimeout,
		storeTimeout:   storeTimeout,
		now:            time.Now,
		logger:         logger,
		metrics:        m,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr, nil
}

// GetValidToken returns the cached token while it is valid and otherwise joins
// (or starts) the shared refresh. A caller giving up on ctx does not abort a
// refresh other callers are waiting on.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	ctx, span := m.startSpan(ctx, "token.GetValidToken")
	defer span.End()

	cred, err := m.lookup(ctx)
	switch {
	case err == nil && cred.ValidAt(m.now()):
		m.metrics.TokenLookup("hit")
		return cred.AccessToken, nil
	case err != nil && ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil && !errors.Is(err, repository.ErrCredentialNotFound):
		err = storageError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	m.metrics.TokenLookup("miss")

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return "", res.Err
		}
		return res.Val.(domain.Credential).AccessToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// lookup reads the cached credential within storeTimeout. A read cut short by
// that bound is reported as a storage failure; one cut short by the caller
// returns the caller's context error.
func (m *Manager) lookup(ctx context.Context) (domain.Credential, error) {
	readCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	cred, err := m.store.Get(readCtx)
	if err == nil {
		return cred, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Credential{}, ctxErr
	}
	if readErr := readCtx.Err(); readErr != nil && !errors.Is(err, readErr) {
		err = fmt.Errorf("%w: %w", err, readErr)
	}
	return domain.Credential{}, err
}

// refresh runs inside the single flight. It re-reads the store first because a
// previous flight, or another process sharing the store, may already have
// replaced the token.
func (m *Manager) refresh(ctx context.Context) (domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	ctx, span := m.startSpan(ctx, "token.refresh")
	defer span.End()

	var previous time.Time
	current, err := m.store.Get(ctx)
	switch {
	case err == nil:
		if current.ValidAt(m.now()) {
			m.metrics.TokenRefresh("skipped")
			return current, nil
		}
		previous = current.ExpiresAt
	case !errors.Is(err, repository.ErrCredentialNotFound):
		m.metrics.TokenRefresh("failure")
		return domain.Credential{}, storageError(err)
	}

	issued, err := m.auth.Authenticate(ctx)
	if err != nil {
		m.metrics.TokenRefresh("failure")
		span.RecordError(err)
		m.logger.Error("gateway authentication failed", zap.Error(err))
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
		}
		return domain.Credential{}, err
	}

	expiresAt := m.now().Add(m.lease)
	stored, err := m.store.Put(ctx, issued.Token, expiresAt, previous)
	if errors.Is(err, repository.ErrCredentialConflict) {
		m.metrics.TokenRefresh("conflict")
		winner, getErr := m.store.Get(ctx)
		if getErr == nil && winner.ValidAt(m.now()) {
			m.logger.Info("gateway token refreshed elsewhere, using stored token")
			return winner, nil
		}
		m.logger.Warn("gateway token not persisted after concurrent write", zap.NamedError("lookup_error", getErr))
		return domain.Credential{AccessToken: issued.Token, ExpiresAt: expiresAt}, nil
	}
	if err != nil {
		m.metrics.TokenRefresh("failure")
		span.RecordError(err)
		return domain.Credential{}, storageError(err)
	}

	m.metrics.TokenRefresh("success")
	m.logger.Info("gateway token refreshed", zap.Time("expires_at", stored.ExpiresAt))
	return stored, nil
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

func storageError(err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}
