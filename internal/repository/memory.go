package repository

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

// MemoryCredentialRepo keeps the credential in process memory. It backs the
// "memory" store driver and the test suites.
type MemoryCredentialRepo struct {
	mu   sync.Mutex
	cred *domain.Credential
}

func NewMemoryCredentialRepo() *MemoryCredentialRepo {
	return &MemoryCredentialRepo{}
}

func (r *MemoryCredentialRepo) Get(ctx context.Context) (domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return domain.Credential{}, ErrCredentialNotFound
	}
	return *r.cred, nil
}

func (r *MemoryCredentialRepo) Put(ctx context.Context, token string, expiresAt, previous time.Time) (domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.cred == nil && !previous.IsZero():
		return domain.Credential{}, ErrCredentialConflict
	case r.cred != nil && !r.cred.ExpiresAt.Equal(previous):
		return domain.Credential{}, ErrCredentialConflict
	}

	next := domain.Credential{AccessToken: token, ExpiresAt: expiresAt, UpdatedAt: time.Now()}
	if r.cred != nil {
		next.NotificationID = r.cred.NotificationID
	}
	r.cred = &next
	return next, nil
}
