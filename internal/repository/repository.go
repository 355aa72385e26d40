package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

var (
	// ErrCredentialNotFound is returned by Get when no credential has been stored yet.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialConflict is returned by Put when the stored expiry no longer
	// matches the one the caller observed.
	ErrCredentialConflict = errors.New("credential changed concurrently")
)

// CredentialRepository persists the single current gateway credential.
type CredentialRepository interface {
	// Get returns the credential with the latest expiry.
	Get(ctx context.Context) (domain.Credential, error)
	// Put stores token/expiresAt if the current record still expires at previous.
	// A zero previous means the caller observed no record and the write only
	// succeeds if none exists.
	Put(ctx context.Context, token string, expiresAt, previous time.Time) (domain.Credential, error)
}
