package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

// Compile-time interface assertions.
var (
	_ CredentialRepository = (*PostgresCredentialRepo)(nil)
	_ CredentialRepository = (*MongoCredentialRepo)(nil)
	_ CredentialRepository = (*BoltCredentialRepo)(nil)
	_ CredentialRepository = (*MemoryCredentialRepo)(nil)
)

// The slot column pins the table to a single row.
const createCredentialTableSQL = `CREATE TABLE IF NOT EXISTS pesapal_tokens (
	slot            SMALLINT    PRIMARY KEY DEFAULT 1 CHECK (slot = 1),
	access_token    TEXT        NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	notification_id TEXT        NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const selectCredentialSQL = `SELECT access_token, expires_at, notification_id, updated_at
FROM pesapal_tokens
ORDER BY expires_at DESC
LIMIT 1`

const insertCredentialSQL = `INSERT INTO pesapal_tokens (slot, access_token, expires_at)
VALUES (1, $1, $2)
ON CONFLICT (slot) DO NOTHING
RETURNING access_token, expires_at, notification_id, updated_at`

const swapCredentialSQL = `UPDATE pesapal_tokens
SET access_token = $1, expires_at = $2, updated_at = NOW()
WHERE slot = 1 AND expires_at = $3
RETURNING access_token, expires_at, notification_id, updated_at`

// PostgresCredentialRepo implements CredentialRepository on a pgx pool.
type PostgresCredentialRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCredentialRepo(pool *pgxpool.Pool) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: pool}
}

// EnsureSchema creates the credential table when missing.
func (r *PostgresCredentialRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createCredentialTableSQL); err != nil {
		return fmt.Errorf("%w: create credential table: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *PostgresCredentialRepo) Get(ctx context.Context) (domain.Credential, error) {
	cred, err := scanCredential(r.db.QueryRow(ctx, selectCredentialSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: get credential: %w", domain.ErrStorageUnavailable, err)
	}
	return cred, nil
}

func (r *PostgresCredentialRepo) Put(ctx context.Context, token string, expiresAt, previous time.Time) (domain.Credential, error) {
	var row pgx.Row
	if previous.IsZero() {
		row = r.db.QueryRow(ctx, insertCredentialSQL, token, expiresAt)
	} else {
		row = r.db.QueryRow(ctx, swapCredentialSQL, token, expiresAt, previous)
	}

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, ErrCredentialConflict
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: put credential: %w", domain.ErrStorageUnavailable, err)
	}
	return cred, nil
}

func scanCredential(row pgx.Row) (domain.Credential, error) {
	var cred domain.Credential
	if err := row.Scan(&cred.AccessToken, &cred.ExpiresAt, &cred.NotificationID, &cred.UpdatedAt); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}
