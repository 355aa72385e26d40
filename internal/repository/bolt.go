package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

var (
	credentialBucket = []byte("pesapal_tokens")
	currentKey       = []byte(currentCredentialID)
)

type boltCredential struct {
	AccessToken    string    `json:"access_token"`
	ExpiresAt      time.Time `json:"expires_at"`
	NotificationID string    `json:"notification_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BoltCredentialRepo implements CredentialRepository on an embedded BoltDB file.
// Bolt serializes read-write transactions, which makes the compare-and-swap in
// Put atomic without extra locking.
type BoltCredentialRepo struct {
	db *bolt.DB
}

// OpenBoltCredentialRepo opens (or creates) the database at path and ensures the bucket exists.
func OpenBoltCredentialRepo(path string) (*BoltCredentialRepo, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt: %w", domain.ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create bucket: %w", domain.ErrStorageUnavailable, err)
	}

	return &BoltCredentialRepo{db: db}, nil
}

// Close releases the database file lock.
func (r *BoltCredentialRepo) Close() error {
	return r.db.Close()
}

func (r *BoltCredentialRepo) Get(ctx context.Context) (domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, err
	}

	var (
		cred  domain.Credential
		found bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialBucket).Get(currentKey)
		if v == nil {
			return nil
		}
		var rec boltCredential
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		cred, found = rec.toDomain(), true
		return nil
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: get credential: %w", domain.ErrStorageUnavailable, err)
	}
	if !found {
		return domain.Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (r *BoltCredentialRepo) Put(ctx context.Context, token string, expiresAt, previous time.Time) (domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, err
	}

	var stored domain.Credential
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialBucket)

		var rec boltCredential
		if v := b.Get(currentKey); v != nil {
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if previous.IsZero() || !rec.ExpiresAt.Equal(previous) {
				return ErrCredentialConflict
			}
		} else if !previous.IsZero() {
			return ErrCredentialConflict
		}

		rec.AccessToken = token
		rec.ExpiresAt = expiresAt.UTC()
		rec.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(currentKey, data); err != nil {
			return err
		}
		stored = rec.toDomain()
		return nil
	})
	if err == ErrCredentialConflict {
		return domain.Credential{}, err
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: put credential: %w", domain.ErrStorageUnavailable, err)
	}
	return stored, nil
}

func (rec boltCredential) toDomain() domain.Credential {
	return domain.Credential{
		AccessToken:    rec.AccessToken,
		ExpiresAt:      rec.ExpiresAt,
		NotificationID: rec.NotificationID,
		UpdatedAt:      rec.UpdatedAt,
	}
}
