package repository_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/smallbiznis-checkout/internal/repository"
)

func TestMemoryCredentialRepo(t *testing.T) {
	exerciseCredentialRepo(t, repository.NewMemoryCredentialRepo())
}

func TestBoltCredentialRepo(t *testing.T) {
	repo, err := repository.OpenBoltCredentialRepo(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseCredentialRepo(t, repo)
}

func TestBoltCredentialRepoSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkout.db")
	expiresAt := time.Now().Add(55 * time.Minute).UTC()

	repo, err := repository.OpenBoltCredentialRepo(path)
	require.NoError(t, err)
	_, err = repo.Put(ctx, "persisted", expiresAt, time.Time{})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := repository.OpenBoltCredentialRepo(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	cred, err := reopened.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "persisted", cred.AccessToken)
	require.True(t, expiresAt.Equal(cred.ExpiresAt))
}

func TestBoltCredentialRepoConcurrentCreate(t *testing.T) {
	repo, err := repository.OpenBoltCredentialRepo(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	expiresAt := time.Date(2026, 3, 14, 9, 55, 0, 0, time.UTC)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Put(ctx, "token", expiresAt, time.Time{})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrCredentialConflict)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	cred, err := repo.Get(ctx)
	require.NoError(t, err)
	require.True(t, expiresAt.Equal(cred.ExpiresAt))
}

// exerciseCredentialRepo checks the create, swap and conflict rules every backend shares.
func exerciseCredentialRepo(t *testing.T, repo repository.CredentialRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := repo.Get(ctx)
	require.ErrorIs(t, err, repository.ErrCredentialNotFound)

	_, err = repo.Put(ctx, "orphan", base, base.Add(-time.Hour))
	require.ErrorIs(t, err, repository.ErrCredentialConflict, "swap against a missing record must fail")

	first, err := repo.Put(ctx, "first", base, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "first", first.AccessToken)

	_, err = repo.Put(ctx, "duplicate", base.Add(time.Minute), time.Time{})
	require.ErrorIs(t, err, repository.ErrCredentialConflict, "second create must not add a record")

	current, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", current.AccessToken)
	require.True(t, base.Equal(current.ExpiresAt))

	second, err := repo.Put(ctx, "second", base.Add(55*time.Minute), current.ExpiresAt)
	require.NoError(t, err)
	require.Equal(t, "second", second.AccessToken)

	_, err = repo.Put(ctx, "late", base.Add(56*time.Minute), current.ExpiresAt)
	require.ErrorIs(t, err, repository.ErrCredentialConflict, "swap with a stale expiry must fail")

	latest, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", latest.AccessToken)
	require.True(t, base.Add(55*time.Minute).Equal(latest.ExpiresAt))
}
