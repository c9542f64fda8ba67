// AngelaMos | 2026
// refresh_test.go

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petlove/backoffice-api/internal/core"
)

func newTestStore() (*RefreshStore, *memRefreshRepo, *testClock) {
	clock := newTestClock()
	repo := newMemRefreshRepo()
	return NewRefreshStore(repo, 7*24*time.Hour, WithStoreClock(clock.Now)), repo, clock
}

func TestRefreshStore_Issue(t *testing.T) {
	store, repo, clock := newTestStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, 7, "203.0.113.7", "agent")
	require.NoError(t, err)

	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, core.HashToken(issued.Token), issued.Record.TokenHash)
	assert.NotEqual(t, issued.Token, issued.Record.TokenHash)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), issued.Record.ExpiresAt)
	assert.NotEmpty(t, issued.Record.FamilyID)

	other, err := store.Issue(ctx, 7, "203.0.113.7", "agent")
	require.NoError(t, err)
	assert.NotEqual(t, issued.Record.FamilyID, other.Record.FamilyID)
	assert.Len(t, repo.byUser(7), 2)
}

func TestRefreshStore_RotateOnce(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, 7, "", "")
	require.NoError(t, err)

	next, err := store.Rotate(ctx, issued.Token, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, next.Token)
	assert.Equal(t, issued.Record.FamilyID, next.Record.FamilyID)

	old, err := store.Lookup(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, old.Used)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, next.Record.TokenHash, *old.ReplacedBy)

	_, err = store.Rotate(ctx, issued.Token, "", "")
	assert.ErrorIs(t, err, core.ErrTokenInactive)
}

func TestRefreshStore_ReuseRevokesFamily(t *testing.T) {
	store, repo, _ := newTestStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, 7, "", "")
	require.NoError(t, err)
	unrelated, err := store.Issue(ctx, 7, "", "")
	require.NoError(t, err)

	next, err := store.Rotate(ctx, issued.Token, "", "")
	require.NoError(t, err)

	_, err = store.Rotate(ctx, issued.Token, "", "")
	require.ErrorIs(t, err, ErrTokenReuse)

	successor, err := store.Lookup(ctx, next.Token)
	require.NoError(t, err)
	assert.True(t, successor.Revoked)
	require.NotNil(t, successor.RevocationReason)
	assert.Equal(t, ReasonReuseDetected, *successor.RevocationReason)

	_, err = store.Rotate(ctx, next.Token, "", "")
	assert.ErrorIs(t, err, core.ErrTokenInactive)

	other, err := store.Lookup(ctx, unrelated.Token)
	require.NoError(t, err)
	assert.False(t, other.Revoked)
	assert.Len(t, repo.byUser(7), 3)
}

func TestRefreshStore_RotateRejectsInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		store, _, _ := newTestStore()
		_, err := store.Rotate(ctx, "never-issued", "", "")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("expired token", func(t *testing.T) {
		store, _, clock := newTestStore()
		issued, err := store.Issue(ctx, 7, "", "")
		require.NoError(t, err)

		clock.Advance(7*24*time.Hour + time.Second)
		_, err = store.Rotate(ctx, issued.Token, "", "")
		assert.ErrorIs(t, err, core.ErrTokenInactive)
		assert.NotErrorIs(t, err, ErrTokenReuse)
	})

	t.Run("revoked token", func(t *testing.T) {
		store, _, _ := newTestStore()
		issued, err := store.Issue(ctx, 7, "", "")
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, issued.Token, ReasonLogout))
		_, err = store.Rotate(ctx, issued.Token, "", "")
		assert.ErrorIs(t, err, core.ErrTokenInactive)
	})
}

func TestRefreshStore_ConcurrentRotateHasOneWinner(t *testing.T) {
	store, repo, _ := newTestStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, 7, "", "")
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	start := make(chan struct{})

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := store.Rotate(ctx, issued.Token, "", "")

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, core.ErrTokenInactive)
				losers++
				return
			}
			winners = append(winners, next.Token)
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, winners, 1)
	assert.Equal(t, callers-1, losers)
	assert.Len(t, repo.byUser(7), 2)
}

func TestRefreshStore_RevokeIsIdempotent(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, 7, "", "")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, issued.Token, ReasonLogout))
	require.NoError(t, store.Revoke(ctx, issued.Token, ReasonLogout))
	require.NoError(t, store.Revoke(ctx, "unknown", ReasonLogout))

	record, err := store.Lookup(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, record.Revoked)
}

func TestRefreshStore_SessionsAndPurge(t *testing.T) {
	store, _, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Issue(ctx, 7, "198.51.100.1", "phone")
	require.NoError(t, err)
	_, err = store.Issue(ctx, 7, "198.51.100.2", "laptop")
	require.NoError(t, err)
	_, err = store.Issue(ctx, 8, "", "")
	require.NoError(t, err)

	sessions, err := store.ActiveSessions(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	revoked, err := store.RevokeAllForUser(ctx, 7, ReasonAdminRevoked)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	sessions, err = store.ActiveSessions(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	clock.Advance(7*24*time.Hour + 12*time.Hour)
	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	clock.Advance(24 * time.Hour)
	purged, err = store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
}
