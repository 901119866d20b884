package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*RefreshTokenRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(t0)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRefreshTokenRepo(rdb, Config{}), mr
}

func token(sub, hash string, created time.Time) *domainauth.RefreshToken {
	return &domainauth.RefreshToken{
		ID:        uuid.New(),
		SubjectID: sub,
		TokenHash: hash,
		CreatedAt: created,
		ExpiresAt: created.Add(30 * 24 * time.Hour),
		Client:    domainauth.ClientContext{UserAgent: "ua", IP: "10.0.0.1"},
	}
}

func successor(hash string, now time.Time) domainauth.SuccessorFunc {
	return func(p *domainauth.RefreshToken) *domainauth.RefreshToken {
		return token(p.SubjectID, hash, now)
	}
}

func TestRedisRepo_CreateFind(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	tok := token("u1", "h1", t0)

	require.NoError(t, repo.Create(ctx, tok))
	require.ErrorIs(t, repo.Create(ctx, token("u2", "h1", t0)), domainauth.ErrDuplicateHash)

	got, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, "u1", got.SubjectID)
	assert.True(t, tok.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, tok.Client, got.Client)
	assert.Nil(t, got.RevokedAt)

	_, err = repo.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, domainauth.ErrRefreshNotFound)
}

func TestRedisRepo_Rotate(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, token("u1", "h1", t0)))

	now := t0.Add(time.Minute)
	prev, succ, err := repo.Rotate(ctx, "h1", now, successor("h2", now))
	require.NoError(t, err)
	require.NotNil(t, prev.ReplacedByID)
	assert.Equal(t, succ.ID, *prev.ReplacedByID)

	stored, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	assert.True(t, now.Equal(*stored.RevokedAt))
	assert.Equal(t, succ.ID, *stored.ReplacedByID)

	next, err := repo.FindByHash(ctx, "h2")
	require.NoError(t, err)
	assert.True(t, next.Usable(now))

	_, _, err = repo.Rotate(ctx, "h1", now, successor("h3", now))
	require.ErrorIs(t, err, domainauth.ErrRefreshRevoked)

	_, _, err = repo.Rotate(ctx, "missing", now, successor("h4", now))
	require.ErrorIs(t, err, domainauth.ErrRefreshNotFound)
}

func TestRedisRepo_RotateExpired(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	tok := token("u1", "h1", t0)
	require.NoError(t, repo.Create(ctx, tok))

	prev, succ, err := repo.Rotate(ctx, "h1", tok.ExpiresAt, successor("h2", tok.ExpiresAt))
	require.ErrorIs(t, err, domainauth.ErrRefreshExpired)
	assert.Nil(t, succ)
	assert.Equal(t, tok.ID, prev.ID)
}

func TestRedisRepo_ConcurrentRotateSingleWinner(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, token("u1", "h1", t0)))

	const n = 12
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			now := t0.Add(time.Second)
			_, _, err := repo.Rotate(ctx, "h1", now, successor(uuid.NewString(), now))
			if err == nil {
				wins.Add(1)
				return
			}
			if assert.ErrorIs(t, err, domainauth.ErrRefreshRevoked) {
				losses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, n-1, losses.Load())
}

func TestRedisRepo_RevokeAndRevokeAll(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	first := token("u1", "a", t0)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, token("u1", "b", t0)))
	require.NoError(t, repo.Create(ctx, token("u1", "c", t0)))
	require.NoError(t, repo.Create(ctx, token("u2", "d", t0)))

	now := t0.Add(time.Hour)
	rec, err := repo.Revoke(ctx, "a", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, first.ID, rec.ID)
	assert.Equal(t, "u1", rec.SubjectID)
	require.NotNil(t, rec.RevokedAt)
	rec, err = repo.Revoke(ctx, "a", now)
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = repo.Revoke(ctx, "zzz", now)
	require.NoError(t, err)
	assert.Nil(t, rec)

	n, err := repo.RevokeAllForSubject(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, h := range []string{"a", "b", "c"} {
		rec, err := repo.FindByHash(ctx, h)
		require.NoError(t, err)
		assert.NotNil(t, rec.RevokedAt, h)
	}
	other, err := repo.FindByHash(ctx, "d")
	require.NoError(t, err)
	assert.Nil(t, other.RevokedAt)
}

func TestRedisRepo_RetentionByExpiry(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, token("u1", "live", t0)))
	require.NoError(t, repo.Create(ctx, token("u1", "gone", t0)))

	rec, err := repo.Revoke(ctx, "gone", t0)
	require.NoError(t, err)
	require.NotNil(t, rec)

	mr.FastForward(30*24*time.Hour + time.Minute)

	_, err = repo.FindByHash(ctx, "gone")
	require.ErrorIs(t, err, domainauth.ErrRefreshNotFound)
	_, err = repo.FindByHash(ctx, "live")
	require.NoError(t, err)

	mr.FastForward(7 * 24 * time.Hour)
	_, err = repo.FindByHash(ctx, "live")
	require.ErrorIs(t, err, domainauth.ErrRefreshNotFound)

	n, err := repo.DeleteStale(ctx, t0, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
