package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisGuard(t *testing.T) (*Redis, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	g := NewRedis(client, time.Hour)
	g.now = clock.Now
	return g, mr, clock
}

func TestRedis_OtpCooldown(t *testing.T) {
	ctx := context.Background()
	g, mr, clock := setupRedisGuard(t)

	res, err := g.CheckOtpCooldown(ctx, "a@x.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, g.MarkOtpSent(ctx, "a@x.com"))
	assert.True(t, mr.Exists(otpKeyPrefix+"a@x.com"))
	assert.Equal(t, time.Hour, mr.TTL(otpKeyPrefix+"a@x.com"))

	clock.Advance(15 * time.Second)
	res, err = g.CheckOtpCooldown(ctx, "a@x.com", time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 45*time.Second, res.RetryAfter)

	clock.Advance(45 * time.Second)
	res, err = g.CheckOtpCooldown(ctx, "a@x.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedis_LockoutLifecycle(t *testing.T) {
	ctx := context.Background()
	g, mr, _ := setupRedisGuard(t)
	policy := LockoutPolicy{Threshold: 3, Duration: 5 * time.Minute}

	for i := 1; i <= 2; i++ {
		a, err := g.RegisterFailedLogin(ctx, "a@x.com", policy)
		require.NoError(t, err)
		assert.Equal(t, i, a.Count)
		assert.False(t, a.Locked())
	}

	a, err := g.RegisterFailedLogin(ctx, "a@x.com", policy)
	require.NoError(t, err)
	assert.True(t, a.Locked())
	assert.False(t, mr.Exists(failKeyPrefix+"a@x.com"))

	state, err := g.IsLoginLocked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, state.Locked)
	assert.Equal(t, 5*time.Minute, state.RetryAfter)

	// Frozen while locked.
	again, err := g.RegisterFailedLogin(ctx, "a@x.com", policy)
	require.NoError(t, err)
	assert.True(t, again.Locked())
	assert.False(t, mr.Exists(failKeyPrefix+"a@x.com"))

	mr.FastForward(5 * time.Minute)
	state, err = g.IsLoginLocked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, state.Locked)

	a, err = g.RegisterFailedLogin(ctx, "a@x.com", policy)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Count)
}

func TestRedis_Reset(t *testing.T) {
	ctx := context.Background()
	g, mr, _ := setupRedisGuard(t)
	policy := LockoutPolicy{Threshold: 1, Duration: time.Hour}

	_, err := g.RegisterFailedLogin(ctx, "a@x.com", policy)
	require.NoError(t, err)
	require.True(t, mr.Exists(lockKeyPrefix+"a@x.com"))

	require.NoError(t, g.ResetLoginAttempts(ctx, "a@x.com"))
	assert.False(t, mr.Exists(lockKeyPrefix+"a@x.com"))

	state, err := g.IsLoginLocked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, state.Locked)
}

func TestRedis_BackendDown(t *testing.T) {
	ctx := context.Background()
	g, mr, _ := setupRedisGuard(t)
	mr.Close()

	_, err := g.IsLoginLocked(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = g.RegisterFailedLogin(ctx, "a@x.com", DefaultLockoutPolicy())
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	assert.ErrorIs(t, g.MarkOtpSent(ctx, "a@x.com"), ErrBackendUnavailable)
}

func TestGuardImplementations(t *testing.T) {
	var _ Guard = (*Memory)(nil)
	var _ Guard = (*Redis)(nil)
}
