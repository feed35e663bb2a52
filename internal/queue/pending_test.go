package queue

import (
	"context"
	"testing"
	"time"

	"apna-payments/internal/entities"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisPending(t *testing.T, ttl time.Duration) (*RedisPending, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	return NewRedisPending(rc, ttl), mr
}

func TestRedisPendingParkAndTake(t *testing.T) {
	ctx := context.Background()
	rp, mr := newRedisPending(t, time.Hour)

	first := entities.Notification{"payment_request_id": "pr_1", "payment_id": "pay_9", "status": "Credit"}
	second := entities.Notification{"payment_request_id": "pr_1", "payment_id": "pay_10", "status": "Credit"}

	require.NoError(t, rp.Park(ctx, "pr_1", first))
	require.NoError(t, rp.Park(ctx, "pr_1", second))
	assert.Equal(t, time.Hour, mr.TTL(pendingKeyPrefix+"pr_1"))

	taken, err := rp.Take(ctx, "pr_1")
	require.NoError(t, err)
	assert.Equal(t, []entities.Notification{first, second}, taken)

	again, err := rp.Take(ctx, "pr_1")
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.False(t, mr.Exists(pendingKeyPrefix+"pr_1"))
}

func TestRedisPendingExpires(t *testing.T) {
	ctx := context.Background()
	rp, mr := newRedisPending(t, time.Minute)

	require.NoError(t, rp.Park(ctx, "pr_1", entities.Notification{"status": "Credit"}))
	mr.FastForward(2 * time.Minute)

	taken, err := rp.Take(ctx, "pr_1")
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestRedisPendingSkipsUndecodableMembers(t *testing.T) {
	ctx := context.Background()
	rp, mr := newRedisPending(t, time.Hour)

	valid := entities.Notification{"payment_request_id": "pr_1", "payment_id": "pay_9", "status": "Credit"}
	_, err := mr.RPush(pendingKeyPrefix+"pr_1", "not json")
	require.NoError(t, err)
	require.NoError(t, rp.Park(ctx, "pr_1", valid))

	taken, err := rp.Take(ctx, "pr_1")
	require.NoError(t, err)
	assert.Equal(t, []entities.Notification{valid}, taken)
	assert.False(t, mr.Exists(pendingKeyPrefix+"pr_1"))
}

func TestRedisPendingUnavailable(t *testing.T) {
	ctx := context.Background()
	rp, mr := newRedisPending(t, time.Minute)
	mr.Close()

	err := rp.Park(ctx, "pr_1", entities.Notification{"status": "Credit"})
	require.Error(t, err)
}

func TestMemoryPendingParkTakeAndExpire(t *testing.T) {
	ctx := context.Background()
	mp := NewMemoryPending(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mp.now = func() time.Time { return now }

	n := entities.Notification{"payment_request_id": "pr_1", "status": "Credit"}
	require.NoError(t, mp.Park(ctx, "pr_1", n))
	n["status"] = "mutated"

	taken, err := mp.Take(ctx, "pr_1")
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Equal(t, "Credit", taken[0]["status"])

	taken, err = mp.Take(ctx, "pr_1")
	require.NoError(t, err)
	assert.Empty(t, taken)

	require.NoError(t, mp.Park(ctx, "pr_2", entities.Notification{"status": "Credit"}))
	now = now.Add(2 * time.Minute)
	taken, err = mp.Take(ctx, "pr_2")
	require.NoError(t, err)
	assert.Empty(t, taken)
}
