package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"apna-payments/internal/entities"

	"github.com/go-redis/redis/v8"
)

const pendingKeyPrefix = "payments:pending:"

// RedisPending parks notifications in a Redis list per payment request.
// Lists expire ttl after the last notification was parked.
type RedisPending struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedisPending(rc *redis.Client, ttl time.Duration) *RedisPending {
	return &RedisPending{
		rc:  rc,
		ttl: ttl,
	}
}

func (rp *RedisPending) getKey(paymentRequestID string) string {
	return pendingKeyPrefix + paymentRequestID
}

func (rp *RedisPending) Park(ctx context.Context, paymentRequestID string, n entities.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	key := rp.getKey(paymentRequestID)

	pipe := rp.rc.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, rp.ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("parking notification for %s: %w", paymentRequestID, err)
	}
	return nil
}

// Take removes and returns everything parked for paymentRequestID. Members
// that fail to decode are logged and skipped.
func (rp *RedisPending) Take(ctx context.Context, paymentRequestID string) ([]entities.Notification, error) {
	key := rp.getKey(paymentRequestID)

	pipe := rp.rc.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("taking notifications for %s: %w", paymentRequestID, err)
	}

	members := rangeCmd.Val()
	notifications := make([]entities.Notification, 0, len(members))
	for _, member := range members {
		var n entities.Notification
		if err := json.Unmarshal([]byte(member), &n); err != nil {
			slog.Warn("dropping undecodable parked notification", "payment_request_id", paymentRequestID, "error", err)
			continue
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}

// MemoryPending is the in-process equivalent of RedisPending.
type MemoryPending struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	notifications []entities.Notification
	expiresAt     time.Time
}

func NewMemoryPending(ttl time.Duration) *MemoryPending {
	return &MemoryPending{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*pendingEntry),
	}
}

func (mp *MemoryPending) Park(ctx context.Context, paymentRequestID string, n entities.Notification) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	now := mp.now()
	mp.evict(now)

	entry, ok := mp.entries[paymentRequestID]
	if !ok {
		entry = &pendingEntry{}
		mp.entries[paymentRequestID] = entry
	}

	cp := make(entities.Notification, len(n))
	for k, v := range n {
		cp[k] = v
	}
	entry.notifications = append(entry.notifications, cp)
	entry.expiresAt = now.Add(mp.ttl)
	return nil
}

func (mp *MemoryPending) Take(ctx context.Context, paymentRequestID string) ([]entities.Notification, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.evict(mp.now())

	entry, ok := mp.entries[paymentRequestID]
	if !ok {
		return nil, nil
	}
	delete(mp.entries, paymentRequestID)
	return entry.notifications, nil
}

func (mp *MemoryPending) evict(now time.Time) {
	for id, entry := range mp.entries {
		if !now.Before(entry.expiresAt) {
			delete(mp.entries, id)
		}
	}
}
