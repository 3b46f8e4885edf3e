package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/redis"
)

// Manager tracks processed event IDs per consumer using Redis SETNX with a TTL.
// Keys follow the `servigo:idempotency:evt:processed:<consumer>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks events as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed returns true when the event was already handled by the
// consumer. A false return atomically claims the event.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if consumer == "" {
		return false, errors.New("consumer name required")
	}
	if eventID == uuid.Nil {
		return false, errors.New("event id required")
	}
	key := m.key(consumer, eventID)
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency setnx: %w", err)
	}
	return !claimed, nil
}

// Delete releases a claim so a nacked event can be retried.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.store.Del(ctx, m.key(consumer, eventID))
}

func (m *Manager) key(consumer string, eventID uuid.UUID) string {
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String())
}
