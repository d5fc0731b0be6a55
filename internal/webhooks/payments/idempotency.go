package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/redis"
)

// IdempotencyGuard rejects whole duplicate webhook deliveries cheaply, before
// the decision table runs. Correctness does not depend on it: the document
// status checks in the lifecycle services catch duplicates that slip past.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the charge was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, chargeID string) (bool, error) {
	if chargeID == "" {
		return false, errors.New("charge id is required")
	}
	key := g.store.IdempotencyKey(g.scope, chargeID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, chargeID string) error {
	if chargeID == "" {
		return errors.New("charge id is required")
	}
	key := g.store.IdempotencyKey(g.scope, chargeID)
	return g.store.Del(ctx, key)
}
