package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "payment:challenge:"

// Registry binds proofs to the challenge they answer. Each issued challenge
// gets a short-lived id; a proof must echo a live id, and each id can be
// consumed once.
type Registry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{rdb: rdb, ttl: ttl}
}

// Open stamps c with a new id and expiry and records it.
func (r *Registry) Open(ctx context.Context, c Challenge, now time.Time) (Challenge, error) {
	id := uuid.NewString()
	if err := r.rdb.Set(ctx, challengeKeyPrefix+id, c.Price, r.ttl).Err(); err != nil {
		return Challenge{}, fmt.Errorf("open challenge: %w", err)
	}
	c.ID = id
	c.ExpiresAt = now.Add(r.ttl).Unix()
	return c, nil
}

// Consume retires id. It returns false if id was never issued, has expired,
// or was already consumed.
func (r *Registry) Consume(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := r.rdb.Del(ctx, challengeKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return n == 1, nil
}

// Live reports whether id is open, without consuming it.
func (r *Registry) Live(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, challengeKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check challenge: %w", err)
	}
	return n == 1, nil
}
