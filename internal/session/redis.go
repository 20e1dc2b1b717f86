package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/redis/go-redis/v9"
)

const namespace = "pending_transfer"

// Redis is a Holder backed by Redis keys that expire with the session.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return namespace + ":" + sessionID
}

func (r *Redis) Get(ctx context.Context, sessionID string) (*models.Transfer, error) {
	payload, err := r.client.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending transfer: %w", err)
	}
	return decode(payload)
}

// Set replaces whatever the session held before.
func (r *Redis) Set(ctx context.Context, sessionID string, t *models.Transfer) error {
	payload, err := encode(t)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key(sessionID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set pending transfer: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear pending transfer: %w", err)
	}
	return nil
}
