// Package session stores proposed-but-unconfirmed transfers per session.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abkawan/banking-transfers/internal/models"
)

// Holder keeps at most one pending transfer per session id.
// Get returns (nil, nil) when nothing is held or the entry expired.
type Holder interface {
	Get(ctx context.Context, sessionID string) (*models.Transfer, error)
	Set(ctx context.Context, sessionID string, t *models.Transfer) error
	Clear(ctx context.Context, sessionID string) error
}

func encode(t *models.Transfer) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending transfer: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (*models.Transfer, error) {
	var t models.Transfer
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending transfer: %w", err)
	}
	return &t, nil
}
