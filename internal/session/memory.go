package session

import (
	"context"
	"sync"
	"time"

	"github.com/abkawan/banking-transfers/internal/models"
)

type memEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is a process-local Holder. Entries expire after ttl.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memEntry)}
}

func (m *Memory) Get(ctx context.Context, sessionID string) (*models.Transfer, error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok && !m.now().Before(e.expiresAt) {
		delete(m.entries, sessionID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decode(e.payload)
}

func (m *Memory) Set(ctx context.Context, sessionID string, t *models.Transfer) error {
	payload, err := encode(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = memEntry{payload: payload, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}
