package agent

import (
	"context"
	"sync"
)

// SecretStore keeps the refresh secret on the device. Load returns "" when
// nothing is stored.
type SecretStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, secret string) error
	Clear(ctx context.Context) error
}

type MemorySecretStore struct {
	mu     sync.Mutex
	secret string
}

func NewMemorySecretStore(secret string) *MemorySecretStore {
	return &MemorySecretStore{secret: secret}
}

func (m *MemorySecretStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secret, nil
}

func (m *MemorySecretStore) Save(_ context.Context, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = secret
	return nil
}

func (m *MemorySecretStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = ""
	return nil
}
