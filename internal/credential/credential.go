package credential

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when nothing is registered for an identity.
var ErrNotFound = errors.New("no credential registered")

// Credential references one authenticator credential owned by an identity.
// RawID holds the raw credential identifier as standard base64 text.
type Credential struct {
	ID        string    `json:"id"`
	RawID     string    `json:"rawId"`
	Type      string    `json:"type"`
	Owner     string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// RawBytes decodes RawID.
func (c Credential) RawBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.RawID)
}

// EncodeRaw wraps a raw identifier for storage.
func EncodeRaw(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Store keeps one credential per identity. Save replaces any previous entry.
type Store interface {
	Has(ctx context.Context, identity string) (bool, error)
	Save(ctx context.Context, identity string, cred Credential) error
	Load(ctx context.Context, identity string) (Credential, error)
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Credential
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Credential)}
}

func (m *MemoryStore) Has(_ context.Context, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[identity]
	return ok, nil
}

func (m *MemoryStore) Save(_ context.Context, identity string, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[identity] = cred
	return nil
}

func (m *MemoryStore) Load(_ context.Context, identity string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.items[identity]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

// Len reports the number of stored credentials.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
