package localstore

import (
	"context"
	"errors"
	"sync"
)

// StorageName is the fixed name every device envelope is stored under.
const StorageName = "jewel-cart-storage"

// Storage is device-scoped persisted storage holding one serialized cart envelope per device.
type Storage interface {
	Get(ctx context.Context, deviceID string) ([]byte, error)
	Set(ctx context.Context, deviceID string, envelope []byte) error
	Delete(ctx context.Context, deviceID string) error
}

var ErrNotFound = errors.New("no stored cart for device")

type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, deviceID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Set(_ context.Context, deviceID string, envelope []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[deviceID] = append([]byte(nil), envelope...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, deviceID)
	return nil
}
