package blob

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/0x0BSoD/turfoo/internal/resource"
)

var (
	_ resource.Connectable     = (*Memory)(nil)
	_ resource.HealthCheckable = (*Memory)(nil)
	_ resource.Storable        = (*Memory)(nil)
	_ resource.Listable        = (*Memory)(nil)
	_ resource.Deletable       = (*Memory)(nil)
)

// Memory is an in-process blob store, used for local runs without S3.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Connect(context.Context) error { return nil }

func (m *Memory) Disconnect() {}

func (m *Memory) Healthy(context.Context) bool { return true }

func (m *Memory) Store(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, &resource.NotFoundError{Key: key}
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}
