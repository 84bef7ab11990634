package kv

import (
	"context"
	"sync"
)

// Memory is an in-process store. It is the last-resort tier when no
// persistent backend can be opened, and the default store in tests.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	maxBytes int
}

// NewMemory returns an empty, unbounded memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// NewLimitedMemory returns a memory store that reports maxBytes as its
// per-value ceiling and, like the roaming tier, drops larger values.
func NewLimitedMemory(maxBytes int) *Memory {
	return &Memory{data: make(map[string]string), maxBytes: maxBytes}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) MaxValueBytes() int { return m.maxBytes }

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if m.maxBytes > 0 && len(value) > m.maxBytes {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
