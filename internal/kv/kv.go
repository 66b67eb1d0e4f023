// Package kv is the string key/value boundary that persists the main-user
// name, the timeline snapshot and the daily quota counters.
package kv

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Keys used by cheerfeed.
const (
	KeyMainUserName   = "cheerfeed.mainUserName"
	KeyTimelineItems  = "cheerfeed.timelineItems.v1"
	KeyDailyCallCount = "cheerfeed.dailyCallCount"
	KeyLastCallDate   = "cheerfeed.lastCallDate"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store is closed")

// Store persists string values by key. A missing key is reported with
// ok=false and no error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Batcher is implemented by stores that can write several keys in one
// atomic step.
type Batcher interface {
	SetMany(ctx context.Context, values map[string]string) error
}

// SetMany writes values through s.SetMany when s is a Batcher, and key by
// key otherwise.
func SetMany(ctx context.Context, s Store, values map[string]string) error {
	if b, ok := s.(Batcher); ok {
		return b.SetMany(ctx, values)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

// SetMany implements Batcher.
func (m *Memory) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
