package kv

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local Store. State is lost on restart, which makes it
// suitable for tests and for desks that do not need to survive a daemon
// restart.
type Memory struct {
	cache *cache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cache: cache.New(cache.NoExpiration, 0)}
}

// Get implements Store.Get.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set implements Store.Set.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.cache.Set(key, value, cache.NoExpiration)
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Close implements Store.Close.
func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
