// Package kv provides the string key/value stores that hold session state
// across host page loads.
package kv

import (
	"context"
	"fmt"
)

// Store is a durable string key/value store.
// Get reports ok=false for a missing key; that is never an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Type     string `yaml:"type"`      // "file", "redis", "memory"
	Path     string `yaml:"path"`      // state file for "file"
	RedisURL string `yaml:"redis_url"` // e.g. redis://localhost:6379/0
}

// New creates a Store based on the provided configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "redis":
		return NewRedis(cfg.RedisURL)
	case "memory":
		return NewMemory(), nil
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("kv: file store needs a path")
		}
		return NewFile(cfg.Path)
	default:
		return nil, fmt.Errorf("kv: unknown store type %q", cfg.Type)
	}
}
