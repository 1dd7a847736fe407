package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"circrfid/api"
	"circrfid/button"
	"circrfid/eventpipe"
	"circrfid/indicator"
	"circrfid/kv"
	"circrfid/logging"
	"circrfid/mqtt"
	"circrfid/reader"
	"circrfid/workflow"
)

// Config is the main configuration structure for circrfid.
type Config struct {
	// ClientID names this station on the MQTT bridge. If empty, an ID is
	// generated once and kept in the store.
	ClientID string `yaml:"client_id"`

	Reader    reader.Config    `yaml:"reader"`
	Store     kv.Config        `yaml:"store"`
	MQTT      mqtt.Config      `yaml:"mqtt"`
	Workflow  workflow.Config  `yaml:"workflow"`
	Indicator indicator.Config `yaml:"indicator"`
	Buttons   button.Config    `yaml:"buttons"`
	EventPipe eventpipe.Config `yaml:"event_pipe"`
	API       api.Config       `yaml:"api"`
	Log       logging.Config   `yaml:"log"`

	PingInterval time.Duration `yaml:"ping_interval"`
}

func loadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Type == "" && c.Store.Path == "" {
		c.Store.Path = "circrfid-state.json"
	}
	if c.Reader.ProbeTimeout <= 0 {
		c.Reader.ProbeTimeout = reader.DefaultProbeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 120 * time.Second
	}
}

const clientIDKey = "circrfid:client_id"

// stationID returns the configured client id, or the one generated on an
// earlier start. The page-side script subscribes by this id, so it must not
// change across restarts.
func stationID(ctx context.Context, store kv.Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	id, ok, err := store.Get(ctx, clientIDKey)
	if err != nil {
		return "", fmt.Errorf("load client id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := store.Set(ctx, clientIDKey, id); err != nil {
		return "", fmt.Errorf("save client id: %w", err)
	}
	return id, nil
}
