// Package reader talks to desk RFID pads. Each supported pad is a Vendor;
// Select picks the first one that answers at startup.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnreachable wraps any transport, status or decode failure while
	// reading the pad.
	ErrUnreachable = errors.New("rfid reader unreachable")
	// ErrNoReaderFound is returned by Select when no candidate answered.
	ErrNoReaderFound = errors.New("no rfid reader found")
	// ErrSecurityToggle wraps a failed security-bit update.
	ErrSecurityToggle = errors.New("rfid security toggle failed")
	// ErrUnsupported is returned by vendors that cannot set security bits.
	ErrUnsupported = errors.New("not supported by this reader")
)

// Tag is one item seen on the pad.
type Tag struct {
	Barcode  string `json:"barcode"`
	Security bool   `json:"security"`
}

// Snapshot is the result of a single pad read. An empty Items slice with a
// nil error means the pad is empty.
type Snapshot struct {
	Items []Tag `json:"items"`
}

// Barcodes returns the barcodes in the order the reader reported them.
func (s Snapshot) Barcodes() []string {
	out := make([]string, 0, len(s.Items))
	for _, t := range s.Items {
		out = append(out, t.Barcode)
	}
	return out
}

// Vendor is the interface every pad integration implements.
type Vendor interface {
	Name() string
	// Init prepares the vendor endpoint. It is safe to call more than once.
	Init() error
	// Probe reports whether the pad is answering.
	Probe(ctx context.Context) (bool, error)
	ReadTags(ctx context.Context) (Snapshot, error)
	SetSecurity(ctx context.Context, barcode string, secure bool) error
	PollInterval() time.Duration
	Close() error
}

// Config selects and configures the candidate vendors.
type Config struct {
	// Vendors is the probe order. Unknown names are an error.
	Vendors      []string      `yaml:"vendors"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	MKSolutions MKSolutionsConfig `yaml:"mksolutions"`
	CircIt      CircItConfig      `yaml:"circit"`
	Serial      SerialConfig      `yaml:"serial"`
	Keyboard    KeyboardConfig    `yaml:"keyboard"`
}

// MKSolutionsConfig configures the MK Solutions staff station API.
type MKSolutionsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CircItConfig configures the Tech Logic CircIt service.
type CircItConfig struct {
	Port              string `yaml:"port"`
	NonAdministrative bool   `yaml:"non_administrative"`
}

// SerialConfig configures a serial pad.
type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

// KeyboardConfig configures a keyboard-wedge pad.
type KeyboardConfig struct {
	Device      string        `yaml:"device"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultProbeTimeout = 2 * time.Second
	DefaultHTTPTimeout  = 5 * time.Second
	DefaultPresenceTTL  = 2 * time.Second
)

// vendorOrder is the configured probe order, or the HTTP vendors followed
// by any device-backed vendor that has a device set.
func (c Config) vendorOrder() []string {
	if len(c.Vendors) > 0 {
		return c.Vendors
	}
	order := []string{"mksolutions", "circit"}
	if c.Serial.Device != "" {
		order = append(order, "serial")
	}
	if c.Keyboard.Device != "" {
		order = append(order, "keyboard")
	}
	return order
}

// Candidates builds the vendors named in cfg, in probe order. Nothing is
// opened or contacted until Init.
func Candidates(cfg Config, log *zap.Logger) ([]Vendor, error) {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	var out []Vendor
	for _, name := range cfg.vendorOrder() {
		switch name {
		case "mksolutions":
			out = append(out, NewMKSolutions(cfg.MKSolutions.BaseURL, interval, timeout))
		case "circit":
			out = append(out, NewCircIt(cfg.CircIt, interval, timeout))
		case "serial":
			out = append(out, NewSerial(cfg.Serial, interval, log))
		case "keyboard":
			out = append(out, NewKeyboard(cfg.Keyboard, interval, log))
		default:
			return nil, fmt.Errorf("unknown reader vendor %q", name)
		}
	}
	return out, nil
}
