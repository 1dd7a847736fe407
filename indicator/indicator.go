// Package indicator shows the desk station state on LEDs, a neopixel
// strip or a small screen.
package indicator

import (
	"go.uber.org/zap"

	"circrfid/display"
	"circrfid/queue"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Idle means a reader is selected and nothing is happening.
	Idle()

	// Waiting means the station is polling the pad.
	Waiting()

	// Delivered means barcodes were handed to the circulation page.
	Delivered()

	// Attention means processing halted until the librarian acts.
	Attention()

	// ReaderLost means no reader answered.
	ReaderLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`

	// Framebuffer panel (empty device = not configured)
	Screen display.Config `yaml:"screen"`
}

// QueueDisplay is implemented by indicators that also show the queue.
type QueueDisplay interface {
	ShowQueue(v queue.View)
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if more than one is configured.
func New(cfg Config, log *zap.Logger) (Indicator, error) {
	var indicators []Indicator

	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if cfg.Screen.Device != "" {
		scr, err := NewScreen(cfg.Screen, log)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, scr)
	}

	switch len(indicators) {
	case 0:
		return Noop{}, nil
	case 1:
		return indicators[0], nil
	}
	return NewMulti(indicators...), nil
}
