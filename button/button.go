//go:build linux

package button

import (
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const debounce = 20 * time.Millisecond

// Buttons watches the desk push buttons.
type Buttons struct {
	lines []*gpiocdev.Line
}

// New requests the configured button lines. Returns nil if no pins are
// configured.
func New(cfg Config, handlers Handlers) (*Buttons, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}

	b := &Buttons{}
	for _, w := range cfg.wiring(handlers) {
		fn := w.fn
		line, err := gpiocdev.RequestLine(cfg.Chip, w.pin,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				if evt.Type == gpiocdev.LineEventFallingEdge {
					fn()
				}
			}))
		if err != nil {
			b.Release()
			return nil, err
		}
		b.lines = append(b.lines, line)
	}
	return b, nil
}

// Release releases GPIO resources.
func (b *Buttons) Release() error {
	for _, l := range b.lines {
		l.Close()
	}
	b.lines = nil
	return nil
}
