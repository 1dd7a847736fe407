// Package button turns desk push buttons into host signals, so the
// librarian can continue or reset without reaching for the mouse.
package button

// Config holds the GPIO lines of the desk buttons. A zero pin is unused.
type Config struct {
	Chip        string `yaml:"chip"`
	ContinuePin int    `yaml:"continue_pin"`
	ResetPin    int    `yaml:"reset_pin"`
}

// Handlers holds callback functions for button presses.
type Handlers struct {
	OnContinue func()
	OnReset    func()
}

type wire struct {
	pin int
	fn  func()
}

func (c Config) enabled() bool {
	return c.ContinuePin > 0 || c.ResetPin > 0
}

// wiring pairs each configured pin with its handler.
func (c Config) wiring(h Handlers) []wire {
	var out []wire
	if c.ContinuePin > 0 && h.OnContinue != nil {
		out = append(out, wire{c.ContinuePin, h.OnContinue})
	}
	if c.ResetPin > 0 && h.OnReset != nil {
		out = append(out, wire{c.ResetPin, h.OnReset})
	}
	return out
}
