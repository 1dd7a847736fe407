package indicator

import (
	"fmt"
	"io"
	"os"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoReaderLost = "@2 !150000 001010"
	neoIdle       = "@3 !150000 400000"
	neoWaiting    = "@3 !50000 404000"
	neoDelivered  = "@1 !50000 8000"
	neoAttention  = "@2 !10000 ff"
	neoTerminated = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	pipe io.WriteCloser
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

func (n *Neopixel) Idle()       { n.write(neoIdle) }
func (n *Neopixel) Waiting()    { n.write(neoWaiting) }
func (n *Neopixel) Delivered()  { n.write(neoDelivered) }
func (n *Neopixel) Attention()  { n.write(neoAttention) }
func (n *Neopixel) ReaderLost() { n.write(neoReaderLost) }
func (n *Neopixel) Shutdown()   { n.write(neoTerminated) }

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe != nil {
		n.pipe.Write([]byte(s + "\n"))
	}
}
