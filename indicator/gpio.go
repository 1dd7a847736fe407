package indicator

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// GPIO implements Indicator using discrete GPIO LED pins.
//
//	green         idle
//	yellow        polling the pad
//	green+yellow  delivered
//	red           attention
//	yellow+red    reader lost
type GPIO struct {
	hw        govattu.Vattu
	greenPin  *uint8
	yellowPin *uint8
	redPin    *uint8
}

// NewGPIO creates a new GPIO-based indicator.
func NewGPIO(greenPin, yellowPin, redPin *uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	g := &GPIO{
		hw:        hw,
		greenPin:  greenPin,
		yellowPin: yellowPin,
		redPin:    redPin,
	}

	for _, pin := range g.pins() {
		hw.PinMode(*pin, govattu.ALToutput)
		hw.PinClear(*pin)
	}
	return g, nil
}

func (g *GPIO) pins() []*uint8 {
	var out []*uint8
	for _, p := range []*uint8{g.greenPin, g.yellowPin, g.redPin} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (g *GPIO) only(pins ...*uint8) {
	g.allOff()
	for _, p := range pins {
		if p != nil {
			g.hw.PinSet(*p)
		}
	}
}

func (g *GPIO) Idle()       { g.only(g.greenPin) }
func (g *GPIO) Waiting()    { g.only(g.yellowPin) }
func (g *GPIO) Delivered()  { g.only(g.greenPin, g.yellowPin) }
func (g *GPIO) Attention()  { g.only(g.redPin) }
func (g *GPIO) ReaderLost() { g.only(g.yellowPin, g.redPin) }
func (g *GPIO) Shutdown()   { g.allOff() }

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.allOff()
	return g.hw.Close()
}

func (g *GPIO) allOff() {
	for _, p := range g.pins() {
		g.hw.PinClear(*p)
	}
}
