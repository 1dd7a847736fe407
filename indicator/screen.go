package indicator

import (
	"fmt"
	"image/color"
	"sync"

	"go.uber.org/zap"

	"circrfid/display"
	"circrfid/queue"
)

type panel interface {
	Show(display.Frame)
	Clear()
	Close() error
}

type screenState int

const (
	screenIdle screenState = iota
	screenWaiting
	screenDelivered
	screenAttention
	screenReaderLost
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

var screenLooks = map[screenState]display.Frame{
	screenIdle:       {Title: "Ready", Background: color.RGBA{0, 96, 0, 255}, Foreground: white},
	screenWaiting:    {Title: "Reading tags", Background: color.RGBA{200, 170, 0, 255}, Foreground: black},
	screenDelivered:  {Title: "Sent", Background: color.RGBA{0, 160, 0, 255}, Foreground: white},
	screenAttention:  {Title: "Check the screen", Background: color.RGBA{220, 110, 0, 255}, Foreground: black},
	screenReaderLost: {Title: "No RFID reader", Background: color.RGBA{170, 0, 0, 255}, Foreground: white},
}

// Screen shows the station state on a framebuffer panel, with the mode and
// queue counts underneath.
type Screen struct {
	mu    sync.Mutex
	out   panel
	state screenState
	view  queue.View
	off   bool
}

// NewScreen opens the panel named by cfg.
func NewScreen(cfg display.Config, log *zap.Logger) (*Screen, error) {
	d, err := display.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Screen{out: d}, nil
}

func (s *Screen) Idle()       { s.set(screenIdle) }
func (s *Screen) Waiting()    { s.set(screenWaiting) }
func (s *Screen) Delivered()  { s.set(screenDelivered) }
func (s *Screen) Attention()  { s.set(screenAttention) }
func (s *Screen) ReaderLost() { s.set(screenReaderLost) }

// ShowQueue implements QueueDisplay.
func (s *Screen) ShowQueue(v queue.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
	s.drawLocked()
}

func (s *Screen) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.off = true
	s.out.Clear()
}

func (s *Screen) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.off = true
	return s.out.Close()
}

func (s *Screen) set(st screenState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.drawLocked()
}

func (s *Screen) drawLocked() {
	if s.off {
		return
	}
	s.out.Show(screenFrame(s.state, s.view))
}

func screenFrame(st screenState, v queue.View) display.Frame {
	f := screenLooks[st]
	if st == screenReaderLost {
		return f
	}
	f.Detail = fmt.Sprintf("%d waiting, %d done", len(v.Unprocessed), len(v.Processed))
	if v.Mode != "" {
		f.Detail = v.Mode + ": " + f.Detail
	}
	return f
}
