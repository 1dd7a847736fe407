//go:build screen

package display

import (
	"fmt"
	"os"
	"sync"

	"github.com/d21d3q/framebuffer"
	"go.uber.org/zap"
)

// Screen is a 16 bpp framebuffer panel.
type Screen struct {
	mu     sync.Mutex
	pix    []byte
	back   []byte
	stride int
	width  int
	height int
	r      *Renderer
	log    *zap.Logger
}

// Open maps the framebuffer named by cfg.Device.
func Open(cfg Config, log *zap.Logger) (*Screen, error) {
	log = log.Named("display")
	fb, err := framebuffer.OpenFrameBuffer(cfg.Device, os.O_RDWR)
	if err != nil {
		return nil, fmt.Errorf("open framebuffer %s: %w", cfg.Device, err)
	}
	vinfo, err := fb.VarScreenInfo()
	if err != nil {
		return nil, fmt.Errorf("variable screen info: %w", err)
	}
	finfo, err := fb.FixScreenInfo()
	if err != nil {
		return nil, fmt.Errorf("fixed screen info: %w", err)
	}
	if vinfo.BitsPerPixel != 16 {
		return nil, fmt.Errorf("framebuffer %s is %d bpp, need 16", cfg.Device, vinfo.BitsPerPixel)
	}
	pix, err := fb.Pixels()
	if err != nil {
		return nil, fmt.Errorf("map framebuffer: %w", err)
	}

	s := &Screen{
		pix:    pix,
		stride: int(finfo.LineLength),
		width:  int(vinfo.XRes),
		height: int(vinfo.YRes),
		log:    log,
	}
	s.back = make([]byte, s.height*s.stride)

	cw, ch := cfg.Width, cfg.Height
	if cw <= 0 || ch <= 0 {
		cw, ch = s.width, s.height
	}
	font := cfg.Font
	if font == "" {
		font = DefaultFont
	}
	s.r = NewRenderer(cw, ch, font, log)

	log.Info("framebuffer ready", zap.Int("width", s.width), zap.Int("height", s.height), zap.Int("stride", s.stride))
	s.Clear()
	return s, nil
}

// Show draws f on the panel.
func (s *Screen) Show(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := Fit(s.r.Render(f), s.width, s.height)
	PackRGB565(img, s.stride, s.back)
	copy(s.pix, s.back)
}

// Clear blanks the panel.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.pix)
}

func (s *Screen) Close() error {
	s.Clear()
	return nil
}
