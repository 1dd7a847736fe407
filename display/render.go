// Package display draws full-screen station messages for a small panel
// next to the pad. Drawing is plain image work; the framebuffer device is
// only compiled in with the "screen" build tag.
package display

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// DefaultFont is used when Config.Font is empty.
const DefaultFont = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"

// Config selects the framebuffer panel.
type Config struct {
	// Device is the framebuffer, e.g. /dev/fb0. Empty disables the screen.
	Device string `yaml:"device"`
	Font   string `yaml:"font"`
	// Width and Height size the drawing canvas. The canvas is scaled to the
	// panel; zero uses the panel size.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Frame is one screenful.
type Frame struct {
	Title      string
	Detail     string
	Background color.RGBA
	Foreground color.RGBA
}

// Renderer draws frames onto an RGBA canvas.
type Renderer struct {
	img     *image.RGBA
	dc      *gg.Context
	font    string
	log     *zap.Logger
	noFonts bool
}

func NewRenderer(width, height int, font string, log *zap.Logger) *Renderer {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Renderer{img: img, dc: gg.NewContextForRGBA(img), font: font, log: log}
}

// Render draws f and returns the canvas. The canvas is reused by the next
// call.
func (r *Renderer) Render(f Frame) *image.RGBA {
	w, h := float64(r.img.Bounds().Dx()), float64(r.img.Bounds().Dy())

	r.dc.SetColor(f.Background)
	r.dc.DrawRectangle(0, 0, w, h)
	r.dc.Fill()

	r.dc.SetColor(f.Foreground)
	if f.Detail == "" {
		r.fontSize(h / 5)
		r.dc.DrawStringAnchored(f.Title, w/2, h/2, 0.5, 0.5)
		return r.img
	}
	r.fontSize(h / 6)
	r.dc.DrawStringAnchored(f.Title, w/2, h*0.4, 0.5, 0.5)
	r.fontSize(h / 12)
	r.dc.DrawStringAnchored(f.Detail, w/2, h*0.7, 0.5, 0.5)
	return r.img
}

// fontSize switches to the TrueType font at size points. Without the font
// the built-in bitmap face stays in use.
func (r *Renderer) fontSize(size float64) {
	if r.noFonts || r.font == "" {
		return
	}
	if err := r.dc.LoadFontFace(r.font, size); err != nil {
		r.log.Warn("font unavailable, using bitmap face", zap.String("font", r.font), zap.Error(err))
		r.noFonts = true
	}
}

// Fit scales src to width x height. src is returned as is when it already
// has that size.
func Fit(src *image.RGBA, width, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// PackRGB565 encodes img into dst as little-endian RGB565 rows of stride
// bytes. Pixels beyond dst are dropped.
func PackRGB565(img *image.RGBA, stride int, dst []byte) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := y*stride + x*2
			if i+1 >= len(dst) {
				return
			}
			p := row[x*4:]
			px := uint16(p[0]>>3)<<11 | uint16(p[1]>>2)<<5 | uint16(p[2]>>3)
			binary.LittleEndian.PutUint16(dst[i:], px)
		}
	}
}
