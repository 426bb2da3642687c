// Package gif renders training reports into an animated GIF, one frame per
// report, with the loss history drawn underneath the text.
package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"
	"strings"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/vecf32"
)

var regular *truetype.Font

const (
	dpi             = 144.0
	fontsize        = 12.0
	lineheight      = 1.2
	curveHeight     = 80
	dummyLongString = `Epoch 100000, AvgLoss: 0.000000 (MultiTaskLoss)`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var globPalette = color.Palette{
	color.Gray{0},
	color.Gray{253},
	color.RGBA{R: 200, A: 255},
}

// Snapshot is the state of training that gets rendered.
type Snapshot interface {
	Report() string
	History() []float32
}

// Encoder renders Snapshots as frames of an animated GIF.
type Encoder struct {
	H, W int
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	maxH, maxW  int // maxHeight and maxWidth
	padH, padW  int // padding so everything don't start at the topleft
	initialized bool
}

// NewGifEncoder with height and width
func NewGifEncoder(h, w int) *Encoder {
	return &Encoder{
		H:    -1,
		W:    -1,
		maxH: h,
		maxW: w,
		padH: 10,
		padW: 10,

		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: -1},
	}
}

// Frames returns the number of frames encoded so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

// Encode renders the snapshot taken at the given epoch.
func (enc *Encoder) Encode(epoch int, s Snapshot) error {
	text := strings.Split(strings.TrimRight(s.Report(), "\n"), "\n")
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))

	if !enc.initialized {
		// lazy init of specifications
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face

		maxW := font.MeasureString(enc.Face, dummyLongString).Ceil()
		for _, l := range text {
			maxW = maxInt(maxW, font.MeasureString(enc.Face, l).Ceil())
		}
		w := maxW + 2*enc.padW
		h := (len(text)+1)*dy + curveHeight + 2*enc.padH // +1 for the epoch line

		w = minInt(w, enc.maxW)
		h = minInt(h, enc.maxH)

		if w == enc.maxW {
			enc.padW = 0
		}
		if h == enc.maxH {
			enc.padH = 0
		}

		enc.H = h
		enc.W = w
		enc.initialized = true
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)
	enc.Dst = im

	y := dy + enc.padH
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Epoch %d", epoch))
	y += dy
	for _, l := range text {
		enc.Dot = fixed.P(enc.padW, y)
		enc.DrawString(l)
		y += dy
	}
	enc.drawCurve(im, s.History(), image.Rect(enc.padW, y-dy/2, enc.W-enc.padW, enc.H-enc.padH))

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, 50)
	return nil
}

// drawCurve plots the history into r, scaled to fill it.
func (enc *Encoder) drawCurve(im *image.Paletted, history []float32, r image.Rectangle) {
	r = r.Intersect(im.Bounds())
	if len(history) == 0 || r.Empty() {
		return
	}
	lo, hi := history[vecf32.Argmin(history)], history[vecf32.Argmax(history)]
	span := hi - lo
	if span == 0 || math32.IsNaN(span) || math32.IsInf(span, 0) {
		span = 1
	}
	ink := uint8(len(globPalette) - 1)
	prev := -1
	for x := r.Min.X; x < r.Max.X; x++ {
		i := (x - r.Min.X) * len(history) / r.Dx()
		v := (history[i] - lo) / span
		if math32.IsNaN(v) {
			v = 0
		}
		y := r.Max.Y - 1 - int(v*float32(r.Dy()-1))
		y = maxInt(r.Min.Y, minInt(y, r.Max.Y-1))
		if prev < 0 {
			prev = y
		}
		from, to := minInt(prev, y), maxInt(prev, y)
		for yy := from; yy <= to; yy++ {
			im.SetColorIndex(x, yy, ink)
		}
		prev = y
	}
}

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if enc.Writer == nil {
		return errors.New("gif: no writer to flush to")
	}
	if len(enc.out.Image) == 0 {
		return errors.New("gif: nothing encoded")
	}
	return errors.WithStack(gif.EncodeAll(enc.Writer, enc.out))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
