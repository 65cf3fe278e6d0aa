// Package imaging post-processes generated media: rounded, bordered
// thumbnails for objects, portrait padding for video input and looping GIFs
// for cached frame sets.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"sketchcraft.ai/internal/sim/tuning"
)

type Options struct {
	InnerSize     int
	CornerRadius  int
	BorderWidth   int
	Border        color.RGBA
	ThumbnailSize int
}

func OptionsFrom(g tuning.Generation) (Options, error) {
	c, err := ParseHexColor(g.BorderColor)
	if err != nil {
		return Options{}, fmt.Errorf("border_color: %w", err)
	}
	return Options{
		InnerSize:     g.InnerSize,
		CornerRadius:  g.CornerRadius,
		BorderWidth:   g.BorderWidth,
		Border:        c,
		ThumbnailSize: g.ThumbnailSize,
	}, nil
}

func DefaultOptions() Options {
	o, _ := OptionsFrom(tuning.Defaults().Generation)
	return o
}

// ParseHexColor accepts #rgb and #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Scale resamples src to w x h.
func Scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func Thumbnail(src image.Image, size int) *image.RGBA {
	return Scale(src, size, size)
}

// roundedRect is an alpha mask that is opaque inside a rectangle with
// rounded corners.
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }
func (m roundedRect) Bounds() image.Rectangle { return m.r }

func (m roundedRect) At(x, y int) color.Color {
	if !m.inside(x, y) {
		return color.Alpha{}
	}
	return color.Alpha{A: 0xff}
}

func (m roundedRect) inside(x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return false
	}
	rad := m.radius
	if half := min(m.r.Dx(), m.r.Dy()) / 2; rad > half {
		rad = half
	}
	if rad <= 0 {
		return true
	}
	// Distance from the nearest corner center, sampled at the pixel center.
	cx, cy := -1, -1
	switch {
	case x < m.r.Min.X+rad:
		cx = m.r.Min.X + rad
	case x >= m.r.Max.X-rad:
		cx = m.r.Max.X - rad - 1
	}
	switch {
	case y < m.r.Min.Y+rad:
		cy = m.r.Min.Y + rad
	case y >= m.r.Max.Y-rad:
		cy = m.r.Max.Y - rad - 1
	}
	if cx < 0 || cy < 0 {
		return true
	}
	dx, dy := float64(x-cx), float64(y-cy)
	return dx*dx+dy*dy <= float64(rad*rad)
}

// Frame resizes src to the inner size, clips it to a rounded rectangle and
// places it on a border-coloured rounded plate 2*BorderWidth larger on
// every side. Pixels outside the plate are transparent.
func Frame(src image.Image, o Options) *image.RGBA {
	inner := Scale(src, o.InnerSize, o.InnerSize)
	radius := o.CornerRadius + o.BorderWidth
	pad := 2 * o.BorderWidth
	size := o.InnerSize + 2*pad

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	plate := roundedRect{r: dst.Bounds(), radius: radius}
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(o.Border), image.Point{}, plate, image.Point{}, draw.Src)

	at := image.Rect(pad, pad, pad+o.InnerSize, pad+o.InnerSize)
	clip := roundedRect{r: at, radius: radius}
	draw.DrawMask(dst, at, inner, image.Point{}, clip, at.Min, draw.Over)
	return dst
}

// Process turns raw generator output into the cached thumbnail PNG.
func Process(raw []byte, o Options) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Thumbnail(Frame(img, o), o.ThumbnailSize))
}

// ProcessFrame applies the same rounded border to an animation frame but
// keeps the framed size.
func ProcessFrame(raw []byte, o Options) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Frame(img, o))
}

// PadToAspect fits raw inside a w x h black canvas, preserving its aspect
// ratio, and returns the result as PNG.
func PadToAspect(raw []byte, w, h int) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	scale := min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	sw, sh := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	x0, y0 := (w-sw)/2, (h-sh)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+sw, y0+sh), img, b, draw.Over, nil)
	return EncodePNG(dst)
}

// LoopGIF assembles frames into an endlessly looping animation. Every frame
// is dithered onto the Plan 9 palette.
func LoopGIF(frames [][]byte, delayMs int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	anim := &gif.GIF{LoopCount: 0}
	delay := delayMs / 10
	if delay <= 0 {
		delay = 1
	}
	var bounds image.Rectangle
	for i, raw := range frames {
		img, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if i == 0 {
			bounds = img.Bounds()
		} else if img.Bounds().Size() != bounds.Size() {
			img = Scale(img, bounds.Dx(), bounds.Dy())
		}
		p := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), palette.Plan9)
		draw.FloydSteinberg.Draw(p, p.Bounds(), img, img.Bounds().Min)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
