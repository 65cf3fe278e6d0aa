package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#000000", color.RGBA{A: 0xff}, true},
		{"#ff8000", color.RGBA{R: 0xff, G: 0x80, A: 0xff}, true},
		{"#fff", color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, true},
		{"nope", color.RGBA{}, false},
	}
	for _, tc := range cases {
		got, err := ParseHexColor(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseHexColor(%q) = %v, %v", tc.in, got, err)
		}
	}
}

func TestFrame_BorderAndCorners(t *testing.T) {
	o := DefaultOptions()
	src, err := Decode(solidPNG(t, 300, 200, color.RGBA{R: 0xff, A: 0xff}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := Frame(src, o)
	size := o.InnerSize + 4*o.BorderWidth
	if out.Bounds().Dx() != size || out.Bounds().Dy() != size {
		t.Fatalf("size = %v", out.Bounds())
	}
	if _, _, _, a := out.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("corner pixel not transparent")
	}
	r, g, b, a := out.At(size/2, 0).RGBA()
	if a == 0 || r != 0 || g != 0 || b != 0 {
		t.Fatalf("top edge should be border colour, got %v %v %v %v", r, g, b, a)
	}
	r, _, _, a = out.At(size/2, size/2).RGBA()
	if a == 0 || r < 0xf000 {
		t.Fatalf("center should be the source image")
	}
}

func TestProcess_Thumbnail(t *testing.T) {
	o := DefaultOptions()
	out, err := Process(solidPNG(t, 512, 512, color.RGBA{B: 0xff, A: 0xff}), o)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != o.ThumbnailSize || img.Bounds().Dy() != o.ThumbnailSize {
		t.Fatalf("thumbnail = %v", img.Bounds())
	}
	if _, err := Process([]byte("not an image"), o); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestPadToAspect_Contain(t *testing.T) {
	out, err := PadToAspect(solidPNG(t, 100, 100, color.White), 90, 160)
	if err != nil {
		t.Fatalf("pad: %v", err)
	}
	img, _ := png.Decode(bytes.NewReader(out))
	if img.Bounds().Dx() != 90 || img.Bounds().Dy() != 160 {
		t.Fatalf("size = %v", img.Bounds())
	}
	if r, _, _, _ := img.At(45, 2).RGBA(); r != 0 {
		t.Fatalf("letterbox should be black")
	}
	if r, _, _, _ := img.At(45, 80).RGBA(); r < 0xf000 {
		t.Fatalf("content should be white")
	}
}

func TestLoopGIF(t *testing.T) {
	frames := [][]byte{
		solidPNG(t, 16, 16, color.White),
		solidPNG(t, 16, 16, color.Black),
		solidPNG(t, 32, 32, color.White),
		solidPNG(t, 16, 16, color.Black),
	}
	out, err := LoopGIF(frames, 125)
	if err != nil {
		t.Fatalf("gif: %v", err)
	}
	g, err := gif.DecodeAll(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(g.Image) != 4 || g.LoopCount != 0 || g.Delay[0] != 12 {
		t.Fatalf("gif frames=%d loop=%d delay=%d", len(g.Image), g.LoopCount, g.Delay[0])
	}
	if g.Image[2].Bounds().Dx() != 16 {
		t.Fatalf("frame 2 not rescaled")
	}
	if _, err := LoopGIF(nil, 100); err == nil {
		t.Fatalf("empty frame list accepted")
	}
}
