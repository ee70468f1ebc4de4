package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kestrelimg/imgload/core"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	return buf.Bytes()
}

func TestPNG_DecodeFinal(t *testing.T) {
	data := encodePNG(t, 5, 6)
	d := NewPNG()
	img, err := d.Decode(core.DecodingContext{Data: data, IsFinal: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Format != core.FormatPNG {
		t.Fatalf("Format = %v, want png", img.Format)
	}
	if img.Width != 5 || img.Height != 6 {
		t.Fatalf("dimensions = %dx%d, want 5x6", img.Width, img.Height)
	}
}

func TestPNG_PartialReturnsNilNil(t *testing.T) {
	data := encodePNG(t, 5, 6)
	d := NewPNG()
	img, err := d.Decode(core.DecodingContext{Data: data[:len(data)/2], IsFinal: false})
	if err != nil {
		t.Fatalf("partial decode returned an error: %v", err)
	}
	if img != nil {
		t.Fatal("partial decode of a truncated stream produced an image")
	}
}

func TestPNG_FinalInvalidDataReturnsError(t *testing.T) {
	d := NewPNG()
	_, err := d.Decode(core.DecodingContext{Data: []byte("not a png"), IsFinal: true})
	if err == nil {
		t.Fatal("expected an error decoding invalid PNG data")
	}
}
