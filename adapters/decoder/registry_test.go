package decoder

import (
	"testing"

	"github.com/kestrelimg/imgload/core"
)

func TestRegistry_SelectsByMagicBytes(t *testing.T) {
	r := NewRegistry()

	png := encodePNG(t, 2, 2)
	d, err := r.Select(core.DecodingContext{Data: png})
	if err != nil {
		t.Fatalf("Select(png): %v", err)
	}
	if _, ok := d.(*PNG); !ok {
		t.Fatalf("Select(png) returned %T, want *PNG", d)
	}

	jpg := encodeJPEG(t, 2, 2)
	d, err = r.Select(core.DecodingContext{Data: jpg})
	if err != nil {
		t.Fatalf("Select(jpeg): %v", err)
	}
	if _, ok := d.(*JPEG); !ok {
		t.Fatalf("Select(jpeg) returned %T, want *JPEG", d)
	}
}

func TestRegistry_UnrecognizedDataWaitsForMore(t *testing.T) {
	r := NewRegistry()
	d, err := r.Select(core.DecodingContext{Data: []byte("xx")})
	if err != nil {
		t.Fatalf("Select(short): %v", err)
	}
	if d != nil {
		t.Fatal("expected a nil decoder for unrecognized/short data")
	}
}

func TestRegistry_CustomDecoderOverridesDefault(t *testing.T) {
	r := NewRegistry()
	custom := &JPEG{}
	r.Register("jpeg", custom)

	d, err := r.Select(core.DecodingContext{Data: encodeJPEG(t, 2, 2)})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d != core.Decoder(custom) {
		t.Fatal("Register did not override the default jpeg decoder")
	}
}
