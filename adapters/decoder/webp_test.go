package decoder

import (
	"testing"

	"github.com/kestrelimg/imgload/core"
)

func TestWebP_PartialInvalidDataReturnsNilNil(t *testing.T) {
	d := NewWebP()
	img, err := d.Decode(core.DecodingContext{Data: []byte("RIFF"), IsFinal: false})
	if err != nil {
		t.Fatalf("partial decode returned an error: %v", err)
	}
	if img != nil {
		t.Fatal("partial decode of an incomplete stream produced an image")
	}
}

func TestWebP_FinalInvalidDataReturnsError(t *testing.T) {
	d := NewWebP()
	_, err := d.Decode(core.DecodingContext{Data: []byte("not a webp file at all"), IsFinal: true})
	if err == nil {
		t.Fatal("expected an error decoding invalid WebP data")
	}
}
