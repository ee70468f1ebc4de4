package decoder

import (
	"bytes"
	"image/png"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
)

// PNG decodes PNG images using the standard library. PNG has no
// incremental decode path in image/png, so partial attempts always fail
// until the stream is structurally complete.
type PNG struct{}

// NewPNG returns an initialized PNG decoder.
func NewPNG() *PNG { return &PNG{} }

func (p *PNG) Decode(dc core.DecodingContext) (*core.Image, error) {
	img, err := png.Decode(bytes.NewReader(dc.Data))
	if err != nil {
		if !dc.IsFinal {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	return toImage(img, core.FormatPNG), nil
}
