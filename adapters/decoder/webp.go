package decoder

import (
	"bytes"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
	"golang.org/x/image/webp"
)

// WebP decodes WebP images using golang.org/x/image/webp, which handles
// still lossy and lossless images but not animated WebP; a final decode of
// an unsupported stream returns an error. There is no automatic fallback:
// to use the vips adapter instead, register it for "webp" on the Registry.
type WebP struct{}

// NewWebP returns an initialized WebP decoder.
func NewWebP() *WebP { return &WebP{} }

func (w *WebP) Decode(dc core.DecodingContext) (*core.Image, error) {
	img, err := webp.Decode(bytes.NewReader(dc.Data))
	if err != nil {
		if !dc.IsFinal {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	return toImage(img, core.FormatWebP), nil
}
