package decoder

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
	"golang.org/x/text/encoding/charmap"
)

const (
	markerCOM = 0xFE
	markerSOS = 0xDA
	markerFF  = 0xFF
)

// JPEG decodes JPEG images using the standard library. Progressive
// (partial) decode is best-effort: image/jpeg.Decode only succeeds once
// the buffer holds a structurally complete stream, so most partial
// attempts simply fail and are dropped by the caller until the final,
// complete buffer arrives.
type JPEG struct{}

// NewJPEG returns an initialized JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) Decode(dc core.DecodingContext) (*core.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(dc.Data))
	if err != nil {
		if !dc.IsFinal {
			return nil, nil // not enough data yet; not an error worth surfacing
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	out := toImage(img, core.FormatJPEG)
	out.Comment = extractComment(dc.Data)
	return out, nil
}

func toImage(img image.Image, format core.Format) *core.Image {
	b := img.Bounds()
	return &core.Image{
		Pixels: img,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}
}

// extractComment scans a JPEG byte stream for a COM (0xFFFE) marker
// segment and transcodes its payload from ISO-8859-1, the encoding most
// legacy JPEG encoders use for comment text, to UTF-8. Returns "" if no
// COM segment is found before the first scan (SOS) marker.
func extractComment(data []byte) string {
	i := 2 // skip SOI (0xFFD8)
	for i+4 <= len(data) {
		if data[i] != markerFF {
			i++
			continue
		}
		marker := data[i+1]
		if marker == markerSOS {
			return ""
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if segLen < 2 || i+2+segLen > len(data) {
			return ""
		}
		if marker == markerCOM {
			payload := data[i+4 : i+2+segLen]
			s, err := charmap.ISO8859_1.NewDecoder().String(string(payload))
			if err != nil {
				return string(payload)
			}
			return s
		}
		i += 2 + segLen
	}
	return ""
}
