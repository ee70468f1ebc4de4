// Package decoder provides format-specific core.Decoder implementations
// and the default core.DecoderRegistry, one small file per codec.
package decoder

import (
	"fmt"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
	"github.com/kestrelimg/imgload/utils"
)

// Registry sniffs the format from the first chunk's magic bytes and
// dispatches to a registered core.Decoder. Thread-safe is not required —
// Select is only ever called from the orchestrator's serial context.
type Registry struct {
	decoders map[string]core.Decoder
}

// NewRegistry returns a Registry with JPEG, PNG, and WebP pre-registered.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]core.Decoder)}
	r.Register("jpeg", NewJPEG())
	r.Register("png", NewPNG())
	r.Register("webp", NewWebP())
	return r
}

// Register binds a decoder to a sniffed format name ("jpeg", "png", "webp").
func (r *Registry) Register(format string, d core.Decoder) {
	r.decoders[format] = d
}

func (r *Registry) Select(dc core.DecodingContext) (core.Decoder, error) {
	format := utils.DetectFormat(dc.Data)
	if format == "unknown" {
		return nil, nil // not enough bytes yet / unrecognized; caller waits for more data
	}
	d, ok := r.decoders[format]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "registry.select", fmt.Errorf("no decoder registered for format %q", format))
	}
	return d, nil
}
