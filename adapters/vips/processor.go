// Package vips adapts libvips, via govips, into the core.Decoder and
// core.Processor interfaces for callers that need libvips's throughput
// (shrink-on-load, SIMD-accelerated resampling) instead of the stdlib
// codecs in adapters/decoder and adapters/processor.
//
// Image.Pixels stays a plain image.Image so the rest of the module never
// touches a CGO pointer; Backend and the Processors below round-trip
// through an encoded buffer at the libvips boundary instead of keeping a
// live *vips.ImageRef on core.Image.
package vips

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a libvips-backed core.Decoder. Exactly one Backend should
// exist per process; construct it during startup and call Shutdown when
// the process exits.
type Backend struct {
	cfg BackendConfig
}

// NewBackend starts libvips and returns a ready Backend.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Decode loads dc.Data with libvips and re-exports it as a standard PNG so
// the resulting core.Image carries a plain image.Image. Only final buffers
// are attempted: libvips, like image/jpeg and image/png, needs a
// structurally complete stream.
func (b *Backend) Decode(dc core.DecodingContext) (*core.Image, error) {
	if !dc.IsFinal {
		return nil, nil
	}
	ref, err := govips.NewImageFromBuffer(dc.Data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	format := vipsFormatToCore(ref.Format())
	img, err := exportToImage(ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.export", err)
	}
	return &core.Image{
		Pixels: img,
		Format: format,
		Width:  ref.Width(),
		Height: ref.Height(),
	}, nil
}

// ResizeProcessor resizes using vips_resize() with the Lanczos3 kernel,
// round-tripping the decoded image through libvips for the resample step.
type ResizeProcessor struct {
	Width, Height int
}

func (p *ResizeProcessor) CacheKey() string {
	return fmt.Sprintf("vips.resize:%dx%d", p.Width, p.Height)
}

func (p *ResizeProcessor) Process(pc core.ProcessingContext) (*core.Image, error) {
	if pc.Image == nil || pc.Image.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "vips.resize", fmt.Errorf("nil source image"))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, pc.Image.Pixels); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.resize.encode", err)
	}
	ref, err := govips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.resize.load", err)
	}
	defer ref.Close()

	srcW, srcH := ref.Width(), ref.Height()
	dstW, dstH := scaleDimensions(srcW, srcH, p.Width, p.Height)
	if dstW != srcW || dstH != srcH {
		scale := float64(dstW) / float64(srcW)
		if err := ref.Resize(scale, govips.KernelLanczos3); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.resize", err)
		}
	}

	img, err := exportToImage(ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.resize.export", err)
	}
	return &core.Image{
		Pixels: img,
		Format: pc.Image.Format,
		Width:  ref.Width(),
		Height: ref.Height(),
	}, nil
}

// ThumbnailProcessor generates a Size x Size centre-cropped thumbnail via
// vips_thumbnail(), fed with a PNG re-encoding of the already decoded
// source image.
type ThumbnailProcessor struct {
	Size int
}

func (p *ThumbnailProcessor) CacheKey() string {
	return fmt.Sprintf("vips.thumbnail:%d", p.Size)
}

func (p *ThumbnailProcessor) Process(pc core.ProcessingContext) (*core.Image, error) {
	if pc.Image == nil || pc.Image.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "vips.thumbnail", fmt.Errorf("nil source image"))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, pc.Image.Pixels); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.thumbnail.encode", err)
	}
	ref, err := govips.NewThumbnailFromBuffer(buf.Bytes(), p.Size, p.Size, govips.InterestingCentre)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.thumbnail", err)
	}
	defer ref.Close()

	img, err := exportToImage(ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcessing, "vips.thumbnail.export", err)
	}
	return &core.Image{
		Pixels: img,
		Format: pc.Image.Format,
		Width:  ref.Width(),
		Height: ref.Height(),
	}, nil
}

func exportToImage(ref *govips.ImageRef) (image.Image, error) {
	ep := govips.NewPngExportParams()
	out, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(out))
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func scaleDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	if targetW == 0 && targetH == 0 {
		return srcW, srcH
	}
	if targetW == 0 {
		ratio := float64(targetH) / float64(srcH)
		return int(float64(srcW) * ratio), targetH
	}
	if targetH == 0 {
		ratio := float64(targetW) / float64(srcW)
		return targetW, int(float64(srcH) * ratio)
	}
	return targetW, targetH
}

var _ core.Decoder = (*Backend)(nil)
var _ core.Processor = (*ResizeProcessor)(nil)
var _ core.Processor = (*ThumbnailProcessor)(nil)
