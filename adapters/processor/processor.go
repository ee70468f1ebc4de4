// Package processor provides stdlib/x-image-backed core.Processor
// implementations (resize, crop, thumbnail, grayscale), each a single
// Process(ProcessingContext) call the orchestrator can make for both
// partial and final images.
package processor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/kestrelimg/imgload/core"
	apperrors "github.com/kestrelimg/imgload/errors"
	"github.com/kestrelimg/imgload/utils"
	xdraw "golang.org/x/image/draw"
)

// Resize scales the image to Width x Height, preserving aspect ratio when
// one axis is 0. Safe to run against partial (IsFinal = false) images; a
// progressive decode that hasn't stabilized its bounds yet just produces
// intermediate resized frames.
type Resize struct {
	Width, Height int
	// Sampler controls quality vs. speed; defaults to xdraw.BiLinear.
	Sampler xdraw.Interpolator
}

func (r *Resize) CacheKey() string {
	return fmt.Sprintf("resize:%dx%d", r.Width, r.Height)
}

func (r *Resize) Process(pc core.ProcessingContext) (*core.Image, error) {
	src := pc.Image
	if src == nil || src.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "resize", fmt.Errorf("nil source image"))
	}
	srcB := src.Pixels.Bounds()
	dstW, dstH := utils.ScaleDimensions(srcB.Dx(), srcB.Dy(), r.Width, r.Height)
	if dstW == srcB.Dx() && dstH == srcB.Dy() {
		return src, nil
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryProcessing, "resize", fmt.Errorf("invalid target dimensions %dx%d", dstW, dstH))
	}

	sampler := r.Sampler
	if sampler == nil {
		sampler = xdraw.BiLinear
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	sampler.Scale(dst, dst.Bounds(), src.Pixels, srcB, xdraw.Over, nil)

	return &core.Image{Pixels: dst, Format: src.Format, Width: dstW, Height: dstH}, nil
}

// Crop extracts a Width x Height rectangle starting at (X, Y).
type Crop struct {
	X, Y, Width, Height int
}

func (c *Crop) CacheKey() string {
	return fmt.Sprintf("crop:%d,%d,%dx%d", c.X, c.Y, c.Width, c.Height)
}

func (c *Crop) Process(pc core.ProcessingContext) (*core.Image, error) {
	src := pc.Image
	if src == nil || src.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "crop", fmt.Errorf("nil source image"))
	}
	rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
	if !rect.In(src.Pixels.Bounds()) {
		return nil, apperrors.New(apperrors.CategoryProcessing, "crop",
			fmt.Errorf("crop rect %v exceeds image bounds %v", rect, src.Pixels.Bounds()))
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(dst, dst.Bounds(), src.Pixels, rect.Min, draw.Src)
	return &core.Image{Pixels: dst, Format: src.Format, Width: c.Width, Height: c.Height}, nil
}

// Thumbnail resizes so the smallest dimension equals Size, then
// centre-crops to a Size x Size square, composed from Resize and Crop.
type Thumbnail struct {
	Size int
}

func (t *Thumbnail) CacheKey() string {
	return fmt.Sprintf("thumbnail:%d", t.Size)
}

func (t *Thumbnail) Process(pc core.ProcessingContext) (*core.Image, error) {
	src := pc.Image
	if src == nil || src.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "thumbnail", fmt.Errorf("nil source image"))
	}
	b := src.Pixels.Bounds()
	w, h := b.Dx(), b.Dy()
	var rw, rh int
	if w < h {
		rw, rh = t.Size, 0
	} else {
		rw, rh = 0, t.Size
	}

	resized, err := (&Resize{Width: rw, Height: rh}).Process(core.ProcessingContext{Image: src, Request: pc.Request, IsFinal: pc.IsFinal})
	if err != nil {
		return nil, err
	}

	rb := resized.Pixels.Bounds()
	ox := (rb.Dx() - t.Size) / 2
	oy := (rb.Dy() - t.Size) / 2
	return (&Crop{X: ox, Y: oy, Width: t.Size, Height: t.Size}).Process(core.ProcessingContext{Image: resized, Request: pc.Request, IsFinal: pc.IsFinal})
}

// Grayscale converts the image to grayscale.
type Grayscale struct{}

func (g *Grayscale) CacheKey() string { return "grayscale" }

func (g *Grayscale) Process(pc core.ProcessingContext) (*core.Image, error) {
	src := pc.Image
	if src == nil || src.Pixels == nil {
		return nil, apperrors.New(apperrors.CategoryProcessing, "grayscale", fmt.Errorf("nil source image"))
	}
	bounds := src.Pixels.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.Pixels.At(x, y)))
		}
	}
	return &core.Image{Pixels: dst, Format: src.Format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

var _ core.Processor = (*Resize)(nil)
var _ core.Processor = (*Crop)(nil)
var _ core.Processor = (*Thumbnail)(nil)
var _ core.Processor = (*Grayscale)(nil)
