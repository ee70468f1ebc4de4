// Package core implements the pipeline orchestration layer: the state
// machine and concurrency fabric that binds Tasks to shared Sessions and
// sequences the fetch -> decode -> process -> deliver phases.
package core

import (
	"fmt"
	"image"
)

// Priority is an ordered request priority. Higher values win when a
// Session's derived priority is recomputed across its subscribers.
type Priority int

const (
	PriorityVeryLow Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very_low"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// maxPriority returns the greater of a and b.
func maxPriority(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}

// Format identifies a decoded image's source codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// Request is an immutable per-submission value describing what to load and
// how. Two Requests that produce the same LoadKey share a Session.
type Request struct {
	URL string

	// Processor is resolved by the orchestrator's ProcessorSelector when
	// nil; set it to pin a specific processor and fold its identity into
	// the LoadKey so equivalent requests dedup onto one Session.
	Processor Processor

	Priority Priority

	CacheRead  bool
	CacheWrite bool
}

// LoadKey is the deduplication / session-table key: (resource identifier,
// processor cache identity).
type LoadKey string

// CacheKey is the memory-cache lookup key. Identical in structure to
// LoadKey in the default configuration.
type CacheKey string

// LoadKey derives this Request's deduplication key.
func (r Request) LoadKey() LoadKey {
	return LoadKey(r.URL + "#" + processorCacheKey(r.Processor))
}

// CacheKey derives this Request's memory-cache key.
func (r Request) CacheKey() CacheKey {
	return CacheKey(r.LoadKey())
}

func processorCacheKey(p Processor) string {
	if p == nil {
		return ""
	}
	return p.CacheKey()
}

// Image is the decoded, processed, in-memory result handed to completion and
// progressive-image callbacks. Pixels is image.Image (not a CGO pointer) so
// the core itself stays CGO-free; a libvips-backed Decoder/Processor may
// still wrap its own representation behind this interface (see
// adapters/vips).
type Image struct {
	Pixels image.Image
	Format Format
	Width  int
	Height int

	// ScanNumber is populated by decoders that can report progressive JPEG
	// scan progress. Nil when the decoder does not track it; no invariant
	// depends on its presence.
	ScanNumber *int

	// Comment holds a JPEG COM segment's text, transcoded to UTF-8 on the
	// assumption that the segment is ISO-8859-1; no encoding detection is
	// done. Empty when absent or for formats that carry no comment segment.
	Comment string
}

func (img *Image) String() string {
	if img == nil {
		return "<nil image>"
	}
	return fmt.Sprintf("%s %dx%d", img.Format, img.Width, img.Height)
}

// Result is the outcome fanned out to a Task's completion callback.
type Result struct {
	Image *Image
	Err   error
}

// Callbacks bundles the per-Task sinks a caller may supply to LoadImage.
// All three are invoked on the delivery context (core.Orchestrator never
// calls them directly); Completion is invoked at most once and is always
// the last callback a Task receives.
type Callbacks struct {
	// OnProgress reports accumulated vs. expected byte counts. total is 0
	// when the expected content length is unknown.
	OnProgress func(completed, total int64)

	// OnPartialImage delivers a best-effort progressive decode. May be
	// skipped under back-pressure; monotonic in scan number when fired.
	OnPartialImage func(img *Image)

	// OnComplete is the terminal callback. Exactly 0 (cancelled) or 1
	// (delivered) invocations per Task.
	OnComplete func(Result)
}
