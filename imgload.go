// Package imgload wires together the orchestrator and its default
// adapters into a single entry point.
package imgload

import (
	"net/http"

	"github.com/kestrelimg/imgload/adapters/cache"
	"github.com/kestrelimg/imgload/adapters/decoder"
	"github.com/kestrelimg/imgload/adapters/httploader"
	"github.com/kestrelimg/imgload/adapters/processor"
	"github.com/kestrelimg/imgload/config"
	"github.com/kestrelimg/imgload/core"
	"github.com/kestrelimg/imgload/hooks"
)

// Re-export the Format constants for convenience.
const (
	JPEG    = core.FormatJPEG
	PNG     = core.FormatPNG
	WebP    = core.FormatWebP
	Unknown = core.FormatUnknown
)

// Re-export Priority constants for convenience.
const (
	PriorityVeryLow  = core.PriorityVeryLow
	PriorityLow      = core.PriorityLow
	PriorityNormal   = core.PriorityNormal
	PriorityHigh     = core.PriorityHigh
	PriorityVeryHigh = core.PriorityVeryHigh
)

type (
	Request   = core.Request
	Callbacks = core.Callbacks
	Image     = core.Image
	Result    = core.Result
	Handle    = core.Handle
	Metrics   = core.Metrics
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Loader is the primary entry point: it owns the orchestrator and the
// default decoder registry, and exposes LoadImage/Close to callers.
type Loader struct {
	orch *core.Orchestrator
	reg  *decoder.Registry
}

// Options configures New beyond config.Config: the HTTP client the
// default httploader.Loader should use, an optional cache capacity, and
// optional observability hooks.
type Options struct {
	Config Config

	// HTTPClient is used by the default DataLoader. When nil, the loader
	// builds its own client with an HTTP/2-configured transport (see
	// httploader.New).
	HTTPClient *http.Client

	// DataLoader overrides the default net/http-backed loader entirely.
	DataLoader core.DataLoader

	// CacheCapacity bounds the default in-process LRU ImageCache. 0
	// disables the cache (requests with CacheRead/CacheWrite have no
	// effect).
	CacheCapacity int

	// Logger, Hooks, and MetricsSink are forwarded to core.Deps.
	Logger      core.Logger
	Hooks       []core.Hook
	MetricsSink core.MetricsSink
}

// Config is re-exported so callers need only import this package.
type Config = config.Config

// New constructs a fully wired Loader: default JPEG/PNG/WebP decoders,
// an HTTP DataLoader (unless overridden), and an optional in-process
// LRU cache.
func New(opts Options) (*Loader, error) {
	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := decoder.NewRegistry()

	dataLoader := opts.DataLoader
	if dataLoader == nil {
		dataLoader = httploader.New(opts.HTTPClient)
	}

	var imgCache core.ImageCache
	if opts.CacheCapacity > 0 {
		imgCache = cache.NewLRU(opts.CacheCapacity)
	}

	logger := opts.Logger
	if logger == nil {
		logger = core.NopLogger{}
	}
	allHooks := append([]core.Hook{hooks.NewLoggingHook(logger)}, opts.Hooks...)

	orch := core.New(cfg, core.Deps{
		DataLoader:      dataLoader,
		DecoderRegistry: reg,
		ImageCache:      imgCache,
		Logger:          logger,
		Hooks:           allHooks,
		MetricsSink:     opts.MetricsSink,
	})

	return &Loader{orch: orch, reg: reg}, nil
}

// RegisterDecoder registers a custom Decoder for a sniffed format name
// ("jpeg", "png", "webp", or a caller-defined one), e.g. to swap in the
// adapters/vips backend.
func (l *Loader) RegisterDecoder(format string, d core.Decoder) {
	l.reg.Register(format, d)
}

// LoadImage starts (or joins) a load for req and returns a Handle
// immediately. cb's callbacks fire on an internal delivery goroutine.
func (l *Loader) LoadImage(req Request, cb Callbacks) *Handle {
	return l.orch.LoadImage(req, cb)
}

// Close stops the orchestrator's serial, delivery and decoding goroutines
// and its rate limiter. In-flight loads are abandoned; no further
// callbacks fire. The fetch and processing queues' dispatch goroutines
// are not stopped.
func (l *Loader) Close() { l.orch.Close() }

// ── Processor constructors ───────────────────────────────────────────────

// Resize returns a Processor that scales to width x height, preserving
// aspect ratio when one axis is 0.
func Resize(width, height int) core.Processor { return &processor.Resize{Width: width, Height: height} }

// Crop returns a Processor that extracts a width x height rectangle at
// (x, y).
func Crop(x, y, width, height int) core.Processor {
	return &processor.Crop{X: x, Y: y, Width: width, Height: height}
}

// Thumbnail returns a Processor that produces a square size x size
// thumbnail.
func Thumbnail(size int) core.Processor { return &processor.Thumbnail{Size: size} }

// Grayscale returns a Processor that converts the image to grayscale.
func Grayscale() core.Processor { return &processor.Grayscale{} }
