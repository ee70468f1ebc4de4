package core

import "context"

// FetchHandle is returned by DataLoader.Load; Cancel aborts the in-flight
// fetch. Safe to call from any context, idempotent.
type FetchHandle interface {
	Cancel()
}

// Response carries the subset of transport-level response data the
// orchestrator needs for decoder selection and progressive-decode gating.
// Stable after the first OnChunk call.
type Response struct {
	ContentType           string
	ExpectedContentLength int64 // -1 when unknown
}

// DataLoader fetches the raw bytes for a Request's URL. Implementations
// live in adapters/httploader. onChunk may be invoked zero or more times
// with monotonically accumulating byte arrivals; onComplete fires exactly
// once. The core never retries a failed load itself.
type DataLoader interface {
	Load(
		ctx context.Context,
		url string,
		onChunk func(data []byte, resp Response),
		onComplete func(err error),
	) FetchHandle
}

// DecodingContext is the input to decoder selection and to Decoder.Decode.
type DecodingContext struct {
	Request  Request
	Response Response
	Data     []byte // bytes accumulated so far
	IsFinal  bool
}

// Decoder turns accumulated bytes into a decoded Image. Partial (IsFinal =
// false) invocations only occur when progressive decoding is enabled; a
// Decoder that cannot produce a partial image should return (nil, nil).
type Decoder interface {
	Decode(dc DecodingContext) (*Image, error)
}

// DecoderRegistry selects a Decoder for a given decoding context. The
// default implementation sniffs the format from the first chunk's magic
// bytes; see adapters/decoder.
type DecoderRegistry interface {
	Select(dc DecodingContext) (Decoder, error)
}

// ProcessingContext is the input to processor selection and to
// Processor.Process.
type ProcessingContext struct {
	Image      *Image
	Request    Request
	IsFinal    bool
	ScanNumber *int
}

// Processor transforms a decoded Image (resize, crop, format conversion,
// ...). Two Requests sharing the same CacheKey() dedup onto one Session, so
// CacheKey must be stable for equivalent processing configurations.
// Implementations must be safe to invoke concurrently; no shared mutable
// state across instances.
type Processor interface {
	Process(pc ProcessingContext) (*Image, error)
	CacheKey() string
}

// ImageCache is the external, thread-safe memory cache. The orchestrator
// never stores failures or partial results.
type ImageCache interface {
	Get(key CacheKey) (*Image, bool)
	Set(key CacheKey, img *Image)
}

// Logger is the narrow structured-logging interface the orchestrator and
// its adapters depend on; see hooks.SlogLogger for the log/slog-backed
// implementation.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// NopLogger discards everything. Used when Deps.Logger is left nil.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// Hook observes Session and Task lifecycle transitions. Implementations
// must not block; they run inline on the orchestrator's serial context.
type Hook interface {
	BeforeSession(sessionID string, req Request)
	AfterSession(sessionID string, result Result)
	BeforeTask(taskID, sessionID string)
	AfterTask(taskID string, m Metrics)
}

// MetricsSink receives a passive, timestamped record once a Task reaches a
// terminal state. Its presentation is external to the core.
type MetricsSink interface {
	Record(m Metrics)
}

// ProcessorSelector resolves the Processor to run for a given processing
// context. The default selector returns pc.Request.Processor.
type ProcessorSelector func(pc ProcessingContext) Processor

// DefaultProcessorSelector returns the processor already pinned on the
// request, or nil when none was set.
func DefaultProcessorSelector(pc ProcessingContext) Processor {
	return pc.Request.Processor
}
