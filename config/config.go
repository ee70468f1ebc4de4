// Package config holds the orchestrator's configuration surface. All
// fields have safe defaults so callers can start from Default() and
// override only what they need.
package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration for core.Orchestrator.
type Config struct {
	// FetchConcurrency caps concurrent DataLoader.Load calls. Default 6.
	FetchConcurrency int

	// ProcessingConcurrency caps concurrent Processor.Process calls
	// (partial + final combined). Default 2.
	ProcessingConcurrency int

	// IsDeduplicationEnabled: when false, every Task gets its own Session
	// even if LoadKeys collide (sessions are still keyed in the table, by
	// a fresh unique token).
	IsDeduplicationEnabled bool

	// IsRateLimiterEnabled gates fetch-launch through the token-bucket
	// rate limiter.
	IsRateLimiterEnabled bool

	// IsProgressiveDecodingEnabled allows partial decodes while bytes are
	// still arriving.
	IsProgressiveDecodingEnabled bool

	// RateLimiterCapacity / RateLimiterRefillPerSecond size the token
	// bucket. Defaults: 30 capacity, 80 tokens/sec.
	RateLimiterCapacity       int
	RateLimiterRefillPerSecond float64

	// DeliveryQueueSize / DecodingQueueSize / OrchestratorQueueSize size
	// the buffered channels backing the three serial contexts. 0 falls
	// back to a sane default; these only bound memory under burst, they
	// never change correctness.
	OrchestratorQueueSize int
	DeliveryQueueSize     int
	DecodingQueueSize     int

	// FetchTimeout is not read by core.Orchestrator: DataLoader.Load is
	// called with a context that has no deadline, so any fetch timeout is
	// left to the DataLoader's own policy.
	FetchTimeout time.Duration

	LogLevel string // "debug", "info", "warn", "error"
}

// Default returns production defaults for every field above.
func Default() Config {
	return Config{
		FetchConcurrency:            6,
		ProcessingConcurrency:       2,
		IsDeduplicationEnabled:      true,
		IsRateLimiterEnabled:        true,
		IsProgressiveDecodingEnabled: false,
		RateLimiterCapacity:         30,
		RateLimiterRefillPerSecond:  80,
		OrchestratorQueueSize:       256,
		DeliveryQueueSize:           256,
		DecodingQueueSize:           64,
		LogLevel:                   "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.FetchConcurrency <= 0 {
		return errors.New("config: FetchConcurrency must be positive")
	}
	if c.ProcessingConcurrency <= 0 {
		return errors.New("config: ProcessingConcurrency must be positive")
	}
	if c.IsRateLimiterEnabled && c.RateLimiterCapacity <= 0 {
		return errors.New("config: RateLimiterCapacity must be positive when the rate limiter is enabled")
	}
	if c.IsRateLimiterEnabled && c.RateLimiterRefillPerSecond <= 0 {
		return errors.New("config: RateLimiterRefillPerSecond must be positive when the rate limiter is enabled")
	}
	return nil
}
