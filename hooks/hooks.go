// Package hooks provides production-ready core.Logger, core.Hook, and
// core.MetricsSink implementations.
package hooks

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kestrelimg/imgload/core"
)

// ── Structured logger adapter ─────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...any) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...any)  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...any)  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...any) { s.log.Error(msg, fields...) }

// ── Logging hook ──────────────────────────────────────────────────────────

// LoggingHook logs Session and Task lifecycle transitions.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeSession(sessionID string, req core.Request) {
	h.logger.Debug("session.start", "session", sessionID, "url", req.URL, "priority", req.Priority.String())
}

func (h *LoggingHook) AfterSession(sessionID string, result core.Result) {
	if result.Err != nil {
		h.logger.Error("session.done", "session", sessionID, "error", result.Err.Error())
		return
	}
	h.logger.Debug("session.done", "session", sessionID, "image", result.Image.String())
}

func (h *LoggingHook) BeforeTask(taskID, sessionID string) {
	h.logger.Debug("task.start", "task", taskID, "session", sessionID)
}

func (h *LoggingHook) AfterTask(taskID string, m core.Metrics) {
	h.logger.Debug("task.done", "task", taskID,
		"cache_hit", m.IsMemoryCacheHit,
		"deduped", m.WasSubscribedToExistingSession,
	)
}

// ── In-memory metrics sink ─────────────────────────────────────────────────

// InMemoryMetrics accumulates per-task records; safe for concurrent use.
type InMemoryMetrics struct {
	mu      sync.Mutex
	records []core.Metrics

	cacheHits   int64
	deduped     int64
	cancelled   int64
	delivered   int64
}

// NewInMemoryMetrics creates an empty sink.
func NewInMemoryMetrics() *InMemoryMetrics { return &InMemoryMetrics{} }

func (m *InMemoryMetrics) Record(rec core.Metrics) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()

	if rec.IsMemoryCacheHit {
		atomic.AddInt64(&m.cacheHits, 1)
	}
	if rec.WasSubscribedToExistingSession {
		atomic.AddInt64(&m.deduped, 1)
	}
	if !rec.TimeCancelled.IsZero() {
		atomic.AddInt64(&m.cancelled, 1)
	}
	if !rec.TimeCompleted.IsZero() {
		atomic.AddInt64(&m.delivered, 1)
	}
}

// Snapshot returns a copy of every record observed so far.
func (m *InMemoryMetrics) Snapshot() []core.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Metrics, len(m.records))
	copy(out, m.records)
	return out
}

// Counts returns lightweight aggregate counters.
func (m *InMemoryMetrics) Counts() (cacheHits, deduped, cancelled, delivered int64) {
	return atomic.LoadInt64(&m.cacheHits),
		atomic.LoadInt64(&m.deduped),
		atomic.LoadInt64(&m.cancelled),
		atomic.LoadInt64(&m.delivered)
}
