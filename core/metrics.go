package core

import "time"

// Metrics is a passive, timestamped record for a single Task. It carries
// no behavior; presentation is entirely external (a Hook / MetricsSink).
type Metrics struct {
	TaskID    string
	SessionID string

	IsMemoryCacheHit               bool
	WasSubscribedToExistingSession bool

	TimeTaskCreated         time.Time
	TimeDataLoadingStarted  time.Time
	TimeDataLoadingFinished time.Time
	TimeCompleted           time.Time
	TimeCancelled           time.Time
}
