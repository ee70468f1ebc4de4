package core

import (
	"math"
	"time"
)

// RateLimiter is a deterministic token-bucket gate. Execute either runs
// work immediately (bucket has capacity) or defers it on an internal FIFO
// until the bucket refills. Deferred work whose token has been cancelled
// is dropped without invocation. All bucket accounting happens on the
// limiter's own private goroutine, so bucket accounting needs no locking;
// the actual work callback is handed to post so it still lands on the
// caller's intended serial context (the orchestrator's).
type RateLimiter struct {
	capacity float64
	refill   float64 // tokens per second
	post     func(func())

	cmdCh chan rlCommand
	stop  chan struct{}
}

type rlCommand struct {
	token *CancelToken
	work  func()
}

// DefaultBucketCapacity and DefaultRefillPerSecond are used when Config
// leaves the rate limiter's capacity/refill fields unset.
const (
	DefaultBucketCapacity   = 30
	DefaultRefillPerSecond  = 80.0
)

// NewRateLimiter starts a limiter with the given bucket capacity and
// tokens/second refill rate. post is called (possibly from the limiter's
// internal goroutine) to hand ready work back to the caller's context; it
// must not block.
func NewRateLimiter(capacity int, refillPerSecond float64, post func(func())) *RateLimiter {
	if capacity <= 0 {
		capacity = DefaultBucketCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = DefaultRefillPerSecond
	}
	rl := &RateLimiter{
		capacity: float64(capacity),
		refill:   refillPerSecond,
		post:     post,
		cmdCh:    make(chan rlCommand, 256),
		stop:     make(chan struct{}),
	}
	go rl.loop()
	return rl
}

// Execute schedules work under the token-bucket discipline, gated on token.
func (rl *RateLimiter) Execute(token *CancelToken, work func()) {
	select {
	case rl.cmdCh <- rlCommand{token: token, work: work}:
	case <-rl.stop:
	}
}

// Close stops the limiter's internal goroutine. Pending deferred work is
// dropped without invocation.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

func (rl *RateLimiter) loop() {
	tokens := rl.capacity
	last := time.Now()
	var pending []rlCommand

	refill := func() {
		now := time.Now()
		elapsed := now.Sub(last).Seconds()
		tokens = math.Min(rl.capacity, tokens+elapsed*rl.refill)
		last = now
	}

	retryDelay := time.Duration(float64(time.Second) / rl.refill)
	timer := time.NewTimer(retryDelay)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	drainReady := func() {
		refill()
		i := 0
		for i < len(pending) {
			cmd := pending[i]
			if cmd.token.IsCancelling() {
				i++
				continue
			}
			if tokens < 1 {
				break
			}
			tokens--
			rl.post(cmd.work)
			i++
		}
		pending = pending[i:]
		if len(pending) > 0 && !timerArmed {
			timer.Reset(retryDelay)
			timerArmed = true
		}
	}

	for {
		select {
		case <-rl.stop:
			timer.Stop()
			return
		case cmd := <-rl.cmdCh:
			if cmd.token.IsCancelling() {
				continue
			}
			refill()
			if len(pending) == 0 && tokens >= 1 {
				tokens--
				rl.post(cmd.work)
				continue
			}
			pending = append(pending, cmd)
			if !timerArmed {
				timer.Reset(retryDelay)
				timerArmed = true
			}
		case <-timer.C:
			timerArmed = false
			drainReady()
		}
	}
}
