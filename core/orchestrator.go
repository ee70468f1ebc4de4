package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelimg/imgload/config"
	apperrors "github.com/kestrelimg/imgload/errors"
)

// Orchestrator is the state machine and concurrency fabric that binds
// Tasks to shared Sessions and sequences fetch -> decode -> process ->
// deliver. It is the system's linearization point: every Session-table and
// Session-field mutation happens on its single serial context.
type Orchestrator struct {
	cfg config.Config

	dataLoader        DataLoader
	decoderRegistry   DecoderRegistry
	imageCache        ImageCache
	processorSelector ProcessorSelector

	logger      Logger
	hooks       []Hook
	metricsSink MetricsSink

	fetchQueue      *OpQueue
	processingQueue *OpQueue
	rateLimiter     *RateLimiter

	serialCh   chan func()
	deliveryCh chan func()
	decodeCh   chan func()
	stopCh     chan struct{}

	// Serial-context-only state. sessions is keyed by LoadKey (or a fresh
	// uuid when deduplication is disabled); sessionsByID mirrors it keyed
	// by Session.id so cross-context hand-offs (which only carry an id)
	// resolve in O(1) and can detect staleness.
	sessions     map[string]*session
	sessionsByID map[string]*session
	tasks        map[string]*task
}

// Deps bundles the external collaborators the Orchestrator depends on.
type Deps struct {
	DataLoader        DataLoader
	DecoderRegistry   DecoderRegistry
	ImageCache        ImageCache // optional
	ProcessorSelector ProcessorSelector
	Logger            Logger      // optional, defaults to NopLogger
	Hooks             []Hook      // optional
	MetricsSink       MetricsSink // optional
}

// New constructs and starts an Orchestrator. dataLoader and decoderRegistry
// are required; everything else in Deps is optional.
func New(cfg config.Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = NopLogger{}
	}
	if deps.ProcessorSelector == nil {
		deps.ProcessorSelector = DefaultProcessorSelector
	}
	if cfg.OrchestratorQueueSize <= 0 {
		cfg.OrchestratorQueueSize = 256
	}
	if cfg.DeliveryQueueSize <= 0 {
		cfg.DeliveryQueueSize = 256
	}
	if cfg.DecodingQueueSize <= 0 {
		cfg.DecodingQueueSize = 64
	}

	o := &Orchestrator{
		cfg:               cfg,
		dataLoader:        deps.DataLoader,
		decoderRegistry:   deps.DecoderRegistry,
		imageCache:        deps.ImageCache,
		processorSelector: deps.ProcessorSelector,
		logger:            deps.Logger,
		hooks:             deps.Hooks,
		metricsSink:       deps.MetricsSink,

		fetchQueue:      NewOpQueue(cfg.FetchConcurrency),
		processingQueue: NewOpQueue(cfg.ProcessingConcurrency),

		serialCh:   make(chan func(), cfg.OrchestratorQueueSize),
		deliveryCh: make(chan func(), cfg.DeliveryQueueSize),
		decodeCh:   make(chan func(), cfg.DecodingQueueSize),
		stopCh:     make(chan struct{}),

		sessions:     make(map[string]*session),
		sessionsByID: make(map[string]*session),
		tasks:        make(map[string]*task),
	}
	if cfg.IsRateLimiterEnabled {
		o.rateLimiter = NewRateLimiter(cfg.RateLimiterCapacity, cfg.RateLimiterRefillPerSecond, o.postSerial)
	}

	go o.loop(o.serialCh)
	go o.loop(o.deliveryCh)
	go o.loop(o.decodeCh)
	return o
}

// Close stops the serial, delivery and decoding goroutines and the rate
// limiter. In-flight work is abandoned; no further callbacks fire. The
// fetch and processing queues' dispatch goroutines are not stopped.
func (o *Orchestrator) Close() {
	close(o.stopCh)
	if o.rateLimiter != nil {
		o.rateLimiter.Close()
	}
}

func (o *Orchestrator) loop(ch chan func()) {
	for {
		select {
		case <-o.stopCh:
			return
		case f := <-ch:
			f()
		}
	}
}

func (o *Orchestrator) postSerial(f func())   { o.post(o.serialCh, f) }
func (o *Orchestrator) postDelivery(f func()) { o.post(o.deliveryCh, f) }
func (o *Orchestrator) postDecode(f func())   { o.post(o.decodeCh, f) }

func (o *Orchestrator) post(ch chan func(), f func()) {
	select {
	case ch <- f:
	case <-o.stopCh:
	}
}

// LoadImage returns a Handle immediately; cb.OnComplete fires exactly once
// on the delivery context unless the Task is cancelled first.
func (o *Orchestrator) LoadImage(req Request, cb Callbacks) *Handle {
	id := uuid.NewString()
	t := &task{
		id:        id,
		request:   req,
		callbacks: cb,
		metrics:   Metrics{TaskID: id, TimeTaskCreated: time.Now()},
	}
	o.postSerial(func() { o.resolveSession(t) })
	return &Handle{id: id, orch: o}
}

func (o *Orchestrator) cancel(taskID string) {
	o.postSerial(func() { o.cancelTask(taskID) })
}

func (o *Orchestrator) setPriority(taskID string, p Priority) {
	o.postSerial(func() { o.setTaskPriority(taskID, p) })
}

// ── session resolution ───────────────────────────────────────────────────

func (o *Orchestrator) resolveSession(t *task) {
	if t.request.URL == "" {
		o.completeTask(t, Result{Err: apperrors.Wrap(apperrors.CategoryConfig, "resolve", apperrors.ErrEmptyRequest)})
		return
	}

	o.tasks[t.id] = t
	o.notifyBeforeTask(t)

	// 1. Fast pre-flight.
	if t.cancelled {
		delete(o.tasks, t.id)
		return
	}

	// 2. Cache probe.
	if t.request.CacheRead && o.imageCache != nil {
		if img, ok := o.imageCache.Get(t.request.CacheKey()); ok {
			t.metrics.IsMemoryCacheHit = true
			o.completeTask(t, Result{Image: img})
			return
		}
	}

	// 3. Session lookup.
	key := o.sessionKey(t.request)
	sess, exists := o.sessions[key]
	if !exists {
		sess = newSession(uuid.NewString(), LoadKey(key), t.request)
		o.sessions[key] = sess
		o.sessionsByID[sess.id] = sess
		o.notifyBeforeSession(sess)
		o.logger.Debug("session.created", "session", sess.id, "url", t.request.URL)
		o.startFetch(sess)
	} else {
		t.metrics.WasSubscribedToExistingSession = true
		o.logger.Debug("session.joined", "session", sess.id, "task", t.id)
	}

	// 4. Attach task.
	t.sessionID = sess.id
	sess.tasks[t.id] = t
	o.updateFetchPriority(sess)
}

func (o *Orchestrator) sessionKey(req Request) string {
	if o.cfg.IsDeduplicationEnabled {
		return string(req.LoadKey())
	}
	return uuid.NewString()
}

// ── fetch phase ──────────────────────────────────────────────────────────

func (o *Orchestrator) startFetch(sess *session) {
	sess.metrics.TimeDataLoadingStarted = time.Now() // approximation: submission time, not dequeue

	launch := func() { o.launchFetch(sess) }
	if o.rateLimiter != nil {
		o.rateLimiter.Execute(sess.token(), launch)
	} else {
		launch()
	}
}

func (o *Orchestrator) launchFetch(sess *session) {
	if !o.sessionLive(sess) {
		return // stale by the time the rate limiter released it
	}

	op := o.fetchQueue.Submit(sess.priority(), func(op *Op, finish func()) {
		onChunk := func(data []byte, resp Response) {
			o.postSerial(func() { o.handleChunk(sess.id, data, resp) })
		}
		onComplete := func(err error) {
			o.postSerial(func() {
				o.handleFetchComplete(sess.id, err)
				finish()
			})
		}
		handle := o.dataLoader.Load(context.Background(), sess.request.URL, onChunk, onComplete)

		sess.token().Register(func() {
			handle.Cancel()
			op.Cancel()
			finish()
		})

		o.postSerial(func() {
			if o.sessionLive(sess) {
				sess.fetchHandle = handle
			}
		})
	})

	sess.fetchOp = op
}

// sessionLive reports whether sess is still the table's live entry for its
// key (guards against a hand-off arriving after replacement/removal).
func (o *Orchestrator) sessionLive(sess *session) bool {
	cur, ok := o.sessions[string(sess.key)]
	return ok && cur == sess
}

// ── data-chunk handler (on serial context) ───────────────────────────────

func (o *Orchestrator) handleChunk(sessionID string, data []byte, resp Response) {
	sess := o.sessionsByID[sessionID]
	if sess == nil || sess.completed {
		return
	}

	sess.downloadedDataCount += int64(len(data))
	sess.expectedContentLen = resp.ExpectedContentLength

	total := sess.expectedContentLen
	if total < 0 {
		total = 0
	}
	o.broadcastProgress(sess, sess.downloadedDataCount, total)

	if sess.decoding == nil {
		dc := DecodingContext{Request: sess.request, Response: resp, Data: data}
		dec, err := o.decoderRegistry.Select(dc)
		if err != nil || dec == nil {
			return // no decoder yet selectable from this chunk; wait for more data or fetch completion
		}
		sess.decoding = &decodingState{decoder: dec, progressive: o.cfg.IsProgressiveDecodingEnabled}
	}

	decoding := sess.decoding
	attemptPartial := decoding.progressive && total > 0 && sess.downloadedDataCount < total

	o.postDecode(func() {
		decoding.buffer = append(decoding.buffer, data...)
		if !attemptPartial {
			return
		}
		img, err := decoding.decoder.Decode(DecodingContext{
			Request:  sess.request,
			Response: resp,
			Data:     decoding.buffer,
			IsFinal:  false,
		})
		if err != nil || img == nil {
			return // partial production errors are silently dropped
		}
		o.postSerial(func() { o.handlePartialImage(sessionID, img) })
	})
}

// ── partial-image handler (on serial context) ────────────────────────────

func (o *Orchestrator) handlePartialImage(sessionID string, img *Image) {
	sess := o.sessionsByID[sessionID]
	if sess == nil || sess.completed {
		return
	}
	if sess.partialOp != nil {
		return // back-pressure: drop, prefer a fresher future partial
	}

	proc := o.processorSelector(ProcessingContext{Image: img, Request: sess.request, IsFinal: false, ScanNumber: img.ScanNumber})
	if proc == nil {
		o.broadcastPartial(sess, img)
		return
	}

	op := o.processingQueue.Submit(sess.priority(), func(op *Op, finish func()) {
		out, err := proc.Process(ProcessingContext{Image: img, Request: sess.request, IsFinal: false, ScanNumber: img.ScanNumber})
		o.postSerial(func() {
			sess2 := o.sessionsByID[sessionID]
			if sess2 != nil && sess2.partialOp == op {
				sess2.partialOp = nil
			}
			finish()
			if err == nil && out != nil && sess2 != nil && !sess2.completed {
				o.broadcastPartial(sess2, out)
			}
		})
	})
	sess.partialOp = op
}

// ── fetch completion handler ──────────────────────────────────────────────

func (o *Orchestrator) handleFetchComplete(sessionID string, fetchErr error) {
	sess := o.sessionsByID[sessionID]
	if sess == nil || sess.completed {
		return
	}
	sess.metrics.TimeDataLoadingFinished = time.Now()

	if fetchErr != nil {
		o.completeSession(sess, Result{Err: apperrors.Wrap(apperrors.CategoryFetch, "fetch", fetchErr)})
		return
	}
	if sess.downloadedDataCount == 0 || sess.decoding == nil {
		o.completeSession(sess, Result{Err: apperrors.New(apperrors.CategoryDecode, "fetch.complete", apperrors.ErrDecodingFailed)})
		return
	}

	decoding := sess.decoding
	req := sess.request
	o.postDecode(func() {
		img, err := decoding.decoder.Decode(DecodingContext{Request: req, Data: decoding.buffer, IsFinal: true})
		o.postSerial(func() { o.handleFinalImage(sessionID, img, err) })
	})
}

// ── final image handler (on serial context) ──────────────────────────────

func (o *Orchestrator) handleFinalImage(sessionID string, img *Image, decodeErr error) {
	sess := o.sessionsByID[sessionID]
	if sess == nil || sess.completed {
		return
	}
	sess.decoding = nil

	if decodeErr != nil || img == nil {
		if decodeErr == nil {
			decodeErr = apperrors.ErrDecodingFailed
		}
		o.completeSession(sess, Result{Err: apperrors.Wrap(apperrors.CategoryDecode, "decode.final", decodeErr)})
		return
	}

	proc := o.processorSelector(ProcessingContext{Image: img, Request: sess.request, IsFinal: true})
	if proc == nil {
		o.completeSession(sess, Result{Image: img})
		return
	}

	req := sess.request
	op := o.processingQueue.Submit(sess.priority(), func(op *Op, finish func()) {
		out, err := proc.Process(ProcessingContext{Image: img, Request: req, IsFinal: true})
		o.postSerial(func() {
			finish()
			sess2 := o.sessionsByID[sessionID]
			if sess2 == nil || sess2.completed {
				return
			}
			if err != nil || out == nil {
				o.completeSession(sess2, Result{Err: apperrors.New(apperrors.CategoryProcessing, "process.final", apperrors.ErrProcessingFailed)})
				return
			}
			o.completeSession(sess2, Result{Image: out})
		})
	})
	sess.token().Register(func() { op.Cancel() })
}

// ── completion fan-out (on serial context) ───────────────────────────────

func (o *Orchestrator) completeSession(sess *session, result Result) {
	if sess.completed {
		return
	}
	if result.Err != nil {
		o.logger.Error("session.failed", "session", sess.id, "error", result.Err.Error())
	} else {
		o.logger.Debug("session.succeeded", "session", sess.id, "subscribers", len(sess.tasks))
	}
	if result.Err == nil && result.Image != nil && o.imageCache != nil && sess.request.CacheWrite {
		o.imageCache.Set(sess.request.CacheKey(), result.Image)
	}
	sess.completed = true
	if sess.partialOp != nil {
		sess.partialOp.Cancel()
		sess.partialOp = nil
	}

	subscribers := make([]*task, 0, len(sess.tasks))
	for _, t := range sess.tasks {
		subscribers = append(subscribers, t)
	}
	now := time.Now()
	for _, t := range subscribers {
		t.metrics.TimeCompleted = now
		o.finishTask(t, result)
	}

	o.notifyAfterSession(sess, result)
	o.removeSessionIfCurrent(sess)
}

func (o *Orchestrator) completeTask(t *task, result Result) {
	t.metrics.TimeCompleted = time.Now()
	o.finishTask(t, result)
}

// finishTask schedules the Task's completion on the delivery context and
// removes its bookkeeping entry. Completion is always the last callback a
// Task receives.
func (o *Orchestrator) finishTask(t *task, result Result) {
	delete(o.tasks, t.id)
	cb := t.callbacks.OnComplete
	m := t.metrics
	o.notifyAfterTask(t)
	if o.metricsSink != nil {
		o.metricsSink.Record(m)
	}
	if cb == nil {
		return
	}
	o.postDelivery(func() { cb(result) })
}

// removeSessionIfCurrent removes sess from both tables, but only if the
// table entries still refer to this exact Session instance (races with a
// replacement Session for the same key are tolerated).
func (o *Orchestrator) removeSessionIfCurrent(sess *session) {
	if o.sessions[string(sess.key)] == sess {
		delete(o.sessions, string(sess.key))
	}
	if o.sessionsByID[sess.id] == sess {
		delete(o.sessionsByID, sess.id)
	}
}

// ── cancellation protocol ────────────────────────────────────────────────

func (o *Orchestrator) cancelTask(taskID string) {
	t, ok := o.tasks[taskID]
	if !ok || t.cancelled {
		return
	}
	t.cancelled = true
	t.metrics.TimeCancelled = time.Now()
	delete(o.tasks, taskID)
	o.notifyAfterTask(t)
	if o.metricsSink != nil {
		o.metricsSink.Record(t.metrics)
	}

	sess := o.sessionsByID[t.sessionID]
	if sess == nil {
		return
	}
	delete(sess.tasks, taskID)

	if len(sess.tasks) == 0 && !sess.completed {
		o.logger.Debug("session.cancelled", "session", sess.id)
		sess.tokenSource.Cancel()
		o.removeSessionIfCurrent(sess)
		return
	}
	o.updateFetchPriority(sess)
}

// ── priority update ──────────────────────────────────────────────────────

func (o *Orchestrator) setTaskPriority(taskID string, p Priority) {
	t, ok := o.tasks[taskID]
	if !ok || t.cancelled {
		return
	}
	if t.request.Priority == p {
		return
	}
	t.request.Priority = p
	sess := o.sessionsByID[t.sessionID]
	if sess == nil {
		return
	}
	o.updateFetchPriority(sess)
}

func (o *Orchestrator) updateFetchPriority(sess *session) {
	p := sess.priority()
	if sess.fetchOp != nil {
		sess.fetchOp.SetPriority(p)
	}
	if sess.partialOp != nil {
		sess.partialOp.SetPriority(p)
	}
}

// ── delivery helpers ──────────────────────────────────────────────────────

func (o *Orchestrator) broadcastProgress(sess *session, completed, total int64) {
	for _, t := range sess.tasks {
		cb := t.callbacks.OnProgress
		if cb == nil {
			continue
		}
		o.postDelivery(func() { cb(completed, total) })
	}
}

func (o *Orchestrator) broadcastPartial(sess *session, img *Image) {
	for _, t := range sess.tasks {
		cb := t.callbacks.OnPartialImage
		if cb == nil {
			continue
		}
		o.postDelivery(func() { cb(img) })
	}
}

// ── hooks ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) notifyBeforeSession(sess *session) {
	for _, h := range o.hooks {
		h.BeforeSession(sess.id, sess.request)
	}
}

func (o *Orchestrator) notifyAfterSession(sess *session, result Result) {
	for _, h := range o.hooks {
		h.AfterSession(sess.id, result)
	}
}

func (o *Orchestrator) notifyBeforeTask(t *task) {
	for _, h := range o.hooks {
		h.BeforeTask(t.id, t.sessionID)
	}
}

func (o *Orchestrator) notifyAfterTask(t *task) {
	for _, h := range o.hooks {
		h.AfterTask(t.id, t.metrics)
	}
}
