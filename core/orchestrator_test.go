package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelimg/imgload/config"
	"github.com/kestrelimg/imgload/core"
)

// ── fakes ─────────────────────────────────────────────────────────────────

type fakeHandle struct {
	cancel func()
}

func (h *fakeHandle) Cancel() { h.cancel() }

// fakeLoader delivers a single chunk ("body") then completes, both
// gate-able so tests can control interleaving across sessions.
type fakeLoader struct {
	mu      sync.Mutex
	byURL   map[string][]byte
	gate    chan struct{} // closed to release all pending loads; nil = ungated
	loads   []string      // URLs seen, in order, guarded by mu
	cancels int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{byURL: make(map[string][]byte)}
}

func (l *fakeLoader) Load(ctx context.Context, url string, onChunk func([]byte, core.Response), onComplete func(error)) core.FetchHandle {
	l.mu.Lock()
	l.loads = append(l.loads, url)
	body := l.byURL[url]
	gate := l.gate
	l.mu.Unlock()

	cancelled := make(chan struct{})
	go func() {
		if gate != nil {
			select {
			case <-gate:
			case <-cancelled:
				return
			}
		}
		select {
		case <-cancelled:
			return
		default:
		}
		onChunk(body, core.Response{ContentType: "image/test", ExpectedContentLength: int64(len(body))})
		onComplete(nil)
	}()

	return &fakeHandle{cancel: func() {
		l.mu.Lock()
		l.cancels++
		l.mu.Unlock()
		close(cancelled)
	}}
}

// fakeDecoder treats any non-empty final buffer as a decoded 1x1 image.
type fakeDecoder struct{}

func (fakeDecoder) Decode(dc core.DecodingContext) (*core.Image, error) {
	if !dc.IsFinal || len(dc.Data) == 0 {
		return nil, nil
	}
	return &core.Image{Format: core.FormatJPEG, Width: 1, Height: 1}, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Select(dc core.DecodingContext) (core.Decoder, error) {
	if len(dc.Data) == 0 {
		return nil, nil
	}
	return fakeDecoder{}, nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[core.CacheKey]*core.Image
}

func newFakeCache() *fakeCache { return &fakeCache{items: make(map[core.CacheKey]*core.Image)} }

func (c *fakeCache) Get(key core.CacheKey) (*core.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.items[key]
	return img, ok
}

func (c *fakeCache) Set(key core.CacheKey, img *core.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = img
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.IsRateLimiterEnabled = false
	cfg.FetchConcurrency = 4
	cfg.ProcessingConcurrency = 4
	return cfg
}

func waitResult(t *testing.T, ch chan core.Result) core.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return core.Result{}
	}
}

// ── tests ─────────────────────────────────────────────────────────────────

func TestLoadImage_CacheHit(t *testing.T) {
	loader := newFakeLoader()
	cache := newFakeCache()
	req := core.Request{URL: "http://x/a.jpg", CacheRead: true}
	cache.Set(req.CacheKey(), &core.Image{Format: core.FormatJPEG, Width: 9, Height: 9})

	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
		ImageCache:      cache,
	})
	t.Cleanup(orch.Close)

	done := make(chan core.Result, 1)
	orch.LoadImage(req, core.Callbacks{OnComplete: func(r core.Result) { done <- r }})

	r := waitResult(t, done)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if r.Image == nil || r.Image.Width != 9 {
		t.Fatalf("got %v, want cached 9x9 image", r.Image)
	}
	loader.mu.Lock()
	n := len(loader.loads)
	loader.mu.Unlock()
	if n != 0 {
		t.Fatalf("cache hit still triggered %d fetch(es)", n)
	}
}

func TestLoadImage_DeduplicatesConcurrentRequests(t *testing.T) {
	loader := newFakeLoader()
	loader.byURL["http://x/b.jpg"] = []byte("body")

	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
	})
	t.Cleanup(orch.Close)

	req := core.Request{URL: "http://x/b.jpg"}
	done1 := make(chan core.Result, 1)
	done2 := make(chan core.Result, 1)
	orch.LoadImage(req, core.Callbacks{OnComplete: func(r core.Result) { done1 <- r }})
	orch.LoadImage(req, core.Callbacks{OnComplete: func(r core.Result) { done2 <- r }})

	r1 := waitResult(t, done1)
	r2 := waitResult(t, done2)
	if r1.Err != nil || r2.Err != nil {
		t.Fatalf("unexpected errors: %v, %v", r1.Err, r2.Err)
	}

	loader.mu.Lock()
	n := len(loader.loads)
	loader.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one fetch for deduplicated requests, got %d", n)
	}
}

func TestLoadImage_CancelOneOfTwoLeavesTheOtherRunning(t *testing.T) {
	loader := newFakeLoader()
	loader.byURL["http://x/c.jpg"] = []byte("body")
	loader.gate = make(chan struct{})

	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
	})
	t.Cleanup(orch.Close)

	req := core.Request{URL: "http://x/c.jpg"}
	var cancelledFired bool
	h1 := orch.LoadImage(req, core.Callbacks{OnComplete: func(core.Result) { cancelledFired = true }})
	done2 := make(chan core.Result, 1)
	orch.LoadImage(req, core.Callbacks{OnComplete: func(r core.Result) { done2 <- r }})

	h1.Cancel()
	time.Sleep(20 * time.Millisecond) // let the cancel land on the serial context
	close(loader.gate)

	r2 := waitResult(t, done2)
	if r2.Err != nil {
		t.Fatalf("surviving subscriber got an error: %v", r2.Err)
	}
	if cancelledFired {
		t.Fatal("cancelled task's completion callback fired")
	}
}

func TestLoadImage_CancelAllCancelsTheFetch(t *testing.T) {
	loader := newFakeLoader()
	loader.byURL["http://x/d.jpg"] = []byte("body")
	loader.gate = make(chan struct{})
	defer close(loader.gate)

	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
	})
	t.Cleanup(orch.Close)

	req := core.Request{URL: "http://x/d.jpg"}
	h := orch.LoadImage(req, core.Callbacks{OnComplete: func(core.Result) {
		t.Error("completion callback fired after cancellation")
	}})
	h.Cancel()
	time.Sleep(50 * time.Millisecond)

	loader.mu.Lock()
	cancels := loader.cancels
	loader.mu.Unlock()
	if cancels != 1 {
		t.Fatalf("fetch cancel count = %d, want 1", cancels)
	}
}

func TestLoadImage_ProgressiveDelivery(t *testing.T) {
	loader := newFakeLoader()
	loader.byURL["http://x/e.jpg"] = []byte("body")

	cfg := testConfig()
	cfg.IsProgressiveDecodingEnabled = true
	orch := core.New(cfg, core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
	})
	t.Cleanup(orch.Close)

	done := make(chan core.Result, 1)
	orch.LoadImage(core.Request{URL: "http://x/e.jpg"}, core.Callbacks{
		OnComplete: func(r core.Result) { done <- r },
	})

	r := waitResult(t, done)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if r.Image == nil {
		t.Fatal("expected a final image")
	}
}

func TestLoadImage_EmptyURLFailsFast(t *testing.T) {
	loader := newFakeLoader()
	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
	})
	t.Cleanup(orch.Close)

	done := make(chan core.Result, 1)
	orch.LoadImage(core.Request{}, core.Callbacks{OnComplete: func(r core.Result) { done <- r }})

	r := waitResult(t, done)
	if r.Err == nil {
		t.Fatal("expected an error for an empty request")
	}
}

func TestLoadImage_CacheWriteStoresSuccessfulResult(t *testing.T) {
	loader := newFakeLoader()
	loader.byURL["http://x/f.jpg"] = []byte("body")
	cache := newFakeCache()

	orch := core.New(testConfig(), core.Deps{
		DataLoader:      loader,
		DecoderRegistry: fakeRegistry{},
		ImageCache:      cache,
	})
	t.Cleanup(orch.Close)

	req := core.Request{URL: "http://x/f.jpg", CacheWrite: true}
	done := make(chan core.Result, 1)
	orch.LoadImage(req, core.Callbacks{OnComplete: func(r core.Result) { done <- r }})
	r := waitResult(t, done)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}

	if _, ok := cache.Get(req.CacheKey()); !ok {
		t.Fatal("successful result was not written to the cache")
	}
}
