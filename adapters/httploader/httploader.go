// Package httploader implements core.DataLoader over net/http, streaming
// the response body in fixed-size, pooled chunks so the orchestrator sees
// incremental arrivals rather than one final blob.
package httploader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/kestrelimg/imgload/core"
	"golang.org/x/net/http2"
)

const defaultChunkSize = 32 * 1024

var chunkPool = sync.Pool{
	New: func() any { return make([]byte, defaultChunkSize) },
}

// Loader fetches image bytes over HTTP(S).
type Loader struct {
	client    *http.Client
	chunkSize int
}

// New returns a Loader using client (or a fresh HTTP/2-enabled client if
// nil). Image origins are typically CDNs that speak HTTP/2. The fresh
// client's transport is set up with http2.ConfigureTransport, which
// enables HTTP/2 over TLS (https://) only; plain http:// requests still use
// HTTP/1.1, and h2c is not supported.
func New(client *http.Client) *Loader {
	if client == nil {
		transport := &http.Transport{}
		_ = http2.ConfigureTransport(transport)
		client = &http.Client{Transport: transport}
	}
	return &Loader{client: client, chunkSize: defaultChunkSize}
}

type handle struct {
	cancel context.CancelFunc
}

func (h *handle) Cancel() { h.cancel() }

// Load issues a GET request to url and streams the body to onChunk as it
// arrives. onComplete fires exactly once, with the terminal error (nil on
// success). Cancelling the returned FetchHandle aborts the in-flight
// request; onComplete still fires, with ctx.Err().
func (l *Loader) Load(ctx context.Context, url string, onChunk func(data []byte, resp core.Response), onComplete func(err error)) core.FetchHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel}

	go func() {
		err := l.stream(ctx, url, onChunk)
		onComplete(err)
	}()

	return h
}

func (l *Loader) stream(ctx context.Context, url string, onChunk func(data []byte, resp core.Response)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	httpResp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &http.ProtocolError{ErrorString: httpResp.Status}
	}

	resp := core.Response{
		ContentType:           httpResp.Header.Get("Content-Type"),
		ExpectedContentLength: httpResp.ContentLength, // -1 when unknown, matches core.Response's contract
	}

	chunkSize := l.chunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := chunkPool.Get().([]byte)
		if cap(buf) < chunkSize {
			buf = make([]byte, chunkSize)
		}
		buf = buf[:chunkSize]

		n, readErr := httpResp.Body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			onChunk(data, resp)
		}
		chunkPool.Put(buf[:defaultChunkSize])

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}
