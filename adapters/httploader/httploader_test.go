package httploader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kestrelimg/imgload/core"
)

func TestLoader_StreamsBodyAndCompletes(t *testing.T) {
	body := bytes.Repeat([]byte("x"), defaultChunkSize*2+100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer srv.Close()

	l := New(srv.Client())

	var mu sync.Mutex
	var received bytes.Buffer
	var gotResp core.Response
	complete := make(chan error, 1)

	l.Load(context.Background(), srv.URL, func(data []byte, resp core.Response) {
		mu.Lock()
		received.Write(data)
		gotResp = resp
		mu.Unlock()
	}, func(err error) {
		complete <- err
	})

	select {
	case err := <-complete:
		if err != nil {
			t.Fatalf("onComplete error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(received.Bytes(), body) {
		t.Fatalf("received %d bytes, want %d", received.Len(), len(body))
	}
	if gotResp.ContentType != "image/jpeg" {
		t.Fatalf("ContentType = %q, want image/jpeg", gotResp.ContentType)
	}
}

func TestLoader_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(srv.Client())
	complete := make(chan error, 1)
	l.Load(context.Background(), srv.URL, func([]byte, core.Response) {}, func(err error) {
		complete <- err
	})

	select {
	case err := <-complete:
		if err == nil {
			t.Fatal("expected an error for a 404 response")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestLoader_CancelAbortsInFlightRequest(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.(http.Flusher).Flush()
		<-unblock
	}))
	defer srv.Close()
	defer close(unblock)

	l := New(srv.Client())
	complete := make(chan error, 1)
	h := l.Load(context.Background(), srv.URL, func([]byte, core.Response) {}, func(err error) {
		complete <- err
	})

	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	select {
	case err := <-complete:
		if err == nil {
			t.Fatal("expected a cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation to surface")
	}
}
