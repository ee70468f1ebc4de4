package core

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_ExecutesImmediatelyWithinCapacity(t *testing.T) {
	var mu sync.Mutex
	ran := 0
	rl := NewRateLimiter(5, 10, func(f func()) {
		mu.Lock()
		ran++
		mu.Unlock()
		f()
	})
	t.Cleanup(rl.Close)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		rl.Execute(nil, func() { done <- struct{}{} })
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("work within capacity did not execute promptly")
		}
	}
}

func TestRateLimiter_DefersBeyondCapacity(t *testing.T) {
	rl := NewRateLimiter(1, 1000, func(f func()) { go f() })
	t.Cleanup(rl.Close)

	done := make(chan int, 2)
	rl.Execute(nil, func() { done <- 1 })
	rl.Execute(nil, func() { done <- 2 })

	first := <-done
	if first != 1 {
		t.Fatalf("first completion = %d, want 1", first)
	}
	select {
	case second := <-done:
		if second != 2 {
			t.Fatalf("second completion = %d, want 2", second)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deferred work never ran")
	}
}

func TestRateLimiter_DropsWorkForCancelledToken(t *testing.T) {
	src := NewTokenSource()
	src.Cancel()

	rl := NewRateLimiter(1, 1000, func(f func()) { f() })
	t.Cleanup(rl.Close)

	ran := make(chan struct{}, 1)
	rl.Execute(src.Token(), func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("work for an already-cancelled token ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRateLimiter_CloseStopsPendingWork(t *testing.T) {
	rl := NewRateLimiter(1, 1000, func(f func()) { go f() })

	done := make(chan struct{}, 1)
	rl.Execute(nil, func() { <-done })   // occupies the single token
	ran := make(chan struct{}, 1)
	rl.Execute(nil, func() { ran <- struct{}{} }) // deferred

	rl.Close()
	close(done)

	select {
	case <-ran:
		t.Fatal("deferred work ran after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
