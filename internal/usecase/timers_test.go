package usecase

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerSetFiresAndDeregisters(t *testing.T) {
	t.Parallel()

	ts := newTimerSet()
	fired := make(chan struct{})
	ts.schedule(5*time.Millisecond, func() { close(fired) })

	if ts.pending() != 1 {
		t.Fatalf("expected one pending timer")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}

	waitUntil(t, time.Second, "timer deregistration", func() bool {
		return ts.pending() == 0
	})
}

func TestTimerSetCancelAllStopsPending(t *testing.T) {
	t.Parallel()

	ts := newTimerSet()
	var fired atomic.Int32
	ts.schedule(40*time.Millisecond, func() { fired.Add(1) })
	ts.schedule(50*time.Millisecond, func() { fired.Add(1) })

	ts.cancelAll()
	if ts.pending() != 0 {
		t.Fatalf("expected no pending timers after cancel")
	}

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timers must not fire, got %d", fired.Load())
	}
}

func TestTimerSetIndependentTimers(t *testing.T) {
	t.Parallel()

	ts := newTimerSet()
	first := make(chan struct{})
	ts.schedule(5*time.Millisecond, func() { close(first) })
	ts.schedule(500*time.Millisecond, func() {})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatalf("short timer did not fire")
	}

	if ts.pending() != 1 {
		t.Fatalf("long timer should still be pending, got %d", ts.pending())
	}
	ts.cancelAll()
}
