package main

import (
	"testing"
	"time"
)

func TestTimersTick(t *testing.T) {
	timers := NewTimers(10 * time.Millisecond)
	defer timers.StopAll()

	timers.Start("c1")
	select {
	case tick := <-timers.Ticks():
		if tick.CallID != "c1" {
			t.Errorf("tick for %q, want c1", tick.CallID)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}
}

func TestTimersStartIdempotent(t *testing.T) {
	timers := NewTimers(time.Hour)
	defer timers.StopAll()

	timers.Start("c1")
	timers.Start("c1")
	if !timers.Running("c1") {
		t.Error("timer not running")
	}
	timers.Stop("c1")
	if timers.Running("c1") {
		t.Error("timer still running after single stop")
	}
}

func TestTimersStopIdempotent(t *testing.T) {
	timers := NewTimers(time.Hour)
	defer timers.StopAll()

	timers.Stop("never-started")

	timers.Start("c1")
	timers.Stop("c1")
	timers.Stop("c1")
}

func TestTimersStopEndsTicking(t *testing.T) {
	timers := NewTimers(5 * time.Millisecond)

	timers.Start("c1")
	select {
	case <-timers.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}
	timers.Stop("c1")

	// Drain anything sent before the stop landed, then expect silence.
	deadline := time.After(50 * time.Millisecond)
drain:
	for {
		select {
		case <-timers.Ticks():
		case <-deadline:
			break drain
		}
	}
	select {
	case tick := <-timers.Ticks():
		t.Errorf("tick after stop: %+v", tick)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimersStopAll(t *testing.T) {
	timers := NewTimers(time.Hour)

	timers.Start("c1")
	timers.Start("c2")
	timers.StopAll()
	if timers.Running("c1") || timers.Running("c2") {
		t.Error("timers still running after StopAll")
	}
}
