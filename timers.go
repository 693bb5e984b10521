package main

import "time"

// TimerTick reports that one answered call's duration display is due for a
// refresh.
type TimerTick struct {
	CallID string
}

// Timers runs one ticking interval per answered call. Ticks are funneled
// into a single channel drained by the console loop, which keeps all
// registry access on one goroutine. A dropped tick is harmless: the display
// value is recomputed from the answer time on the next one.
//
// Start and Stop are loop-confined like the registry; only the per-call
// goroutines run concurrently and they touch nothing but their own stop
// channel.
type Timers struct {
	period time.Duration
	ticks  chan TimerTick
	stops  map[string]chan struct{}
}

// NewTimers creates the timer subsystem with the given tick period.
func NewTimers(period time.Duration) *Timers {
	return &Timers{
		period: period,
		ticks:  make(chan TimerTick, 16),
		stops:  make(map[string]chan struct{}),
	}
}

// Ticks returns the channel the console loop drains.
func (t *Timers) Ticks() <-chan TimerTick { return t.ticks }

// Start begins ticking for callID. Starting an already ticking call is a
// no-op.
func (t *Timers) Start(callID string) {
	if _, ok := t.stops[callID]; ok {
		return
	}
	stop := make(chan struct{})
	t.stops[callID] = stop
	go t.run(callID, stop)
}

// Stop ends ticking for callID. Stopping a timer that was never started, or
// stopping twice, is a safe no-op.
func (t *Timers) Stop(callID string) {
	stop, ok := t.stops[callID]
	if !ok {
		return
	}
	delete(t.stops, callID)
	close(stop)
}

// Running reports whether callID has an active timer.
func (t *Timers) Running(callID string) bool {
	_, ok := t.stops[callID]
	return ok
}

// StopAll ends every active timer.
func (t *Timers) StopAll() {
	for id, stop := range t.stops {
		delete(t.stops, id)
		close(stop)
	}
}

func (t *Timers) run(callID string, stop chan struct{}) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case t.ticks <- TimerTick{CallID: callID}:
			default:
			}
		case <-stop:
			return
		}
	}
}
