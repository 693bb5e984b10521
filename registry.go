package main

import "time"

// Scope tells the presentation sink how much to redraw: one call's detail
// view, or the whole call list.
type Scope struct {
	CallID string // empty means the full list
}

// ScopeAll scopes a notification to the full call list.
func ScopeAll() Scope { return Scope{} }

// ScopeCall scopes a notification to a single call id.
func ScopeCall(id string) Scope { return Scope{CallID: id} }

// All reports whether the scope covers the full list.
func (s Scope) All() bool { return s.CallID == "" }

// Sink is the notification contract the presentation layer implements.
// Attention is raised for high-priority suggestions, separate from the
// ordinary changed signal.
type Sink interface {
	RegistryChanged(scope Scope)
	Attention(callID string)
}

// Registry owns every in-progress Call and the active selection. It is
// confined to the console event loop: handlers run to completion before the
// next event is processed, so no locking is needed or present here.
type Registry struct {
	calls    map[string]*Call
	order    []string // insertion order, preserved for display
	selected string
	timers   *Timers
	sink     Sink
}

// NewRegistry creates an empty registry reporting changes to sink and
// driving per-call timers through timers.
func NewRegistry(sink Sink, timers *Timers) *Registry {
	return &Registry{
		calls:  make(map[string]*Call),
		timers: timers,
		sink:   sink,
	}
}

// OnCallStart inserts a new ringing call. The first call in an empty
// registry becomes the active selection. A duplicate start is a logic error
// on the sender's side: it is logged and changes nothing.
func (r *Registry) OnCallStart(id string, data CallStartData, receivedAt time.Time) {
	if _, ok := r.calls[id]; ok {
		coreLog.Errorf("duplicate call_start for %s ignored", id)
		return
	}
	c := &Call{
		ID:           id,
		CallerNumber: data.CallerNumber,
		Direction:    data.Direction,
		State:        StateRinging,
		StartedAt:    parseEventTime(data.StartedAt, receivedAt),
	}
	r.calls[id] = c
	r.order = append(r.order, id)
	if len(r.calls) == 1 {
		r.selected = id
	}
	coreLog.Infof("call started: %s from %s (%s)", id, data.CallerNumber, data.Direction)
	r.changed(ScopeAll())
}

// OnCallAnswer moves a ringing call to answered, records the answer time and
// starts its timer. A no-op for unknown ids and for calls not in ringing.
func (r *Registry) OnCallAnswer(id string, answeredAt time.Time) {
	c, ok := r.calls[id]
	if !ok || c.State != StateRinging {
		return
	}
	c.State = StateAnswered
	c.AnsweredAt = answeredAt
	r.timers.Start(id)
	coreLog.Infof("call answered: %s", id)
	r.changed(ScopeCall(id))
}

// OnCallEnd stops the call's timer and removes it. Ending the selected call
// clears the selection; the operator reselects explicitly, nothing is
// auto-promoted. An end for an unknown id is a silent no-op (the event may
// belong to a call missed while disconnected).
func (r *Registry) OnCallEnd(id string) {
	if _, ok := r.calls[id]; !ok {
		return
	}
	r.timers.Stop(id)
	delete(r.calls, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.selected == id {
		r.selected = ""
	}
	coreLog.Infof("call ended: %s", id)
	r.changed(ScopeAll())
}

// OnTranscript appends one entry to the call's transcript log. Arrival order
// is chronological order; nothing is resorted.
func (r *Registry) OnTranscript(id string, entry TranscriptEntry) {
	c, ok := r.calls[id]
	if !ok {
		return
	}
	c.Transcripts = append(c.Transcripts, entry)
	r.changed(ScopeCall(id))
}

// OnSuggestion prepends one suggestion to the call's log (newest first).
// High priority additionally raises the attention signal.
func (r *Registry) OnSuggestion(id string, s Suggestion) {
	c, ok := r.calls[id]
	if !ok {
		return
	}
	c.Suggestions = append([]Suggestion{s}, c.Suggestions...)
	r.changed(ScopeCall(id))
	if s.Priority == PriorityHigh {
		r.attention(id)
	}
}

// Select sets the active selection. Selecting an id that is not in the
// registry is a no-op with no state change.
func (r *Registry) Select(id string) {
	if _, ok := r.calls[id]; !ok {
		return
	}
	r.selected = id
	r.changed(ScopeCall(id))
}

// Get returns the call for id, if tracked.
func (r *Registry) Get(id string) (*Call, bool) {
	c, ok := r.calls[id]
	return c, ok
}

// Selected returns the active selection, or "" when nothing is selected.
func (r *Registry) Selected() string { return r.selected }

// Len returns the number of tracked calls.
func (r *Registry) Len() int { return len(r.calls) }

// Calls returns the tracked calls in insertion order.
func (r *Registry) Calls() []*Call {
	out := make([]*Call, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.calls[id])
	}
	return out
}

func (r *Registry) changed(scope Scope) {
	if r.sink != nil {
		r.sink.RegistryChanged(scope)
	}
}

func (r *Registry) attention(id string) {
	if r.sink != nil {
		r.sink.Attention(id)
	}
}
