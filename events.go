package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// Push event kinds delivered by the backend over the websocket.
const (
	EventCallStart  = "call_start"
	EventCallAnswer = "call_answer"
	EventCallEnd    = "call_end"
	EventTranscript = "transcript"
	EventSuggestion = "suggestion"
)

// Event is one decoded push message. Data stays raw until the kind-specific
// payload is decoded; unknown kinds are carried through and ignored upstream.
type Event struct {
	Type   string          `json:"event_type"`
	CallID string          `json:"call_id"`
	Data   json.RawMessage `json:"data"`
}

// CallStartData is the payload of a call_start event.
type CallStartData struct {
	CallerNumber string `json:"caller_number"`
	Direction    string `json:"direction"`
	StartedAt    string `json:"started_at"`
}

// CallAnswerData is the payload of a call_answer event.
type CallAnswerData struct {
	AnsweredAt string `json:"answered_at"`
}

// DecodeEvent parses a raw websocket frame into an Event.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing event_type")
	}
	if ev.CallID == "" {
		return Event{}, fmt.Errorf("decode event: missing call_id")
	}
	return ev, nil
}

// CallStart decodes the call_start payload.
func (e Event) CallStart() (CallStartData, error) {
	var d CallStartData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return CallStartData{}, fmt.Errorf("decode call_start data: %w", err)
	}
	return d, nil
}

// CallAnswer decodes the call_answer payload.
func (e Event) CallAnswer() (CallAnswerData, error) {
	var d CallAnswerData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return CallAnswerData{}, fmt.Errorf("decode call_answer data: %w", err)
	}
	return d, nil
}

// Transcript decodes the transcript payload.
func (e Event) Transcript() (TranscriptEntry, error) {
	var t TranscriptEntry
	if err := json.Unmarshal(e.Data, &t); err != nil {
		return TranscriptEntry{}, fmt.Errorf("decode transcript data: %w", err)
	}
	return t, nil
}

// Suggestion decodes the suggestion payload.
func (e Event) Suggestion() (Suggestion, error) {
	var s Suggestion
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return Suggestion{}, fmt.Errorf("decode suggestion data: %w", err)
	}
	return s, nil
}

// parseEventTime turns a backend RFC3339 timestamp into a time.Time,
// falling back to the receipt time when the field is absent or unparseable
// so downstream timers can still run.
func parseEventTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}
