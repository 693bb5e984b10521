package main

import (
	"fmt"
	"time"
)

// CallState represents the lifecycle state of a tracked call.
// There is no terminal state value: an ended call is removed from the
// registry instead of resting in it.
type CallState int

const (
	StateRinging CallState = iota
	StateAnswered
)

func (s CallState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateAnswered:
		return "answered"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// Call directions as sent by the backend.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Transcript speakers.
const (
	SpeakerOperator = "operator"
	SpeakerCustomer = "customer"
)

// Suggestion priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// TranscriptEntry is one line of recognized speech. Entries are appended in
// arrival order, which is treated as chronological order.
type TranscriptEntry struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// Suggestion is one AI hint for the operator. Newest-first ordering in the
// log is a display invariant: suggestions are prepended, never appended.
type Suggestion struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Call is one in-progress call tracked by the registry. The registry is the
// exclusive owner of Call records; the phone references a call by id only.
type Call struct {
	ID           string
	CallerNumber string
	Direction    string
	State        CallState
	StartedAt    time.Time
	AnsweredAt   time.Time // zero until answered
	Transcripts  []TranscriptEntry
	Suggestions  []Suggestion
}

// Duration formats the elapsed time since the call was answered as MM:SS.
// Recomputed from AnsweredAt on every call so the display self-corrects
// against timer drift. Unanswered calls read 00:00.
func (c *Call) Duration(now time.Time) string {
	if c.AnsweredAt.IsZero() {
		return "00:00"
	}
	return FormatDuration(c.AnsweredAt, now)
}

// FormatDuration renders the elapsed whole seconds between answeredAt and
// now as MM:SS.
func FormatDuration(answeredAt, now time.Time) string {
	secs := int(now.Sub(answeredAt) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FormatPhoneNumber renders 11-digit numbers with a leading 7 in the local
// +7 (XXX) XXX-XX-XX style; anything else passes through untouched.
func FormatPhoneNumber(number string) string {
	if number == "" {
		return "Unknown"
	}
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) == 11 && digits[0] == '7' {
		return fmt.Sprintf("+7 (%s) %s-%s-%s", digits[1:4], digits[4:7], digits[7:9], digits[9:])
	}
	return number
}
