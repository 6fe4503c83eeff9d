package storage

import (
	"context"
	"encoding/json"
	"time"

	"reply-tracker/internal/clock"
)

// ResponseEvent is one detected reply of a tracked worker to an earlier message.
// Events are never mutated after capture; ResponseDelaySeconds is computed once
// at capture time and stored verbatim.
type ResponseEvent struct {
	ResponderID          int64     `json:"responder_id"`
	ResponderName        string    `json:"responder_name"`
	ResponseTimestamp    time.Time `json:"response_timestamp"`
	ResponseText         string    `json:"response_text"`
	ChatID               int64     `json:"chat_id"`
	QuestionTimestamp    time.Time `json:"question_timestamp"`
	QuestionText         *string   `json:"question_text"`
	OriginalMessageID    int       `json:"original_message_id"`
	OriginalSenderID     *int64    `json:"original_sender_id"`
	OriginalSenderName   *string   `json:"original_sender_name"`
	ResponseDelaySeconds float64   `json:"response_delay_seconds"`
}

// MarshalJSON writes both timestamps with a numeric offset, "+00:00" included,
// instead of the RFC 3339 "Z" shorthand.
func (e ResponseEvent) MarshalJSON() ([]byte, error) {
	type plain ResponseEvent
	return json.Marshal(struct {
		plain
		ResponseTimestamp string `json:"response_timestamp"`
		QuestionTimestamp string `json:"question_timestamp"`
	}{
		plain:             plain(e),
		ResponseTimestamp: e.ResponseTimestamp.Format(clock.TimestampLayout),
		QuestionTimestamp: e.QuestionTimestamp.Format(clock.TimestampLayout),
	})
}

// EventLog is the persisted sequence of events in capture order.
type EventLog []ResponseEvent

// Clone returns a copy whose backing array is not shared with l.
func (l EventLog) Clone() EventLog {
	if l == nil {
		return EventLog{}
	}
	out := make(EventLog, len(l))
	copy(out, l)
	return out
}

// Store abstracts persistence of the event log.
// Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context) (EventLog, error)
	Save(ctx context.Context, log EventLog) error
	// Update runs fn on the current log and saves its result under one lock
	// hold. Nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(EventLog) (EventLog, error)) error
}

// Snapshotter is invoked by a store after qualifying saves.
type Snapshotter interface {
	Create(ctx context.Context) bool
}
