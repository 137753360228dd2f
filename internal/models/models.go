// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package models defines the domain and wire types for EventLedger:
// streams, events, subscriptions, consumer offsets, and compacted state.
//
// Event payloads are carried as json.RawMessage so arbitrary documents
// round-trip losslessly through the store and the API.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// DefaultPartitionCount is applied when a create-stream request omits
// partition_count.
const DefaultPartitionCount = 3

// DefaultRetentionHours is applied when a create-stream request omits
// retention_hours (168 hours = 7 days).
const DefaultRetentionHours = 168

// DefaultPollLimit is the poll batch size when the limit parameter is absent.
const DefaultPollLimit = 100

// Stream is the metadata row for a named, partitioned, append-only log.
type Stream struct {
	StreamID       string    `json:"stream_id"`
	PartitionCount uint32    `json:"partition_count"`
	RetentionHours uint32    `json:"retention_hours"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewStream creates stream metadata stamped with the current time.
func NewStream(streamID string, partitionCount, retentionHours uint32) Stream {
	return Stream{
		StreamID:       streamID,
		PartitionCount: partitionCount,
		RetentionHours: retentionHours,
		CreatedAt:      time.Now().UTC(),
	}
}

// CreateStreamRequest is the body of POST /streams.
type CreateStreamRequest struct {
	StreamID       string `json:"stream_id" validate:"required,max=256"`
	PartitionCount uint32 `json:"partition_count" validate:"omitempty,min=1,max=1024"`
	RetentionHours uint32 `json:"retention_hours" validate:"omitempty,min=1"`
}

// ApplyDefaults fills zero-valued optional fields with their defaults.
func (r *CreateStreamRequest) ApplyDefaults() {
	if r.PartitionCount == 0 {
		r.PartitionCount = DefaultPartitionCount
	}
	if r.RetentionHours == 0 {
		r.RetentionHours = DefaultRetentionHours
	}
}

// Event is one immutable record in the log.
type Event struct {
	StreamID  string          `json:"stream_id"`
	Partition uint32          `json:"partition"`
	Sequence  uint64          `json:"sequence"`
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishEvent is a single event to append. The wire field for EventType is
// "type".
type PublishEvent struct {
	Key       string          `json:"key" validate:"required,max=512"`
	EventType string          `json:"type" validate:"required,max=256"`
	Data      json.RawMessage `json:"data"`
}

// PublishRequest is the enveloped body form of POST /streams/{id}/events.
type PublishRequest struct {
	Events []PublishEvent `json:"events"`
}

// PublishedEvent is the reference returned for each appended event.
type PublishedEvent struct {
	StreamID  string    `json:"stream_id"`
	Partition uint32    `json:"partition"`
	Sequence  uint64    `json:"sequence"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishResponse is the body returned by POST /streams/{id}/events.
type PublishResponse struct {
	Events []PublishedEvent `json:"events"`
}

// StartFrom selects the starting position for a new subscription.
type StartFrom string

const (
	// StartFromEarliest starts from the earliest available event.
	StartFromEarliest StartFrom = "earliest"
	// StartFromLatest starts from new events only (default).
	StartFromLatest StartFrom = "latest"
	// StartFromCompacted starts from compacted state. Offset initialization
	// is identical to earliest; consumers are expected to snapshot the
	// compacted projection first and filter events they have absorbed.
	StartFromCompacted StartFrom = "compacted"
)

// Valid reports whether s is a known start policy.
func (s StartFrom) Valid() bool {
	switch s {
	case StartFromEarliest, StartFromLatest, StartFromCompacted:
		return true
	}
	return false
}

// Subscription is a named consumer position within a stream.
type Subscription struct {
	StreamID       string    `json:"stream_id"`
	SubscriptionID string    `json:"subscription_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewSubscription creates a subscription stamped with the current time.
func NewSubscription(streamID, subscriptionID string) Subscription {
	return Subscription{
		StreamID:       streamID,
		SubscriptionID: subscriptionID,
		CreatedAt:      time.Now().UTC(),
	}
}

// CreateSubscriptionRequest is the body of POST /streams/{id}/subscriptions.
type CreateSubscriptionRequest struct {
	SubscriptionID string    `json:"subscription_id" validate:"required,max=256"`
	StartFrom      StartFrom `json:"start_from" validate:"omitempty,oneof=earliest latest compacted"`
}

// ApplyDefaults fills the start policy with its default.
func (r *CreateSubscriptionRequest) ApplyDefaults() {
	if r.StartFrom == "" {
		r.StartFrom = StartFromLatest
	}
}

// ConsumerOffset is the committed position of a subscription on one
// partition.
type ConsumerOffset struct {
	StreamID       string    `json:"stream_id"`
	SubscriptionID string    `json:"subscription_id"`
	Partition      uint32    `json:"partition"`
	Offset         uint64    `json:"offset"`
	CommittedAt    time.Time `json:"committed_at"`
}

// PollResponse is the body returned by the poll endpoint. Remaining is
// reserved and always 0 in this version; clients must not rely on it.
type PollResponse struct {
	Events    []Event `json:"events"`
	Cursor    string  `json:"cursor"`
	Remaining uint64  `json:"remaining"`
}

// PartitionOffset is one per-partition advance proposal inside a cursor.
type PartitionOffset struct {
	Partition uint32 `json:"partition"`
	Offset    uint64 `json:"offset"`
}

// CursorState is the JSON document encoded into the opaque cursor string.
type CursorState struct {
	Offsets []PartitionOffset `json:"offsets"`
}

// CommitRequest is the body of the commit endpoint.
type CommitRequest struct {
	Cursor string `json:"cursor" validate:"required"`
}

// CommitResponse is the body returned by the commit endpoint.
type CommitResponse struct {
	Success bool `json:"success"`
}

// CompactedEvent is the latest-per-key snapshot maintained by the compactor.
type CompactedEvent struct {
	StreamID  string          `json:"stream_id"`
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Sequence  uint64          `json:"sequence"`
	Partition uint32          `json:"partition"`
	Timestamp time.Time       `json:"timestamp"`
}

// ListStreamsResponse is the body returned by GET /streams.
type ListStreamsResponse struct {
	Streams []Stream `json:"streams"`
}

// CompactedEntriesResponse is the body returned by GET /streams/{id}/compacted.
type CompactedEntriesResponse struct {
	Entries []CompactedEvent `json:"entries"`
}

// DeleteResponse is the body returned by delete endpoints.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the error body for all endpoints. Clients identify errors
// by the stable Error code, not the message.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}
