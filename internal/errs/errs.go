// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package errs defines the typed error taxonomy shared by all engine
// components. Every error crossing the engine boundary carries a Kind with a
// stable wire code and an HTTP status, so adapters translate errors without
// string matching.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine failure.
type Kind int

const (
	// KindInternal is an invariant violation or unclassified failure.
	KindInternal Kind = iota
	// KindStreamNotFound is returned for operations on an unknown stream.
	KindStreamNotFound
	// KindStreamAlreadyExists is returned when creating over an existing stream.
	KindStreamAlreadyExists
	// KindSubscriptionNotFound is returned for poll/commit on an unknown subscription.
	KindSubscriptionNotFound
	// KindSubscriptionAlreadyExists is returned when creating over an existing subscription.
	KindSubscriptionAlreadyExists
	// KindInvalidStreamID is a stream identifier validation failure.
	KindInvalidStreamID
	// KindInvalidSubscriptionID is a subscription identifier validation failure.
	KindInvalidSubscriptionID
	// KindInvalidCursor is a cursor decode failure.
	KindInvalidCursor
	// KindInvalidEventKey is an event key validation failure.
	KindInvalidEventKey
	// KindValidation is a generic input violation.
	KindValidation
	// KindDatabase is a backend I/O failure.
	KindDatabase
	// KindSerialization is a payload decode failure.
	KindSerialization
	// KindCompactedKeyNotFound is returned when a key has no compacted entry.
	KindCompactedKeyNotFound
)

// Code returns the stable wire code for API responses.
func (k Kind) Code() string {
	switch k {
	case KindStreamNotFound:
		return "stream_not_found"
	case KindStreamAlreadyExists:
		return "stream_already_exists"
	case KindSubscriptionNotFound:
		return "subscription_not_found"
	case KindSubscriptionAlreadyExists:
		return "subscription_already_exists"
	case KindInvalidStreamID:
		return "invalid_stream_id"
	case KindInvalidSubscriptionID:
		return "invalid_subscription_id"
	case KindInvalidCursor:
		return "invalid_cursor"
	case KindInvalidEventKey:
		return "invalid_event_key"
	case KindValidation:
		return "validation_error"
	case KindDatabase:
		return "database_error"
	case KindSerialization:
		return "serialization_error"
	case KindCompactedKeyNotFound:
		return "compacted_key_not_found"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the HTTP status code for this error kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindStreamNotFound, KindSubscriptionNotFound, KindCompactedKeyNotFound:
		return http.StatusNotFound
	case KindStreamAlreadyExists, KindSubscriptionAlreadyExists:
		return http.StatusConflict
	case KindInvalidStreamID, KindInvalidSubscriptionID, KindInvalidCursor,
		KindInvalidEventKey, KindValidation, KindSerialization:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified engine error. It wraps an optional cause so call
// sites keep the full chain for logging while adapters read only the Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// StreamNotFound reports an unknown stream.
func StreamNotFound(streamID string) *Error {
	return New(KindStreamNotFound, "Stream not found: %s", streamID)
}

// StreamAlreadyExists reports a create over an existing stream.
func StreamAlreadyExists(streamID string) *Error {
	return New(KindStreamAlreadyExists, "Stream already exists: %s", streamID)
}

// SubscriptionNotFound reports an unknown subscription.
func SubscriptionNotFound(subscriptionID string) *Error {
	return New(KindSubscriptionNotFound, "Subscription not found: %s", subscriptionID)
}

// SubscriptionAlreadyExists reports a create over an existing subscription.
func SubscriptionAlreadyExists(subscriptionID string) *Error {
	return New(KindSubscriptionAlreadyExists, "Subscription already exists: %s", subscriptionID)
}

// CompactedKeyNotFound reports a key with no compacted entry.
func CompactedKeyNotFound(key string) *Error {
	return New(KindCompactedKeyNotFound, "No compacted entry for key: %s", key)
}

// InvalidCursor reports a cursor that failed to decode.
func InvalidCursor(reason string) *Error {
	return New(KindInvalidCursor, "Invalid cursor: %s", reason)
}

// Validation reports a generic input violation.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Database wraps a backend I/O failure.
func Database(err error) *Error {
	return Wrap(KindDatabase, err, "Database error")
}

// Internal wraps an invariant violation.
func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, format, args...)
}

// KindOf classifies an arbitrary error. Unclassified errors map to
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
