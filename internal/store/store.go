// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package store defines the contract over the single wide-row key-value
// table backing EventLedger, and its BadgerDB implementation.
//
// All state lives in one logical table keyed by a composite (PK, SK) pair.
// Rows are grouped by PK; within a PK, rows are ordered lexicographically by
// SK. The contract requires conditional put, an atomic counter returning the
// new value, range queries on SK within a PK, and a change-feed of committed
// row images. Any backend meeting the contract suffices; the shipped
// implementation is BadgerDB.
package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrItemNotFound is returned by Get when no row exists at (PK, SK).
	ErrItemNotFound = errors.New("store: item not found")
	// ErrConditionFailed is returned when a conditional put's precondition
	// does not hold.
	ErrConditionFailed = errors.New("store: condition failed")
)

// Item is one row of the table. Value is the row document encoded as JSON.
type Item struct {
	PK    string
	SK    string
	Value []byte
}

// Op describes the kind of committed write a change record reports.
type Op string

const (
	// OpInsert is a write that created the row.
	OpInsert Op = "insert"
	// OpModify is a write that replaced an existing row.
	OpModify Op = "modify"
	// OpRemove is a row deletion.
	OpRemove Op = "remove"
)

// ChangeRecord is one committed row image emitted on the change-feed.
// NewImage is nil for OpRemove.
type ChangeRecord struct {
	Op       Op     `json:"op"`
	PK       string `json:"pk"`
	SK       string `json:"sk"`
	NewImage []byte `json:"new_image,omitempty"`
}

// ChangePublisher receives change records for committed writes. Publish
// failures must not fail the originating write; implementations decide how
// to degrade (drop and count, buffer, etc.).
type ChangePublisher interface {
	PublishChange(record ChangeRecord)
}

// Store is the contract over the backing table.
//
// Every method takes a context for caller-supplied deadlines; exceeding a
// deadline surfaces as a database error at the engine boundary.
type Store interface {
	// Get returns the row at (pk, sk), or ErrItemNotFound.
	Get(ctx context.Context, pk, sk string) (*Item, error)

	// Put writes a row unconditionally.
	Put(ctx context.Context, item *Item) error

	// PutIfAbsent writes a row only if (pk, sk) does not exist, otherwise
	// returns ErrConditionFailed.
	PutIfAbsent(ctx context.Context, item *Item) error

	// PutIfNewer writes a row only if no row exists at (pk, sk) or the
	// existing row's numeric guardField is strictly less than the new row's.
	// Returns ErrConditionFailed when the guard rejects the write. The check
	// and the write happen in one transaction.
	PutIfNewer(ctx context.Context, item *Item, guardField string) error

	// Delete removes the row at (pk, sk). Deleting a missing row is not an
	// error.
	Delete(ctx context.Context, pk, sk string) error

	// Increment atomically adds delta to the numeric field of the row at
	// (pk, sk) and returns the new value. A missing row is treated as the
	// field holding 0 and is created by the increment.
	Increment(ctx context.Context, pk, sk, field string, delta uint64) (uint64, error)

	// QueryAfter returns up to limit rows within pk whose SK is strictly
	// greater than skAfter, in ascending SK order.
	QueryAfter(ctx context.Context, pk, skAfter string, limit int) ([]Item, error)

	// QueryPrefix returns up to limit rows within pk whose SK begins with
	// skPrefix, in ascending SK order. limit <= 0 means no limit.
	QueryPrefix(ctx context.Context, pk, skPrefix string, limit int) ([]Item, error)

	// ScanPK returns all rows whose PK begins with pkPrefix and whose SK
	// equals sk exactly. Used for cross-PK listings such as stream metadata.
	ScanPK(ctx context.Context, pkPrefix, sk string) ([]Item, error)

	// DeleteAll removes every row within pk in pages of pageSize, returning
	// the number of rows removed.
	DeleteAll(ctx context.Context, pk string, pageSize int) (int, error)

	// Close releases backend resources.
	Close() error
}
