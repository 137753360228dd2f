// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package partition maps event keys to partition numbers.
//
// The mapping is the sole source of per-key ordering: every event for a given
// key must land in the same partition for the lifetime of the stream, and
// partition counts are fixed at stream creation. The hash function therefore
// must never change for existing streams.
package partition

import (
	"crypto/sha256"
	"encoding/binary"
)

// Partitioner maps keys to partition numbers for a fixed partition count.
type Partitioner struct {
	partitionCount uint32
}

// New creates a partitioner. Panics if partitionCount is zero; a zero count
// is a programming error, not an input error, because stream creation
// validates partition_count >= 1 before any partitioner exists.
func New(partitionCount uint32) *Partitioner {
	if partitionCount == 0 {
		panic("partition: partition count must be > 0")
	}
	return &Partitioner{partitionCount: partitionCount}
}

// Partition maps a key to a partition number (0-based).
//
// SHA-256 of the UTF-8 key bytes, first 4 bytes big-endian as uint32, modulo
// the partition count. SHA-256 is used for uniform distribution and stability
// across implementations, not for cryptographic strength.
func (p *Partitioner) Partition(key string) uint32 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint32(sum[:4]) % p.partitionCount
}

// Count returns the partition count.
func (p *Partitioner) Count() uint32 {
	return p.partitionCount
}
