// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout over the single wide-row table. One stream spans several PKs so
// hot paths (append, poll) never contend on the metadata row:
//
//	STREAM#<sid>                  META, SUB#<subid>
//	STREAM#<sid>#P<p>             COUNTER, SEQ#<seq padded to 20 digits>
//	STREAM#<sid>#SUB#<subid>      OFFSET#P<p>
//	STREAM#<sid>#COMPACT          KEY#<event key>
const (
	streamPKPrefix = "STREAM#"
	metaSK         = "META"
	counterSK      = "COUNTER"
	subSKPrefix    = "SUB#"
	eventSKPrefix  = "SEQ#"
	offsetSKPrefix = "OFFSET#P"
	keySKPrefix    = "KEY#"

	// counterField is the numeric field inside the COUNTER row document.
	counterField = "sequence"
)

func streamPK(streamID string) string {
	return streamPKPrefix + streamID
}

func subSK(subscriptionID string) string {
	return subSKPrefix + subscriptionID
}

func partitionPK(streamID string, partition uint32) string {
	return fmt.Sprintf("STREAM#%s#P%d", streamID, partition)
}

// eventSK zero-pads the sequence to 20 digits so lexicographic SK order is
// numeric order for the full uint64 range.
func eventSK(sequence uint64) string {
	return fmt.Sprintf("SEQ#%020d", sequence)
}

// parseEventSK extracts the sequence from an event SK.
func parseEventSK(sk string) (uint64, bool) {
	if !strings.HasPrefix(sk, eventSKPrefix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(sk[len(eventSKPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func offsetPK(streamID, subscriptionID string) string {
	return fmt.Sprintf("STREAM#%s#SUB#%s", streamID, subscriptionID)
}

func offsetSK(partition uint32) string {
	return fmt.Sprintf("OFFSET#P%d", partition)
}

func compactPK(streamID string) string {
	return streamPKPrefix + streamID + "#COMPACT"
}

func keySK(eventKey string) string {
	return keySKPrefix + eventKey
}

// ParsePartitionPK extracts stream ID and partition from an event-row PK of
// the form STREAM#<sid>#P<p>. Used by the compactor to classify change
// records.
func ParsePartitionPK(pk string) (streamID string, partition uint32, ok bool) {
	if !strings.HasPrefix(pk, streamPKPrefix) {
		return "", 0, false
	}
	rest := pk[len(streamPKPrefix):]
	i := strings.LastIndex(rest, "#P")
	if i <= 0 {
		return "", 0, false
	}
	p, err := strconv.ParseUint(rest[i+2:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	sid := rest[:i]
	// Offset and compact PKs also contain '#'; only plain <sid>#P<p> counts.
	if strings.Contains(sid, "#") {
		return "", 0, false
	}
	return sid, uint32(p), true
}

// IsEventSK reports whether sk names an event row.
func IsEventSK(sk string) bool {
	return strings.HasPrefix(sk, eventSKPrefix)
}

// CompactedRowKey returns the (PK, SK) of a stream's compacted row for an
// event key. The compactor writes through this so its rows land where the
// read side looks.
func CompactedRowKey(streamID, eventKey string) (pk, sk string) {
	return compactPK(streamID), keySK(eventKey)
}
