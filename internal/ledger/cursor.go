// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package ledger

import (
	"encoding/base64"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/errs"
	"github.com/tomtom215/eventledger/internal/models"
)

// Cursors are opaque to clients: base64url without padding over a JSON
// offsets document. Clients echo them back verbatim on commit.

// encodeCursor serializes per-partition advance proposals into a cursor
// string.
func encodeCursor(state models.CursorState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", errs.Wrap(errs.KindSerialization, err, "Failed to encode cursor")
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// decodeCursor parses a client-supplied cursor. Any malformed input maps to
// invalid_cursor.
func decodeCursor(cursor string) (models.CursorState, error) {
	payload, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return models.CursorState{}, errs.InvalidCursor("not base64url")
	}
	var state models.CursorState
	if err := json.Unmarshal(payload, &state); err != nil {
		return models.CursorState{}, errs.InvalidCursor("not a valid offsets document")
	}
	return state, nil
}
