// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/errs"
	"github.com/tomtom215/eventledger/internal/logging"
	"github.com/tomtom215/eventledger/internal/models"
)

// maxBodyBytes caps request bodies. Event payloads are documents, not blobs.
const maxBodyBytes = 1 << 20

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError translates an engine error into its stable code and status.
// Internal details never leak to clients; they go to the log.
func respondError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)

	message := "Internal server error"
	var typed *errs.Error
	if errors.As(err, &typed) && kind != errs.KindInternal && kind != errs.KindDatabase {
		message = typed.Message
	}
	if kind == errs.KindDatabase {
		message = "Database error"
	}
	if kind.HTTPStatus() >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("code", kind.Code()).Msg("Request failed")
	}

	respondJSON(w, kind.HTTPStatus(), models.ErrorResponse{
		Error:   kind.Code(),
		Message: message,
	})
}

// decodeBody reads and decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errs.Wrap(errs.KindSerialization, err, "Failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errs.New(errs.KindSerialization, "Request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errs.Wrap(errs.KindSerialization, err, "Request body is not valid JSON")
	}
	return nil
}

// decodePublishBody accepts the three publish body shapes: a single event
// object, a bare array of events, or an {events: [...]} envelope.
func decodePublishBody(r *http.Request) ([]models.PublishEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to read request body")
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errs.New(errs.KindSerialization, "Request body is empty")
	}

	if trimmed[0] == '[' {
		var events []models.PublishEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, err, "Request body is not an event array")
		}
		return events, nil
	}

	var envelope models.PublishRequest
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Request body is not valid JSON")
	}
	if envelope.Events != nil {
		return envelope.Events, nil
	}

	var single models.PublishEvent
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Request body is not an event")
	}
	return []models.PublishEvent{single}, nil
}
