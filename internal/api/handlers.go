// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/eventledger/internal/errs"
	"github.com/tomtom215/eventledger/internal/ledger"
	"github.com/tomtom215/eventledger/internal/models"
	"github.com/tomtom215/eventledger/internal/store"
)

// Handler holds the endpoint implementations.
type Handler struct {
	svc   *ledger.Service
	store store.Store
}

// NewHandler creates the endpoint set over the engine.
func NewHandler(svc *ledger.Service, st store.Store) *Handler {
	return &Handler{svc: svc, store: st}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports store reachability. A probe read that comes back
// not-found still proves the store answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.Get(r.Context(), "HEALTH", "PROBE")
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateStream handles POST /streams.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStreamRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	stream, err := h.svc.CreateStream(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, stream)
}

// ListStreams handles GET /streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := h.svc.ListStreams(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ListStreamsResponse{Streams: streams})
}

// GetStream handles GET /streams/{stream_id}.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	stream, err := h.svc.GetStream(r.Context(), chi.URLParam(r, "stream_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stream)
}

// DeleteStream handles DELETE /streams/{stream_id}.
func (h *Handler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStream(r.Context(), chi.URLParam(r, "stream_id")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.DeleteResponse{Success: true})
}

// Publish handles POST /streams/{stream_id}/events.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	events, err := decodePublishBody(r)
	if err != nil {
		respondError(w, err)
		return
	}

	resp, err := h.svc.Publish(r.Context(), chi.URLParam(r, "stream_id"), events)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// CreateSubscription handles POST /streams/{stream_id}/subscriptions.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sub, err := h.svc.CreateSubscription(r.Context(), chi.URLParam(r, "stream_id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

// DeleteSubscription handles DELETE /streams/{stream_id}/subscriptions/{subscription_id}.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteSubscription(r.Context(),
		chi.URLParam(r, "stream_id"), chi.URLParam(r, "subscription_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.DeleteResponse{Success: true})
}

// Poll handles GET /streams/{stream_id}/subscriptions/{subscription_id}/poll.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, errs.Validation("limit must be a positive integer, got %q", raw))
			return
		}
		limit = parsed
	}

	resp, err := h.svc.Poll(r.Context(),
		chi.URLParam(r, "stream_id"), chi.URLParam(r, "subscription_id"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Commit handles POST /streams/{stream_id}/subscriptions/{subscription_id}/commit.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req models.CommitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Cursor == "" {
		respondError(w, errs.Validation("cursor is required"))
		return
	}

	err := h.svc.Commit(r.Context(),
		chi.URLParam(r, "stream_id"), chi.URLParam(r, "subscription_id"), req.Cursor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.CommitResponse{Success: true})
}

// ListCompacted handles GET /streams/{stream_id}/compacted.
func (h *Handler) ListCompacted(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListCompacted(r.Context(), chi.URLParam(r, "stream_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.CompactedEntriesResponse{Entries: entries})
}

// GetCompacted handles GET /streams/{stream_id}/compacted/{key}.
func (h *Handler) GetCompacted(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetCompacted(r.Context(),
		chi.URLParam(r, "stream_id"), chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}
