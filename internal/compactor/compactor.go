// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package compactor maintains the latest-per-key projection of every stream
// by consuming the store's change-feed.
//
// The worker is a Watermill router with retry middleware and a poison-queue
// topic. A malformed record is logged and acked; a store failure nacks the
// record for redelivery; a record that exhausts retries is parked on the
// poison topic. The monotonic sequence guard on the compacted row makes
// replays and reorderings safe, so at-least-once delivery is enough.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/changefeed"
	"github.com/tomtom215/eventledger/internal/config"
	"github.com/tomtom215/eventledger/internal/ledger"
	"github.com/tomtom215/eventledger/internal/logging"
	"github.com/tomtom215/eventledger/internal/metrics"
	"github.com/tomtom215/eventledger/internal/models"
	"github.com/tomtom215/eventledger/internal/store"
)

// guardField is the compacted row field the monotonic condition compares.
const guardField = "sequence"

// Compactor consumes change records and upserts compacted rows.
type Compactor struct {
	store  store.Store
	router *message.Router
}

// New builds the compaction worker over a change-feed subscriber. poisonPub
// may be nil to disable the poison queue (records that exhaust retries are
// then dropped by the retry middleware's final error).
func New(
	s store.Store,
	subscriber message.Subscriber,
	poisonPub message.Publisher,
	cfg config.CompactorConfig,
	logger watermill.LoggerAdapter,
) (*Compactor, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create compactor router: %w", err)
	}

	c := &Compactor{store: s, router: router}

	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     10 * cfg.RetryInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)
	if poisonPub != nil && cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(poisonPub, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		router.AddMiddleware(poison)
	}

	router.AddNoPublisherHandler(
		"compactor",
		cfg.Topic,
		subscriber,
		c.handle,
	)

	return c, nil
}

// Serve runs the worker until the context is canceled. It implements
// suture.Service.
func (c *Compactor) Serve(ctx context.Context) error {
	return c.router.Run(ctx)
}

// String names the worker for the supervisor's logs.
func (c *Compactor) String() string {
	return "compactor"
}

// Close stops the router outside supervision.
func (c *Compactor) Close() error {
	return c.router.Close()
}

// handle processes one feed message. A nil return acks; an error nacks for
// redelivery.
func (c *Compactor) handle(msg *message.Message) error {
	record, err := changefeed.DecodeRecord(msg.Payload)
	if err != nil {
		metrics.CompactionMalformed.Inc()
		logging.Warn().Err(err).Str("message_id", msg.UUID).
			Msg("Skipping malformed change record")
		return nil
	}
	return c.Apply(msg.Context(), record)
}

// Apply folds one change record into the compacted projection.
//
// Records are filtered down to event-row inserts/modifies; everything else on
// the feed (counters, metadata, offsets, removes) is acked untouched. The
// write succeeds only if the compacted row is absent or older, so any replay
// order converges on the highest sequence per key.
func (c *Compactor) Apply(ctx context.Context, record store.ChangeRecord) error {
	if record.Op != store.OpInsert && record.Op != store.OpModify {
		return nil
	}
	streamID, p, ok := ledger.ParsePartitionPK(record.PK)
	if !ok {
		return nil
	}
	if !ledger.IsEventSK(record.SK) {
		return nil
	}

	var event models.Event
	if err := json.Unmarshal(record.NewImage, &event); err != nil {
		metrics.CompactionMalformed.Inc()
		logging.Warn().Err(err).Str("pk", record.PK).Str("sk", record.SK).
			Msg("Skipping change record with undecodable event image")
		return nil
	}
	if event.Key == "" || event.Sequence == 0 {
		metrics.CompactionMalformed.Inc()
		logging.Warn().Str("pk", record.PK).Str("sk", record.SK).
			Msg("Skipping change record with incomplete event image")
		return nil
	}

	compacted := models.CompactedEvent{
		StreamID:  streamID,
		Key:       event.Key,
		EventType: event.EventType,
		Data:      event.Data,
		Sequence:  event.Sequence,
		Partition: p,
		Timestamp: event.Timestamp,
	}
	value, err := json.Marshal(compacted)
	if err != nil {
		metrics.CompactionMalformed.Inc()
		logging.Warn().Err(err).Str("key", event.Key).
			Msg("Skipping change record that failed to re-encode")
		return nil
	}

	pk, sk := ledger.CompactedRowKey(streamID, event.Key)
	err = c.store.PutIfNewer(ctx, &store.Item{PK: pk, SK: sk, Value: value}, guardField)
	if errors.Is(err, store.ErrConditionFailed) {
		metrics.CompactionSkipped.WithLabelValues(streamID).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("compact %s/%s: %w", pk, sk, err)
	}

	metrics.CompactionApplied.WithLabelValues(streamID).Inc()
	return nil
}
