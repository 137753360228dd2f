// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package ledger implements the engine: stream registry, append path,
// subscription registry, poll/commit, and the compacted-state read side.
//
// The package is transport-agnostic. HTTP lives in internal/api; the
// compactor lives in internal/compactor. All three meet at the store.
package ledger

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/errs"
	"github.com/tomtom215/eventledger/internal/logging"
	"github.com/tomtom215/eventledger/internal/metrics"
	"github.com/tomtom215/eventledger/internal/models"
	"github.com/tomtom215/eventledger/internal/partition"
	"github.com/tomtom215/eventledger/internal/store"
	"github.com/tomtom215/eventledger/internal/validation"
)

// idPattern constrains stream and subscription identifiers. They embed into
// PKs, so the separator characters of the key layout are excluded.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Service is the engine over the backing table.
type Service struct {
	store store.Store

	// maxPollLimit caps the poll limit query parameter.
	maxPollLimit int
	// deletePageSize caps rows removed per store call during purges.
	deletePageSize int
}

// Config holds engine settings.
type Config struct {
	MaxPollLimit   int
	DeletePageSize int
}

// New creates the engine over a store.
func New(s store.Store, cfg Config) *Service {
	if cfg.MaxPollLimit <= 0 {
		cfg.MaxPollLimit = 1000
	}
	if cfg.DeletePageSize <= 0 {
		cfg.DeletePageSize = 500
	}
	return &Service{
		store:          s,
		maxPollLimit:   cfg.MaxPollLimit,
		deletePageSize: cfg.DeletePageSize,
	}
}

// CreateStream registers a new stream. Partition count and retention default
// when omitted. Creating over an existing stream fails with
// stream_already_exists.
func (s *Service) CreateStream(ctx context.Context, req models.CreateStreamRequest) (*models.Stream, error) {
	if ve := validation.ValidateStruct(&req); ve != nil {
		return nil, errs.Wrap(errs.KindValidation, ve, "Invalid create stream request")
	}
	if !idPattern.MatchString(req.StreamID) {
		return nil, errs.New(errs.KindInvalidStreamID,
			"Stream ID must contain only letters, digits, hyphens, and underscores: %s", req.StreamID)
	}
	req.ApplyDefaults()

	stream := models.NewStream(req.StreamID, req.PartitionCount, req.RetentionHours)
	value, err := json.Marshal(stream)
	if err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to encode stream metadata")
	}

	err = s.store.PutIfAbsent(ctx, &store.Item{PK: streamPK(stream.StreamID), SK: metaSK, Value: value})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, errs.StreamAlreadyExists(stream.StreamID)
	}
	if err != nil {
		return nil, errs.Database(err)
	}

	// Partition counters start at zero lazily: the atomic increment
	// initializes a missing counter row, so nothing is pre-created here.

	logging.Info().
		Str("stream_id", stream.StreamID).
		Uint32("partitions", stream.PartitionCount).
		Msg("Stream created")
	return &stream, nil
}

// GetStream returns stream metadata.
func (s *Service) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	item, err := s.store.Get(ctx, streamPK(streamID), metaSK)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, errs.StreamNotFound(streamID)
	}
	if err != nil {
		return nil, errs.Database(err)
	}

	var stream models.Stream
	if err := json.Unmarshal(item.Value, &stream); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode stream metadata")
	}
	return &stream, nil
}

// ListStreams returns metadata for every stream, ordered by stream ID.
func (s *Service) ListStreams(ctx context.Context) ([]models.Stream, error) {
	items, err := s.store.ScanPK(ctx, streamPKPrefix, metaSK)
	if err != nil {
		return nil, errs.Database(err)
	}

	streams := make([]models.Stream, 0, len(items))
	for _, item := range items {
		var stream models.Stream
		if err := json.Unmarshal(item.Value, &stream); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode stream metadata")
		}
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].StreamID < streams[j].StreamID })
	return streams, nil
}

// DeleteStream removes a stream and everything under it: events, counters,
// subscriptions, committed offsets, and the compacted projection. The purge
// runs in pages so one request never holds a giant transaction.
func (s *Service) DeleteStream(ctx context.Context, streamID string) error {
	stream, err := s.GetStream(ctx, streamID)
	if err != nil {
		return err
	}

	// Subscriptions first: their offset PKs hang off the SUB rows.
	subs, err := s.listSubscriptions(ctx, streamID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if _, err := s.store.DeleteAll(ctx, offsetPK(streamID, sub.SubscriptionID), s.deletePageSize); err != nil {
			return errs.Database(err)
		}
	}

	for p := uint32(0); p < stream.PartitionCount; p++ {
		if _, err := s.store.DeleteAll(ctx, partitionPK(streamID, p), s.deletePageSize); err != nil {
			return errs.Database(err)
		}
	}

	if _, err := s.store.DeleteAll(ctx, compactPK(streamID), s.deletePageSize); err != nil {
		return errs.Database(err)
	}

	// META and SUB rows go last so a racing publish still finds the stream
	// gone only after its data is gone too.
	if _, err := s.store.DeleteAll(ctx, streamPK(streamID), s.deletePageSize); err != nil {
		return errs.Database(err)
	}

	logging.Info().Str("stream_id", streamID).Int("subscriptions", len(subs)).Msg("Stream deleted")
	return nil
}

// Publish appends a batch of events. Each event is routed to a partition by
// its key, allocated the next sequence on that partition, and written as its
// own row. The batch shares one timestamp; batches are not atomic, so a
// failure mid-batch leaves earlier events appended.
func (s *Service) Publish(ctx context.Context, streamID string, events []models.PublishEvent) (*models.PublishResponse, error) {
	start := time.Now()
	defer func() { metrics.PublishDuration.Observe(time.Since(start).Seconds()) }()

	if len(events) == 0 {
		return nil, errs.Validation("Publish batch must contain at least one event")
	}

	stream, err := s.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	partitioner := partition.New(stream.PartitionCount)

	for i := range events {
		if ve := validation.ValidateStruct(&events[i]); ve != nil {
			return nil, errs.Wrap(errs.KindValidation, ve, "Invalid event at index %d", i)
		}
		if strings.ContainsRune(events[i].Key, 0) {
			return nil, errs.New(errs.KindInvalidEventKey, "Event key must not contain NUL bytes")
		}
	}

	now := time.Now().UTC()
	published := make([]models.PublishedEvent, 0, len(events))
	for _, ev := range events {
		p := partitioner.Partition(ev.Key)
		pk := partitionPK(streamID, p)

		seq, err := s.store.Increment(ctx, pk, counterSK, counterField, 1)
		if err != nil {
			return nil, errs.Database(err)
		}

		event := models.Event{
			StreamID:  streamID,
			Partition: p,
			Sequence:  seq,
			Key:       ev.Key,
			EventType: ev.EventType,
			Data:      ev.Data,
			Timestamp: now,
		}
		value, err := json.Marshal(event)
		if err != nil {
			return nil, errs.Wrap(errs.KindSerialization, err, "Failed to encode event")
		}
		if err := s.store.Put(ctx, &store.Item{PK: pk, SK: eventSK(seq), Value: value}); err != nil {
			return nil, errs.Database(err)
		}

		published = append(published, models.PublishedEvent{
			StreamID:  streamID,
			Partition: p,
			Sequence:  seq,
			Key:       ev.Key,
			Timestamp: now,
		})
	}

	metrics.EventsPublished.WithLabelValues(streamID).Add(float64(len(published)))
	return &models.PublishResponse{Events: published}, nil
}

// CreateSubscription registers a named consumer on a stream and initializes
// its per-partition offsets by start policy: latest skips existing events,
// earliest and compacted begin at 0.
func (s *Service) CreateSubscription(ctx context.Context, streamID string, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	if ve := validation.ValidateStruct(&req); ve != nil {
		return nil, errs.Wrap(errs.KindValidation, ve, "Invalid create subscription request")
	}
	if !idPattern.MatchString(req.SubscriptionID) {
		return nil, errs.New(errs.KindInvalidSubscriptionID,
			"Subscription ID must contain only letters, digits, hyphens, and underscores: %s", req.SubscriptionID)
	}
	req.ApplyDefaults()
	if !req.StartFrom.Valid() {
		return nil, errs.Validation("Unknown start_from policy: %s", req.StartFrom)
	}

	stream, err := s.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}

	sub := models.NewSubscription(streamID, req.SubscriptionID)
	value, err := json.Marshal(sub)
	if err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to encode subscription")
	}

	err = s.store.PutIfAbsent(ctx, &store.Item{PK: streamPK(streamID), SK: subSK(sub.SubscriptionID), Value: value})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, errs.SubscriptionAlreadyExists(sub.SubscriptionID)
	}
	if err != nil {
		return nil, errs.Database(err)
	}

	for p := uint32(0); p < stream.PartitionCount; p++ {
		offset := uint64(0)
		if req.StartFrom == models.StartFromLatest {
			offset, err = s.counterValue(ctx, streamID, p)
			if err != nil {
				return nil, err
			}
		}
		if err := s.writeOffset(ctx, streamID, sub.SubscriptionID, p, offset); err != nil {
			return nil, err
		}
	}

	logging.Info().
		Str("stream_id", streamID).
		Str("subscription_id", sub.SubscriptionID).
		Str("start_from", string(req.StartFrom)).
		Msg("Subscription created")
	return &sub, nil
}

// DeleteSubscription removes a subscription and its committed offsets.
func (s *Service) DeleteSubscription(ctx context.Context, streamID, subscriptionID string) error {
	if _, err := s.GetStream(ctx, streamID); err != nil {
		return err
	}
	if _, err := s.getSubscription(ctx, streamID, subscriptionID); err != nil {
		return err
	}

	if _, err := s.store.DeleteAll(ctx, offsetPK(streamID, subscriptionID), s.deletePageSize); err != nil {
		return errs.Database(err)
	}
	if err := s.store.Delete(ctx, streamPK(streamID), subSK(subscriptionID)); err != nil {
		return errs.Database(err)
	}

	logging.Info().
		Str("stream_id", streamID).
		Str("subscription_id", subscriptionID).
		Msg("Subscription deleted")
	return nil
}

// Poll reads the next batch of events for a subscription. The batch is split
// across partitions, merged in timestamp order, and truncated to limit. The
// returned cursor proposes per-partition offset advances covering exactly the
// returned events; nothing moves until the client commits it.
func (s *Service) Poll(ctx context.Context, streamID, subscriptionID string, limit int) (*models.PollResponse, error) {
	start := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	stream, err := s.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getSubscription(ctx, streamID, subscriptionID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = models.DefaultPollLimit
	}
	if limit > s.maxPollLimit {
		limit = s.maxPollLimit
	}
	perPartition := limit / int(stream.PartitionCount)
	if perPartition < 1 {
		perPartition = 1
	}

	committed := make([]uint64, stream.PartitionCount)
	var events []models.Event
	for p := uint32(0); p < stream.PartitionCount; p++ {
		committed[p], err = s.committedOffset(ctx, streamID, subscriptionID, p)
		if err != nil {
			return nil, err
		}

		items, err := s.store.QueryAfter(ctx, partitionPK(streamID, p), eventSK(committed[p]), perPartition)
		if err != nil {
			return nil, errs.Database(err)
		}
		for _, item := range items {
			// The counter row sorts before SEQ# rows and never matches the
			// strict after-bound, but decode defensively anyway.
			if _, ok := parseEventSK(item.SK); !ok {
				continue
			}
			var event models.Event
			if err := json.Unmarshal(item.Value, &event); err != nil {
				return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode event %s/%s", item.PK, item.SK)
			}
			events = append(events, event)
		}
	}

	// Stable sort preserves per-partition sequence order among equal
	// timestamps, so one batch published together replays in append order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}

	// Advance proposals cover only events actually returned; partitions that
	// contributed nothing keep their committed offset.
	next := append([]uint64(nil), committed...)
	for _, event := range events {
		if event.Sequence > next[event.Partition] {
			next[event.Partition] = event.Sequence
		}
	}
	state := models.CursorState{Offsets: make([]models.PartitionOffset, 0, stream.PartitionCount)}
	for p := uint32(0); p < stream.PartitionCount; p++ {
		state.Offsets = append(state.Offsets, models.PartitionOffset{Partition: p, Offset: next[p]})
	}
	cursor, err := encodeCursor(state)
	if err != nil {
		return nil, err
	}

	metrics.EventsPolled.WithLabelValues(streamID).Add(float64(len(events)))
	if events == nil {
		events = []models.Event{}
	}
	return &models.PollResponse{Events: events, Cursor: cursor, Remaining: 0}, nil
}

// Commit applies a poll cursor, advancing (or rewinding) the subscription's
// committed offsets. Partitions are written independently; a failure mid-way
// leaves earlier partitions committed, which at-least-once delivery absorbs.
func (s *Service) Commit(ctx context.Context, streamID, subscriptionID, cursor string) error {
	stream, err := s.GetStream(ctx, streamID)
	if err != nil {
		return err
	}
	if _, err := s.getSubscription(ctx, streamID, subscriptionID); err != nil {
		return err
	}

	state, err := decodeCursor(cursor)
	if err != nil {
		return err
	}
	for _, po := range state.Offsets {
		if po.Partition >= stream.PartitionCount {
			return errs.InvalidCursor("partition out of range")
		}
	}

	for _, po := range state.Offsets {
		if err := s.writeOffset(ctx, streamID, subscriptionID, po.Partition, po.Offset); err != nil {
			return err
		}
	}

	metrics.OffsetCommits.WithLabelValues(streamID).Add(float64(len(state.Offsets)))
	return nil
}

// ListCompacted returns the latest-per-key projection of a stream, ordered
// by key.
func (s *Service) ListCompacted(ctx context.Context, streamID string) ([]models.CompactedEvent, error) {
	if _, err := s.GetStream(ctx, streamID); err != nil {
		return nil, err
	}

	items, err := s.store.QueryPrefix(ctx, compactPK(streamID), keySKPrefix, 0)
	if err != nil {
		return nil, errs.Database(err)
	}

	entries := make([]models.CompactedEvent, 0, len(items))
	for _, item := range items {
		var entry models.CompactedEvent
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode compacted entry %s", item.SK)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetCompacted returns the latest compacted entry for one key.
func (s *Service) GetCompacted(ctx context.Context, streamID, key string) (*models.CompactedEvent, error) {
	if _, err := s.GetStream(ctx, streamID); err != nil {
		return nil, err
	}

	item, err := s.store.Get(ctx, compactPK(streamID), keySK(key))
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, errs.CompactedKeyNotFound(key)
	}
	if err != nil {
		return nil, errs.Database(err)
	}

	var entry models.CompactedEvent
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode compacted entry %s", key)
	}
	return &entry, nil
}

// getSubscription returns the SUB row, or subscription_not_found.
func (s *Service) getSubscription(ctx context.Context, streamID, subscriptionID string) (*models.Subscription, error) {
	item, err := s.store.Get(ctx, streamPK(streamID), subSK(subscriptionID))
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, errs.SubscriptionNotFound(subscriptionID)
	}
	if err != nil {
		return nil, errs.Database(err)
	}

	var sub models.Subscription
	if err := json.Unmarshal(item.Value, &sub); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode subscription")
	}
	return &sub, nil
}

// listSubscriptions returns every subscription on a stream.
func (s *Service) listSubscriptions(ctx context.Context, streamID string) ([]models.Subscription, error) {
	items, err := s.store.QueryPrefix(ctx, streamPK(streamID), subSKPrefix, 0)
	if err != nil {
		return nil, errs.Database(err)
	}

	subs := make([]models.Subscription, 0, len(items))
	for _, item := range items {
		var sub models.Subscription
		if err := json.Unmarshal(item.Value, &sub); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, err, "Failed to decode subscription")
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// counterValue reads a partition's current sequence without incrementing.
// A missing counter row means no events were appended yet.
func (s *Service) counterValue(ctx context.Context, streamID string, p uint32) (uint64, error) {
	item, err := s.store.Get(ctx, partitionPK(streamID, p), counterSK)
	if errors.Is(err, store.ErrItemNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Database(err)
	}

	var doc struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := json.Unmarshal(item.Value, &doc); err != nil {
		return 0, errs.Wrap(errs.KindSerialization, err, "Failed to decode counter row")
	}
	return doc.Sequence, nil
}

// committedOffset reads a subscription's committed offset on one partition.
// A missing offset row reads as 0.
func (s *Service) committedOffset(ctx context.Context, streamID, subscriptionID string, p uint32) (uint64, error) {
	item, err := s.store.Get(ctx, offsetPK(streamID, subscriptionID), offsetSK(p))
	if errors.Is(err, store.ErrItemNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Database(err)
	}

	var offset models.ConsumerOffset
	if err := json.Unmarshal(item.Value, &offset); err != nil {
		return 0, errs.Wrap(errs.KindSerialization, err, "Failed to decode offset row")
	}
	return offset.Offset, nil
}

// writeOffset stores one partition offset for a subscription.
func (s *Service) writeOffset(ctx context.Context, streamID, subscriptionID string, p uint32, offset uint64) error {
	row := models.ConsumerOffset{
		StreamID:       streamID,
		SubscriptionID: subscriptionID,
		Partition:      p,
		Offset:         offset,
		CommittedAt:    time.Now().UTC(),
	}
	value, err := json.Marshal(row)
	if err != nil {
		return errs.Wrap(errs.KindSerialization, err, "Failed to encode offset row")
	}
	if err := s.store.Put(ctx, &store.Item{PK: offsetPK(streamID, subscriptionID), SK: offsetSK(p), Value: value}); err != nil {
		return errs.Database(err)
	}
	return nil
}
