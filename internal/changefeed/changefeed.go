// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package changefeed carries committed row images from the store to the
// compactor over Watermill.
//
// The default transport is an in-process gochannel pub/sub. A NATS JetStream
// transport is available behind the nats build tag for multi-process
// deployments.
package changefeed

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/logging"
	"github.com/tomtom215/eventledger/internal/metrics"
	"github.com/tomtom215/eventledger/internal/store"
)

// EncodeRecord serializes a change record for the feed.
func EncodeRecord(record store.ChangeRecord) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode change record: %w", err)
	}
	return payload, nil
}

// DecodeRecord deserializes a change record from a feed message payload.
func DecodeRecord(payload []byte) (store.ChangeRecord, error) {
	var record store.ChangeRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return store.ChangeRecord{}, fmt.Errorf("decode change record: %w", err)
	}
	if record.Op == "" || record.PK == "" {
		return store.ChangeRecord{}, fmt.Errorf("change record missing op or pk")
	}
	return record, nil
}

// Publisher forwards change records to a Watermill topic. It implements
// store.ChangePublisher: a feed that cannot accept records must never stall
// or fail the writes that produced them, so failures are counted and the
// record is dropped. The circuit breaker keeps a wedged transport from
// adding publish latency to every commit.
type Publisher struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[any]
	mu        sync.RWMutex
	closed    bool
}

// NewPublisher wraps a Watermill publisher for the given topic.
func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	settings := gobreaker.Settings{
		Name: "changefeed-publish",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Change-feed breaker state changed")
		},
	}

	return &Publisher{
		publisher: publisher,
		topic:     topic,
		breaker:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// PublishChange implements store.ChangePublisher.
func (p *Publisher) PublishChange(record store.ChangeRecord) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		metrics.ChangeFeedDropped.Inc()
		return
	}
	p.mu.RUnlock()

	payload, err := EncodeRecord(record)
	if err != nil {
		metrics.ChangeFeedDropped.Inc()
		logging.Error().Err(err).Str("pk", record.PK).Str("sk", record.SK).
			Msg("Failed to encode change record")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("op", string(record.Op))

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(p.topic, msg)
	})
	if err != nil {
		metrics.ChangeFeedDropped.Inc()
		logging.Error().Err(err).Str("pk", record.PK).Str("sk", record.SK).
			Msg("Failed to publish change record")
		return
	}

	metrics.ChangeFeedPublished.Inc()
}

// Close stops the publisher. Records offered after Close are dropped.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
