// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

//go:build nats

package main

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/eventledger/internal/changefeed"
	"github.com/tomtom215/eventledger/internal/config"
)

// buildFeedTransport wires the change-feed over NATS JetStream so the
// compactor can run in another process and survive restarts on a durable
// consumer.
func buildFeedTransport(cfg *config.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func(), error) {
	pub, err := changefeed.NewNATSPublisher(cfg.NATS, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	sub, err := changefeed.NewNATSSubscriber(cfg.NATS, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, nil, err
	}
	closeTransport := func() {
		_ = sub.Close()
		_ = pub.Close()
	}
	return pub, sub, closeTransport, nil
}
