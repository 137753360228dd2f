// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

//go:build !nats

package main

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/eventledger/internal/changefeed"
	"github.com/tomtom215/eventledger/internal/config"
)

// buildFeedTransport wires the in-process change-feed: one gochannel pub/sub
// shared by the store's publisher and the compactor's subscriber.
func buildFeedTransport(cfg *config.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func(), error) {
	pubsub := changefeed.NewInProcessPubSub(logger)
	closeTransport := func() { _ = pubsub.Close() }
	return pubsub, pubsub, closeTransport, nil
}
