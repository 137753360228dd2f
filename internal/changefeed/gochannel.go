// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package changefeed

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewInProcessPubSub builds the default single-process feed transport. The
// compactor subscribes to the same instance the store publishes to.
//
// Persistent is off: records for writes committed before the compactor
// subscribes are not replayed, matching the crash-recovery posture of the
// feed (a restarted compactor resumes from live traffic and the monotonic
// guard absorbs any replays the transport does deliver).
func NewInProcessPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1024,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}
