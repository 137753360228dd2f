// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package compactor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/changefeed"
	"github.com/tomtom215/eventledger/internal/config"
	"github.com/tomtom215/eventledger/internal/errs"
	"github.com/tomtom215/eventledger/internal/ledger"
	"github.com/tomtom215/eventledger/internal/models"
	"github.com/tomtom215/eventledger/internal/store"
)

func testCompactorConfig() config.CompactorConfig {
	return config.CompactorConfig{
		Enabled:       true,
		Topic:         "ledger.changes",
		PoisonTopic:   "ledger.changes.poison",
		RetryCount:    2,
		RetryInterval: 10 * time.Millisecond,
	}
}

func newTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// eventRecord builds the change record the store would emit for one
// appended event.
func eventRecord(t *testing.T, streamID string, partition uint32, seq uint64, key, data string) store.ChangeRecord {
	t.Helper()
	event := models.Event{
		StreamID:  streamID,
		Partition: partition,
		Sequence:  seq,
		Key:       key,
		EventType: "counter.incremented",
		Data:      []byte(data),
		Timestamp: time.Now().UTC(),
	}
	image, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return store.ChangeRecord{
		Op:       store.OpInsert,
		PK:       fmt.Sprintf("STREAM#%s#P%d", streamID, partition),
		SK:       fmt.Sprintf("SEQ#%020d", seq),
		NewImage: image,
	}
}

func newApplyOnlyCompactor(t *testing.T, s store.Store) *Compactor {
	t.Helper()
	pubsub := changefeed.NewInProcessPubSub(watermill.NopLogger{})
	t.Cleanup(func() { pubsub.Close() })

	c, err := New(s, pubsub, pubsub, testCompactorConfig(), watermill.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func readCompacted(t *testing.T, s store.Store, streamID, key string) models.CompactedEvent {
	t.Helper()
	pk, sk := ledger.CompactedRowKey(streamID, key)
	item, err := s.Get(context.Background(), pk, sk)
	if err != nil {
		t.Fatalf("read compacted row: %v", err)
	}
	var entry models.CompactedEvent
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		t.Fatalf("decode compacted row: %v", err)
	}
	return entry
}

func TestApplyIdempotent(t *testing.T) {
	s := newTestStore(t)
	c := newApplyOnlyCompactor(t, s)
	ctx := context.Background()

	record := eventRecord(t, "idem", 0, 3, "x", `{"v":3}`)
	for i := 0; i < 4; i++ {
		if err := c.Apply(ctx, record); err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}

	entry := readCompacted(t, s, "idem", "x")
	if entry.Sequence != 3 || string(entry.Data) != `{"v":3}` {
		t.Errorf("entry = seq %d data %s, want seq 3 data {\"v\":3}", entry.Sequence, entry.Data)
	}
}

func TestApplyMonotone(t *testing.T) {
	s := newTestStore(t)
	c := newApplyOnlyCompactor(t, s)
	ctx := context.Background()

	newer := eventRecord(t, "mono", 0, 9, "x", `{"v":9}`)
	older := eventRecord(t, "mono", 0, 4, "x", `{"v":4}`)

	if err := c.Apply(ctx, newer); err != nil {
		t.Fatalf("Apply newer: %v", err)
	}
	if err := c.Apply(ctx, older); err != nil {
		t.Fatalf("Apply older: %v", err)
	}

	entry := readCompacted(t, s, "mono", "x")
	if entry.Sequence != 9 || string(entry.Data) != `{"v":9}` {
		t.Errorf("entry = seq %d data %s, want seq 9 data {\"v\":9}", entry.Sequence, entry.Data)
	}
}

func TestReplayOrderConverges(t *testing.T) {
	s := newTestStore(t)
	c := newApplyOnlyCompactor(t, s)
	ctx := context.Background()

	one := eventRecord(t, "replay", 0, 1, "x", `{"v":1}`)
	two := eventRecord(t, "replay", 0, 2, "x", `{"v":2}`)

	// Delivery order 2, 1, 2.
	for _, record := range []store.ChangeRecord{two, one, two} {
		if err := c.Apply(ctx, record); err != nil {
			t.Fatalf("Apply seq %s: %v", record.SK, err)
		}
	}

	entry := readCompacted(t, s, "replay", "x")
	if entry.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", entry.Sequence)
	}
	if string(entry.Data) != `{"v":2}` {
		t.Errorf("Data = %s, want {\"v\":2}", entry.Data)
	}
}

func TestApplyIgnoresNonEventRecords(t *testing.T) {
	s := newTestStore(t)
	c := newApplyOnlyCompactor(t, s)
	ctx := context.Background()

	records := []store.ChangeRecord{
		{Op: store.OpRemove, PK: "STREAM#a#P0", SK: "SEQ#00000000000000000001"},
		{Op: store.OpModify, PK: "STREAM#a#P0", SK: "COUNTER", NewImage: []byte(`{"sequence":5}`)},
		{Op: store.OpInsert, PK: "STREAM#a", SK: "META", NewImage: []byte(`{"stream_id":"a"}`)},
		{Op: store.OpInsert, PK: "STREAM#a#SUB#s1", SK: "OFFSET#P0", NewImage: []byte(`{"offset":1}`)},
		{Op: store.OpInsert, PK: "STREAM#a#COMPACT", SK: "KEY#x", NewImage: []byte(`{"sequence":1}`)},
	}
	for _, record := range records {
		if err := c.Apply(ctx, record); err != nil {
			t.Errorf("Apply(%s/%s): %v", record.PK, record.SK, err)
		}
	}

	pk, sk := ledger.CompactedRowKey("a", "x")
	if _, err := s.Get(ctx, pk, sk); err == nil {
		t.Error("non-event record produced a compacted row")
	}
}

func TestApplySkipsMalformedImages(t *testing.T) {
	s := newTestStore(t)
	c := newApplyOnlyCompactor(t, s)
	ctx := context.Background()

	records := []store.ChangeRecord{
		{Op: store.OpInsert, PK: "STREAM#a#P0", SK: "SEQ#00000000000000000001", NewImage: []byte(`not json`)},
		{Op: store.OpInsert, PK: "STREAM#a#P0", SK: "SEQ#00000000000000000002", NewImage: []byte(`{"sequence":2}`)},
	}
	for _, record := range records {
		if err := c.Apply(ctx, record); err != nil {
			t.Errorf("Apply(%s): %v", record.SK, err)
		}
	}
}

func TestEndToEndThroughFeed(t *testing.T) {
	s := newTestStore(t)

	pubsub := changefeed.NewInProcessPubSub(watermill.NopLogger{})
	defer pubsub.Close()

	c, err := New(s, pubsub, pubsub, testCompactorConfig(), watermill.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()
	select {
	case <-c.router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	// Wire the feed to the store and run real publishes through the engine.
	s.SetChangePublisher(changefeed.NewPublisher(pubsub, "ledger.changes"))
	svc := ledger.New(s, ledger.Config{})
	if _, err := svc.CreateStream(ctx, models.CreateStreamRequest{StreamID: "e2e", PartitionCount: 1}); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	for i := 1; i <= 3; i++ {
		_, err := svc.Publish(ctx, "e2e", []models.PublishEvent{{
			Key:       "x",
			EventType: "counter.incremented",
			Data:      []byte(fmt.Sprintf(`{"v":%d}`, i)),
		}})
		if err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		entry, err := svc.GetCompacted(ctx, "e2e", "x")
		if err == nil && entry.Sequence == 3 {
			if string(entry.Data) != `{"v":3}` {
				t.Errorf("Data = %s, want {\"v\":3}", entry.Data)
			}
			break
		}
		if err != nil && !errs.IsKind(err, errs.KindCompactedKeyNotFound) {
			t.Fatalf("GetCompacted: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("compacted row never reached sequence 3 (last: %+v, err: %v)", entry, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop")
	}
}
