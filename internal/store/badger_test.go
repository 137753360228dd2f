// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// capturingFeed records change records for assertions.
type capturingFeed struct {
	mu      sync.Mutex
	records []ChangeRecord
}

func (f *capturingFeed) PublishChange(record ChangeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
}

func (f *capturingFeed) snapshot() []ChangeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChangeRecord, len(f.records))
	copy(out, f.records)
	return out
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := &Item{PK: "STREAM#orders", SK: "META", Value: []byte(`{"stream_id":"orders"}`)}
	if err := s.Put(ctx, item); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "STREAM#orders", "META")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != string(item.Value) {
		t.Errorf("value = %s, want %s", got.Value, item.Value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "STREAM#nope", "META")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestPutIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := &Item{PK: "STREAM#orders", SK: "META", Value: []byte(`{"v":1}`)}
	if err := s.PutIfAbsent(ctx, item); err != nil {
		t.Fatalf("first PutIfAbsent: %v", err)
	}

	dup := &Item{PK: "STREAM#orders", SK: "META", Value: []byte(`{"v":2}`)}
	if err := s.PutIfAbsent(ctx, dup); !errors.Is(err, ErrConditionFailed) {
		t.Errorf("second PutIfAbsent err = %v, want ErrConditionFailed", err)
	}

	got, err := s.Get(ctx, "STREAM#orders", "META")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `{"v":1}` {
		t.Errorf("value = %s, want original", got.Value)
	}
}

func TestPutIfNewer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk, sk := "STREAM#orders#COMPACT", "KEY#user-1"

	row := func(seq int) *Item {
		return &Item{PK: pk, SK: sk, Value: []byte(fmt.Sprintf(`{"key":"user-1","sequence":%d}`, seq))}
	}

	if err := s.PutIfNewer(ctx, row(5), "sequence"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.PutIfNewer(ctx, row(3), "sequence"); !errors.Is(err, ErrConditionFailed) {
		t.Errorf("stale write err = %v, want ErrConditionFailed", err)
	}
	if err := s.PutIfNewer(ctx, row(5), "sequence"); !errors.Is(err, ErrConditionFailed) {
		t.Errorf("equal write err = %v, want ErrConditionFailed", err)
	}
	if err := s.PutIfNewer(ctx, row(7), "sequence"); err != nil {
		t.Fatalf("newer write: %v", err)
	}

	got, err := s.Get(ctx, pk, sk)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := `{"key":"user-1","sequence":7}`; string(got.Value) != want {
		t.Errorf("value = %s, want %s", got.Value, want)
	}
}

func TestIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk, sk := "STREAM#orders#P0", "COUNTER"

	// Missing row starts from zero.
	n, err := s.Increment(ctx, pk, sk, "sequence", 1)
	if err != nil {
		t.Fatalf("first Increment: %v", err)
	}
	if n != 1 {
		t.Errorf("first value = %d, want 1", n)
	}

	n, err = s.Increment(ctx, pk, sk, "sequence", 3)
	if err != nil {
		t.Fatalf("second Increment: %v", err)
	}
	if n != 4 {
		t.Errorf("second value = %d, want 4", n)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk, sk := "STREAM#orders#P1", "COUNTER"

	const workers = 8
	const perWorker = 25

	seen := make(chan uint64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n, err := s.Increment(ctx, pk, sk, "sequence", 1)
				if err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
				seen <- n
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint64]bool)
	for n := range seen {
		if unique[n] {
			t.Fatalf("duplicate sequence %d", n)
		}
		unique[n] = true
	}
	if len(unique) != workers*perWorker {
		t.Errorf("got %d unique values, want %d", len(unique), workers*perWorker)
	}
}

func TestQueryAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk := "STREAM#orders#P0"

	for i := 1; i <= 5; i++ {
		sk := fmt.Sprintf("SEQ#%020d", i)
		item := &Item{PK: pk, SK: sk, Value: []byte(fmt.Sprintf(`{"sequence":%d}`, i))}
		if err := s.Put(ctx, item); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	// Neighboring PK must not leak in.
	if err := s.Put(ctx, &Item{PK: "STREAM#orders#P1", SK: "SEQ#" + fmt.Sprintf("%020d", 1), Value: []byte(`{}`)}); err != nil {
		t.Fatalf("Put neighbor: %v", err)
	}

	items, err := s.QueryAfter(ctx, pk, fmt.Sprintf("SEQ#%020d", 2), 10)
	if err != nil {
		t.Fatalf("QueryAfter: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("SEQ#%020d", i+3)
		if item.SK != want {
			t.Errorf("items[%d].SK = %q, want %q", i, item.SK, want)
		}
	}

	limited, err := s.QueryAfter(ctx, pk, "SEQ#", 2)
	if err != nil {
		t.Fatalf("QueryAfter limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited got %d items, want 2", len(limited))
	}
}

func TestQueryPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk := "STREAM#orders"

	rows := map[string]string{
		"META":        `{"stream_id":"orders"}`,
		"SUB#billing": `{"subscription_id":"billing"}`,
		"SUB#audit":   `{"subscription_id":"audit"}`,
	}
	for sk, val := range rows {
		if err := s.Put(ctx, &Item{PK: pk, SK: sk, Value: []byte(val)}); err != nil {
			t.Fatalf("Put %s: %v", sk, err)
		}
	}

	items, err := s.QueryPrefix(ctx, pk, "SUB#", 0)
	if err != nil {
		t.Fatalf("QueryPrefix: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].SK != "SUB#audit" || items[1].SK != "SUB#billing" {
		t.Errorf("order = %q, %q; want SUB#audit, SUB#billing", items[0].SK, items[1].SK)
	}
}

func TestScanPK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"orders", "payments"} {
		pk := "STREAM#" + sid
		if err := s.Put(ctx, &Item{PK: pk, SK: "META", Value: []byte(`{"stream_id":"` + sid + `"}`)}); err != nil {
			t.Fatalf("Put %s: %v", sid, err)
		}
		if err := s.Put(ctx, &Item{PK: pk, SK: "SUB#x", Value: []byte(`{}`)}); err != nil {
			t.Fatalf("Put sub %s: %v", sid, err)
		}
	}

	items, err := s.ScanPK(ctx, "STREAM#", "META")
	if err != nil {
		t.Fatalf("ScanPK: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.SK != "META" {
			t.Errorf("non-META row leaked: %s/%s", item.PK, item.SK)
		}
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pk := "STREAM#orders#P0"

	for i := 1; i <= 7; i++ {
		sk := fmt.Sprintf("SEQ#%020d", i)
		if err := s.Put(ctx, &Item{PK: pk, SK: sk, Value: []byte(`{}`)}); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := s.Put(ctx, &Item{PK: "STREAM#orders#P1", SK: "COUNTER", Value: []byte(`{}`)}); err != nil {
		t.Fatalf("Put neighbor: %v", err)
	}

	deleted, err := s.DeleteAll(ctx, pk, 3)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if deleted != 7 {
		t.Errorf("deleted = %d, want 7", deleted)
	}

	items, err := s.QueryPrefix(ctx, pk, "", 0)
	if err != nil {
		t.Fatalf("QueryPrefix: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("rows remain after purge: %d", len(items))
	}

	if _, err := s.Get(ctx, "STREAM#orders#P1", "COUNTER"); err != nil {
		t.Errorf("neighbor PK lost: %v", err)
	}
}

func TestChangeFeedRecords(t *testing.T) {
	s := newTestStore(t)
	feed := &capturingFeed{}
	s.SetChangePublisher(feed)
	ctx := context.Background()

	if err := s.Put(ctx, &Item{PK: "STREAM#a#P0", SK: "SEQ#00000000000000000001", Value: []byte(`{"sequence":1}`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, &Item{PK: "STREAM#a#P0", SK: "SEQ#00000000000000000001", Value: []byte(`{"sequence":1,"x":2}`)}); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if err := s.Delete(ctx, "STREAM#a#P0", "SEQ#00000000000000000001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	records := feed.snapshot()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	wantOps := []Op{OpInsert, OpModify, OpRemove}
	for i, want := range wantOps {
		if records[i].Op != want {
			t.Errorf("records[%d].Op = %q, want %q", i, records[i].Op, want)
		}
	}
	if records[2].NewImage != nil {
		t.Errorf("remove record carries an image")
	}
}

func TestConditionFailedPublishesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, &Item{PK: "STREAM#a", SK: "META", Value: []byte(`{"v":1}`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	feed := &capturingFeed{}
	s.SetChangePublisher(feed)

	if err := s.PutIfAbsent(ctx, &Item{PK: "STREAM#a", SK: "META", Value: []byte(`{"v":2}`)}); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("err = %v, want ErrConditionFailed", err)
	}
	if len(feed.snapshot()) != 0 {
		t.Error("rejected write produced a change record")
	}
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Get(ctx, "STREAM#a", "META"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get err = %v, want context.Canceled", err)
	}
	if err := s.Put(ctx, &Item{PK: "STREAM#a", SK: "META", Value: []byte(`{}`)}); !errors.Is(err, context.Canceled) {
		t.Errorf("Put err = %v, want context.Canceled", err)
	}
}
