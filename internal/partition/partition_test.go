// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package partition

import (
	"fmt"
	"testing"
)

func TestConsistentPartitioning(t *testing.T) {
	p := New(3)

	key := "order-123"
	want := p.Partition(key)

	for i := 0; i < 100; i++ {
		if got := p.Partition(key); got != want {
			t.Fatalf("Partition(%q) = %d on iteration %d, want %d", key, got, i, want)
		}
	}
}

func TestPartitionRange(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "order-1", "order-2", "user-abc", ""}

	for _, n := range []uint32{1, 2, 3, 5, 16, 100} {
		p := New(n)
		for _, key := range keys {
			if got := p.Partition(key); got >= n {
				t.Errorf("Partition(%q) = %d out of range for count %d", key, got, n)
			}
		}
	}
}

func TestDistribution(t *testing.T) {
	p := New(4)
	counts := make(map[uint32]int)

	const total = 10000
	for i := 0; i < total; i++ {
		counts[p.Partition(fmt.Sprintf("key-%d", i))]++
	}

	// Each partition should receive roughly 25% of keys (allow 20-30%).
	for partition := uint32(0); partition < 4; partition++ {
		pct := float64(counts[partition]) / total * 100
		if pct <= 20 || pct >= 30 {
			t.Errorf("partition %d received %.1f%% of keys, outside 20-30%%", partition, pct)
		}
	}
}

func TestDifferentKeysCanCollide(t *testing.T) {
	p := New(2)

	base := p.Partition("key-0")
	found := false
	for i := 1; i < 100; i++ {
		if p.Partition(fmt.Sprintf("key-%d", i)) == base {
			found = true
			break
		}
	}

	if !found {
		t.Error("expected at least one partition collision among 100 keys with 2 partitions")
	}
}

func TestStableAcrossInstances(t *testing.T) {
	// Two partitioners with the same count must agree; the mapping is a pure
	// function of (key, count).
	a := New(10)
	b := New(10)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("entity-%d", i)
		if a.Partition(key) != b.Partition(key) {
			t.Fatalf("instances disagree for key %q", key)
		}
	}
}

func TestZeroPartitionsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero partition count")
		}
	}()
	New(0)
}
