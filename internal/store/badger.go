// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/eventledger/internal/metrics"
)

// keySeparator joins PK and SK into one badger key. 0x00 sorts before every
// printable byte, so all rows of a PK are contiguous and SK-ordered, and no
// valid PK can collide with a longer PK sharing its prefix.
const keySeparator = byte(0x00)

// maxTxnRetries bounds the optimistic-retry loop around conflicting
// transactions. Badger detects write conflicts at commit; retrying preserves
// atomic read-modify-write semantics for the counter and the compaction
// guard.
const maxTxnRetries = 10

// BadgerStore implements Store on an embedded BadgerDB.
//
// Committed writes are reported to an optional ChangePublisher after the
// transaction commits; publish failures never fail the originating write.
type BadgerStore struct {
	db   *badger.DB
	feed ChangePublisher
}

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory runs badger without disk persistence.
	InMemory bool
}

// Open opens (creating if necessary) a badger-backed store.
func Open(opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}

	return &BadgerStore{db: db}, nil
}

// SetChangePublisher attaches the change-feed publisher. Must be called
// before the store receives writes; records for writes committed earlier are
// not replayed.
func (s *BadgerStore) SetChangePublisher(feed ChangePublisher) {
	s.feed = feed
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// encodeKey builds the badger key for (pk, sk).
func encodeKey(pk, sk string) []byte {
	key := make([]byte, 0, len(pk)+1+len(sk))
	key = append(key, pk...)
	key = append(key, keySeparator)
	key = append(key, sk...)
	return key
}

// decodeKey splits a badger key back into (pk, sk).
func decodeKey(key []byte) (pk, sk string, ok bool) {
	i := bytes.IndexByte(key, keySeparator)
	if i < 0 {
		return "", "", false
	}
	return string(key[:i]), string(key[i+1:]), true
}

// Get returns the row at (pk, sk), or ErrItemNotFound.
func (s *BadgerStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	start := time.Now()
	var item *Item
	err := s.withContext(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			entry, err := txn.Get(encodeKey(pk, sk))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrItemNotFound
			}
			if err != nil {
				return fmt.Errorf("get %s/%s: %w", pk, sk, err)
			}
			return entry.Value(func(val []byte) error {
				item = &Item{PK: pk, SK: sk, Value: append([]byte(nil), val...)}
				return nil
			})
		})
	})
	metrics.ObserveStoreOp("get", start, err)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Put writes a row unconditionally.
func (s *BadgerStore) Put(ctx context.Context, item *Item) error {
	start := time.Now()
	var op Op
	err := s.withContext(ctx, func() error {
		return s.updateWithRetry(func(txn *badger.Txn) error {
			op = OpInsert
			if _, err := txn.Get(encodeKey(item.PK, item.SK)); err == nil {
				op = OpModify
			}
			return txn.Set(encodeKey(item.PK, item.SK), item.Value)
		})
	})
	metrics.ObserveStoreOp("put", start, err)
	if err != nil {
		return err
	}
	s.publish(ChangeRecord{Op: op, PK: item.PK, SK: item.SK, NewImage: item.Value})
	return nil
}

// PutIfAbsent writes a row only if it does not exist.
func (s *BadgerStore) PutIfAbsent(ctx context.Context, item *Item) error {
	start := time.Now()
	err := s.withContext(ctx, func() error {
		return s.updateWithRetry(func(txn *badger.Txn) error {
			_, err := txn.Get(encodeKey(item.PK, item.SK))
			if err == nil {
				return ErrConditionFailed
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check %s/%s: %w", item.PK, item.SK, err)
			}
			return txn.Set(encodeKey(item.PK, item.SK), item.Value)
		})
	})
	metrics.ObserveStoreOp("put_if_absent", start, err)
	if err != nil {
		return err
	}
	s.publish(ChangeRecord{Op: OpInsert, PK: item.PK, SK: item.SK, NewImage: item.Value})
	return nil
}

// PutIfNewer writes a row only if absent or if the existing row's numeric
// guardField is strictly less than the new row's. The guard and the write
// share one transaction, so concurrent writers cannot interleave a stale
// overwrite.
func (s *BadgerStore) PutIfNewer(ctx context.Context, item *Item, guardField string) error {
	start := time.Now()
	newGuard, err := numericField(item.Value, guardField)
	if err != nil {
		metrics.ObserveStoreOp("put_if_newer", start, err)
		return fmt.Errorf("new image guard %q: %w", guardField, err)
	}

	var op Op
	err = s.withContext(ctx, func() error {
		return s.updateWithRetry(func(txn *badger.Txn) error {
			op = OpInsert
			entry, err := txn.Get(encodeKey(item.PK, item.SK))
			if err == nil {
				op = OpModify
				var existing uint64
				valErr := entry.Value(func(val []byte) error {
					existing, err = numericField(val, guardField)
					return err
				})
				if valErr != nil {
					return fmt.Errorf("existing guard %q: %w", guardField, valErr)
				}
				if existing >= newGuard {
					return ErrConditionFailed
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check %s/%s: %w", item.PK, item.SK, err)
			}
			return txn.Set(encodeKey(item.PK, item.SK), item.Value)
		})
	})
	metrics.ObserveStoreOp("put_if_newer", start, err)
	if err != nil {
		return err
	}
	s.publish(ChangeRecord{Op: op, PK: item.PK, SK: item.SK, NewImage: item.Value})
	return nil
}

// Delete removes the row at (pk, sk). Missing rows are not an error.
func (s *BadgerStore) Delete(ctx context.Context, pk, sk string) error {
	start := time.Now()
	err := s.withContext(ctx, func() error {
		return s.updateWithRetry(func(txn *badger.Txn) error {
			return txn.Delete(encodeKey(pk, sk))
		})
	})
	metrics.ObserveStoreOp("delete", start, err)
	if err != nil {
		return err
	}
	s.publish(ChangeRecord{Op: OpRemove, PK: pk, SK: sk})
	return nil
}

// Increment atomically adds delta to the numeric field at (pk, sk) and
// returns the new value. A missing row is initialized by the increment, so
// counters are self-healing after a partially initialized stream create.
func (s *BadgerStore) Increment(ctx context.Context, pk, sk, field string, delta uint64) (uint64, error) {
	start := time.Now()
	var newValue uint64
	var image []byte
	var op Op
	err := s.withContext(ctx, func() error {
		return s.updateWithRetry(func(txn *badger.Txn) error {
			op = OpInsert
			current := uint64(0)
			doc := map[string]json.RawMessage{}

			entry, err := txn.Get(encodeKey(pk, sk))
			if err == nil {
				op = OpModify
				valErr := entry.Value(func(val []byte) error {
					if err := json.Unmarshal(val, &doc); err != nil {
						return fmt.Errorf("decode counter row: %w", err)
					}
					return nil
				})
				if valErr != nil {
					return valErr
				}
				if raw, ok := doc[field]; ok {
					if err := json.Unmarshal(raw, &current); err != nil {
						return fmt.Errorf("decode counter field %q: %w", field, err)
					}
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check %s/%s: %w", pk, sk, err)
			}

			newValue = current + delta
			doc[field] = json.RawMessage(strconv.FormatUint(newValue, 10))

			encoded, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode counter row: %w", err)
			}
			image = encoded
			return txn.Set(encodeKey(pk, sk), encoded)
		})
	})
	metrics.ObserveStoreOp("increment", start, err)
	if err != nil {
		return 0, err
	}
	s.publish(ChangeRecord{Op: op, PK: pk, SK: sk, NewImage: image})
	return newValue, nil
}

// QueryAfter returns up to limit rows within pk whose SK is strictly greater
// than skAfter, in ascending SK order.
func (s *BadgerStore) QueryAfter(ctx context.Context, pk, skAfter string, limit int) ([]Item, error) {
	start := time.Now()
	var items []Item
	err := s.withContext(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := encodeKey(pk, "")
			seek := encodeKey(pk, skAfter)
			for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
				entry := it.Item()
				_, sk, ok := decodeKey(entry.Key())
				if !ok || sk <= skAfter {
					continue
				}
				val, err := entry.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("read %s/%s: %w", pk, sk, err)
				}
				items = append(items, Item{PK: pk, SK: sk, Value: val})
				if limit > 0 && len(items) >= limit {
					break
				}
			}
			return nil
		})
	})
	metrics.ObserveStoreOp("query_after", start, err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// QueryPrefix returns up to limit rows within pk whose SK begins with
// skPrefix, in ascending SK order. limit <= 0 means no limit.
func (s *BadgerStore) QueryPrefix(ctx context.Context, pk, skPrefix string, limit int) ([]Item, error) {
	start := time.Now()
	var items []Item
	err := s.withContext(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := encodeKey(pk, skPrefix)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				entry := it.Item()
				_, sk, ok := decodeKey(entry.Key())
				if !ok {
					continue
				}
				val, err := entry.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("read %s/%s: %w", pk, sk, err)
				}
				items = append(items, Item{PK: pk, SK: sk, Value: val})
				if limit > 0 && len(items) >= limit {
					break
				}
			}
			return nil
		})
	})
	metrics.ObserveStoreOp("query_prefix", start, err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ScanPK returns all rows whose PK begins with pkPrefix and whose SK equals
// sk exactly. The scan walks every PK sharing the prefix; listings are
// expected to be small (stream metadata).
func (s *BadgerStore) ScanPK(ctx context.Context, pkPrefix, sk string) ([]Item, error) {
	start := time.Now()
	var items []Item
	err := s.withContext(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := []byte(pkPrefix)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				entry := it.Item()
				pk, rowSK, ok := decodeKey(entry.Key())
				if !ok || rowSK != sk {
					continue
				}
				val, err := entry.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("read %s/%s: %w", pk, rowSK, err)
				}
				items = append(items, Item{PK: pk, SK: rowSK, Value: val})
			}
			return nil
		})
	})
	metrics.ObserveStoreOp("scan_pk", start, err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteAll removes every row within pk in pages of pageSize, returning the
// number of rows removed. Purge deletions are not reported on the
// change-feed.
func (s *BadgerStore) DeleteAll(ctx context.Context, pk string, pageSize int) (int, error) {
	start := time.Now()
	if pageSize <= 0 {
		pageSize = 500
	}

	deleted := 0
	var err error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}

		// Collect one page of keys, then delete them in a write transaction.
		var keys [][]byte
		err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := encodeKey(pk, "")
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
				if len(keys) >= pageSize {
					break
				}
			}
			return nil
		})
		if err != nil || len(keys) == 0 {
			break
		}

		err = s.updateWithRetry(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			break
		}
		deleted += len(keys)

		if len(keys) < pageSize {
			break
		}
	}

	metrics.ObserveStoreOp("delete_all", start, err)
	return deleted, err
}

// updateWithRetry runs fn in a read-write transaction, retrying on badger
// write conflicts. The bounded loop keeps atomic read-modify-write semantics
// without in-process locks.
func (s *BadgerStore) updateWithRetry(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction conflict persisted after %d attempts: %w", maxTxnRetries, err)
}

// withContext refuses work when the caller's deadline already expired.
// Badger calls are synchronous and short; the check keeps cancelled requests
// from queueing new work.
func (s *BadgerStore) withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// publish forwards a change record to the feed, if one is attached.
func (s *BadgerStore) publish(record ChangeRecord) {
	if s.feed != nil {
		s.feed.PublishChange(record)
	}
}

// numericField extracts a uint64 field from a JSON row document.
func numericField(doc []byte, field string) (uint64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return 0, fmt.Errorf("decode row: %w", err)
	}
	raw, ok := fields[field]
	if !ok {
		return 0, fmt.Errorf("field %q missing", field)
	}
	var value uint64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("field %q not numeric: %w", field, err)
	}
	return value, nil
}
