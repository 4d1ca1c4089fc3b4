// store.go: BadgerDB backing store for write-behind tiers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package badgerstore is a writebehind.CacheStore backed by BadgerDB. It
// implements the bulk capabilities, so a draining tier persists a whole
// batch in one WriteBatch.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/agilira/writebehind"
)

// Codec converts values to and from their stored bytes.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// JSONCodec encodes values with encoding/json.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

// Config configures a Store opened with Open.
type Config[V any] struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory only.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Prefix namespaces the keys of this store, so several stores can share
	// one database.
	Prefix string

	// Codec encodes values. Default: JSONCodec.
	Codec Codec[V]
}

// Store persists string-keyed values in BadgerDB.
type Store[V any] struct {
	db     *badger.DB
	prefix []byte
	codec  Codec[V]
	ownsDB bool
}

// Open opens (or creates) a database and returns a Store that owns it.
func Open[V any](cfg Config[V]) (*Store[V], error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required unless InMemory is set")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	s := New[V](db, cfg.Prefix, cfg.Codec)
	s.ownsDB = true
	return s, nil
}

// New returns a Store over an already opened database. Close does not
// close db.
func New[V any](db *badger.DB, prefix string, codec Codec[V]) *Store[V] {
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	return &Store[V]{db: db, prefix: []byte(prefix), codec: codec}
}

func (s *Store[V]) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

// Load reads one key.
func (s *Store[V]) Load(ctx context.Context, key string) (V, bool, error) {
	var (
		value V
		found bool
	)
	if err := ctx.Err(); err != nil {
		return value, false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		v, ok, err := s.get(txn, key)
		value, found = v, ok
		return err
	})
	return value, found, err
}

func (s *Store[V]) get(txn *badger.Txn, key string) (V, bool, error) {
	var zero V
	item, err := txn.Get(s.key(key))
	if err == badger.ErrKeyNotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var value V
	err = item.Value(func(val []byte) error {
		var decErr error
		value, decErr = s.codec.Unmarshal(val)
		return decErr
	})
	if err != nil {
		return zero, false, fmt.Errorf("badgerstore: decode %q: %w", key, err)
	}
	return value, true, nil
}

// LoadAll reads keys in one read transaction. Absent keys are omitted.
func (s *Store[V]) LoadAll(ctx context.Context, keys []string) (map[string]V, error) {
	out := make(map[string]V, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, ok, err := s.get(txn, k)
			if err != nil {
				return err
			}
			if ok {
				out[k] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Store writes one value.
func (s *Store[V]) Store(ctx context.Context, key string, value V) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("badgerstore: encode %q: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), data)
	})
}

// StoreAll writes entries in one WriteBatch. Later entries for the same
// key win.
func (s *Store[V]) StoreAll(ctx context.Context, entries []writebehind.Pair[string, V]) error {
	wb := s.db.NewWriteBatch()
	for _, e := range entries {
		err := ctx.Err()
		if err == nil {
			var data []byte
			if data, err = s.codec.Marshal(e.Value); err != nil {
				err = fmt.Errorf("badgerstore: encode %q: %w", e.Key, err)
			} else {
				err = wb.Set(s.key(e.Key), data)
			}
		}
		if err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

// Erase deletes one key. Deleting an absent key is not an error.
func (s *Store[V]) Erase(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}

// EraseAll deletes keys in one WriteBatch.
func (s *Store[V]) EraseAll(ctx context.Context, keys []string) error {
	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		err := ctx.Err()
		if err == nil {
			err = wb.Delete(s.key(k))
		}
		if err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

// Len counts the keys under the store prefix.
func (s *Store[V]) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database if the store opened it.
func (s *Store[V]) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var (
	_ writebehind.CacheStore[string, int] = (*Store[int])(nil)
	_ writebehind.BulkLoader[string, int] = (*Store[int])(nil)
	_ writebehind.BulkStorer[string, int] = (*Store[int])(nil)
	_ writebehind.BulkEraser[string]      = (*Store[int])(nil)
)
