// Package kv is a small JSON document store on top of badger, used for
// on-device state that does not belong in the relational store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store wraps a badger database and runs value-log GC in the background
// until Close is called.
type Store struct {
	db       *badger.DB
	cancelGC func()
	wg       sync.WaitGroup
}

// Open opens (or creates) the badger database at dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", opts.Dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{db: db, cancelGC: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for s.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return s, nil
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	s.cancelGC()
	s.wg.Wait()
	return s.db.Close()
}

// Key joins a prefix and an id into a store key ("prefix:id").
func Key(prefix, id string) []byte {
	return []byte(prefix + ":" + id)
}

// Put JSON-encodes v under key, replacing any previous value.
func (s *Store) Put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to JSON marshal value for key %s: %w", key, err)
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(key, data)
	})
}

// Get decodes the value stored under key into v.
func (s *Store) Get(key []byte, v interface{}) error {
	return s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get value for key %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
			}
			return nil
		})
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key []byte) error {
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(key)
	})
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed. Deletes that outgrow one transaction are committed in
// batches, so a failure part way leaves earlier batches applied.
func (s *Store) DeletePrefix(prefix []byte) (int, error) {
	var keys [][]byte
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	tx := s.db.NewTransaction(true)
	defer func() { tx.Discard() }()
	for _, k := range keys {
		err := tx.Delete(k)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := tx.Commit(); err != nil {
				return 0, fmt.Errorf("failed to commit delete batch: %w", err)
			}
			tx = s.db.NewTransaction(true)
			err = tx.Delete(k)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to delete key %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return len(keys), nil
}

// Each calls fn with the raw JSON value of every key under prefix, in key
// order. Returning an error from fn stops the iteration.
func (s *Store) Each(prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
