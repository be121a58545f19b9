// Copyright (c) 2026 City Access Media

package broker

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// OverflowStore is a local, crash-safe staging area for envelopes a worker
// has reserved from a remote broker but not yet completed. Redis's BLPOP
// already removed the envelope from its list by the time a worker holds
// it, so a worker crash between Reserve and Complete would otherwise lose
// the task outright; OverflowStore lets the next startup recover it.
type OverflowStore struct {
	db *badger.DB
}

// NewOverflowStore opens (or creates) a badger database rooted at dir.
func NewOverflowStore(dir string) (*OverflowStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("broker: opening overflow store: %w", err)
	}
	return &OverflowStore{db: db}, nil
}

// Stage records env as reserved-but-not-yet-complete.
func (s *OverflowStore) Stage(env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("broker: encode staged envelope: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stageKey(env.ID), payload)
	})
}

// Unstage removes id's staged entry once its result has been reported.
func (s *OverflowStore) Unstage(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(stageKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Pending returns every envelope still staged, i.e. reserved by a worker
// that never reported completion — candidates for resubmission after a
// crash.
func (s *OverflowStore) Pending() ([]*Envelope, error) {
	var out []*Envelope
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(stagePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var env Envelope
				if err := json.Unmarshal(val, &env); err != nil {
					return err
				}
				out = append(out, &env)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Close releases the underlying badger database.
func (s *OverflowStore) Close() error {
	return s.db.Close()
}

const stagePrefix = "staged:"

func stageKey(id string) []byte {
	return []byte(stagePrefix + id)
}
