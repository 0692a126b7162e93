// Copyright © 2018 One Concern

// Package store defines the ordered key-value contract that branches,
// revisions, commits and reviews are persisted to.
//
// Implementations live in sub-packages: bdgr (badger, on disk) and memory.
package store

import (
	"github.com/oneconcern/revstore/pkg/errors"
)

// ErrStopScan may be returned by a ScanFunc to end a scan early.
// Scan returns nil in that case.
var ErrStopScan = errors.New("stop scan")

// ScanFunc is called for every key found by a scan, in ascending key order.
//
// The key and value slices are only valid during the call: copy them to retain them.
type ScanFunc func(key, value []byte) error

// A Reader reads a consistent snapshot of the store
type Reader interface {
	// Get the value at key, or status.ErrKeyNotFound
	Get(key []byte) ([]byte, error)

	// Has tells if key exists
	Has(key []byte) (bool, error)

	// Scan iterates over keys starting with prefix, starting at from (or at prefix when from is nil)
	Scan(prefix, from []byte, fn ScanFunc) error
}

// A Txn is a read-write transaction. Reads observe the writes made earlier in the same transaction.
type Txn interface {
	Reader

	Set(key, value []byte) error
	Delete(key []byte) error
}

// A Store is an ordered key-value store with snapshot reads and atomic write transactions
type Store interface {
	// View runs fn against a read-only snapshot
	View(fn func(Reader) error) error

	// Update runs fn in a read-write transaction, committed atomically when fn returns nil.
	//
	// fn may be called several times when the implementation retries on conflicts.
	Update(fn func(Txn) error) error

	Close() error
}
