// Package memory implements an in-memory store.Store, on top of a copy-on-write btree.
//
// Readers work on lazy clones of the tree and never wait for writers.
package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/status"
)

var _ store.Store = &Store{}

const degree = 32

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is an in-memory key-value store
type Store struct {
	writer sync.Mutex

	mu      sync.Mutex
	current *btree.BTreeG[item]
	closed  bool
}

// New in-memory store
func New() *Store {
	return &Store{
		current: btree.NewG[item](degree, less),
	}
}

func (s *Store) snapshot() (*btree.BTreeG[item], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, status.ErrStoreClosed
	}
	return s.current.Clone(), nil
}

// View runs fn against a snapshot of the store
func (s *Store) View(fn func(store.Reader) error) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	return fn(&reader{tree: snap})
}

// Update runs fn against a private copy of the store, which replaces the current state when fn succeeds
func (s *Store) Update(fn func(store.Txn) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	work, err := s.snapshot()
	if err != nil {
		return err
	}
	if err := fn(&txn{reader: reader{tree: work}}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.ErrStoreClosed
	}
	s.current = work
	return nil
}

// Close the store. Data is discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.current = btree.NewG[item](degree, less)
	return nil
}

// Len returns the number of keys in the store
func (s *Store) Len() int {
	snap, err := s.snapshot()
	if err != nil {
		return 0
	}
	return snap.Len()
}

type reader struct {
	tree *btree.BTreeG[item]
}

func (r *reader) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, status.ErrEmptyKey
	}
	it, ok := r.tree.Get(item{key: key})
	if !ok {
		return nil, status.ErrKeyNotFound
	}
	return it.value, nil
}

func (r *reader) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, status.ErrEmptyKey
	}
	return r.tree.Has(item{key: key}), nil
}

func (r *reader) Scan(prefix, from []byte, fn store.ScanFunc) error {
	start := from
	if start == nil {
		start = prefix
	}
	var err error
	r.tree.AscendGreaterOrEqual(item{key: start}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		err = fn(it.key, it.value)
		return err == nil
	})
	if errors.Is(err, store.ErrStopScan) {
		return nil
	}
	return err
}

type txn struct {
	reader
}

func (t *txn) Set(key, value []byte) error {
	if len(key) == 0 {
		return status.ErrEmptyKey
	}
	t.tree.ReplaceOrInsert(item{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

func (t *txn) Delete(key []byte) error {
	if len(key) == 0 {
		return status.ErrEmptyKey
	}
	t.tree.Delete(item{key: key})
	return nil
}
