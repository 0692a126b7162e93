// Package bdgr implements store.Store with badger.
//
// Write transactions that conflict with a concurrent writer are retried with a constant backoff.
package bdgr

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/status"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var _ store.Store = &Store{}

const (
	defaultRetries  = 20
	defaultInterval = 10 * time.Millisecond
)

// Option configures the badger store
type Option func(*settings)

type settings struct {
	dir        string
	inMemory   bool
	syncWrites bool
	fs         afero.Fs
	l          *zap.Logger
	retries    uint64
	interval   time.Duration
}

// Dir sets the directory holding the badger files
func Dir(dir string) Option {
	return func(s *settings) {
		s.dir = dir
	}
}

// InMemory runs badger without persistence
func InMemory(enabled bool) Option {
	return func(s *settings) {
		s.inMemory = enabled
	}
}

// SyncWrites fsyncs every commit
func SyncWrites(enabled bool) Option {
	return func(s *settings) {
		s.syncWrites = enabled
	}
}

// FileSystem used to prepare the data directory
func FileSystem(fs afero.Fs) Option {
	return func(s *settings) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// Logger for the store and the badger engine
func Logger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.l = l
		}
	}
}

// ConflictRetries sets how many times a conflicting transaction is retried
func ConflictRetries(retries uint64, interval time.Duration) Option {
	return func(s *settings) {
		s.retries = retries
		if interval > 0 {
			s.interval = interval
		}
	}
}

// Store is a badger backed key-value store
type Store struct {
	*badger.DB
	l        *zap.Logger
	retries  uint64
	interval time.Duration
	closed   *atomic.Bool
}

// Open a badger store
func Open(opts ...Option) (*Store, error) {
	s := settings{
		fs:       afero.NewOsFs(),
		l:        zap.NewNop(),
		retries:  defaultRetries,
		interval: defaultInterval,
	}
	for _, apply := range opts {
		apply(&s)
	}

	var bopts badger.Options
	if s.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if s.dir == "" {
			return nil, errors.New("badger store").WrapMessage("a data directory is required")
		}
		if err := s.fs.MkdirAll(s.dir, 0700); err != nil {
			return nil, errors.New("badger store").Wrap(err)
		}
		bopts = badger.DefaultOptions(s.dir).WithSyncWrites(s.syncWrites)
	}
	bopts = bopts.WithLogger(badgerLogger{SugaredLogger: s.l.Named("badger").Sugar()})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.New("badger store").WrapWithLog(s.l, err, zap.String("dir", s.dir))
	}
	s.l.Info("badger store opened", zap.String("dir", s.dir), zap.Bool("in_memory", s.inMemory))

	return &Store{
		DB:       db,
		l:        s.l,
		retries:  s.retries,
		interval: s.interval,
		closed:   atomic.NewBool(false),
	}, nil
}

// View runs fn in a read-only badger transaction
func (s *Store) View(fn func(store.Reader) error) error {
	if s.closed.Load() {
		return status.ErrStoreClosed
	}
	return s.DB.View(func(txn *badger.Txn) error {
		return fn(&reader{txn: txn})
	})
}

// Update runs fn in a read-write badger transaction, retried on conflicts
func (s *Store) Update(fn func(store.Txn) error) error {
	if s.closed.Load() {
		return status.ErrStoreClosed
	}
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		e := s.DB.Update(func(txn *badger.Txn) error {
			return fn(&writer{reader: reader{txn: txn}})
		})
		if e == nil {
			return nil
		}
		if errors.Is(e, badger.ErrConflict) {
			s.l.Debug("transaction conflict, retrying", zap.Int("attempt", attempt))
			return e
		}
		return backoff.Permanent(e)
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), s.retries))

	if errors.Is(err, badger.ErrConflict) {
		return status.ErrTxnConflict.WrapWithLog(s.l, err, zap.Int("attempts", attempt))
	}
	return err
}

// Close the underlying badger database. It is safe to call Close several times.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.DB.Close()
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return status.ErrKeyNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return status.ErrEmptyKey
	default:
		return err
	}
}

type reader struct {
	txn *badger.Txn
}

func (r *reader) Get(key []byte) ([]byte, error) {
	item, err := r.txn.Get(key)
	if err != nil {
		return nil, mapError(err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, mapError(err)
	}
	return value, nil
}

func (r *reader) Has(key []byte) (bool, error) {
	_, err := r.txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, mapError(err)
	}
}

func (r *reader) Scan(prefix, from []byte, fn store.ScanFunc) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	start := from
	if start == nil {
		start = prefix
	}
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(value []byte) error {
			return fn(item.Key(), value)
		})
		if errors.Is(err, store.ErrStopScan) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type writer struct {
	reader
}

func (w *writer) Set(key, value []byte) error {
	return mapError(w.txn.Set(key, value))
}

func (w *writer) Delete(key []byte) error {
	return mapError(w.txn.Delete(key))
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.Warnf(format, args...)
}
