// Package branch maintains the tree of branches.
//
// Branches are soft-deleted and never erased: their history remains readable. Every branch has
// a write lock, which serializes the commits made on it. The package also owns the logical clock
// stamping commits and branch creations.
package branch

import (
	"sort"
	"time"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	storestatus "github.com/oneconcern/revstore/pkg/store/status"
	"go.uber.org/zap"
)

const defaultLockTimeout = 30 * time.Second

var (
	branchPref = [7]byte{'b', 'r', 'a', 'n', 'c', 'h', ':'}
	pathPref   = [5]byte{'p', 'a', 't', 'h', ':'}
)

func branchKey(id int64) []byte {
	return store.Key(branchPref[:], store.Int64(id))
}

func pathKey(path string) []byte {
	return store.Key(pathPref[:], path)
}

// Option configures the branch store
type Option func(*Store)

// Logger for the branch store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// LockTimeout bounds the time spent waiting for the write lock of a branch
func LockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Store manages branches in a key-value store
type Store struct {
	kv          store.Store
	clock       *Clock
	locks       *lockTable
	listeners   *listeners
	l           *zap.Logger
	lockTimeout time.Duration
}

// New branch store. The MAIN branch is created when missing.
func New(kv store.Store, opts ...Option) (*Store, error) {
	s := &Store{
		kv:          kv,
		locks:       newLockTable(),
		listeners:   &listeners{},
		l:           zap.NewNop(),
		lockTimeout: defaultLockTimeout,
	}
	for _, apply := range opts {
		apply(s)
	}

	if err := kv.View(func(r store.Reader) error {
		c, err := loadClock(r)
		s.clock = c
		return err
	}); err != nil {
		return nil, errors.New("load clock").Wrap(err)
	}

	if err := s.ensureMain(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureMain() error {
	_, err := s.Get(model.MainPath)
	if err == nil || !errors.Is(err, status.ErrBranchNotFound) {
		return err
	}

	ts := s.clock.Next()
	main := model.Branch{
		ID:            ts,
		ParentID:      model.NoParent,
		Base:          model.Point(ts, 0),
		Name:          model.MainPath,
		Path:          model.MainPath,
		HeadTimestamp: ts,
		CreatedAt:     time.Now().UTC(),
	}
	err = s.kv.Update(func(txn store.Txn) error {
		if err := s.clock.stage(txn, ts); err != nil {
			return err
		}
		return putBranch(txn, main)
	})
	if err != nil {
		return errors.New("create main branch").WrapWithLog(s.l, err)
	}
	s.l.Info("main branch initialized", zap.Int64("branch_id", main.ID))
	return nil
}

// Clock used to stamp branches and commits
func (s *Store) Clock() *Clock {
	return s.clock
}

func putBranch(txn store.Txn, b model.Branch) error {
	if err := store.SetJSON(txn, branchKey(b.ID), b); err != nil {
		return err
	}
	return store.SetJSON(txn, pathKey(b.Path), b.ID)
}

func readBranch(r store.Reader, id int64) (model.Branch, error) {
	var b model.Branch
	err := store.GetJSON(r, branchKey(id), &b)
	if errors.Is(err, storestatus.ErrKeyNotFound) {
		return b, status.ErrBranchNotFound.WrapMessage("id %d", id)
	}
	return b, err
}

func readPath(r store.Reader, path string) (model.Branch, error) {
	var id int64
	err := store.GetJSON(r, pathKey(path), &id)
	if errors.Is(err, storestatus.ErrKeyNotFound) || errors.Is(err, storestatus.ErrEmptyKey) {
		return model.Branch{}, status.ErrBranchNotFound.WrapMessage("path %q", path)
	}
	if err != nil {
		return model.Branch{}, err
	}
	return readBranch(r, id)
}

// Get a branch by path. The path of a deleted branch still resolves, unless it was recreated.
func (s *Store) Get(path string) (model.Branch, error) {
	var b model.Branch
	err := s.kv.View(func(r store.Reader) error {
		var err error
		b, err = readPath(r, path)
		return err
	})
	return b, err
}

// GetByID gets a branch by id
func (s *Store) GetByID(id int64) (model.Branch, error) {
	var b model.Branch
	err := s.kv.View(func(r store.Reader) error {
		var err error
		b, err = readBranch(r, id)
		return err
	})
	return b, err
}

// List all branches known to the store, including deleted ones, sorted by path
func (s *Store) List() (model.Branches, error) {
	var all model.Branches
	err := s.kv.View(func(r store.Reader) error {
		return r.Scan(branchPref[:], nil, func(_, value []byte) error {
			var b model.Branch
			if err := store.Decode(value, &b); err != nil {
				return status.ErrCorruptedIndex.Wrap(err)
			}
			all = append(all, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Stable(all)
	return all, nil
}

// Children lists the direct children of a branch, sorted by path
func (s *Store) Children(id int64) (model.Branches, error) {
	if _, err := s.GetByID(id); err != nil {
		return nil, err
	}
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var children model.Branches
	for _, b := range all {
		if b.ParentID == id && b.ID != id {
			children = append(children, b)
		}
	}
	return children, nil
}

// Descendants lists all the branches below a branch, sorted by path
func (s *Store) Descendants(id int64) (model.Branches, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	byParent := make(map[int64][]model.Branch, len(all))
	for _, b := range all {
		if !b.IsRoot() {
			byParent[b.ParentID] = append(byParent[b.ParentID], b)
		}
	}
	var descendants model.Branches
	queue := []int64{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range byParent[next] {
			descendants = append(descendants, child)
			queue = append(queue, child.ID)
		}
	}
	sort.Stable(descendants)
	return descendants, nil
}

// Resolve a branch point: UnspecifiedTime resolves to the head of the branch
func (s *Store) Resolve(p model.BranchPoint) (model.BranchPoint, error) {
	b, err := s.GetByID(p.BranchID)
	if err != nil {
		return p, err
	}
	return b.At(p.Timestamp), nil
}
