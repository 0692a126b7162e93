// Package commitlog keeps the ordered commits of every branch.
//
// Commits are append-only records keyed by (branch, timestamp). The log also answers which
// components were touched on a branch over a range of time, which bounds the scope of diffs.
package commitlog

import (
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	storestatus "github.com/oneconcern/revstore/pkg/store/status"
)

const defaultPageSize = 64

var commitPref = [7]byte{'c', 'o', 'm', 'm', 'i', 't', ':'}

func commitKey(branchID, ts int64) []byte {
	return store.Key(commitPref[:], store.Int64(branchID), store.Int64(ts))
}

func branchPrefix(branchID int64) []byte {
	return store.Key(commitPref[:], store.Int64(branchID))
}

// Option for the commit log
type Option func(*Log)

// PageSize sets the number of commits read at once by iterators
func PageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// Log of commits, in a key-value store
type Log struct {
	kv       store.Store
	pageSize int
}

// New commit log
func New(kv store.Store, opts ...Option) *Log {
	l := &Log{kv: kv, pageSize: defaultPageSize}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

// Stage appends a commit within a write transaction
func (l *Log) Stage(txn store.Txn, c model.Commit) error {
	key := commitKey(c.BranchID, c.Timestamp)
	exists, err := txn.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return status.ErrCorruptedIndex.WrapMessage("commit %d already exists on branch %d", c.Timestamp, c.BranchID)
	}
	return store.SetJSON(txn, key, c)
}

// scan reads the commits on a branch stamped after since, up to until (unbounded when until is model.UnspecifiedTime).
//
// fn returns false to stop the scan.
func scan(r store.Reader, branchID, since, until int64, fn func(model.Commit) bool) error {
	var from []byte
	if since >= 0 {
		from = commitKey(branchID, since+1)
	}
	err := r.Scan(branchPrefix(branchID), from, func(_, value []byte) error {
		var c model.Commit
		if err := store.Decode(value, &c); err != nil {
			return status.ErrCorruptedIndex.Wrap(err)
		}
		if until != model.UnspecifiedTime && c.Timestamp > until {
			return store.ErrStopScan
		}
		if !fn(c) {
			return store.ErrStopScan
		}
		return nil
	})
	return err
}

// List the commits of a branch stamped after since, up to until included.
//
// An until of model.UnspecifiedTime lists up to the head.
func (l *Log) List(branchID, since, until int64) (model.Commits, error) {
	var commits model.Commits
	err := l.kv.View(func(r store.Reader) error {
		return scan(r, branchID, since, until, func(c model.Commit) bool {
			commits = append(commits, c)
			return true
		})
	})
	return commits, err
}

// Count the commits of a branch
func (l *Log) Count(branchID int64) (int, error) {
	var n int
	err := l.kv.View(func(r store.Reader) error {
		return r.Scan(branchPrefix(branchID), nil, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Get the commit made on a branch at a timestamp
func (l *Log) Get(branchID, ts int64) (model.Commit, error) {
	var c model.Commit
	err := l.kv.View(func(r store.Reader) error {
		return store.GetJSON(r, commitKey(branchID, ts), &c)
	})
	if errors.Is(err, storestatus.ErrKeyNotFound) {
		return c, status.ErrCommitNotFound.WrapMessage("branch %d at %d", branchID, ts)
	}
	return c, err
}

// Head is the latest commit of a branch
func (l *Log) Head(branchID int64) (model.Commit, error) {
	var (
		head  model.Commit
		found bool
	)
	err := l.kv.View(func(r store.Reader) error {
		return scan(r, branchID, model.UnspecifiedTime, model.UnspecifiedTime, func(c model.Commit) bool {
			head, found = c, true
			return true
		})
	})
	if err != nil {
		return head, err
	}
	if !found {
		return head, status.ErrCommitNotFound.WrapMessage("branch %d has no commit", branchID)
	}
	return head, nil
}

// ChangedSince iterates over the components touched by the commits of a branch after since
func (l *Log) ChangedSince(branchID, since int64) *Iterator {
	return l.ChangedIn(model.Span{BranchID: branchID, After: since, Until: model.UnspecifiedTime})
}

// ChangedIn iterates over the components touched by the commits in some spans
func (l *Log) ChangedIn(spans ...model.Span) *Iterator {
	return newIterator(l, spans)
}
