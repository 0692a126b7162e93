// Package revision indexes the revisions of components, per branch and per segment of time.
//
// A component is visible on a branch through its own segments, or else through the segments
// of its ancestors, as of the time the branch was created. Segments are immutable once closed,
// and a segment is only ever closed after the head of its branch: reads never need to lock.
package revision

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	defaultCacheSize = 4096
	maxDepth         = 1 << 12
)

var revPref = [4]byte{'r', 'e', 'v', ':'}

func revisionKey(id string, branchID, start int64) []byte {
	return store.Key(revPref[:], id, store.Int64(branchID), store.Int64(start))
}

func segmentsPrefix(id string, branchID int64) []byte {
	return store.Key(revPref[:], id, store.Int64(branchID))
}

// Branches resolves branches for the index
type Branches interface {
	GetByID(int64) (model.Branch, error)
}

type cacheKey struct {
	id       string
	branchID int64
}

// segments of a component on a branch, complete up to asOf
type segments struct {
	asOf int64
	revs []model.Revision
}

// Option for the revision index
type Option func(*Index)

// CacheSize sets the number of (component, branch) segment lists kept in memory. Zero disables caching.
func CacheSize(n int) Option {
	return func(x *Index) {
		if n >= 0 {
			x.cacheSize = n
		}
	}
}

// Logger for the revision index
func Logger(l *zap.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.l = l
		}
	}
}

// Index of revisions
type Index struct {
	kv        store.Store
	branches  Branches
	log       *commitlog.Log
	cache     *lru.Cache[cacheKey, segments]
	cacheSize int
	hits      *atomic.Uint64
	misses    *atomic.Uint64
	l         *zap.Logger
}

// New revision index
func New(kv store.Store, branches Branches, log *commitlog.Log, opts ...Option) (*Index, error) {
	x := &Index{
		kv:        kv,
		branches:  branches,
		log:       log,
		cacheSize: defaultCacheSize,
		hits:      atomic.NewUint64(0),
		misses:    atomic.NewUint64(0),
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(x)
	}
	if x.cacheSize > 0 {
		c, err := lru.New[cacheKey, segments](x.cacheSize)
		if err != nil {
			return nil, errors.New("revision cache").Wrap(err)
		}
		x.cache = c
	}
	return x, nil
}

// CacheStats reports the hits and misses of the segment cache
func (x *Index) CacheStats() (hits, misses uint64) {
	return x.hits.Load(), x.misses.Load()
}

func readSegments(r store.Reader, id string, branchID int64) ([]model.Revision, error) {
	var revs []model.Revision
	err := r.Scan(segmentsPrefix(id, branchID), nil, func(key, value []byte) error {
		start, err := store.LastInt64(key)
		if err != nil {
			return status.ErrCorruptedIndex.Wrap(err)
		}
		var rev model.Revision
		if err := store.Decode(value, &rev); err != nil {
			return status.ErrCorruptedIndex.Wrap(err)
		}
		if rev.SegmentStart != start {
			return status.ErrCorruptedIndex.WrapMessage("%s on branch %d: segment keyed at %d starts at %d", id, branchID, start, rev.SegmentStart)
		}
		revs = append(revs, rev)
		return nil
	})
	return revs, err
}

type loader func(id string, b model.Branch, ts int64) ([]model.Revision, error)

// cached loads segments from the cache when it covers ts. The branch must be read before the segments.
func (x *Index) cached(id string, b model.Branch, ts int64) ([]model.Revision, error) {
	key := cacheKey{id: id, branchID: b.ID}
	if x.cache != nil {
		if e, ok := x.cache.Get(key); ok && ts <= e.asOf {
			x.hits.Inc()
			return e.revs, nil
		}
	}
	x.misses.Inc()

	var revs []model.Revision
	err := x.kv.View(func(r store.Reader) error {
		var err error
		revs, err = readSegments(r, id, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if x.cache != nil {
		x.cache.Add(key, segments{asOf: b.HeadTimestamp, revs: revs})
	}
	return revs, nil
}

func within(r store.Reader) loader {
	return func(id string, b model.Branch, _ int64) ([]model.Revision, error) {
		return readSegments(r, id, b.ID)
	}
}

// find the segment valid at ts, if any
func find(revs []model.Revision, ts int64) (*model.Revision, bool, error) {
	i := sort.Search(len(revs), func(i int) bool { return revs[i].SegmentStart > ts })
	if i == 0 {
		return nil, false, nil
	}
	rev := revs[i-1]
	if !rev.ValidAt(ts) {
		return nil, false, status.ErrCorruptedIndex.WrapMessage("component %q has no segment at %d on branch %d", rev.ComponentID, ts, rev.BranchID)
	}
	return &rev, true, nil
}

func (x *Index) lookup(load loader, id string, p model.BranchPoint) (*model.Revision, error) {
	b, err := x.branches.GetByID(p.BranchID)
	if err != nil {
		return nil, err
	}
	ts := b.At(p.Timestamp).Timestamp
	for depth := 0; depth < maxDepth; depth++ {
		revs, err := load(id, b, ts)
		if err != nil {
			return nil, err
		}
		rev, ok, err := find(revs, ts)
		if err != nil || ok {
			return rev, err
		}
		if b.IsRoot() {
			return nil, nil
		}
		if ts > b.Base.Timestamp {
			ts = b.Base.Timestamp
		}
		if b, err = x.branches.GetByID(b.ParentID); err != nil {
			return nil, err
		}
		if ts > b.HeadTimestamp {
			ts = b.HeadTimestamp
		}
	}
	return nil, status.ErrCorruptedIndex.WrapMessage("branch %d: ancestry too deep", p.BranchID)
}

// Lookup the revision of a component visible at a branch point, tombstones included.
//
// The returned revision shares its attributes with the cache: it must not be modified.
func (x *Index) Lookup(id string, p model.BranchPoint) (*model.Revision, error) {
	return x.lookup(x.cached, id, p)
}

// LookupIn is Lookup, reading segments within a transaction
func (x *Index) LookupIn(r store.Reader, id string, p model.BranchPoint) (*model.Revision, error) {
	return x.lookup(within(r), id, p)
}

// RevisionAt returns the revision of a component visible at a branch point, or nil when absent or deleted
func (x *Index) RevisionAt(id string, p model.BranchPoint) (*model.Revision, error) {
	rev, err := x.Lookup(id, p)
	if err != nil || !rev.Live() {
		return nil, err
	}
	return rev, nil
}

// ContainsRevision tells if a component is visible at a branch point
func (x *Index) ContainsRevision(id string, p model.BranchPoint) (bool, error) {
	rev, err := x.RevisionAt(id, p)
	return rev != nil, err
}

// Resolve a reference to a component at a branch point
func (x *Index) Resolve(id string, p model.BranchPoint) (model.ComponentRef, error) {
	rev, err := x.Lookup(id, p)
	switch {
	case err != nil:
		return model.MissingRef(id), err
	case rev == nil:
		return model.MissingRef(id), nil
	case rev.Deleted:
		return model.StaleRef(*rev), nil
	default:
		return model.ResolvedRef(*rev), nil
	}
}

// History lists the segments of a component on a branch, in time order
func (x *Index) History(id string, branchID int64) ([]model.Revision, error) {
	if _, err := x.branches.GetByID(branchID); err != nil {
		return nil, err
	}
	var revs []model.Revision
	err := x.kv.View(func(r store.Reader) error {
		var err error
		revs, err = readSegments(r, id, branchID)
		return err
	})
	return revs, err
}

// ChangedSince iterates over the components changed on a branch after a timestamp
func (x *Index) ChangedSince(branchID, since int64) *commitlog.Iterator {
	return x.log.ChangedSince(branchID, since)
}

// Stage a new revision of a component, within a write transaction.
//
// The open segment of the component on the same branch, if any, is closed at the start of the new one.
// The caller must hold the write lock of the branch.
func (x *Index) Stage(txn store.Txn, rev model.Revision) error {
	if !store.ValidPart(rev.ComponentID) {
		return status.ErrInvalidChange.WrapMessage("invalid component id %q", rev.ComponentID)
	}
	revs, err := readSegments(txn, rev.ComponentID, rev.BranchID)
	if err != nil {
		return err
	}
	if n := len(revs); n > 0 {
		last := revs[n-1]
		if last.SegmentStart >= rev.SegmentStart {
			return status.ErrCorruptedIndex.WrapMessage("revision of %q at %d is not after %d on branch %d",
				rev.ComponentID, rev.SegmentStart, last.SegmentStart, rev.BranchID)
		}
		if last.IsOpen() {
			last.SegmentEnd = rev.SegmentStart
			if err := store.SetJSON(txn, revisionKey(last.ComponentID, last.BranchID, last.SegmentStart), last); err != nil {
				return err
			}
		}
	}
	rev.SegmentEnd = model.OpenSegment
	return store.SetJSON(txn, revisionKey(rev.ComponentID, rev.BranchID, rev.SegmentStart), rev)
}
