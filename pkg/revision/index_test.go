package revision

import (
	"context"
	"testing"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	kv       store.Store
	branches *branch.Store
	log      *commitlog.Log
	index    *Index
}

func newHarness(t testing.TB, opts ...Option) *harness {
	kv := memory.New()
	branches, err := branch.New(kv)
	require.NoError(t, err)
	log := commitlog.New(kv)
	index, err := New(kv, branches, log, opts...)
	require.NoError(t, err)
	return &harness{kv: kv, branches: branches, log: log, index: index}
}

// write stages revisions as a new commit on a branch
func (f *harness) write(t testing.TB, branchID int64, revs ...model.Revision) int64 {
	ts := f.branches.Clock().Next()
	require.NoError(t, f.kv.Update(func(txn store.Txn) error {
		if _, err := f.branches.StageCommit(txn, branchID, ts, nil); err != nil {
			return err
		}
		c := model.Commit{BranchID: branchID, Timestamp: ts}
		for _, rev := range revs {
			rev.BranchID = branchID
			rev.SegmentStart = ts
			if err := f.index.Stage(txn, rev); err != nil {
				return err
			}
			c.ChangedComponentIDs = append(c.ChangedComponentIDs, rev.ComponentID)
		}
		return f.log.Stage(txn, c)
	}))
	return ts
}

func concept(id, definition string) model.Revision {
	return model.Revision{
		ComponentID:   id,
		ComponentType: model.ConceptType,
		Attributes:    map[string]string{"definitionStatus": definition},
	}
}

func tombstone(id string) model.Revision {
	return model.Revision{ComponentID: id, ComponentType: model.ConceptType, Deleted: true}
}

func TestRevisionAt(t *testing.T) {
	f := newHarness(t)
	ctx := context.Background()
	const main = int64(1)

	created := f.write(t, main, concept("c1", "primitive"))
	a, err := f.branches.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)
	updated := f.write(t, main, concept("c1", "defined"))

	for _, toPin := range []struct {
		Name     string
		Point    model.BranchPoint
		Expected string
	}{
		{Name: "before creation", Point: model.Point(main, created-1)},
		{Name: "at creation", Point: model.Point(main, created), Expected: "primitive"},
		{Name: "latest on main", Point: model.Latest(main), Expected: "defined"},
		{Name: "inherited as of the branch base", Point: model.Latest(a.ID), Expected: "primitive"},
		{Name: "after the head", Point: model.Point(main, updated+100), Expected: "defined"},
	} {
		fixture := toPin
		t.Run(fixture.Name, func(t *testing.T) {
			rev, err := f.index.RevisionAt("c1", fixture.Point)
			require.NoError(t, err)
			if fixture.Expected == "" {
				assert.Nil(t, rev)
				return
			}
			require.NotNil(t, rev)
			assert.Equal(t, fixture.Expected, rev.Attribute("definitionStatus"))
		})
	}

	_, err = f.index.RevisionAt("c1", model.Latest(99))
	assert.True(t, errors.Is(err, status.ErrBranchNotFound))
}

func TestDeletedRevision(t *testing.T) {
	f := newHarness(t)
	ctx := context.Background()

	f.write(t, 1, concept("c1", "primitive"))
	a, err := f.branches.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)
	deleted := f.write(t, a.ID, tombstone("c1"))

	ok, err := f.index.ContainsRevision("c1", model.Latest(a.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.index.ContainsRevision("c1", model.Point(a.ID, deleted-1))
	require.NoError(t, err)
	assert.True(t, ok, "the component was visible on the branch before its deletion")

	ok, err = f.index.ContainsRevision("c1", model.Latest(1))
	require.NoError(t, err)
	assert.True(t, ok, "deleting on a child leaves the parent untouched")

	ref, err := f.index.Resolve("c1", model.Latest(a.ID))
	require.NoError(t, err)
	assert.Equal(t, model.RefStale, ref.State)
	_, live := ref.Resolved()
	assert.False(t, live)

	ref, err = f.index.Resolve("c1", model.Latest(1))
	require.NoError(t, err)
	assert.Equal(t, model.RefResolved, ref.State)

	ref, err = f.index.Resolve("unknown", model.Latest(a.ID))
	require.NoError(t, err)
	assert.Equal(t, model.RefMissing, ref.State)
}

func TestHistory(t *testing.T) {
	f := newHarness(t)

	first := f.write(t, 1, concept("c1", "primitive"))
	second := f.write(t, 1, concept("c1", "defined"))
	third := f.write(t, 1, tombstone("c1"))

	revs, err := f.index.History("c1", 1)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, first, revs[0].SegmentStart)
	assert.Equal(t, second, revs[0].SegmentEnd)
	assert.Equal(t, third, revs[1].SegmentEnd)
	assert.True(t, revs[2].IsOpen())
	assert.True(t, revs[2].Deleted)

	for i := 1; i < len(revs); i++ {
		assert.Equal(t, revs[i-1].SegmentEnd, revs[i].SegmentStart, "segments never overlap")
	}

	err = f.kv.Update(func(txn store.Txn) error {
		return f.index.Stage(txn, model.Revision{ComponentID: "c1", BranchID: 1, SegmentStart: second})
	})
	assert.True(t, errors.Is(err, status.ErrCorruptedIndex))

	err = f.kv.Update(func(txn store.Txn) error {
		return f.index.Stage(txn, model.Revision{ComponentID: "", BranchID: 1, SegmentStart: third + 1})
	})
	assert.True(t, errors.Is(err, status.ErrInvalidChange))

	// a segment stored under the key of another one
	require.NoError(t, f.kv.Update(func(txn store.Txn) error {
		rev := concept("c9", "primitive")
		rev.BranchID, rev.SegmentStart = 1, third+1
		return store.SetJSON(txn, revisionKey("c9", 1, third), rev)
	}))
	_, err = f.index.History("c9", 1)
	assert.True(t, errors.Is(err, status.ErrCorruptedIndex))
}

func TestSegmentCache(t *testing.T) {
	f := newHarness(t)

	f.write(t, 1, concept("c1", "primitive"))
	rev, err := f.index.RevisionAt("c1", model.Latest(1))
	require.NoError(t, err)
	assert.Equal(t, "primitive", rev.Attribute("definitionStatus"))

	_, err = f.index.RevisionAt("c1", model.Latest(1))
	require.NoError(t, err)
	hits, misses := f.index.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	// a later commit is not hidden by the cached segments
	f.write(t, 1, concept("c1", "defined"))
	rev, err = f.index.RevisionAt("c1", model.Latest(1))
	require.NoError(t, err)
	assert.Equal(t, "defined", rev.Attribute("definitionStatus"))

	uncached := newHarness(t, CacheSize(0))
	uncached.write(t, 1, concept("c1", "primitive"))
	ok, err := uncached.index.ContainsRevision("c1", model.Latest(1))
	require.NoError(t, err)
	assert.True(t, ok)
	hits, _ = uncached.index.CacheStats()
	assert.Zero(t, hits)
}

func TestChangedSince(t *testing.T) {
	f := newHarness(t)

	first := f.write(t, 1, concept("c1", "primitive"), concept("c2", "primitive"))
	f.write(t, 1, concept("c3", "primitive"))

	ids, err := f.index.ChangedSince(1, first).All()
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, ids)

	ids, err = f.index.ChangedSince(1, 0).All()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ids)
}
