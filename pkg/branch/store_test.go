package branch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t testing.TB, opts ...Option) (*Store, *memory.Store) {
	kv := memory.New()
	s, err := New(kv, append([]Option{Logger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	return s, kv
}

// commit moves the head of a branch without writing any revision
func commit(t testing.TB, s *Store, id int64, merge *model.MergeRecord) int64 {
	ts := s.Clock().Next()
	require.NoError(t, s.kv.Update(func(txn store.Txn) error {
		if merge != nil {
			merge.Timestamp = ts
		}
		_, err := s.StageCommit(txn, id, ts, merge)
		return err
	}))
	return ts
}

func TestMainBranch(t *testing.T) {
	s, kv := newTestStore(t)

	main, err := s.Get(model.MainPath)
	require.NoError(t, err)
	assert.True(t, main.IsRoot())
	assert.Equal(t, int64(1), main.ID)
	assert.Equal(t, main.ID, main.HeadTimestamp)
	assert.Equal(t, model.Point(main.ID, 0), main.Base)

	// reopening resumes the clock and keeps the existing root
	ts := commit(t, s, main.ID, nil)
	reopened, err := New(kv)
	require.NoError(t, err)
	assert.Equal(t, ts, reopened.Clock().Now())
	again, err := reopened.Get(model.MainPath)
	require.NoError(t, err)
	assert.Equal(t, main.ID, again.ID)
	assert.Equal(t, ts, again.HeadTimestamp)
}

func TestCreateBranch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, model.MainPath, "a", map[string]string{"owner": "me"})
	require.NoError(t, err)
	assert.Equal(t, "MAIN/a", a.Path)
	assert.Equal(t, int64(1), a.ParentID)
	assert.Equal(t, model.Point(1, a.ID), a.Base)
	assert.Equal(t, a.ID, a.HeadTimestamp)
	assert.Equal(t, "me", a.Metadata["owner"])

	b, err := s.Create(ctx, a.Path, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, "MAIN/a/b", b.Path)
	assert.Greater(t, b.ID, a.ID)

	got, err := s.Get("MAIN/a/b")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	byID, err := s.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Path, byID.Path)

	children, err := s.Children(1)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, a.ID, children[0].ID)

	descendants, err := s.Descendants(1)
	require.NoError(t, err)
	assert.Len(t, descendants, 2)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"MAIN", "MAIN/a", "MAIN/a/b"}, []string{all[0].Path, all[1].Path, all[2].Path})

	p, err := s.Resolve(model.Latest(a.ID))
	require.NoError(t, err)
	assert.Equal(t, a.Head(), p)
}

func TestCreateBranchErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)

	for _, toPin := range []struct {
		Name   string
		Parent string
		Branch string
		Err    error
	}{
		{Name: "duplicate", Parent: model.MainPath, Branch: "a", Err: status.ErrDuplicateName},
		{Name: "missing parent", Parent: "MAIN/x", Branch: "y", Err: status.ErrParentNotFound},
		{Name: "empty name", Parent: model.MainPath, Branch: "", Err: status.ErrInvalidBranchName},
		{Name: "separator in name", Parent: model.MainPath, Branch: "x/y", Err: status.ErrInvalidBranchName},
	} {
		fixture := toPin
		t.Run(fixture.Name, func(t *testing.T) {
			_, err := s.Create(ctx, fixture.Parent, fixture.Branch, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fixture.Err), "unexpected error: %v", err)
			assert.True(t, errors.Is(err, status.ErrInvalidRequest))
		})
	}

	_, err = s.Get("MAIN/unknown")
	assert.True(t, errors.Is(err, status.ErrBranchNotFound))
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestDeleteBranch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var events []Event
	var mu sync.Mutex
	s.AddChangeListener(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	a, err := s.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)
	b, err := s.Create(ctx, a.Path, "b", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, a.Path))
	for _, path := range []string{a.Path, b.Path} {
		got, err := s.Get(path)
		require.NoError(t, err, "deleted branches remain readable")
		assert.True(t, got.Deleted)
	}

	// idempotent
	require.NoError(t, s.Delete(ctx, a.Path))

	err = s.Delete(ctx, model.MainPath)
	assert.True(t, errors.Is(err, status.ErrMainBranch))

	_, err = s.Create(ctx, b.Path, "c", nil)
	assert.True(t, errors.Is(err, status.ErrParentDeleted))

	_, err = s.UpdateMetadata(ctx, a.Path, map[string]string{"k": "v"})
	assert.True(t, errors.Is(err, status.ErrBranchDeleted))

	// a deleted path may be reused by a new branch
	recreated, err := s.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, recreated.ID)
	got, err := s.Get(a.Path)
	require.NoError(t, err)
	assert.Equal(t, recreated.ID, got.ID)
	assert.False(t, got.Deleted)

	old, err := s.GetByID(a.ID)
	require.NoError(t, err)
	assert.True(t, old.Deleted)

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventCreated, EventCreated, EventDeleted, EventDeleted, EventCreated}, kinds)
}

func TestStageCommit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, model.MainPath, "a", nil)
	require.NoError(t, err)

	ts := commit(t, s, a.ID, nil)
	got, err := s.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, ts, got.HeadTimestamp)

	err = s.kv.Update(func(txn store.Txn) error {
		_, err := s.StageCommit(txn, a.ID, ts, nil)
		return err
	})
	assert.True(t, errors.Is(err, status.ErrCorruptedIndex), "a commit must move the head forward")

	require.NoError(t, s.Delete(ctx, a.Path))
	err = s.kv.Update(func(txn store.Txn) error {
		_, err := s.StageCommit(txn, a.ID, s.Clock().Next(), nil)
		return err
	})
	assert.True(t, errors.Is(err, status.ErrBranchDeleted))
}

func TestCommonAncestor(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, model.MainPath, "a", nil) // 2
	require.NoError(t, err)
	mainTs := commit(t, s, 1, nil) // 3
	b, err := s.Create(ctx, model.MainPath, "b", nil) // 4
	require.NoError(t, err)
	c, err := s.Create(ctx, a.Path, "c", nil) // 5
	require.NoError(t, err)
	commit(t, s, c.ID, nil) // 6

	for _, toPin := range []struct {
		Name     string
		A, B     model.BranchPoint
		Expected model.BranchPoint
	}{
		{Name: "siblings", A: model.Latest(a.ID), B: model.Latest(b.ID), Expected: model.Point(1, a.ID)},
		{Name: "child and parent", A: model.Latest(a.ID), B: model.Latest(1), Expected: model.Point(1, a.ID)},
		{Name: "parent and child", A: model.Latest(1), B: model.Latest(b.ID), Expected: model.Point(1, mainTs)},
		{Name: "grandchild and sibling", A: model.Latest(c.ID), B: model.Latest(b.ID), Expected: model.Point(1, a.ID)},
		{Name: "grandchild and parent", A: model.Latest(c.ID), B: model.Latest(a.ID), Expected: model.Point(a.ID, a.ID)},
		{Name: "same branch", A: model.Point(c.ID, c.ID), B: model.Latest(c.ID), Expected: model.Point(c.ID, c.ID)},
	} {
		fixture := toPin
		t.Run(fixture.Name, func(t *testing.T) {
			got, err := s.CommonAncestor(fixture.A, fixture.B)
			require.NoError(t, err)
			assert.Equal(t, fixture.Expected, got)

			reversed, err := s.CommonAncestor(fixture.B, fixture.A)
			require.NoError(t, err)
			assert.Equal(t, got, reversed, "the common ancestor is symmetric")
		})
	}

	_, err = s.CommonAncestor(model.Latest(99), model.Latest(1))
	assert.True(t, errors.Is(err, status.ErrBranchNotFound))
}

func TestMergeBase(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, model.MainPath, "a", nil) // 2
	require.NoError(t, err)
	first := commit(t, s, a.ID, nil) // 3

	mb, err := s.MergeBase(model.Latest(a.ID), model.Latest(1))
	require.NoError(t, err)
	assert.Equal(t, model.Point(1, 1), mb.Base, "MAIN had no commit when the branch was created")
	assert.Equal(t, []model.Span{{BranchID: a.ID, After: 0, Until: first}}, mb.Source)
	assert.Empty(t, mb.Target, "nothing happened on MAIN since the branch was created")

	merged := commit(t, s, 1, &model.MergeRecord{SourceBranchID: a.ID, SourceTimestamp: first}) // 4
	second := commit(t, s, a.ID, nil)                                                         // 5

	t.Run("after a merge into the target", func(t *testing.T) {
		mb, err := s.MergeBase(model.Latest(a.ID), model.Latest(1))
		require.NoError(t, err)
		assert.Equal(t, model.Point(a.ID, first), mb.Base)
		assert.Equal(t, []model.Span{{BranchID: a.ID, After: first, Until: second}}, mb.Source)
		assert.Equal(t, []model.Span{{BranchID: 1, After: a.ID, Until: merged}}, mb.Target)
	})

	t.Run("before the merge", func(t *testing.T) {
		mb, err := s.MergeBase(model.Latest(a.ID), model.Point(1, merged-1))
		require.NoError(t, err)
		assert.Equal(t, model.Point(1, a.ID), mb.Base)
	})

	t.Run("after a merge into the source", func(t *testing.T) {
		mb, err := s.MergeBase(model.Latest(1), model.Latest(a.ID))
		require.NoError(t, err)
		assert.Equal(t, model.Point(a.ID, first), mb.Base)
		assert.Equal(t, []model.Span{{BranchID: 1, After: a.ID, Until: merged}}, mb.Source)
		assert.Equal(t, []model.Span{{BranchID: a.ID, After: first, Until: second}}, mb.Target)
	})

	t.Run("through an intermediate branch", func(t *testing.T) {
		b, err := s.Create(ctx, a.Path, "b", nil) // 6
		require.NoError(t, err)
		last := commit(t, s, b.ID, nil) // 7

		mb, err := s.MergeBase(model.Latest(b.ID), model.Point(1, a.ID))
		require.NoError(t, err)
		assert.Equal(t, model.Point(1, a.ID), mb.Base)
		assert.Equal(t, []model.Span{
			{BranchID: b.ID, After: 0, Until: last},
			{BranchID: a.ID, After: 0, Until: second},
		}, mb.Source)
		assert.Empty(t, mb.Target)
	})
}

func TestLockTimeout(t *testing.T) {
	s, _ := newTestStore(t, LockTimeout(20*time.Millisecond))
	ctx := context.Background()

	unlock, err := s.Lock(ctx, 1)
	require.NoError(t, err)

	_, err = s.Lock(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrLockTimeout))
	assert.True(t, errors.Is(err, status.ErrTransient))

	other, err := s.Lock(ctx, 2)
	require.NoError(t, err, "locks are per branch")
	other()

	unlock()
	unlock, err = s.Lock(ctx, 1)
	require.NoError(t, err)
	unlock()
}

func TestLockCancelled(t *testing.T) {
	s, _ := newTestStore(t)

	unlock, err := s.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Lock(ctx, 1)
	assert.True(t, errors.Is(err, status.ErrLockTimeout))
}
