package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/commit"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/merge"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/revision"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	primitive = "900000000000074008"
	defined   = "900000000000073002"
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
)

type harness struct {
	kv       store.Store
	schema   *model.Schema
	branches *branch.Store
	writer   *commit.Writer
	differ   *merge.Engine
}

func newHarness(t testing.TB) *harness {
	kv := memory.New()
	branches, err := branch.New(kv)
	require.NoError(t, err)
	log := commitlog.New(kv)
	index, err := revision.New(kv, branches, log)
	require.NoError(t, err)
	schema := model.TerminologySchema()
	writer := commit.New(kv, branches, index, log, schema)
	return &harness{
		kv:       kv,
		schema:   schema,
		branches: branches,
		writer:   writer,
		differ:   merge.New(branches, index, log, writer, schema),
	}
}

func (h *harness) engine(t testing.TB, differ Differ) *Engine {
	e, err := New(h.kv, h.branches, differ, h.schema, Workers(2), Logger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func (h *harness) commit(t testing.TB, path string, changes ...model.Change) {
	_, err := h.writer.Commit(context.Background(), path, "", "", changes)
	require.NoError(t, err)
}

func (h *harness) branch(t testing.TB, name string) {
	_, err := h.branches.Create(context.Background(), model.MainPath, name, nil)
	require.NoError(t, err)
}

// gated holds diffs until released
type gated struct {
	Differ
	started chan struct{}
	release chan struct{}
	err     error
}

func newGated(d Differ) *gated {
	return &gated{Differ: d, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gated) Diff(ctx context.Context, source, target model.BranchPoint) (*merge.Diff, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.Differ.Diff(ctx, source, target)
}

func concept(id string) model.Change {
	return model.Create(model.Component{ID: id, Type: model.ConceptType, Attributes: map[string]string{"definitionStatus": primitive}})
}

func description(id, conceptID, term string) model.Change {
	return model.Create(model.Component{ID: id, Type: model.DescriptionType, Attributes: map[string]string{"conceptId": conceptID, "term": term}})
}

func relationship(id, source, destination string) model.Change {
	return model.Create(model.Component{ID: id, Type: model.RelationshipType, Attributes: map[string]string{
		"sourceId":      source,
		"destinationId": destination,
		"typeId":        "116680003",
	}})
}

func statusOf(t testing.TB, e *Engine, id string) model.ReviewStatus {
	rv, err := e.Get(id)
	require.NoError(t, err)
	return rv.Status
}

func TestReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.commit(t, model.MainPath,
		concept("c1"), concept("c4"), concept("c5"), concept("116680003"),
		description("d1", "c1", "Heart"),
		description("d4", "c4", "Lung"),
	)
	h.branch(t, "a")
	h.commit(t, "MAIN/a",
		concept("c2"),
		description("d2", "c2", "Liver"),
		model.Update("d1", map[string]string{"term": "Heart structure"}),
		model.Delete("c4"),
		model.Delete("d4"),
		relationship("r1", "c5", "c1"),
	)
	// changes on the target are not part of the review
	h.commit(t, model.MainPath, concept("c9"))

	e := h.engine(t, h.differ)
	created, err := e.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, created.Status)
	assert.Equal(t, "MAIN/a", created.SourcePath)
	assert.NotEmpty(t, created.ID)

	rv, err := e.Await(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, model.ReviewCurrent, rv.Status, rv.Error)

	changes, err := e.Changes(rv.ID)
	require.NoError(t, err)
	assert.Equal(t, rv.ID, changes.ID)
	assert.Equal(t, []string{"c2", "d2", "r1"}, changes.NewComponents)
	assert.Equal(t, []string{"c4", "d4"}, changes.DeletedComponents)
	assert.Equal(t, []model.ComponentDelta{{
		ID:         "d1",
		Type:       model.DescriptionType,
		Attributes: []model.AttributeChange{{Property: "term", OldValue: "Heart", Value: "Heart structure"}},
	}}, changes.ChangedComponents)

	concepts, err := e.ConceptChanges(rv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConceptChanges{
		ID:              rv.ID,
		NewConcepts:     []string{"c2"},
		ChangedConcepts: []string{"c1", "c5"},
		DeletedConcepts: []string{"c4"},
	}, concepts)

	// a commit on either branch makes the review stale
	h.commit(t, model.MainPath, concept("c10"))
	assert.Eventually(t, func() bool {
		return statusOf(t, e, rv.ID) == model.ReviewStale
	}, waitFor, tick)

	stale, err := e.Changes(rv.ID)
	require.NoError(t, err)
	assert.Equal(t, changes, stale, "the changes of a stale review remain readable")

	require.NoError(t, e.Delete(rv.ID))
	_, err = e.Get(rv.ID)
	assert.True(t, errors.Is(err, status.ErrReviewNotFound))
	_, err = e.Changes(rv.ID)
	assert.True(t, errors.Is(err, status.ErrReviewNotFound))
	assert.True(t, errors.Is(e.Delete(rv.ID), status.ErrReviewNotFound))
}

func TestCreateErrors(t *testing.T) {
	h := newHarness(t)
	h.branch(t, "a")
	h.branch(t, "gone")
	require.NoError(t, h.branches.Delete(context.Background(), "MAIN/gone"))
	e := h.engine(t, h.differ)

	for _, toPin := range []struct {
		Name, Source, Target string
		Contains             []string
	}{
		{Name: "blank endpoints", Contains: []string{"source branch is required", "target branch is required"}},
		{Name: "blank target", Source: "MAIN/a", Contains: []string{"target branch is required"}},
		{Name: "same branch", Source: "MAIN/a", Target: "MAIN/a", Contains: []string{"same branch"}},
		{Name: "missing branch", Source: "MAIN/nope", Target: model.MainPath, Contains: []string{"MAIN/nope"}},
		{Name: "deleted branch", Source: "MAIN/gone", Target: model.MainPath, Contains: []string{"deleted"}},
	} {
		fixture := toPin
		t.Run(fixture.Name, func(t *testing.T) {
			_, err := e.Create(context.Background(), fixture.Source, fixture.Target)
			require.Error(t, err)
			assert.True(t, errors.Is(err, status.ErrInvalidReview), "unexpected error: %v", err)
			assert.True(t, errors.Is(err, status.ErrInvalidRequest))
			for _, msg := range fixture.Contains {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}

	reviews, err := e.List()
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestStaleWhileComputing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.branch(t, "a")
	h.commit(t, "MAIN/a", concept("c1"))

	g := newGated(h.differ)
	e := h.engine(t, g)
	var (
		mu       sync.Mutex
		statuses []model.ReviewStatus
	)
	e.OnStatusChange(func(rv model.Review) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, rv.Status)
	})

	rv, err := e.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	<-g.started
	h.commit(t, "MAIN/a", concept("c2"))
	close(g.release)

	done, err := e.Await(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStale, done.Status)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []model.ReviewStatus{model.ReviewCurrent, model.ReviewStale}, statuses)
	mu.Unlock()

	changes, err := e.Changes(rv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, changes.NewComponents, "computed as of the reviewed heads")
}

func TestDeletedWhileComputing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.branch(t, "a")
	h.commit(t, "MAIN/a", concept("c1"))

	g := newGated(h.differ)
	e := h.engine(t, g)
	var notified int
	var mu sync.Mutex
	e.OnStatusChange(func(model.Review) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	rv, err := e.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	<-g.started

	awaited := make(chan error, 1)
	go func() {
		_, err := e.Await(ctx, rv.ID)
		awaited <- err
	}()
	require.NoError(t, e.Delete(rv.ID))
	select {
	case err := <-awaited:
		assert.True(t, errors.Is(err, status.ErrReviewNotFound), "unexpected error: %v", err)
	case <-time.After(waitFor):
		t.Fatal("await was not released by the deletion")
	}

	close(g.release)
	require.NoError(t, e.Close())

	_, err = e.Get(rv.ID)
	assert.True(t, errors.Is(err, status.ErrReviewNotFound), "the result of the computation is discarded")
	mu.Lock()
	assert.Zero(t, notified)
	mu.Unlock()
}

func TestFailedReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.branch(t, "a")

	g := newGated(h.differ)
	g.err = fmt.Errorf("disk on fire")
	close(g.release)
	e := h.engine(t, g)

	rv, err := e.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	done, err := e.Await(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewFailed, done.Status)
	assert.Contains(t, done.Error, "disk on fire")

	_, err = e.Changes(rv.ID)
	assert.True(t, errors.Is(err, status.ErrReviewNotReady), "unexpected error: %v", err)

	// terminal: a commit doesn't change a failed review
	h.commit(t, "MAIN/a", concept("c1"))
	assert.Never(t, func() bool {
		return statusOf(t, e, rv.ID) != model.ReviewFailed
	}, 50*time.Millisecond, tick)
}

func TestSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.branch(t, "a")
	h.branch(t, "b")
	e := h.engine(t, h.differ)

	stale, err := e.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	current, err := e.Create(ctx, "MAIN/b", model.MainPath)
	require.NoError(t, err)
	for _, id := range []string{stale.ID, current.ID} {
		_, err := e.Await(ctx, id)
		require.NoError(t, err)
	}

	h.commit(t, "MAIN/a", concept("c1"))
	require.Eventually(t, func() bool {
		return statusOf(t, e, stale.ID) == model.ReviewStale
	}, waitFor, tick)
	assert.Equal(t, model.ReviewCurrent, statusOf(t, e, current.ID))

	n, err := e.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "retention not reached")

	time.Sleep(2 * time.Millisecond)
	n, err = e.Sweep(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reviews, err := e.List()
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, current.ID, reviews[0].ID)
}

func TestPendingReviewsResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.branch(t, "a")
	h.commit(t, "MAIN/a", concept("c1"))

	first := h.engine(t, newGated(h.differ))
	rv, err := first.Create(ctx, "MAIN/a", model.MainPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())
	assert.Equal(t, model.ReviewPending, statusOf(t, first, rv.ID))

	_, err = first.Create(ctx, "MAIN/a", model.MainPath)
	assert.True(t, errors.Is(err, status.ErrInterrupted))

	second := h.engine(t, h.differ)
	done, err := second.Await(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewCurrent, done.Status)
}

func TestAwaitCancelled(t *testing.T) {
	h := newHarness(t)
	h.branch(t, "a")
	e := h.engine(t, newGated(h.differ))

	rv, err := e.Create(context.Background(), "MAIN/a", model.MainPath)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Await(ctx, rv.ID)
	assert.True(t, errors.Is(err, status.ErrInterrupted))
	assert.True(t, errors.Is(err, status.ErrTransient))
}
