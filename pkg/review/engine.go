// Package review computes, in the background, the changes a merge from a source branch to a target
// branch would bring, without writing anything on the branches.
//
// A review is PENDING until computed, then CURRENT, or FAILED. A CURRENT review becomes STALE as
// soon as either branch moves past the reviewed heads.
package review

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/merge"
	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Differ computes the changes between two branch points since their merge base
type Differ interface {
	Diff(ctx context.Context, source, target model.BranchPoint) (*merge.Diff, error)
}

// Option for the review engine
type Option func(*Engine)

// Logger for the review engine
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// Metrics collected by the review engine
func Metrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.m = m
	}
}

// Workers sets the number of reviews computed concurrently
func Workers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// QueueSize sets the number of reviews waiting for a worker before Create blocks
func QueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// Engine runs reviews on a pool of workers
type Engine struct {
	kv       store.Store
	branches *branch.Store
	differ   Differ
	schema   *model.Schema
	l        *zap.Logger
	m        *metrics.Metrics

	workers   int
	queueSize int
	queue     chan string
	events    chan branch.Event

	// mu serializes status transitions
	mu        sync.Mutex
	waiters   map[string][]chan struct{}
	callbacks []func(model.Review)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed *atomic.Bool
	once   sync.Once
}

// New review engine.
//
// Reviews left pending by a previous run are queued again.
func New(kv store.Store, branches *branch.Store, differ Differ, schema *model.Schema, opts ...Option) (*Engine, error) {
	e := &Engine{
		kv:        kv,
		branches:  branches,
		differ:    differ,
		schema:    schema,
		l:         zap.NewNop(),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		waiters:   make(map[string][]chan struct{}),
		closed:    atomic.NewBool(false),
	}
	for _, apply := range opts {
		apply(e)
	}
	e.queue = make(chan string, e.queueSize)
	e.events = make(chan branch.Event, e.queueSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	var pending model.Reviews
	err := kv.View(func(r store.Reader) error {
		var err error
		pending, err = listReviews(r, func(rv model.Review) bool {
			return rv.Status == model.ReviewPending
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.branches.AddChangeListener(e.onBranchEvent)
	e.wg.Add(e.workers + 1)
	for i := 0; i < e.workers; i++ {
		go e.work()
	}
	go e.watch()

	e.refresh(nil)
	for _, rv := range pending {
		e.m.Queued(1)
		id := rv.ID
		go func() {
			_ = e.enqueue(e.ctx, id)
		}()
	}
	return e, nil
}

// OnStatusChange registers a callback, called after every status change of a review
func (e *Engine) OnStatusChange(fn func(model.Review)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, fn)
}

// Create a review of the changes the source branch brings to the target branch, as of their current heads
func (e *Engine) Create(ctx context.Context, sourcePath, targetPath string) (model.Review, error) {
	if e.closed.Load() {
		return model.Review{}, status.ErrInterrupted
	}
	var err error
	if strings.TrimSpace(sourcePath) == "" {
		err = multierr.Append(err, fmt.Errorf("a source branch is required"))
	}
	if strings.TrimSpace(targetPath) == "" {
		err = multierr.Append(err, fmt.Errorf("a target branch is required"))
	}
	if err == nil && sourcePath == targetPath {
		err = fmt.Errorf("source and target are the same branch %q", sourcePath)
	}
	if err != nil {
		return model.Review{}, status.ErrInvalidReview.Wrap(err)
	}

	source, err := e.endpoint(sourcePath)
	if err != nil {
		return model.Review{}, err
	}
	target, err := e.endpoint(targetPath)
	if err != nil {
		return model.Review{}, err
	}

	rv := model.NewReview(
		model.ReviewSource(source.Path, source.Head()),
		model.ReviewTarget(target.Path, target.Head()),
	)
	if err := e.kv.Update(func(txn store.Txn) error {
		return store.SetJSON(txn, reviewKey(rv.ID), rv)
	}); err != nil {
		return model.Review{}, errors.New("create review").WrapWithLog(e.l, err, zap.String("review", rv.ID))
	}

	e.l.Info("review created",
		zap.String("review", rv.ID),
		zap.String("source", source.Path),
		zap.String("target", target.Path),
	)
	e.m.Queued(1)
	e.m.Transition(rv.Status.String())
	if err := e.enqueue(ctx, rv.ID); err != nil {
		// stays pending: picked up again on the next start
		return rv, err
	}
	return rv, nil
}

func (e *Engine) endpoint(path string) (model.Branch, error) {
	b, err := e.branches.Get(path)
	if err != nil {
		return model.Branch{}, status.ErrInvalidReview.Wrap(err)
	}
	if b.Deleted {
		return model.Branch{}, status.ErrInvalidReview.WrapMessage("branch %q is deleted", path)
	}
	return b, nil
}

func (e *Engine) enqueue(ctx context.Context, id string) error {
	select {
	case e.queue <- id:
		return nil
	case <-ctx.Done():
		return status.ErrInterrupted.Wrap(ctx.Err())
	case <-e.ctx.Done():
		return status.ErrInterrupted
	}
}

// Get a review
func (e *Engine) Get(id string) (model.Review, error) {
	var rv model.Review
	err := e.kv.View(func(r store.Reader) error {
		var err error
		rv, err = readReview(r, id)
		return err
	})
	return rv, err
}

// List the reviews, in creation order
func (e *Engine) List() (model.Reviews, error) {
	var reviews model.Reviews
	err := e.kv.View(func(r store.Reader) error {
		var err error
		reviews, err = listReviews(r, nil)
		return err
	})
	return sorted(reviews), err
}

// Changes computed by a review. The changes of a STALE review remain readable.
func (e *Engine) Changes(id string) (model.ReviewChanges, error) {
	var c model.ReviewChanges
	err := e.kv.View(func(r store.Reader) error {
		if _, err := readReview(r, id); err != nil {
			return err
		}
		var err error
		c, err = readChanges(r, id)
		return err
	})
	return c, err
}

// ConceptChanges computed by a review, rolled up to the root components
func (e *Engine) ConceptChanges(id string) (model.ConceptChanges, error) {
	c, err := e.Changes(id)
	if err != nil {
		return model.ConceptChanges{}, err
	}
	return c.Concepts, nil
}

// Delete a review and its changes. A computation in progress is discarded when it completes.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var pending bool
	err := e.kv.Update(func(txn store.Txn) error {
		rv, err := readReview(txn, id)
		if err != nil {
			return err
		}
		pending = rv.Status == model.ReviewPending
		return removeReview(txn, id)
	})
	if err != nil {
		return err
	}
	if pending {
		e.m.Queued(-1)
	}
	e.l.Info("review deleted", zap.String("review", id))
	e.wakeLocked(id)
	return nil
}

// Await blocks until a review leaves the PENDING status
func (e *Engine) Await(ctx context.Context, id string) (model.Review, error) {
	for {
		e.mu.Lock()
		rv, err := e.Get(id)
		if err != nil || rv.Status != model.ReviewPending {
			e.mu.Unlock()
			return rv, err
		}
		ch := make(chan struct{})
		e.waiters[id] = append(e.waiters[id], ch)
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return rv, status.ErrInterrupted.Wrap(ctx.Err())
		case <-e.ctx.Done():
			return rv, status.ErrInterrupted
		}
	}
}

// Sweep deletes the FAILED and STALE reviews last updated before the retention period
func (e *Engine) Sweep(olderThan time.Duration) (int, error) {
	deadline := time.Now().UTC().Add(-olderThan)
	e.mu.Lock()
	defer e.mu.Unlock()

	var swept model.Reviews
	err := e.kv.Update(func(txn store.Txn) error {
		var err error
		swept, err = listReviews(txn, func(rv model.Review) bool {
			return rv.Status.IsTerminal() && rv.UpdatedAt.Before(deadline)
		})
		if err != nil {
			return err
		}
		for _, rv := range swept {
			if err := removeReview(txn, rv.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(swept) > 0 {
		e.l.Info("reviews swept", zap.Int("count", len(swept)), zap.Duration("retention", olderThan))
	}
	return len(swept), nil
}

// Close stops the workers. Reviews still pending are computed on the next start.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.closed.Store(true)
		e.cancel()
		e.wg.Wait()
	})
	return nil
}

func (e *Engine) work() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case id := <-e.queue:
			e.compute(id)
		}
	}
}

// compute the changes of a pending review and record the outcome
func (e *Engine) compute(id string) {
	rv, err := e.Get(id)
	if err != nil || rv.Status != model.ReviewPending {
		// deleted while queued
		return
	}
	start := time.Now()
	d, err := e.differ.Diff(e.ctx, rv.Source, rv.Target)
	e.m.Since(start, "review")
	if e.ctx.Err() != nil {
		// stays pending until the next start
		return
	}

	var changes model.ReviewChanges
	if err == nil {
		changes = changesOf(id, d, e.schema)
	} else {
		e.l.Error("review computation failed", zap.String("review", id), zap.Error(err))
		err = status.ErrReviewFailed.Wrap(err)
	}
	e.complete(id, changes, err)
}

// moved tells if a branch reviewed by rv moved past the reviewed head
func (e *Engine) moved(rv model.Review) (bool, error) {
	for _, p := range []model.BranchPoint{rv.Source, rv.Target} {
		b, err := e.branches.GetByID(p.BranchID)
		if err != nil {
			return false, err
		}
		if b.Deleted || b.HeadTimestamp != p.Timestamp {
			return true, nil
		}
	}
	return false, nil
}

func transition(rv *model.Review, next model.ReviewStatus, opts ...model.ReviewOption) bool {
	if !rv.Status.CanTransitionTo(next) {
		return false
	}
	model.ReviewWithStatus(next)(rv)
	for _, apply := range opts {
		apply(rv)
	}
	return true
}

// complete records the outcome of a computation, unless the review was deleted meanwhile.
//
// A review whose branches moved during the computation becomes CURRENT, then STALE right away.
func (e *Engine) complete(id string, changes model.ReviewChanges, failure error) {
	e.mu.Lock()
	var updates model.Reviews
	err := e.kv.Update(func(txn store.Txn) error {
		updates = updates[:0]
		rv, err := readReview(txn, id)
		if err != nil {
			return err
		}
		if failure != nil {
			if !transition(&rv, model.ReviewFailed, model.ReviewWithError(failure)) {
				return nil
			}
			updates = append(updates, rv)
			return store.SetJSON(txn, reviewKey(id), rv)
		}
		if !transition(&rv, model.ReviewCurrent) {
			return nil
		}
		updates = append(updates, rv)
		moved, err := e.moved(rv)
		if err != nil {
			return err
		}
		if moved && transition(&rv, model.ReviewStale) {
			updates = append(updates, rv)
		}
		if err := store.SetJSON(txn, changesKey(id), changes); err != nil {
			return err
		}
		return store.SetJSON(txn, reviewKey(id), rv)
	})
	if err != nil {
		e.mu.Unlock()
		if errors.Is(err, status.ErrReviewNotFound) {
			e.l.Info("review deleted during computation: result discarded", zap.String("review", id))
			return
		}
		e.l.Error("could not record review outcome", zap.String("review", id), zap.Error(err))
		return
	}
	if len(updates) > 0 {
		e.m.Queued(-1)
	}
	e.wakeLocked(id)
	e.mu.Unlock()
	e.notify(updates)
}

func (e *Engine) onBranchEvent(ev branch.Event) {
	if ev.Kind != branch.EventCommitted && ev.Kind != branch.EventDeleted {
		return
	}
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

func (e *Engine) watch() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.events:
			e.refresh(func(rv model.Review) bool {
				return rv.References(ev.Branch.ID)
			})
		}
	}
}

// refresh marks as STALE the CURRENT reviews selected by keep whose branches moved
func (e *Engine) refresh(keep func(model.Review) bool) {
	e.mu.Lock()
	var updates model.Reviews
	err := e.kv.Update(func(txn store.Txn) error {
		updates = updates[:0]
		current, err := listReviews(txn, func(rv model.Review) bool {
			return rv.Status == model.ReviewCurrent && (keep == nil || keep(rv))
		})
		if err != nil {
			return err
		}
		for _, rv := range current {
			moved, err := e.moved(rv)
			if err != nil {
				return err
			}
			if !moved || !transition(&rv, model.ReviewStale) {
				continue
			}
			if err := store.SetJSON(txn, reviewKey(rv.ID), rv); err != nil {
				return err
			}
			updates = append(updates, rv)
		}
		return nil
	})
	if err != nil {
		e.mu.Unlock()
		e.l.Error("could not refresh reviews", zap.Error(err))
		return
	}
	for _, rv := range updates {
		e.wakeLocked(rv.ID)
	}
	e.mu.Unlock()
	e.notify(updates)
}

// wakeLocked releases the callers awaiting a review. The caller must hold mu.
func (e *Engine) wakeLocked(id string) {
	for _, ch := range e.waiters[id] {
		close(ch)
	}
	delete(e.waiters, id)
}

func (e *Engine) notify(updates model.Reviews) {
	if len(updates) == 0 {
		return
	}
	e.mu.Lock()
	callbacks := e.callbacks
	e.mu.Unlock()
	for _, rv := range updates {
		e.l.Info("review status changed", zap.String("review", rv.ID), zap.Stringer("status", rv.Status))
		e.m.Transition(rv.Status.String())
		for _, fn := range callbacks {
			fn(rv)
		}
	}
}

func sorted(reviews model.Reviews) model.Reviews {
	sort.Sort(reviews)
	return reviews
}
