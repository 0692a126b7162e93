// Package merge diffs branch points against their merge base, and applies the changes of a source
// branch point onto a target branch.
//
// A merge either writes a single commit on the target, or reports conflicts and writes nothing.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/commit"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/revision"
	"go.uber.org/zap"
)

const (
	defaultConcurrency = 16

	opMerge  = "merge"
	opRebase = "rebase"
)

// Option for the merge engine
type Option func(*Engine)

// Logger for the merge engine
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// Metrics collected by the merge engine
func Metrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.m = m
	}
}

// Concurrency bounds the number of components fetched concurrently by a diff
func Concurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// Engine merges and compares branch points
type Engine struct {
	branches    *branch.Store
	index       *revision.Index
	log         *commitlog.Log
	writer      *commit.Writer
	schema      *model.Schema
	l           *zap.Logger
	m           *metrics.Metrics
	concurrency int
}

// New merge engine
func New(branches *branch.Store, index *revision.Index, log *commitlog.Log, writer *commit.Writer, schema *model.Schema, opts ...Option) *Engine {
	e := &Engine{
		branches:    branches,
		index:       index,
		log:         log,
		writer:      writer,
		schema:      schema,
		l:           zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, apply := range opts {
		apply(e)
	}
	return e
}

// Diff computes the components changed on either side since the merge base of two branch points
func (e *Engine) Diff(ctx context.Context, source, target model.BranchPoint) (*Diff, error) {
	source, err := e.branches.Resolve(source)
	if err != nil {
		return nil, err
	}
	target, err = e.branches.Resolve(target)
	if err != nil {
		return nil, err
	}
	return e.diff(ctx, source, target)
}

// State compares a to b: FORWARD when only a changed since their merge base, BEHIND when only b changed
func (e *Engine) State(ctx context.Context, a, b model.BranchPoint) (model.BranchState, error) {
	d, err := e.Diff(ctx, a, b)
	if err != nil {
		return "", err
	}
	return d.State(), nil
}

// Merge applies the changes of the source branch point onto the head of the target branch.
//
// Conflicts are reported in the outcome, with a nil error: nothing is written then.
func (e *Engine) Merge(ctx context.Context, req model.MergeRequest) (model.Merge, error) {
	start := time.Now()
	op := opMerge
	if req.Rebase {
		op = opRebase
	}
	defer e.m.Since(start, op)

	if req.Source.BranchID == req.Target.BranchID {
		return model.Merge{}, status.ErrSelfMerge.WrapMessage("branch %d", req.Source.BranchID)
	}
	src, err := e.branches.GetByID(req.Source.BranchID)
	if err != nil {
		return model.Merge{}, err
	}
	tgt, err := e.branches.GetByID(req.Target.BranchID)
	if err != nil {
		return model.Merge{}, err
	}
	if tgt.Deleted {
		return model.Merge{}, status.ErrBranchDeleted.WrapMessage("%q", tgt.Path)
	}

	unlock, err := e.branches.Lock(ctx, tgt.ID)
	if err != nil {
		e.m.LockTimeout()
		return model.Merge{}, err
	}
	defer unlock()

	if tgt, err = e.branches.GetByID(tgt.ID); err != nil {
		return model.Merge{}, err
	}
	if tgt.Deleted {
		return model.Merge{}, status.ErrBranchDeleted.WrapMessage("%q", tgt.Path)
	}
	if !req.Target.IsLatest() && req.Target.Timestamp != tgt.HeadTimestamp {
		return model.Merge{}, status.ErrTargetNotHead.WrapMessage("%q is at %d, not %d", tgt.Path, tgt.HeadTimestamp, req.Target.Timestamp)
	}
	if src, err = e.branches.GetByID(src.ID); err != nil {
		return model.Merge{}, err
	}

	req.Source = src.At(req.Source.Timestamp)
	req.Target = tgt.Head()
	if req.Comment == "" {
		req.Comment = defaultComment(req.Rebase, src.Path, tgt.Path)
	}
	l := e.l.With(
		zap.String("operation", op),
		zap.String("source", src.Path),
		zap.String("target", tgt.Path),
	)

	outcome := model.NewMerge(req)
	d, err := e.diff(ctx, req.Source, req.Target)
	if err != nil {
		return model.Merge{}, err
	}
	outcome.Base = d.Base

	classified := e.classify(d, req.Rebase)
	if len(classified.conflicts) > 0 {
		outcome.Status = model.MergeConflicting
		outcome.Conflicts = classified.conflicts
		outcome.EndTime = time.Now().UTC()

		kinds := make([]string, 0, len(classified.conflicts))
		for _, c := range classified.conflicts {
			kinds = append(kinds, c.Kind.String())
		}
		e.m.Merged(op, outcome.Status.String(), kinds...)
		l.Info("merge rejected", zap.Int("conflicts", len(classified.conflicts)), zap.Stringer("base", d.Base))
		return outcome, nil
	}

	outcome.Status = model.MergeCompleted
	if classified.size() == 0 {
		outcome.EndTime = time.Now().UTC()
		e.m.Merged(op, outcome.Status.String())
		l.Info("nothing to merge", zap.Stringer("base", d.Base))
		return outcome, nil
	}

	draft := commit.NewDraft(req.Author, req.Comment)
	from := req.Source
	draft.MergeSource = &from
	for _, rev := range classified.creates {
		draft.Create(fresh(rev))
	}
	for _, rev := range classified.changes {
		draft.Change(fresh(rev))
	}
	for _, rev := range classified.deletes {
		draft.Delete(fresh(rev))
	}

	c, err := e.writer.Write(ctx, tgt, draft, op)
	if err != nil {
		return model.Merge{}, err
	}
	outcome.Commit = &c
	outcome.EndTime = time.Now().UTC()
	e.m.Merged(op, outcome.Status.String())
	l.Info("merge completed",
		zap.Stringer("base", d.Base),
		zap.Int64("timestamp", c.Timestamp),
		zap.Int("components", draft.Len()),
	)
	return outcome, nil
}

func defaultComment(rebase bool, source, target string) string {
	if rebase {
		return fmt.Sprintf("Rebase %s onto %s", target, source)
	}
	return fmt.Sprintf("Merge %s into %s", source, target)
}

// fresh copies the content of a revision, to be written in a new segment
func fresh(rev model.Revision) model.Revision {
	return model.Revision{
		ComponentID:   rev.ComponentID,
		ComponentType: rev.ComponentType,
		Attributes:    rev.Attributes,
	}
}
