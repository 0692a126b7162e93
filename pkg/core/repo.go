// Package core exposes a revision store as a single Repo: branches, commits, merges and reviews.
package core

import (
	"context"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/commit"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/merge"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/review"
	"github.com/oneconcern/revstore/pkg/revision"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/instrumented"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Repo is a branch-aware revision store
type Repo struct {
	settings Settings
	kv       store.Store
	owned    bool

	branches *branch.Store
	log      *commitlog.Log
	index    *revision.Index
	writer   *commit.Writer
	merges   *merge.Engine
	reviews  *review.Engine
}

// Open a repo
func Open(opts ...Option) (*Repo, error) {
	settings := defaultSettings()
	for _, apply := range opts {
		apply(&settings)
	}
	r := &Repo{settings: settings, kv: settings.kv}
	if r.kv == nil {
		r.kv = memory.New()
		r.owned = true
	}
	l, m := settings.l, settings.m
	r.kv = instrumented.New(r.kv, m)

	var err error
	if r.branches, err = branch.New(r.kv,
		branch.Logger(l.With(zap.String("component", "branches"))),
		branch.LockTimeout(settings.lockTimeout),
	); err != nil {
		return nil, r.closeOnError(err)
	}
	r.log = commitlog.New(r.kv)
	if r.index, err = revision.New(r.kv, r.branches, r.log,
		revision.CacheSize(settings.cacheSize),
		revision.Logger(l.With(zap.String("component", "revisions"))),
	); err != nil {
		return nil, r.closeOnError(err)
	}
	m.CacheStats("revisions", r.index.CacheStats)

	r.writer = commit.New(r.kv, r.branches, r.index, r.log, settings.schema,
		commit.Logger(l.With(zap.String("component", "commits"))),
		commit.Metrics(m),
	)
	r.merges = merge.New(r.branches, r.index, r.log, r.writer, settings.schema,
		merge.Logger(l.With(zap.String("component", "merges"))),
		merge.Metrics(m),
		merge.Concurrency(settings.diffConcurrency),
	)
	if r.reviews, err = review.New(r.kv, r.branches, r.merges, settings.schema,
		review.Logger(l.With(zap.String("component", "reviews"))),
		review.Metrics(m),
		review.Workers(settings.reviewWorkers),
	); err != nil {
		return nil, r.closeOnError(err)
	}
	return r, nil
}

func (r *Repo) closeOnError(err error) error {
	if r.owned {
		return multierr.Append(err, r.kv.Close())
	}
	return err
}

// Close the repo: review workers are stopped, and the store is closed when the repo created it
func (r *Repo) Close() error {
	err := r.reviews.Close()
	if r.owned {
		err = multierr.Append(err, r.kv.Close())
	}
	return err
}

// Schema of the components
func (r *Repo) Schema() *model.Schema {
	return r.settings.schema
}

// Branches of the repo
func (r *Repo) Branches() *branch.Store {
	return r.branches
}

// Revisions of the components
func (r *Repo) Revisions() *revision.Index {
	return r.index
}

// Commits of the branches
func (r *Repo) Commits() *commitlog.Log {
	return r.log
}

// Merges engine
func (r *Repo) Merges() *merge.Engine {
	return r.merges
}

// Reviews engine
func (r *Repo) Reviews() *review.Engine {
	return r.reviews
}

// Commit a change set on a branch
func (r *Repo) Commit(ctx context.Context, path, author, comment string, changes []model.Change) (model.Commit, error) {
	return r.writer.Commit(ctx, path, author, comment, changes)
}

// History of the commits on a branch stamped after since (all commits when since is model.UnspecifiedTime)
func (r *Repo) History(path string, since int64) (model.Commits, error) {
	b, err := r.branches.Get(path)
	if err != nil {
		return nil, err
	}
	return r.log.List(b.ID, since, model.UnspecifiedTime)
}

// Component visible on a branch at some timestamp (model.UnspecifiedTime for the head)
func (r *Repo) Component(id, path string, timestamp int64) (model.Revision, error) {
	b, err := r.branches.Get(path)
	if err != nil {
		return model.Revision{}, err
	}
	rev, err := r.index.RevisionAt(id, b.At(timestamp))
	if err != nil {
		return model.Revision{}, err
	}
	if rev == nil {
		return model.Revision{}, status.ErrComponentNotFound.WrapMessage("%q on %s", id, b.At(timestamp))
	}
	return *rev, nil
}

// Merge the head of the source branch into the target branch
func (r *Repo) Merge(ctx context.Context, source, target, comment string) (model.Merge, error) {
	return r.apply(ctx, source, target, comment, false)
}

// Rebase the target branch onto the head of the source branch
func (r *Repo) Rebase(ctx context.Context, target, source, comment string) (model.Merge, error) {
	return r.apply(ctx, source, target, comment, true)
}

func (r *Repo) apply(ctx context.Context, source, target, comment string, rebase bool) (model.Merge, error) {
	src, err := r.branches.Get(source)
	if err != nil {
		return model.Merge{}, err
	}
	tgt, err := r.branches.Get(target)
	if err != nil {
		return model.Merge{}, err
	}
	return r.merges.Merge(ctx, model.MergeRequest{
		Source:  model.Latest(src.ID),
		Target:  model.Latest(tgt.ID),
		Rebase:  rebase,
		Comment: comment,
	})
}

// State of branch a compared to branch b
func (r *Repo) State(ctx context.Context, a, b string) (model.BranchState, error) {
	ba, err := r.branches.Get(a)
	if err != nil {
		return "", err
	}
	bb, err := r.branches.Get(b)
	if err != nil {
		return "", err
	}
	return r.merges.State(ctx, model.Latest(ba.ID), model.Latest(bb.ID))
}
