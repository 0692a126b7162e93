// Package commit writes change sets on branches.
//
// A commit is written in a single store transaction: the new revisions, the commit record
// and the new head of the branch become visible together, or not at all.
package commit

import (
	"context"
	"sort"
	"time"

	"github.com/oneconcern/revstore/pkg/branch"
	"github.com/oneconcern/revstore/pkg/commitlog"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/revision"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/zap"
)

const originCommit = "commit"

// Option for the writer
type Option func(*Writer)

// Logger for the writer
func Logger(l *zap.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.l = l
		}
	}
}

// Metrics collected by the writer
func Metrics(m *metrics.Metrics) Option {
	return func(w *Writer) {
		w.m = m
	}
}

// Writer applies change sets on branches
type Writer struct {
	kv       store.Store
	branches *branch.Store
	index    *revision.Index
	log      *commitlog.Log
	schema   *model.Schema
	l        *zap.Logger
	m        *metrics.Metrics
}

// New commit writer
func New(kv store.Store, branches *branch.Store, index *revision.Index, log *commitlog.Log, schema *model.Schema, opts ...Option) *Writer {
	w := &Writer{
		kv:       kv,
		branches: branches,
		index:    index,
		log:      log,
		schema:   schema,
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(w)
	}
	return w
}

// Commit applies a change set on the branch at path.
//
// The change set is validated against the state of the branch at its head, under the branch lock.
func (w *Writer) Commit(ctx context.Context, path, author, comment string, changes []model.Change) (model.Commit, error) {
	if err := validate(changes); err != nil {
		return model.Commit{}, err
	}
	b, err := w.branches.Get(path)
	if err != nil {
		return model.Commit{}, err
	}
	if b.Deleted {
		return model.Commit{}, status.ErrBranchDeleted.WrapMessage("%q", path)
	}

	unlock, err := w.branches.Lock(ctx, b.ID)
	if err != nil {
		w.m.LockTimeout()
		return model.Commit{}, err
	}
	defer unlock()

	// the head can't move while the lock is held
	if b, err = w.branches.GetByID(b.ID); err != nil {
		return model.Commit{}, err
	}
	if b.Deleted {
		return model.Commit{}, status.ErrBranchDeleted.WrapMessage("%q", path)
	}

	draft := NewDraft(author, comment)
	err = w.kv.View(func(r store.Reader) error {
		for _, change := range changes {
			current, err := w.index.LookupIn(r, change.ID, b.Head())
			if err != nil {
				return err
			}
			if err := w.resolve(draft, change, current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Commit{}, err
	}
	if draft.Len() == 0 {
		return model.Commit{}, status.ErrInvalidChange.WrapMessage("the change set doesn't change anything on %q", path)
	}
	return w.Write(ctx, b, draft, originCommit)
}

func (w *Writer) resolve(draft *Draft, change model.Change, current *model.Revision) error {
	switch change.Op {
	case model.ChangeCreate:
		if current.Live() {
			return status.ErrInvalidChange.WrapMessage("component %q already exists", change.ID)
		}
		attributes, err := w.normalize(change.ID, change.Type, change.Attributes)
		if err != nil {
			return err
		}
		draft.Create(model.Revision{ComponentID: change.ID, ComponentType: change.Type, Attributes: attributes})

	case model.ChangeUpdate:
		if !current.Live() {
			return status.ErrComponentNotFound.WrapMessage("%q", change.ID)
		}
		if change.Type != "" && change.Type != current.ComponentType {
			return status.ErrInvalidChange.WrapMessage("component %q: type %q can't be changed to %q", change.ID, current.ComponentType, change.Type)
		}
		patched := make(map[string]string, len(current.Attributes)+len(change.Attributes))
		for k, v := range current.Attributes {
			patched[k] = v
		}
		for k, v := range change.Attributes {
			patched[k] = v
		}
		attributes, err := w.normalize(change.ID, current.ComponentType, patched)
		if err != nil {
			return err
		}
		next := model.Revision{ComponentID: change.ID, ComponentType: current.ComponentType, Attributes: attributes}
		if !model.SameContent(current, &next) {
			draft.Change(next)
		}

	case model.ChangeDelete:
		if !current.Live() {
			return status.ErrComponentNotFound.WrapMessage("%q", change.ID)
		}
		draft.Delete(model.Revision{ComponentID: change.ID, ComponentType: current.ComponentType, Deleted: true})
	}
	return nil
}

func (w *Writer) normalize(id, typeName string, attributes map[string]string) (map[string]string, error) {
	if _, ok := w.schema.Type(typeName); !ok {
		return nil, status.ErrUnknownComponentType.WrapMessage("component %q: %q", id, typeName)
	}
	normalized, err := w.schema.Normalize(typeName, attributes)
	if err != nil {
		return nil, status.ErrInvalidChange.WrapMessage("component %q", id).Wrap(err)
	}
	return normalized, nil
}

// Write a draft as a new commit on a branch. The caller must hold the write lock of the branch.
//
// A draft with a merge source also records the merge on the branch.
func (w *Writer) Write(_ context.Context, b model.Branch, draft *Draft, origin string) (model.Commit, error) {
	ts := w.branches.Clock().Next()
	c := draft.commit(b, ts)

	var (
		record *model.MergeRecord
		head   model.Branch
	)
	if c.MergeSource != nil {
		record = &model.MergeRecord{
			SourceBranchID:  c.MergeSource.BranchID,
			SourceTimestamp: c.MergeSource.Timestamp,
			Timestamp:       ts,
		}
	}

	err := w.kv.Update(func(txn store.Txn) error {
		var err error
		if head, err = w.branches.StageCommit(txn, b.ID, ts, record); err != nil {
			return err
		}
		for _, rev := range draft.revisions {
			rev.BranchID = b.ID
			rev.SegmentStart = ts
			if err := w.index.Stage(txn, rev); err != nil {
				return err
			}
		}
		return w.log.Stage(txn, c)
	})
	if err != nil {
		if errors.Is(err, status.ErrInvalidRequest) {
			return model.Commit{}, err
		}
		return model.Commit{}, errors.New("write commit").WrapWithLog(w.l, err,
			zap.String("branch", b.Path),
			zap.Int64("timestamp", ts),
		)
	}

	w.l.Info("commit written",
		zap.String("branch", b.Path),
		zap.Int64("timestamp", ts),
		zap.String("origin", origin),
		zap.Int("new", len(c.NewComponentIDs)),
		zap.Int("changed", len(c.ChangedComponentIDs)),
		zap.Int("deleted", len(c.DeletedComponentIDs)),
	)
	w.m.Committed(origin, draft.Len())
	w.branches.Committed(head, ts)
	return c, nil
}

// Draft collects the revisions of a commit before it is written
type Draft struct {
	Author      string
	Comment     string
	MergeSource *model.BranchPoint

	revisions []model.Revision
	created   []string
	changed   []string
	deleted   []string
}

// NewDraft commit
func NewDraft(author, comment string) *Draft {
	return &Draft{Author: author, Comment: comment}
}

// Create adds a new component
func (d *Draft) Create(rev model.Revision) {
	d.revisions = append(d.revisions, rev)
	d.created = append(d.created, rev.ComponentID)
}

// Change adds a new revision of an existing component
func (d *Draft) Change(rev model.Revision) {
	d.revisions = append(d.revisions, rev)
	d.changed = append(d.changed, rev.ComponentID)
}

// Delete adds a tombstone
func (d *Draft) Delete(tombstone model.Revision) {
	tombstone.Deleted = true
	tombstone.Attributes = nil
	d.revisions = append(d.revisions, tombstone)
	d.deleted = append(d.deleted, tombstone.ComponentID)
}

// Len is the number of components changed by the draft
func (d *Draft) Len() int {
	return len(d.revisions)
}

func (d *Draft) commit(b model.Branch, ts int64) model.Commit {
	c := model.Commit{
		Timestamp:           ts,
		BranchID:            b.ID,
		BranchPath:          b.Path,
		Author:              d.Author,
		Comment:             d.Comment,
		NewComponentIDs:     sorted(d.created),
		ChangedComponentIDs: sorted(d.changed),
		DeletedComponentIDs: sorted(d.deleted),
		MergeSource:         d.MergeSource,
		CreatedAt:           time.Now().UTC(),
	}
	for _, rev := range d.revisions {
		if rev.Deleted {
			continue
		}
		if c.NewRevisions == nil {
			c.NewRevisions = make(map[string]model.Revision, len(d.revisions))
		}
		rev.BranchID = b.ID
		rev.SegmentStart = ts
		c.NewRevisions[rev.ComponentID] = rev
	}
	return c
}

func sorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
