package branch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/zap"
)

func validName(name string) bool {
	return store.ValidPart(name) && !strings.Contains(name, model.PathSeparator) && strings.TrimSpace(name) == name
}

// Create a branch under a parent branch.
//
// The new branch sees the parent as of now. A path whose branch was deleted may be reused.
func (s *Store) Create(ctx context.Context, parentPath, name string, metadata map[string]string) (model.Branch, error) {
	if !validName(name) {
		return model.Branch{}, status.ErrInvalidBranchName.WrapMessage("%q", name)
	}
	parent, err := s.Get(parentPath)
	if err != nil {
		if errors.Is(err, status.ErrBranchNotFound) {
			return model.Branch{}, status.ErrParentNotFound.WrapMessage("%q", parentPath)
		}
		return model.Branch{}, err
	}
	if parent.Deleted {
		return model.Branch{}, status.ErrParentDeleted.WrapMessage("%q", parentPath)
	}

	// no commit may land on the parent while the base of the child is taken
	unlock, err := s.Lock(ctx, parent.ID)
	if err != nil {
		return model.Branch{}, err
	}
	defer unlock()

	path := model.JoinPath(parent.Path, name)
	var created model.Branch
	err = s.kv.Update(func(txn store.Txn) error {
		p, err := readBranch(txn, parent.ID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return status.ErrParentDeleted.WrapMessage("%q", parentPath)
		}
		existing, err := readPath(txn, path)
		switch {
		case err == nil && !existing.Deleted:
			return status.ErrDuplicateName.WrapMessage("%q", path)
		case err != nil && !errors.Is(err, status.ErrBranchNotFound):
			return err
		}

		ts := s.clock.Next()
		created = model.Branch{
			ID:            ts,
			ParentID:      p.ID,
			Base:          model.Point(p.ID, ts),
			Name:          name,
			Path:          path,
			Metadata:      metadata,
			HeadTimestamp: ts,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.clock.stage(txn, ts); err != nil {
			return err
		}
		return putBranch(txn, created)
	})
	if err != nil {
		return model.Branch{}, err
	}

	s.l.Info("branch created", zap.String("branch", created.Path), zap.Int64("branch_id", created.ID))
	s.listeners.notify(Event{Kind: EventCreated, Branch: created, Timestamp: created.HeadTimestamp})
	return created, nil
}

// Delete a branch and all its descendants. Deleting a deleted branch does nothing.
func (s *Store) Delete(ctx context.Context, path string) error {
	b, err := s.Get(path)
	if err != nil {
		return err
	}
	if b.IsRoot() {
		return status.ErrMainBranch
	}
	if b.Deleted {
		return nil
	}

	descendants, err := s.Descendants(b.ID)
	if err != nil {
		return err
	}
	targets := []model.Branch{b}
	for _, d := range descendants {
		if !d.Deleted {
			targets = append(targets, d)
		}
	}
	ids := make([]int64, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unlock, err := s.lockAll(ctx, ids)
	if err != nil {
		return err
	}
	defer unlock()

	var deleted []model.Branch
	err = s.kv.Update(func(txn store.Txn) error {
		deleted = deleted[:0]
		for _, id := range ids {
			current, err := readBranch(txn, id)
			if err != nil {
				return err
			}
			if current.Deleted {
				continue
			}
			current.Deleted = true
			if err := store.SetJSON(txn, branchKey(id), current); err != nil {
				return err
			}
			deleted = append(deleted, current)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.l.Info("branch deleted", zap.String("branch", b.Path), zap.Int("deleted_branches", len(deleted)))
	for _, d := range deleted {
		s.listeners.notify(Event{Kind: EventDeleted, Branch: d, Timestamp: d.HeadTimestamp})
	}
	return nil
}

// UpdateMetadata replaces the metadata of a branch
func (s *Store) UpdateMetadata(ctx context.Context, path string, metadata map[string]string) (model.Branch, error) {
	b, err := s.Get(path)
	if err != nil {
		return b, err
	}
	unlock, err := s.Lock(ctx, b.ID)
	if err != nil {
		return b, err
	}
	defer unlock()

	err = s.kv.Update(func(txn store.Txn) error {
		current, err := readBranch(txn, b.ID)
		if err != nil {
			return err
		}
		if current.Deleted {
			return status.ErrBranchDeleted.WrapMessage("%q", path)
		}
		current.Metadata = metadata
		b = current
		return store.SetJSON(txn, branchKey(b.ID), current)
	})
	if err != nil {
		return b, err
	}
	s.listeners.notify(Event{Kind: EventMetadataUpdated, Branch: b, Timestamp: b.HeadTimestamp})
	return b, nil
}

// StageCommit moves the head of a branch to a new commit, within a write transaction.
//
// The caller must hold the write lock of the branch.
func (s *Store) StageCommit(txn store.Txn, id, ts int64, merge *model.MergeRecord) (model.Branch, error) {
	b, err := readBranch(txn, id)
	if err != nil {
		return b, err
	}
	if b.Deleted {
		return b, status.ErrBranchDeleted.WrapMessage("%q", b.Path)
	}
	if ts <= b.HeadTimestamp {
		return b, status.ErrCorruptedIndex.WrapMessage("commit at %d is not after the head of %q (%d)", ts, b.Path, b.HeadTimestamp)
	}
	b.HeadTimestamp = ts
	if merge != nil {
		b.Merges = append(b.Merges, *merge)
	}
	if err := s.clock.stage(txn, ts); err != nil {
		return b, err
	}
	return b, store.SetJSON(txn, branchKey(id), b)
}

// Committed notifies the listeners that a commit was written on a branch
func (s *Store) Committed(b model.Branch, ts int64) {
	s.listeners.notify(Event{Kind: EventCommitted, Branch: b, Timestamp: ts})
}
