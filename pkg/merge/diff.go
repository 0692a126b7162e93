package merge

import (
	"context"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/revstore/pkg/model"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// Entry holds the three revisions of a component touched since the merge base.
//
// A nil revision means the component is absent or deleted at that point.
type Entry struct {
	ID     string
	Type   string
	Base   *model.Revision
	Source *model.Revision
	Target *model.Revision
}

// SourceChanged tells if the source holds different content than the base
func (e Entry) SourceChanged() bool {
	return !model.SameContent(e.Base, e.Source)
}

// TargetChanged tells if the target holds different content than the base
func (e Entry) TargetChanged() bool {
	return !model.SameContent(e.Base, e.Target)
}

// Diff of two branch points against their merge base
type Diff struct {
	Source model.BranchPoint
	Target model.BranchPoint
	Base   model.BranchPoint

	// Entries of the components changed on either side, sorted by id
	Entries []Entry

	byID map[string]int
}

// Get the entry of a component, if it changed on either side
func (d *Diff) Get(id string) (Entry, bool) {
	i, ok := d.byID[id]
	if !ok {
		return Entry{}, false
	}
	return d.Entries[i], true
}

// State compares the source to the target
func (d *Diff) State() model.BranchState {
	var source, target bool
	for _, e := range d.Entries {
		source = source || e.SourceChanged()
		target = target || e.TargetChanged()
	}
	switch {
	case source && target:
		return model.BranchDiverged
	case source:
		return model.BranchForward
	case target:
		return model.BranchBehind
	default:
		return model.BranchUpToDate
	}
}

func live(rev *model.Revision) *model.Revision {
	if !rev.Live() {
		return nil
	}
	return rev
}

// touched collects the ids of the components committed in the spans of both sides, sorted
func (e *Engine) touched(mb model.MergeBase) ([]string, error) {
	spans := make([]model.Span, 0, len(mb.Source)+len(mb.Target))
	spans = append(spans, mb.Source...)
	spans = append(spans, mb.Target...)

	index := iradix.New()
	it := e.log.ChangedIn(spans...)
	for id := it.Next(); id != ""; id = it.Next() {
		index, _, _ = index.Insert([]byte(id), struct{}{})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, index.Len())
	iterator := index.Root().Iterator()
	for key, _, ok := iterator.Next(); ok; key, _, ok = iterator.Next() {
		ids = append(ids, string(key))
	}
	return ids, nil
}

// diff computes the changes on both sides since the merge base of two resolved branch points
func (e *Engine) diff(ctx context.Context, source, target model.BranchPoint) (*Diff, error) {
	defer e.m.Since(time.Now(), "diff")

	mb, err := e.branches.MergeBase(source, target)
	if err != nil {
		return nil, err
	}
	ids, err := e.touched(mb)
	if err != nil {
		return nil, err
	}
	e.l.Debug("diffing",
		zap.Stringer("source", source),
		zap.Stringer("target", target),
		zap.Stringer("base", mb.Base),
		zap.Int("touched", len(ids)),
	)

	entries := make([]Entry, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range ids {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id := ids[i]
			entry := Entry{ID: id}
			for _, side := range []struct {
				point model.BranchPoint
				rev   **model.Revision
			}{
				{mb.Base, &entry.Base},
				{source, &entry.Source},
				{target, &entry.Target},
			} {
				rev, err := e.index.Lookup(id, side.point)
				if err != nil {
					return err
				}
				if rev != nil && entry.Type == "" {
					entry.Type = rev.ComponentType
				}
				*side.rev = live(rev)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Diff{
		Source: source,
		Target: target,
		Base:   mb.Base,
		byID:   make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		if !entry.SourceChanged() && !entry.TargetChanged() {
			continue
		}
		d.byID[entry.ID] = len(d.Entries)
		d.Entries = append(d.Entries, entry)
	}
	return d, nil
}
