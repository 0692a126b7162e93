package branch

import (
	"sort"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
)

// maxDepth guards ancestry walks against a corrupted parent chain
const maxDepth = 1 << 12

// link is a branch of an ancestry chain, with the last timestamp visible from the descendant
type link struct {
	id     int64
	cap    int64
	merges []model.MergeRecord
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// lineage lists the branches visible from a branch point, from the point itself up to the root
func lineage(r store.Reader, p model.BranchPoint) ([]link, error) {
	b, err := readBranch(r, p.BranchID)
	if err != nil {
		return nil, err
	}
	ts := b.At(p.Timestamp).Timestamp
	chain := []link{{id: b.ID, cap: ts, merges: b.MergesUntil(ts)}}
	for !b.IsRoot() {
		if len(chain) > maxDepth {
			return nil, status.ErrCorruptedIndex.WrapMessage("branch %d: ancestry too deep", p.BranchID)
		}
		ts = min64(ts, b.Base.Timestamp)
		if b, err = readBranch(r, b.ParentID); err != nil {
			return nil, err
		}
		// nothing was committed on the parent between its head and now
		ts = min64(ts, b.HeadTimestamp)
		chain = append(chain, link{id: b.ID, cap: ts, merges: b.MergesUntil(ts)})
	}
	return chain, nil
}

func commonAncestor(a, b []link) (model.BranchPoint, bool) {
	caps := make(map[int64]int64, len(b))
	for _, l := range b {
		caps[l.id] = l.cap
	}
	for _, l := range a {
		if c, ok := caps[l.id]; ok {
			return model.Point(l.id, min64(l.cap, c)), true
		}
	}
	return model.BranchPoint{}, false
}

// reach maps every branch whose history is held by a branch point to the last timestamp held,
// through the ancestry and the merges recorded along it, transitively.
func reach(r store.Reader, p model.BranchPoint) (map[int64]int64, error) {
	held := make(map[int64]int64)
	pending := []model.BranchPoint{p}
	for walked := 0; len(pending) > 0; walked++ {
		if walked > maxDepth {
			return nil, status.ErrCorruptedIndex.WrapMessage("branch %d: merge history too deep", p.BranchID)
		}
		next := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		chain, err := lineage(r, next)
		if err != nil {
			return nil, err
		}
		for _, l := range chain {
			if c, ok := held[l.id]; ok && c >= l.cap {
				continue
			}
			held[l.id] = l.cap
			for _, m := range l.merges {
				if c, ok := held[m.SourceBranchID]; !ok || c < m.SourceTimestamp {
					pending = append(pending, model.Point(m.SourceBranchID, m.SourceTimestamp))
				}
			}
		}
	}
	return held, nil
}

// reconciled picks the latest point held by both sides, starting from the common ancestor
func reconciled(ancestor model.BranchPoint, source, target []link, heldBySource, heldByTarget map[int64]int64) model.BranchPoint {
	best := ancestor
	consider := func(id int64) {
		s, ok := heldBySource[id]
		if !ok {
			return
		}
		t, ok := heldByTarget[id]
		if !ok {
			return
		}
		if ts := min64(s, t); ts > best.Timestamp {
			best = model.Point(id, ts)
		}
	}
	// the lineages first, so that ties stay on the branches being merged
	for _, l := range source {
		consider(l.id)
	}
	for _, l := range target {
		consider(l.id)
	}
	ids := make([]int64, 0, len(heldBySource))
	for id := range heldBySource {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		consider(id)
	}
	return best
}

// sideSpans lists the commits to inspect on one side: from the base when it lies on the side's
// lineage, from the common ancestor otherwise.
func sideSpans(chain []link, base, ancestor model.BranchPoint) []model.Span {
	for _, l := range chain {
		if l.id == base.BranchID && l.cap >= base.Timestamp {
			return spans(chain, base.BranchID, base.Timestamp)
		}
	}
	return spans(chain, ancestor.BranchID, ancestor.Timestamp)
}

// spans lists the commits visible from a branch point which were made after since on the anchor branch.
//
// Branches met on the way to the anchor contribute their whole visible history.
func spans(chain []link, anchor int64, since int64) []model.Span {
	var result []model.Span
	for _, l := range chain {
		if l.id == anchor {
			if l.cap > since {
				result = append(result, model.Span{BranchID: l.id, After: since, Until: l.cap})
			}
			break
		}
		result = append(result, model.Span{BranchID: l.id, After: 0, Until: l.cap})
	}
	return result
}

// CommonAncestor of two branch points: the latest point visible from both.
//
// When one point descends from the other, the ancestor is the older point itself.
func (s *Store) CommonAncestor(a, b model.BranchPoint) (model.BranchPoint, error) {
	var ancestor model.BranchPoint
	err := s.kv.View(func(r store.Reader) error {
		chainA, err := lineage(r, a)
		if err != nil {
			return err
		}
		chainB, err := lineage(r, b)
		if err != nil {
			return err
		}
		var ok bool
		if ancestor, ok = commonAncestor(chainA, chainB); !ok {
			return status.ErrCorruptedIndex.WrapMessage("branches %d and %d have no common root", a.BranchID, b.BranchID)
		}
		return nil
	})
	return ancestor, err
}

// MergeBase computes the base used to bring the changes of a source point into a target point.
//
// It starts from the common ancestor, then moves to the most recent point held by both sides
// through recorded merges, possibly made via other branches: changes already exchanged are not
// considered again.
func (s *Store) MergeBase(source, target model.BranchPoint) (model.MergeBase, error) {
	var mb model.MergeBase
	err := s.kv.View(func(r store.Reader) error {
		srcChain, err := lineage(r, source)
		if err != nil {
			return err
		}
		tgtChain, err := lineage(r, target)
		if err != nil {
			return err
		}
		ancestor, ok := commonAncestor(srcChain, tgtChain)
		if !ok {
			return status.ErrCorruptedIndex.WrapMessage("branches %d and %d have no common root", source.BranchID, target.BranchID)
		}

		base := ancestor
		if source.BranchID != target.BranchID {
			heldBySource, err := reach(r, source)
			if err != nil {
				return err
			}
			heldByTarget, err := reach(r, target)
			if err != nil {
				return err
			}
			base = reconciled(ancestor, srcChain, tgtChain, heldBySource, heldByTarget)
		}

		mb = model.MergeBase{
			Base:   base,
			Source: sideSpans(srcChain, base, ancestor),
			Target: sideSpans(tgtChain, base, ancestor),
		}
		return nil
	})
	return mb, err
}
