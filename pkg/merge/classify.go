package merge

import (
	"sort"

	"github.com/oneconcern/revstore/pkg/model"
)

// outcome of the classification of a diff: conflicts, or the changes to apply on the target
type outcome struct {
	conflicts model.MergeConflicts
	creates   []model.Revision
	changes   []model.Revision
	deletes   []model.Revision
}

func (o *outcome) size() int {
	return len(o.creates) + len(o.changes) + len(o.deletes)
}

type pair struct {
	referrer, referent string
}

// introduced lists the references set by rev which were not set by the same component at base.
// The reference held by the container attribute is reported as the container property.
func (e *Engine) introduced(base, rev *model.Revision) []model.AttributeChange {
	if rev == nil {
		return nil
	}
	t, ok := e.schema.Type(rev.ComponentType)
	if !ok {
		return nil
	}
	var refs []model.AttributeChange
	for _, def := range t.References() {
		value := rev.Attribute(def.Name)
		if value == "" || value == base.Attribute(def.Name) {
			continue
		}
		property := def.Name
		if def.Container {
			property = model.ContainerProperty
		}
		refs = append(refs, model.AttributeChange{Property: property, Value: value})
	}
	return refs
}

// deletedOn tells if a component visible at base was deleted on one side
func deletedOn(d *Diff, id string, side func(Entry) *model.Revision) (Entry, bool) {
	entry, ok := d.Get(id)
	if !ok {
		// untouched on both sides: same as base
		return entry, false
	}
	return entry, entry.Base != nil && side(entry) == nil
}

func source(e Entry) *model.Revision { return e.Source }
func target(e Entry) *model.Revision { return e.Target }

// missingReferences detects the references that the merge would leave dangling.
//
// A reference introduced on the source to a component deleted on the target causes a missing
// reference, reported on the deleted component. Otherwise, a reference introduced on the target
// to a component deleted on the source has a missing reference, reported on the referrer.
func (e *Engine) missingReferences(d *Diff) (model.MergeConflicts, map[string]struct{}) {
	var conflicts model.MergeConflicts
	carriers := make(map[string]struct{})
	checked := make(map[pair]struct{})

	for _, entry := range d.Entries {
		if !entry.SourceChanged() {
			continue
		}
		for _, ref := range e.introduced(entry.Base, entry.Source) {
			p := pair{referrer: entry.ID, referent: ref.Value}
			referent, deleted := deletedOn(d, ref.Value, target)
			if !deleted {
				continue
			}
			checked[p] = struct{}{}
			if _, done := carriers[referent.ID]; done {
				continue
			}
			carriers[referent.ID] = struct{}{}
			conflicts = append(conflicts, model.MergeConflict{
				ComponentID:   referent.ID,
				ComponentType: referent.Type,
				Kind:          model.CausesMissingReference,
			})
		}
	}

	for _, entry := range d.Entries {
		if !entry.TargetChanged() {
			continue
		}
		var broken []model.AttributeChange
		for _, ref := range e.introduced(entry.Base, entry.Target) {
			if _, done := checked[pair{referrer: entry.ID, referent: ref.Value}]; done {
				continue
			}
			if _, deleted := deletedOn(d, ref.Value, source); deleted {
				broken = append(broken, ref)
			}
		}
		if len(broken) == 0 {
			continue
		}
		carriers[entry.ID] = struct{}{}
		conflicts = append(conflicts, model.MergeConflict{
			ComponentID:   entry.ID,
			ComponentType: entry.Type,
			Kind:          model.HasMissingReference,
			Attributes:    broken,
		})
	}
	return conflicts, carriers
}

// changedAttributes reports the attributes of to that differ from base
func changedAttributes(base, to *model.Revision) []model.AttributeChange {
	names := model.ChangedAttributes(base, to)
	changes := make([]model.AttributeChange, 0, len(names))
	for _, name := range names {
		changes = append(changes, model.AttributeChange{
			Property: name,
			OldValue: base.Attribute(name),
			Value:    to.Attribute(name),
		})
	}
	return changes
}

// merge3 combines the changes made on both sides to the attributes of a component.
//
// A property changed on both sides to different values conflicts: the old value is the one of the target,
// the new value the one of the source. A rebase reports the base value as old instead.
func merge3(base, src, tgt *model.Revision, rebase bool) (map[string]string, []model.AttributeChange) {
	names := make(map[string]struct{})
	for _, rev := range []*model.Revision{base, src, tgt} {
		for k := range rev.Attributes {
			names[k] = struct{}{}
		}
	}
	sortedNames := make([]string, 0, len(names))
	for k := range names {
		sortedNames = append(sortedNames, k)
	}
	sort.Strings(sortedNames)

	merged := make(map[string]string, len(names))
	var conflicting []model.AttributeChange
	for _, name := range sortedNames {
		b, s, t := base.Attribute(name), src.Attribute(name), tgt.Attribute(name)
		var v string
		switch {
		case s == t, s == b:
			v = t
		case t == b:
			v = s
		default:
			old := t
			if rebase {
				old = b
			}
			conflicting = append(conflicting, model.AttributeChange{Property: name, OldValue: old, Value: s})
			continue
		}
		if v != "" {
			merged[name] = v
		}
	}
	return merged, conflicting
}

// classify every component changed since the base
func (e *Engine) classify(d *Diff, rebase bool) *outcome {
	out := &outcome{}
	conflicts, carriers := e.missingReferences(d)
	out.conflicts = append(out.conflicts, conflicts...)

	for _, entry := range d.Entries {
		if _, skip := carriers[entry.ID]; skip {
			continue
		}
		src, tgt := entry.Source, entry.Target
		srcChanged, tgtChanged := entry.SourceChanged(), entry.TargetChanged()

		switch {
		case !srcChanged:
			// unchanged, or changed on the target only

		case !tgtChanged:
			switch {
			case src == nil:
				out.deletes = append(out.deletes, *tgt)
			case tgt == nil:
				out.creates = append(out.creates, *src)
			default:
				out.changes = append(out.changes, *src)
			}

		case src == nil && tgt == nil:
			// deleted on both sides

		case src == nil:
			out.conflicts = append(out.conflicts, model.MergeConflict{
				ComponentID:   entry.ID,
				ComponentType: entry.Type,
				Kind:          model.ChangedWhileDeleted,
				Attributes:    changedAttributes(entry.Base, tgt),
			})

		case tgt == nil:
			out.conflicts = append(out.conflicts, model.MergeConflict{
				ComponentID:   entry.ID,
				ComponentType: entry.Type,
				Kind:          model.DeletedWhileChanged,
				Attributes:    changedAttributes(entry.Base, src),
			})

		case model.SameContent(src, tgt):
			// changed the same way on both sides

		case entry.Base == nil:
			// added on both sides, with different content
			out.conflicts = append(out.conflicts, model.MergeConflict{
				ComponentID:   entry.ID,
				ComponentType: entry.Type,
				Kind:          model.ConflictingChange,
				Attributes:    []model.ConflictingAttribute{{Property: model.IDProperty}},
			})

		default:
			merged, conflicting := merge3(entry.Base, src, tgt, rebase)
			if len(conflicting) > 0 {
				out.conflicts = append(out.conflicts, model.MergeConflict{
					ComponentID:   entry.ID,
					ComponentType: entry.Type,
					Kind:          model.ConflictingChange,
					Attributes:    conflicting,
				})
				continue
			}
			next := model.Revision{ComponentID: entry.ID, ComponentType: tgt.ComponentType, Attributes: merged}
			if !model.SameContent(&next, tgt) {
				out.changes = append(out.changes, next)
			}
		}
	}
	out.conflicts = out.conflicts.Sorted()
	return out
}
