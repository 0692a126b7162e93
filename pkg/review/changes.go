package review

import (
	"sort"

	"github.com/oneconcern/revstore/pkg/merge"
	"github.com/oneconcern/revstore/pkg/model"
)

// changesOf lists the changes the source brings since the merge base.
//
// Components changed on the target only are not part of a review.
func changesOf(id string, d *merge.Diff, schema *model.Schema) model.ReviewChanges {
	changes := model.ReviewChanges{ID: id}
	for _, e := range d.Entries {
		if !e.SourceChanged() {
			continue
		}
		switch {
		case e.Base == nil:
			changes.NewComponents = append(changes.NewComponents, e.ID)
		case e.Source == nil:
			changes.DeletedComponents = append(changes.DeletedComponents, e.ID)
		default:
			delta := model.ComponentDelta{ID: e.ID, Type: e.Type}
			for _, name := range model.ChangedAttributes(e.Base, e.Source) {
				delta.Attributes = append(delta.Attributes, model.AttributeChange{
					Property: name,
					OldValue: e.Base.Attribute(name),
					Value:    e.Source.Attribute(name),
				})
			}
			changes.ChangedComponents = append(changes.ChangedComponents, delta)
		}
	}
	changes.Concepts = rollUp(id, d, schema)
	return changes
}

// rollUp reports the changes at the level of the root components.
//
// A changed component that is not a root marks its container as changed, unless the container
// is itself new or deleted.
func rollUp(id string, d *merge.Diff, schema *model.Schema) model.ConceptChanges {
	var (
		added   = make(map[string]struct{})
		deleted = make(map[string]struct{})
		changed = make(map[string]struct{})
	)
	for _, e := range d.Entries {
		if !e.SourceChanged() {
			continue
		}
		if e.Type == schema.Root() {
			switch {
			case e.Base == nil:
				added[e.ID] = struct{}{}
			case e.Source == nil:
				deleted[e.ID] = struct{}{}
			default:
				changed[e.ID] = struct{}{}
			}
			continue
		}
		t, ok := schema.Type(e.Type)
		if !ok {
			continue
		}
		container, ok := t.Container()
		if !ok {
			continue
		}
		// a deleted component still names its container at base
		owner := e.Source.Attribute(container.Name)
		if owner == "" {
			owner = e.Base.Attribute(container.Name)
		}
		if owner != "" {
			changed[owner] = struct{}{}
		}
		// a moved component changes both containers
		if previous := e.Base.Attribute(container.Name); previous != "" && previous != owner {
			changed[previous] = struct{}{}
		}
	}
	for c := range changed {
		_, isNew := added[c]
		_, isDeleted := deleted[c]
		if isNew || isDeleted {
			delete(changed, c)
		}
	}
	return model.ConceptChanges{
		ID:              id,
		NewConcepts:     keys(added),
		ChangedConcepts: keys(changed),
		DeletedConcepts: keys(deleted),
	}
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
