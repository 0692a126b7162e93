package model

import (
	"sort"
)

// OpenSegment is the end of the segment of a revision that is currently valid
const OpenSegment int64 = 0

// Revision is the state of a component on a branch, during a segment of time.
//
// A revision is immutable once its segment is closed. A deleted revision (tombstone)
// hides the component on its branch and on the descendants that see it.
type Revision struct {
	ComponentID   string            `json:"componentId" yaml:"componentId"`
	ComponentType string            `json:"componentType" yaml:"componentType"`
	BranchID      int64             `json:"branchId" yaml:"branchId"`
	SegmentStart  int64             `json:"segmentStart" yaml:"segmentStart"`
	SegmentEnd    int64             `json:"segmentEnd,omitempty" yaml:"segmentEnd,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Deleted       bool              `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// IsOpen tells if this revision is the current one on its branch
func (r Revision) IsOpen() bool {
	return r.SegmentEnd == OpenSegment
}

// ValidAt tells if the segment of this revision covers the timestamp
func (r Revision) ValidAt(timestamp int64) bool {
	return r.SegmentStart <= timestamp && (r.IsOpen() || timestamp < r.SegmentEnd)
}

// Live tells if a revision exists and is not a tombstone
func (r *Revision) Live() bool {
	return r != nil && !r.Deleted
}

// Attribute value, the empty string when unset
func (r *Revision) Attribute(name string) string {
	if r == nil {
		return ""
	}
	return r.Attributes[name]
}

// Component returns the identity and content of this revision
func (r Revision) Component() Component {
	return Component{ID: r.ComponentID, Type: r.ComponentType, Attributes: r.Attributes}
}

// SameContent compares two revisions by value: presence, type and attributes.
//
// Absent and deleted revisions are equal.
func SameContent(a, b *Revision) bool {
	if !a.Live() || !b.Live() {
		return a.Live() == b.Live()
	}
	if a.ComponentType != b.ComponentType || len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for k, v := range a.Attributes {
		if w, ok := b.Attributes[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// ChangedAttributes lists the names of the attributes that differ between two revisions, sorted
func ChangedAttributes(a, b *Revision) []string {
	names := make(map[string]struct{})
	if a != nil {
		for k := range a.Attributes {
			names[k] = struct{}{}
		}
	}
	if b != nil {
		for k := range b.Attributes {
			names[k] = struct{}{}
		}
	}
	changed := make([]string, 0, len(names))
	for k := range names {
		if a.Attribute(k) != b.Attribute(k) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Component is an opaque record: an identity, a type tag and an attribute map
type Component struct {
	ID         string            `json:"id" yaml:"id"`
	Type       string            `json:"type" yaml:"type"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// RefState tells how a ComponentRef was resolved
type RefState int

const (
	// RefMissing is a reference to a component that never existed at the resolved point
	RefMissing RefState = iota

	// RefResolved is a reference to a live component
	RefResolved

	// RefStale is a reference to a component deleted at the resolved point
	RefStale
)

func (s RefState) String() string {
	switch s {
	case RefResolved:
		return "resolved"
	case RefStale:
		return "stale"
	default:
		return "missing"
	}
}

// ComponentRef is a reference to a component, resolved at some branch point
type ComponentRef struct {
	State    RefState
	ID       string
	Revision *Revision // the live revision when resolved, the tombstone when stale
}

// ResolvedRef builds a reference to a live revision
func ResolvedRef(rev Revision) ComponentRef {
	return ComponentRef{State: RefResolved, ID: rev.ComponentID, Revision: &rev}
}

// StaleRef builds a reference to a deleted component
func StaleRef(tombstone Revision) ComponentRef {
	return ComponentRef{State: RefStale, ID: tombstone.ComponentID, Revision: &tombstone}
}

// MissingRef builds a reference to an unknown component
func MissingRef(id string) ComponentRef {
	return ComponentRef{State: RefMissing, ID: id}
}

// Resolved returns the live revision, if any
func (r ComponentRef) Resolved() (*Revision, bool) {
	if r.State != RefResolved {
		return nil, false
	}
	return r.Revision, true
}
