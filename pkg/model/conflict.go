package model

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictKind classifies a change that can't be merged
type ConflictKind string

const (
	// ConflictingChange indicates a property changed to different values on both sides,
	// or a component added on both sides with a different content
	ConflictingChange ConflictKind = "CONFLICTING_CHANGE"

	// DeletedWhileChanged indicates a component changed on the source and deleted on the target
	DeletedWhileChanged ConflictKind = "DELETED_WHILE_CHANGED"

	// ChangedWhileDeleted indicates a component deleted on the source and changed on the target
	ChangedWhileDeleted ConflictKind = "CHANGED_WHILE_DELETED"

	// HasMissingReference indicates a component introduced on the target referencing a component deleted on the source
	HasMissingReference ConflictKind = "HAS_MISSING_REFERENCE"

	// CausesMissingReference indicates a component deleted on the target while referenced by a component introduced on the source
	CausesMissingReference ConflictKind = "CAUSES_MISSING_REFERENCE"
)

// IsValid checks the value of a conflict kind
func (k ConflictKind) IsValid() bool {
	switch k {
	case ConflictingChange, DeletedWhileChanged, ChangedWhileDeleted, HasMissingReference, CausesMissingReference:
		return true
	default:
		return false
	}
}

func (k ConflictKind) String() string {
	return string(k)
}

// IDProperty is the property reported when a component was added on both sides with a different content
const IDProperty = "id"

// ContainerProperty is the property reported for a broken reference held by the container attribute
const ContainerProperty = "container"

// AttributeChange describes how a property differs between two revisions
type AttributeChange struct {
	Property string `json:"property" yaml:"property"`
	OldValue string `json:"oldValue,omitempty" yaml:"oldValue,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
}

func (a AttributeChange) String() string {
	return fmt.Sprintf("%s: %q -> %q", a.Property, a.OldValue, a.Value)
}

// ConflictingAttribute is a property involved in a conflict
type ConflictingAttribute = AttributeChange

// MergeConflict describes a change that prevents a merge
type MergeConflict struct {
	ComponentID   string                 `json:"componentId" yaml:"componentId"`
	ComponentType string                 `json:"componentType" yaml:"componentType"`
	Kind          ConflictKind           `json:"type" yaml:"type"`
	Attributes    []ConflictingAttribute `json:"conflictingAttributes,omitempty" yaml:"conflictingAttributes,omitempty"`
}

func (c MergeConflict) String() string {
	if len(c.Attributes) == 0 {
		return fmt.Sprintf("%s %s %s", c.Kind, c.ComponentType, c.ComponentID)
	}
	attrs := make([]string, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		attrs = append(attrs, a.String())
	}
	return fmt.Sprintf("%s %s %s [%s]", c.Kind, c.ComponentType, c.ComponentID, strings.Join(attrs, ", "))
}

// Attribute returns the conflicting attribute for a property
func (c MergeConflict) Attribute(property string) (ConflictingAttribute, bool) {
	for _, a := range c.Attributes {
		if a.Property == property {
			return a, true
		}
	}
	return ConflictingAttribute{}, false
}

// MergeConflicts is a sortable slice of MergeConflict, ordered by component then kind
type MergeConflicts []MergeConflict

func (c MergeConflicts) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}
func (c MergeConflicts) Len() int {
	return len(c)
}
func (c MergeConflicts) Less(i, j int) bool {
	if c[i].ComponentID != c[j].ComponentID {
		return c[i].ComponentID < c[j].ComponentID
	}
	return c[i].Kind < c[j].Kind
}

// Sorted returns the conflicts, sorted
func (c MergeConflicts) Sorted() MergeConflicts {
	sort.Sort(c)
	return c
}

// ForComponent returns the conflicts reported for a component
func (c MergeConflicts) ForComponent(id string) MergeConflicts {
	var found MergeConflicts
	for _, conflict := range c {
		if conflict.ComponentID == id {
			found = append(found, conflict)
		}
	}
	return found
}
