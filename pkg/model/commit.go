package model

import (
	"sort"
	"time"
)

// ChangeOp is the kind of change made to a component by a commit
type ChangeOp string

const (
	// ChangeCreate adds a component that doesn't exist yet on the branch
	ChangeCreate ChangeOp = "create"

	// ChangeUpdate patches the attributes of an existing component. Empty values unset attributes.
	ChangeUpdate ChangeOp = "update"

	// ChangeDelete removes a component from the branch
	ChangeDelete ChangeOp = "delete"
)

// IsValid checks the value of a change operation
func (o ChangeOp) IsValid() bool {
	switch o {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	default:
		return false
	}
}

func (o ChangeOp) String() string {
	return string(o)
}

// Change to a component requested by a commit
type Change struct {
	Op         ChangeOp          `json:"op" yaml:"op"`
	ID         string            `json:"id" yaml:"id"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Create change
func Create(c Component) Change {
	return Change{Op: ChangeCreate, ID: c.ID, Type: c.Type, Attributes: c.Attributes}
}

// Update change
func Update(id string, attributes map[string]string) Change {
	return Change{Op: ChangeUpdate, ID: id, Attributes: attributes}
}

// Delete change
func Delete(id string) Change {
	return Change{Op: ChangeDelete, ID: id}
}

// Commit is the atomic set of changes written on a branch at some timestamp.
//
// NewRevisions holds the revisions of new and changed components.
type Commit struct {
	Timestamp           int64               `json:"timestamp" yaml:"timestamp"`
	BranchID            int64               `json:"branchId" yaml:"branchId"`
	BranchPath          string              `json:"branchPath" yaml:"branchPath"`
	Author              string              `json:"author,omitempty" yaml:"author,omitempty"`
	Comment             string              `json:"comment,omitempty" yaml:"comment,omitempty"`
	NewComponentIDs     []string            `json:"newComponentIds,omitempty" yaml:"newComponentIds,omitempty"`
	ChangedComponentIDs []string            `json:"changedComponentIds,omitempty" yaml:"changedComponentIds,omitempty"`
	DeletedComponentIDs []string            `json:"deletedComponentIds,omitempty" yaml:"deletedComponentIds,omitempty"`
	NewRevisions        map[string]Revision `json:"newRevisionsByComponentId,omitempty" yaml:"newRevisionsByComponentId,omitempty"`
	MergeSource         *BranchPoint        `json:"mergeSource,omitempty" yaml:"mergeSource,omitempty"`
	CreatedAt           time.Time           `json:"createdAt" yaml:"createdAt"` // documentary
}

// ComponentIDs lists every component touched by this commit, sorted
func (c Commit) ComponentIDs() []string {
	ids := make([]string, 0, len(c.NewComponentIDs)+len(c.ChangedComponentIDs)+len(c.DeletedComponentIDs))
	ids = append(ids, c.NewComponentIDs...)
	ids = append(ids, c.ChangedComponentIDs...)
	ids = append(ids, c.DeletedComponentIDs...)
	sort.Strings(ids)
	return ids
}

// Commits is a sortable slice of Commit, in timestamp order
type Commits []Commit

func (c Commits) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}
func (c Commits) Len() int {
	return len(c)
}
func (c Commits) Less(i, j int) bool {
	return c[i].Timestamp < c[j].Timestamp
}

// Last commit in slice
func (c Commits) Last() Commit {
	return c[len(c)-1]
}
