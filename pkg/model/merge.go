package model

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// MergeStatus is the outcome of a merge
type MergeStatus string

const (
	// MergeCompleted indicates that the changes of the source are now on the target
	MergeCompleted MergeStatus = "COMPLETED"

	// MergeConflicting indicates that conflicts prevented the merge. Nothing was written.
	MergeConflicting MergeStatus = "CONFLICTS"
)

// IsValid checks the value of a merge status
func (s MergeStatus) IsValid() bool {
	switch s {
	case MergeCompleted, MergeConflicting:
		return true
	default:
		return false
	}
}

func (s MergeStatus) String() string {
	return string(s)
}

// MergeRequest asks for the changes of a source branch point to be applied onto a target branch.
//
// The target is always merged at its head: the timestamp of Target must be UnspecifiedTime or the head.
type MergeRequest struct {
	Source  BranchPoint
	Target  BranchPoint
	Rebase  bool // the target incorporates the history of the source it is logically behind
	Author  string
	Comment string
}

// Merge is the outcome of a merge or rebase
type Merge struct {
	ID        string         `json:"id" yaml:"id"`
	Source    BranchPoint    `json:"source" yaml:"source"`
	Target    BranchPoint    `json:"target" yaml:"target"`
	Base      BranchPoint    `json:"base" yaml:"base"`
	Rebase    bool           `json:"rebase,omitempty" yaml:"rebase,omitempty"`
	Status    MergeStatus    `json:"status" yaml:"status"`
	Conflicts MergeConflicts `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Commit    *Commit        `json:"commit,omitempty" yaml:"commit,omitempty"` // nil when nothing had to be applied
	StartTime time.Time      `json:"startTime" yaml:"startTime"`
	EndTime   time.Time      `json:"endTime" yaml:"endTime"`
}

// NewMerge initializes the outcome of a merge request
func NewMerge(req MergeRequest) Merge {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("cannot generate random ksuid: %v", err))
	}
	return Merge{
		ID:        id.String(),
		Source:    req.Source,
		Target:    req.Target,
		Rebase:    req.Rebase,
		StartTime: time.Now().UTC(),
	}
}

// HasConflicts tells if the merge was prevented by conflicts
func (m Merge) HasConflicts() bool {
	return m.Status == MergeConflicting
}
