package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MainPath is the path of the root branch
	MainPath = "MAIN"

	// PathSeparator separates branch names in a branch path
	PathSeparator = "/"

	// UnspecifiedTime denotes the latest state of a branch
	UnspecifiedTime int64 = -1

	// NoParent is the parent id of the root branch
	NoParent int64 = 0
)

// BranchPoint is a branch paired with a logical time
type BranchPoint struct {
	BranchID  int64 `json:"branchId" yaml:"branchId"`
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`
}

// Point builds a BranchPoint
func Point(branchID, timestamp int64) BranchPoint {
	return BranchPoint{BranchID: branchID, Timestamp: timestamp}
}

// Latest builds a BranchPoint designating the latest state of a branch
func Latest(branchID int64) BranchPoint {
	return Point(branchID, UnspecifiedTime)
}

// IsLatest tells if this point designates the latest state of its branch
func (p BranchPoint) IsLatest() bool {
	return p.Timestamp == UnspecifiedTime
}

func (p BranchPoint) String() string {
	if p.IsLatest() {
		return fmt.Sprintf("%d@latest", p.BranchID)
	}
	return fmt.Sprintf("%d@%d", p.BranchID, p.Timestamp)
}

// MergeRecord keeps track of a merge or rebase committed on a branch
type MergeRecord struct {
	SourceBranchID  int64 `json:"sourceBranchId" yaml:"sourceBranchId"`
	SourceTimestamp int64 `json:"sourceTimestamp" yaml:"sourceTimestamp"`
	Timestamp       int64 `json:"timestamp" yaml:"timestamp"` // the merge commit on the branch holding this record
}

// Branch models a line of history in the branch tree
type Branch struct {
	ID            int64             `json:"id" yaml:"id"`
	ParentID      int64             `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Base          BranchPoint       `json:"base" yaml:"base"`
	Name          string            `json:"name" yaml:"name"`
	Path          string            `json:"path" yaml:"path"`
	Deleted       bool              `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	HeadTimestamp int64             `json:"headTimestamp" yaml:"headTimestamp"`
	CreatedAt     time.Time         `json:"createdAt" yaml:"createdAt"` // documentary
	Merges        []MergeRecord     `json:"merges,omitempty" yaml:"merges,omitempty"`
	_             struct{}
}

// IsRoot tells if this is the root branch
func (b Branch) IsRoot() bool {
	return b.ParentID == NoParent
}

// Head is the latest point of this branch
func (b Branch) Head() BranchPoint {
	return Point(b.ID, b.HeadTimestamp)
}

// At resolves a timestamp on this branch: UnspecifiedTime and times after the head resolve to the head
func (b Branch) At(timestamp int64) BranchPoint {
	if timestamp == UnspecifiedTime || timestamp > b.HeadTimestamp {
		return b.Head()
	}
	return Point(b.ID, timestamp)
}

// Names is the ordered list of names from the root to this branch
func (b Branch) Names() []string {
	return strings.Split(b.Path, PathSeparator)
}

// MergesUntil lists the merge records committed on this branch until the given timestamp
func (b Branch) MergesUntil(until int64) []MergeRecord {
	var records []MergeRecord
	for _, m := range b.Merges {
		if m.Timestamp <= until {
			records = append(records, m)
		}
	}
	return records
}

// Branches is a sortable slice of Branch, ordered by path
type Branches []Branch

func (b Branches) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}
func (b Branches) Len() int {
	return len(b)
}
func (b Branches) Less(i, j int) bool {
	return b[i].Path < b[j].Path
}

// BranchState compares two branch points
type BranchState string

const (
	// BranchUpToDate indicates that neither point has changes since their common ancestor
	BranchUpToDate BranchState = "UP_TO_DATE"

	// BranchForward indicates that only the first point has changes since their common ancestor
	BranchForward BranchState = "FORWARD"

	// BranchBehind indicates that only the second point has changes since their common ancestor
	BranchBehind BranchState = "BEHIND"

	// BranchDiverged indicates that both points have changes since their common ancestor
	BranchDiverged BranchState = "DIVERGED"
)

// IsValid checks the value of a branch state
func (s BranchState) IsValid() bool {
	switch s {
	case BranchUpToDate, BranchForward, BranchBehind, BranchDiverged:
		return true
	default:
		return false
	}
}

func (s BranchState) String() string {
	return string(s)
}

// Span is a range of commits on a branch: those stamped after After, up to Until included
type Span struct {
	BranchID int64 `json:"branchId" yaml:"branchId"`
	After    int64 `json:"after" yaml:"after"`
	Until    int64 `json:"until" yaml:"until"`
}

// Contains tells if a commit timestamp falls in this span
func (s Span) Contains(ts int64) bool {
	return ts > s.After && ts <= s.Until
}

// MergeBase is the common ancestor used to diff two branch points.
//
// Source and Target list the spans of commits made on each side since Base,
// along the ancestry of each branch point.
type MergeBase struct {
	Base   BranchPoint `json:"base" yaml:"base"`
	Source []Span      `json:"source" yaml:"source"`
	Target []Span      `json:"target" yaml:"target"`
}

// JoinPath builds the path of a child branch
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// ParentPath returns the path of the parent of a branch, or the empty string for the root
func ParentPath(path string) string {
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// BaseName returns the last name of a branch path
func BaseName(path string) string {
	return path[strings.LastIndex(path, PathSeparator)+1:]
}

// IsDescendantPath tells if path is strictly below ancestor in the branch tree
func IsDescendantPath(path, ancestor string) bool {
	return strings.HasPrefix(path, ancestor+PathSeparator)
}
