package model

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// ReviewStatus models the lifecycle of a review
type ReviewStatus string

const (
	// ReviewPending is the state of a review being computed
	ReviewPending ReviewStatus = "PENDING"

	// ReviewCurrent is the state of a computed review, accurate for the current state of both branches
	ReviewCurrent ReviewStatus = "CURRENT"

	// ReviewFailed indicates that the computation of the review failed. This is a terminal state.
	ReviewFailed ReviewStatus = "FAILED"

	// ReviewStale indicates that one of the reviewed branches changed after the computation. This is a terminal state.
	ReviewStale ReviewStatus = "STALE"
)

// IsValid checks the value of a review status
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewPending, ReviewCurrent, ReviewFailed, ReviewStale:
		return true
	default:
		return false
	}
}

// IsTerminal tells if no transition may leave this status
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewFailed || s == ReviewStale
}

// CanTransitionTo tells if a review may move from this status to the next one
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	switch s {
	case ReviewPending:
		return next == ReviewCurrent || next == ReviewFailed
	case ReviewCurrent:
		return next == ReviewStale
	default:
		return false
	}
}

func (s ReviewStatus) String() string {
	return string(s)
}

// Review models the asynchronous computation of the changes a merge from source to target would apply
type Review struct {
	ID         string       `json:"id" yaml:"id"`
	Source     BranchPoint  `json:"source" yaml:"source"`
	Target     BranchPoint  `json:"target" yaml:"target"`
	SourcePath string       `json:"sourcePath" yaml:"sourcePath"`
	TargetPath string       `json:"targetPath" yaml:"targetPath"`
	Status     ReviewStatus `json:"status" yaml:"status"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt" yaml:"updatedAt"`
	_          struct{}
}

// References tells if the review has the branch as one of its endpoints
func (r Review) References(branchID int64) bool {
	return r.Source.BranchID == branchID || r.Target.BranchID == branchID
}

// Reviews is a sortable slice of Review, in creation order
type Reviews []Review

func (r Reviews) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
}
func (r Reviews) Len() int {
	return len(r)
}
func (r Reviews) Less(i, j int) bool {
	if !r[i].CreatedAt.Equal(r[j].CreatedAt) {
		return r[i].CreatedAt.Before(r[j].CreatedAt)
	}
	return r[i].ID < r[j].ID
}

// ComponentDelta describes a changed component: the attributes that differ from the base
type ComponentDelta struct {
	ID         string            `json:"id" yaml:"id"`
	Type       string            `json:"type" yaml:"type"`
	Attributes []AttributeChange `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ReviewChanges is the change set computed by a review, at the component level
type ReviewChanges struct {
	ID                string           `json:"id" yaml:"id"`
	NewComponents     []string         `json:"newComponents,omitempty" yaml:"newComponents,omitempty"`
	ChangedComponents []ComponentDelta `json:"changedComponents,omitempty" yaml:"changedComponents,omitempty"`
	DeletedComponents []string         `json:"deletedComponents,omitempty" yaml:"deletedComponents,omitempty"`
	Concepts          ConceptChanges   `json:"concepts" yaml:"concepts"`
}

// ChangedComponentIDs lists the ids of the changed components
func (c ReviewChanges) ChangedComponentIDs() []string {
	ids := make([]string, 0, len(c.ChangedComponents))
	for _, d := range c.ChangedComponents {
		ids = append(ids, d.ID)
	}
	return ids
}

// ConceptChanges is the change set computed by a review, rolled up to the root components (concepts)
type ConceptChanges struct {
	ID              string   `json:"id" yaml:"id"`
	NewConcepts     []string `json:"newConcepts,omitempty" yaml:"newConcepts,omitempty"`
	ChangedConcepts []string `json:"changedConcepts,omitempty" yaml:"changedConcepts,omitempty"`
	DeletedConcepts []string `json:"deletedConcepts,omitempty" yaml:"deletedConcepts,omitempty"`
}

func defaultReview() *Review {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("cannot generate random ksuid: %v", err))
	}
	now := time.Now().UTC()
	return &Review{
		ID:        id.String(),
		Status:    ReviewPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewReview builds a pending review
func NewReview(opts ...ReviewOption) Review {
	r := defaultReview()
	for _, apply := range opts {
		apply(r)
	}
	return *r
}
