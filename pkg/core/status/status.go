// Package status exports errors produced by the core packages.
//
// Errors are grouped in kinds: every specific error extends one of
// ErrNotFound, ErrInvalidRequest, ErrTransient or ErrFatal, so callers
// may test for a kind with errors.Is.
package status

import (
	"github.com/oneconcern/revstore/pkg/errors"
)

var (
	// ErrNotFound indicates an object was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest indicates a request that may never succeed as is
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTransient indicates a failure that may succeed when retried later
	ErrTransient = errors.New("transient failure")

	// ErrFatal indicates an internal failure
	ErrFatal = errors.New("fatal error")
)

var (
	// ErrBranchNotFound indicates that no branch exists at the requested path or id
	ErrBranchNotFound = ErrNotFound.Extend("branch not found")

	// ErrComponentNotFound indicates that a component is not visible at the requested branch point
	ErrComponentNotFound = ErrNotFound.Extend("component not found")

	// ErrReviewNotFound indicates an unknown review id
	ErrReviewNotFound = ErrNotFound.Extend("review not found")

	// ErrCommitNotFound indicates that no commit exists on a branch at the requested timestamp
	ErrCommitNotFound = ErrNotFound.Extend("commit not found")
)

var (
	// ErrParentNotFound indicates a branch creation under a parent that doesn't exist
	ErrParentNotFound = ErrInvalidRequest.Extend("parent branch not found")

	// ErrParentDeleted indicates a branch creation under a deleted parent
	ErrParentDeleted = ErrInvalidRequest.Extend("parent branch is deleted")

	// ErrDuplicateName indicates a branch creation with a name already used under the parent
	ErrDuplicateName = ErrInvalidRequest.Extend("branch already exists")

	// ErrInvalidBranchName indicates a branch name that is empty or contains the path separator
	ErrInvalidBranchName = ErrInvalidRequest.Extend("invalid branch name")

	// ErrBranchDeleted indicates a write attempt on a deleted branch
	ErrBranchDeleted = ErrInvalidRequest.Extend("branch is deleted")

	// ErrMainBranch indicates an attempt to delete the root branch
	ErrMainBranch = ErrInvalidRequest.Extend("the main branch can't be deleted")

	// ErrSelfMerge indicates a merge or rebase of a branch onto itself
	ErrSelfMerge = ErrInvalidRequest.Extend("can't merge a branch onto itself")

	// ErrTargetNotHead indicates a merge onto a past state of the target branch
	ErrTargetNotHead = ErrInvalidRequest.Extend("a merge target must be the head of its branch")

	// ErrInvalidChange indicates a change set that doesn't fit the component schema or the branch state
	ErrInvalidChange = ErrInvalidRequest.Extend("invalid change")

	// ErrInvalidReview indicates a review request with missing or identical endpoints
	ErrInvalidReview = ErrInvalidRequest.Extend("invalid review request")

	// ErrReviewNotReady indicates a request for the changes of a review that were not computed
	ErrReviewNotReady = ErrInvalidRequest.Extend("review changes are not available")

	// ErrUnknownComponentType indicates a component type absent from the schema
	ErrUnknownComponentType = ErrInvalidRequest.Extend("unknown component type")
)

var (
	// ErrLockTimeout indicates that the write lock of a branch could not be acquired in time
	ErrLockTimeout = ErrTransient.Extend("timed out acquiring branch lock")

	// ErrInterrupted signals that the current background processing has been interrupted
	ErrInterrupted = ErrTransient.Extend("background processing interrupted")
)

var (
	// ErrReviewFailed indicates that a review could not be computed
	ErrReviewFailed = ErrFatal.Extend("review computation failed")

	// ErrCorruptedIndex indicates inconsistent persisted revision or branch data
	ErrCorruptedIndex = ErrFatal.Extend("corrupted index")
)
