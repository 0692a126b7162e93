package model

import "time"

// ReviewOption defines an option to build a Review
type ReviewOption func(*Review)

// ReviewID sets the ID of a Review
func ReviewID(id string) ReviewOption {
	return func(r *Review) {
		if id != "" {
			r.ID = id
		}
	}
}

// ReviewSource sets the source endpoint of a Review
func ReviewSource(path string, point BranchPoint) ReviewOption {
	return func(r *Review) {
		r.SourcePath = path
		r.Source = point
	}
}

// ReviewTarget sets the target endpoint of a Review
func ReviewTarget(path string, point BranchPoint) ReviewOption {
	return func(r *Review) {
		r.TargetPath = path
		r.Target = point
	}
}

// ReviewWithStatus sets the status of a Review
func ReviewWithStatus(status ReviewStatus) ReviewOption {
	return func(r *Review) {
		r.Status = status
		r.UpdatedAt = time.Now().UTC()
	}
}

// ReviewWithError records the failure of a Review
func ReviewWithError(err error) ReviewOption {
	return func(r *Review) {
		if err != nil {
			r.Error = err.Error()
		}
	}
}

// ReviewClone clones from a Review
func ReviewClone(m Review) ReviewOption {
	return func(r *Review) {
		*r = m
	}
}
