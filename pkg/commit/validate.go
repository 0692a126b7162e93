package commit

import (
	"fmt"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/multierr"
)

// validate the shape of a change set, before looking at the state of the branch
func validate(changes []model.Change) error {
	if len(changes) == 0 {
		return status.ErrInvalidChange.WrapMessage("empty change set")
	}
	var err error
	seen := make(map[string]struct{}, len(changes))
	for i, change := range changes {
		if !change.Op.IsValid() {
			err = multierr.Append(err, fmt.Errorf("change #%d: invalid operation %q", i, change.Op))
		}
		if !store.ValidPart(change.ID) {
			err = multierr.Append(err, fmt.Errorf("change #%d: invalid component id %q", i, change.ID))
			continue
		}
		if _, dup := seen[change.ID]; dup {
			err = multierr.Append(err, fmt.Errorf("change #%d: component %q is changed more than once", i, change.ID))
		}
		seen[change.ID] = struct{}{}
		if change.Op == model.ChangeCreate && change.Type == "" {
			err = multierr.Append(err, fmt.Errorf("change #%d: component %q is created without a type", i, change.ID))
		}
		if change.Op == model.ChangeDelete && len(change.Attributes) > 0 {
			err = multierr.Append(err, fmt.Errorf("change #%d: delete of %q carries attributes", i, change.ID))
		}
	}
	if err != nil {
		return status.ErrInvalidChange.Wrap(err)
	}
	return nil
}
