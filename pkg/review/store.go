package review

import (
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	storestatus "github.com/oneconcern/revstore/pkg/store/status"
)

var (
	reviewPref  = [7]byte{'r', 'e', 'v', 'i', 'e', 'w', ':'}
	changesPref = [8]byte{'c', 'h', 'a', 'n', 'g', 'e', 's', ':'}
)

func reviewKey(id string) []byte {
	return store.Key(reviewPref[:], id)
}

func changesKey(id string) []byte {
	return store.Key(changesPref[:], id)
}

func readReview(r store.Reader, id string) (model.Review, error) {
	var rv model.Review
	err := store.GetJSON(r, reviewKey(id), &rv)
	if errors.Is(err, storestatus.ErrKeyNotFound) || errors.Is(err, storestatus.ErrEmptyKey) {
		return rv, status.ErrReviewNotFound.WrapMessage("%q", id)
	}
	return rv, err
}

func readChanges(r store.Reader, id string) (model.ReviewChanges, error) {
	var c model.ReviewChanges
	err := store.GetJSON(r, changesKey(id), &c)
	if errors.Is(err, storestatus.ErrKeyNotFound) {
		return c, status.ErrReviewNotReady.WrapMessage("%q", id)
	}
	return c, err
}

func listReviews(r store.Reader, keep func(model.Review) bool) (model.Reviews, error) {
	var reviews model.Reviews
	err := r.Scan(reviewPref[:], nil, func(_, value []byte) error {
		var rv model.Review
		if err := store.Decode(value, &rv); err != nil {
			return status.ErrCorruptedIndex.Wrap(err)
		}
		if keep == nil || keep(rv) {
			reviews = append(reviews, rv)
		}
		return nil
	})
	return reviews, err
}

func removeReview(txn store.Txn, id string) error {
	if err := txn.Delete(reviewKey(id)); err != nil {
		return err
	}
	return txn.Delete(changesKey(id))
}
