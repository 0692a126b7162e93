package branch

import (
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/status"
	"go.uber.org/atomic"
)

var clockKey = []byte("clock:")

// Clock allocates logical timestamps, strictly increasing across all branches.
//
// Ticks are persisted together with the writes consuming them, so a reopened store
// resumes after the last tick written.
type Clock struct {
	now *atomic.Int64
}

func loadClock(r store.Reader) (*Clock, error) {
	var last int64
	err := store.GetJSON(r, clockKey, &last)
	if err != nil && !errors.Is(err, status.ErrKeyNotFound) {
		return nil, err
	}
	return &Clock{now: atomic.NewInt64(last)}, nil
}

// Next allocates a new timestamp
func (c *Clock) Next() int64 {
	return c.now.Inc()
}

// Now is the last allocated timestamp
func (c *Clock) Now() int64 {
	return c.now.Load()
}

// stage records a consumed tick. Transactions may commit out of order: only the highest tick is kept.
func (c *Clock) stage(txn store.Txn, tick int64) error {
	var last int64
	err := store.GetJSON(txn, clockKey, &last)
	if err != nil && !errors.Is(err, status.ErrKeyNotFound) {
		return err
	}
	if tick <= last {
		return nil
	}
	return store.SetJSON(txn, clockKey, tick)
}
