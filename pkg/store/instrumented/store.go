// Package instrumented decorates a store with transaction metrics.
package instrumented

import (
	"time"

	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/store"
)

const (
	kindView   = "view"
	kindUpdate = "update"
)

// New instrumented store. With nil metrics, the store is returned as is.
func New(w store.Store, m *metrics.Metrics) store.Store {
	if m == nil {
		return w
	}
	return &instrumentedStore{w: w, m: m}
}

type instrumentedStore struct {
	w store.Store
	m *metrics.Metrics
}

func (i *instrumentedStore) View(fn func(store.Reader) error) error {
	return timed(i.m, kindView, func() error { return i.w.View(fn) })
}

func (i *instrumentedStore) Update(fn func(store.Txn) error) error {
	return timed(i.m, kindUpdate, func() error { return i.w.Update(fn) })
}

func (i *instrumentedStore) Close() error { return i.w.Close() }

func timed(m *metrics.Metrics, kind string, action func() error) error {
	start := time.Now()
	err := action()
	m.Transaction(kind, start, err)
	return err
}
