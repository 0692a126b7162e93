package instrumented

import (
	"testing"

	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/oneconcern/revstore/pkg/store/status"
	"github.com/oneconcern/revstore/pkg/store/storetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedStore(t *testing.T) {
	storetest.Run(t, func(t testing.TB) store.Store {
		return New(memory.New(), metrics.New(prometheus.NewRegistry()))
	})
}

func TestTransactionMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(memory.New(), m)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Update(func(txn store.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	err := s.View(func(r store.Reader) error {
		_, err := r.Get([]byte("missing"))
		return err
	})
	assert.ErrorIs(t, err, status.ErrKeyNotFound)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.Store.Errors.WithLabelValues(kindUpdate)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Store.Errors.WithLabelValues(kindView)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Store.Timing))
}

func TestNilMetrics(t *testing.T) {
	kv := memory.New()
	defer func() { _ = kv.Close() }()
	assert.Same(t, kv, New(kv, nil))
}
