// Package storetest exercises any store.Store implementation against the contract of the store package.
package storetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run the contract tests. The factory must return a new empty store.
func Run(t *testing.T, factory func(testing.TB) store.Store) {
	t.Run("get and set", func(t *testing.T) { testGetSet(t, factory(t)) })
	t.Run("scan", func(t *testing.T) { testScan(t, factory(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, factory(t)) })
	t.Run("snapshot", func(t *testing.T) { testSnapshot(t, factory(t)) })
	t.Run("concurrent writers", func(t *testing.T) { testConcurrentWriters(t, factory(t)) })
	t.Run("closed", func(t *testing.T) { testClosed(t, factory(t)) })
}

func testGetSet(t *testing.T, s store.Store) {
	defer s.Close()

	require.NoError(t, s.Update(func(txn store.Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		v, err := txn.Get([]byte("a"))
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("1"), v, "writes are visible in the same transaction")
		return txn.Set([]byte("b"), []byte("2"))
	}))

	require.NoError(t, s.View(func(r store.Reader) error {
		v, err := r.Get([]byte("b"))
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), v)

		_, err = r.Get([]byte("c"))
		assert.True(t, errors.Is(err, status.ErrKeyNotFound))

		ok, err := r.Has([]byte("a"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.Has([]byte("c"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	require.NoError(t, s.Update(func(txn store.Txn) error {
		return txn.Delete([]byte("a"))
	}))
	require.NoError(t, s.View(func(r store.Reader) error {
		_, err := r.Get([]byte("a"))
		assert.True(t, errors.Is(err, status.ErrKeyNotFound))
		return nil
	}))
}

func testScan(t *testing.T, s store.Store) {
	defer s.Close()

	require.NoError(t, s.Update(func(txn store.Txn) error {
		for _, k := range []string{"x:3", "x:1", "y:1", "x:2", "w:9"} {
			if err := txn.Set([]byte(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		return nil
	}))

	collect := func(prefix, from string, limit int) []string {
		var keys []string
		var start []byte
		if from != "" {
			start = []byte(from)
		}
		require.NoError(t, s.View(func(r store.Reader) error {
			return r.Scan([]byte(prefix), start, func(k, v []byte) error {
				assert.Equal(t, "v"+string(k), string(v))
				keys = append(keys, string(k))
				if limit > 0 && len(keys) == limit {
					return store.ErrStopScan
				}
				return nil
			})
		}))
		return keys
	}

	assert.Equal(t, []string{"x:1", "x:2", "x:3"}, collect("x:", "", 0))
	assert.Equal(t, []string{"x:2", "x:3"}, collect("x:", "x:2", 0))
	assert.Equal(t, []string{"x:1"}, collect("x:", "", 1))
	assert.Empty(t, collect("z:", "", 0))

	boom := fmt.Errorf("boom")
	err := s.View(func(r store.Reader) error {
		return r.Scan([]byte("x:"), nil, func(_, _ []byte) error { return boom })
	})
	assert.True(t, errors.Is(err, boom))
}

func testRollback(t *testing.T, s store.Store) {
	defer s.Close()

	boom := fmt.Errorf("boom")
	err := s.Update(func(txn store.Txn) error {
		if err := txn.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.True(t, errors.Is(err, boom))

	require.NoError(t, s.View(func(r store.Reader) error {
		ok, err := r.Has([]byte("k"))
		require.NoError(t, err)
		assert.False(t, ok, "a failed transaction leaves no trace")
		return nil
	}))
}

func testSnapshot(t *testing.T, s store.Store) {
	defer s.Close()

	require.NoError(t, s.Update(func(txn store.Txn) error {
		return txn.Set([]byte("k"), []byte("before"))
	}))

	require.NoError(t, s.View(func(r store.Reader) error {
		require.NoError(t, s.Update(func(txn store.Txn) error {
			return txn.Set([]byte("k"), []byte("after"))
		}))
		v, err := r.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("before"), v, "a snapshot doesn't observe later commits")
		return nil
	}))
}

func testConcurrentWriters(t *testing.T, s store.Store) {
	defer s.Close()

	const writers = 8
	const increments = 25
	key := []byte("counter")
	require.NoError(t, s.Update(func(txn store.Txn) error {
		return txn.Set(key, []byte{0})
	}))

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				assert.NoError(t, s.Update(func(txn store.Txn) error {
					v, err := txn.Get(key)
					if err != nil {
						return err
					}
					return txn.Set(key, []byte{v[0] + 1})
				}))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.View(func(r store.Reader) error {
		v, err := r.Get(key)
		require.NoError(t, err)
		assert.Equal(t, byte(writers*increments), v[0])
		return nil
	}))
}

func testClosed(t *testing.T, s store.Store) {
	require.NoError(t, s.Close())
	err := s.View(func(store.Reader) error { return nil })
	assert.True(t, errors.Is(err, status.ErrStoreClosed))
}
