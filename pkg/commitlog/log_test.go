package commitlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(t testing.TB, l *Log, commits ...model.Commit) {
	require.NoError(t, l.kv.Update(func(txn store.Txn) error {
		for _, c := range commits {
			if err := l.Stage(txn, c); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestLog(t *testing.T) {
	l := New(memory.New())

	_, err := l.Head(1)
	assert.True(t, errors.Is(err, status.ErrCommitNotFound))

	stage(t, l,
		model.Commit{BranchID: 1, Timestamp: 2, NewComponentIDs: []string{"a"}},
		model.Commit{BranchID: 1, Timestamp: 5, ChangedComponentIDs: []string{"a"}, NewComponentIDs: []string{"b"}},
		model.Commit{BranchID: 3, Timestamp: 4, DeletedComponentIDs: []string{"c"}},
		model.Commit{BranchID: 1, Timestamp: 16, DeletedComponentIDs: []string{"b"}},
	)

	n, err := l.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	head, err := l.Head(1)
	require.NoError(t, err)
	assert.Equal(t, int64(16), head.Timestamp, "timestamps are ordered numerically")

	all, err := l.List(1, model.UnspecifiedTime, model.UnspecifiedTime)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{2, 5, 16}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})

	window, err := l.List(1, 2, 5)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(5), window[0].Timestamp)

	c, err := l.Get(3, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, c.DeletedComponentIDs)

	_, err = l.Get(3, 5)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	err = l.kv.Update(func(txn store.Txn) error {
		return l.Stage(txn, model.Commit{BranchID: 1, Timestamp: 5})
	})
	assert.True(t, errors.Is(err, status.ErrCorruptedIndex), "commits are append-only")
}

func TestChangedSince(t *testing.T) {
	l := New(memory.New(), PageSize(2))

	var commits []model.Commit
	for i := int64(1); i <= 9; i++ {
		commits = append(commits, model.Commit{
			BranchID:            7,
			Timestamp:           i,
			NewComponentIDs:     []string{fmt.Sprintf("new-%d", i)},
			ChangedComponentIDs: []string{"shared"},
		})
	}
	commits = append(commits, model.Commit{BranchID: 8, Timestamp: 10, NewComponentIDs: []string{"other"}})
	stage(t, l, commits...)

	ids, err := l.ChangedSince(7, 6).All()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new-7", "new-8", "new-9", "shared"}, ids)

	ids, err = l.ChangedIn(
		model.Span{BranchID: 7, After: 0, Until: 3},
		model.Span{BranchID: 8, After: 0, Until: 10},
		model.Span{BranchID: 9, After: 0, Until: 10},
	).All()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new-1", "new-2", "new-3", "shared", "other"}, ids)

	ids, err = l.ChangedIn().All()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIteratorConcurrent(t *testing.T) {
	l := New(memory.New(), PageSize(3))
	var commits []model.Commit
	for i := int64(1); i <= 50; i++ {
		commits = append(commits, model.Commit{BranchID: 1, Timestamp: i, NewComponentIDs: []string{fmt.Sprintf("c%02d", i)}})
	}
	stage(t, l, commits...)

	it := l.ChangedSince(1, 0)
	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := it.Next(); id != ""; id = it.Next() {
				mu.Lock()
				got = append(got, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.NoError(t, it.Err())
	assert.Len(t, got, 50)
}
