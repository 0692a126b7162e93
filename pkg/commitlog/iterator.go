package commitlog

import (
	"sync"

	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
)

// Iterator yields the ids of the components touched by the commits in a list of spans.
//
// Commits are read lazily, one page at a time. Every id is yielded once.
// This iterator may be called concurrently.
type Iterator struct {
	log   *Log
	spans []model.Span

	exclusive sync.Mutex
	span      int
	cursor    int64 // timestamp of the last commit read in the current span
	buffer    []string
	seen      map[string]struct{}
	err       error
}

func newIterator(l *Log, spans []model.Span) *Iterator {
	it := &Iterator{
		log:   l,
		spans: spans,
		seen:  make(map[string]struct{}),
	}
	if len(spans) > 0 {
		it.cursor = spans[0].After
	}
	return it
}

// Next component id. It returns "" when completed or after an error.
func (it *Iterator) Next() string {
	it.exclusive.Lock()
	defer it.exclusive.Unlock()

	for len(it.buffer) == 0 {
		if it.err != nil || it.span >= len(it.spans) {
			return ""
		}
		it.err = it.fill()
	}
	id := it.buffer[0]
	it.buffer = it.buffer[1:]
	return id
}

// Err returns the error met while reading commits, if any
func (it *Iterator) Err() error {
	it.exclusive.Lock()
	defer it.exclusive.Unlock()
	return it.err
}

// All drains the iterator
func (it *Iterator) All() ([]string, error) {
	var ids []string
	for id := it.Next(); id != ""; id = it.Next() {
		ids = append(ids, id)
	}
	return ids, it.Err()
}

// fill reads the next page of commits from the current span, moving to the next span when exhausted
func (it *Iterator) fill() error {
	current := it.spans[it.span]
	read := 0
	err := it.log.kv.View(func(r store.Reader) error {
		return scan(r, current.BranchID, it.cursor, current.Until, func(c model.Commit) bool {
			for _, id := range c.ComponentIDs() {
				if _, ok := it.seen[id]; ok {
					continue
				}
				it.seen[id] = struct{}{}
				it.buffer = append(it.buffer, id)
			}
			it.cursor = c.Timestamp
			read++
			return read < it.log.pageSize
		})
	})
	if err != nil {
		return err
	}
	if read < it.log.pageSize {
		it.span++
		if it.span < len(it.spans) {
			it.cursor = it.spans[it.span].After
		}
	}
	return nil
}
