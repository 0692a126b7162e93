package branch

import (
	"sync"

	"github.com/oneconcern/revstore/pkg/model"
)

// EventKind tells what happened to a branch
type EventKind int

const (
	// EventCreated is sent when a branch is created
	EventCreated EventKind = iota + 1

	// EventCommitted is sent after a commit is written on a branch
	EventCommitted

	// EventDeleted is sent for every branch soft-deleted
	EventDeleted

	// EventMetadataUpdated is sent when the metadata of a branch is replaced
	EventMetadataUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventCommitted:
		return "committed"
	case EventDeleted:
		return "deleted"
	case EventMetadataUpdated:
		return "metadata-updated"
	default:
		return "unknown"
	}
}

// Event describes a change made to a branch
type Event struct {
	Kind      EventKind
	Branch    model.Branch
	Timestamp int64
}

// Listener is notified of branch changes, after they are written.
//
// Listeners run synchronously on the writing goroutine: they should return quickly and must not lock branches.
type Listener func(Event)

type listeners struct {
	mu  sync.RWMutex
	fns []Listener
}

func (l *listeners) add(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *listeners) notify(e Event) {
	l.mu.RLock()
	fns := l.fns
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

// AddChangeListener registers a listener for branch changes
func (s *Store) AddChangeListener(fn Listener) {
	if fn != nil {
		s.listeners.add(fn)
	}
}
