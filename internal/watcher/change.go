package watcher

import (
	"sort"
	"sync"
)

// EventKind represents the type of file change
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
	EventMoved
)

// String returns the string representation of the EventKind
func (e EventKind) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Change is one affected filesystem entry. Path is always absolute.
type Change struct {
	Path string
	Kind EventKind
}

// PendingSet accumulates changes between throttle ticks. Identical changes
// collapse into one entry.
type PendingSet struct {
	mu    sync.Mutex
	items map[Change]struct{}
}

// NewPendingSet creates an empty pending set.
func NewPendingSet() *PendingSet {
	return &PendingSet{items: make(map[Change]struct{})}
}

// Add records a change.
func (p *PendingSet) Add(change Change) {
	p.mu.Lock()
	p.items[change] = struct{}{}
	p.mu.Unlock()
}

// Drain swaps the set with an empty one and returns the previous contents,
// ordered by path then kind. Changes added after Drain returns belong to the
// next batch.
func (p *PendingSet) Drain() []Change {
	p.mu.Lock()
	items := p.items
	p.items = make(map[Change]struct{})
	p.mu.Unlock()

	batch := make([]Change, 0, len(items))
	for change := range items {
		batch = append(batch, change)
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Path != batch[j].Path {
			return batch[i].Path < batch[j].Path
		}
		return batch[i].Kind < batch[j].Kind
	})
	return batch
}

// Len returns the number of pending changes.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
