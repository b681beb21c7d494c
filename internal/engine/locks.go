package engine

import "sync"

// convLocks serializes flow handling per conversation. Two concurrent replies
// for the same conversation must not both read the current step and
// double-advance; everything else may proceed in parallel. Entries are
// reference-counted so the map does not grow with conversation count.
type convLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[string]*convLock)}
}

// lock acquires the conversation's lock and returns its release func.
func (c *convLocks) lock(conversationID string) func() {
	c.mu.Lock()
	entry, ok := c.locks[conversationID]
	if !ok {
		entry = &convLock{}
		c.locks[conversationID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}
