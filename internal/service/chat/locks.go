package chat

import "sync"

// conversationLocks serializes pipeline operations per conversation so
// received-order per sender is preserved without any global lock. Unrelated
// conversations never contend.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (c *conversationLocks) lock(conversationID string) func() {
	c.mu.Lock()
	lock, ok := c.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[conversationID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
