package main

import "sync"

// intentBuffer collects direction intents between rounds. Two maps double-
// buffer the collection: current gathers new intents under its own mutex so
// move submissions never contend with readers snapshotting the world; at the
// start of a round the driver swaps current out and applies it as pending.
// Only the latest direction per session within a round survives.
type intentBuffer struct {
	mu      sync.Mutex
	current map[string]Direction
}

func newIntentBuffer() *intentBuffer {
	return &intentBuffer{current: make(map[string]Direction)}
}

// Submit records the session's requested direction, replacing any intent the
// session already filed this round
func (b *intentBuffer) Submit(sessionID string, d Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current[sessionID] = d
}

// Swap returns the collected intents and installs a fresh current buffer.
// Submissions arriving during the round land in the fresh buffer.
func (b *intentBuffer) Swap() map[string]Direction {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.current
	b.current = make(map[string]Direction, len(pending))
	return pending
}

// Len returns the number of sessions with a buffered intent
func (b *intentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.current)
}
