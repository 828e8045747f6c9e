package provider

import "sync"

// turnTracker dedupes turn boundary signals. Upstreams emit redundant
// intermediate events per turn; the bridge must see turn-started and
// turn-completed exactly once each, so adapters gate emission through this
// per-turn "already signaled" flag.
type turnTracker struct {
	mu   sync.Mutex
	open bool
}

// begin reports whether this call opened the turn. False means the turn was
// already signaled.
func (t *turnTracker) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return false
	}
	t.open = true
	return true
}

// end reports whether this call closed an open turn. False means no turn was
// open or completion was already signaled.
func (t *turnTracker) end() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return false
	}
	t.open = false
	return true
}
