package resolver

import "sync"

// Ticket identifies one resolution pass started by a Tracker.
type Ticket struct {
	Key string
	gen uint64
}

// Tracker deduplicates resolution passes by item key and tells stale results
// apart from current ones. A pass for the key that was last begun is
// skipped; a result whose ticket is not the latest is stale.
type Tracker struct {
	mu      sync.Mutex
	lastKey string
	gen     uint64
}

// Begin starts a pass for key. ok is false when key equals the last key
// begun, in which case no pass should run.
func (t *Tracker) Begin(key string) (Ticket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen > 0 && key == t.lastKey {
		return Ticket{}, false
	}
	t.gen++
	t.lastKey = key
	return Ticket{Key: key, gen: t.gen}, true
}

// IsCurrent reports whether tk belongs to the latest pass.
func (t *Tracker) IsCurrent(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tk.gen != 0 && tk.gen == t.gen && tk.Key == t.lastKey
}

// Reset forgets the last key so the next Begin always starts a pass, and
// makes every outstanding ticket stale.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.gen++
	t.lastKey = ""
	t.mu.Unlock()
}
