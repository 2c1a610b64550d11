package modeladapter

import "sync"

// TokenCount holds the token usage of one model call.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (tc TokenCount) Total() int { return tc.InputTokens + tc.OutputTokens }

// Tracker accumulates token usage across calls. The zero value is ready to
// use and it is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calls int
	total TokenCount
	last  TokenCount
}

// Add records one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.total.InputTokens += tc.InputTokens
	t.total.OutputTokens += tc.OutputTokens
	t.last = tc
}

// Last returns the most recent call's usage; ok is false before any call.
func (t *Tracker) Last() (tc TokenCount, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the sum over every recorded call.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}
