// Package replay emits newly observed events to the view one at a time.
//
// Every activation of the poller gets a generation number from a Fence.
// Anything that touches the view or tracked state on behalf of an
// activation does so through Fence.Do with the generation it was started
// under. Advancing the fence waits for any Do in progress, so once Advance
// returns nothing from an older generation can reach the view.
package replay

import "sync"

// Fence serializes view side effects and discards stale ones.
// The zero value is ready to use, with generation 0.
type Fence struct {
	mu  sync.Mutex
	gen uint64
}

// Advance starts a new generation and returns it. It blocks until any Do
// running under the previous generation has returned.
func (f *Fence) Advance() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	return f.gen
}

// Current returns the current generation.
func (f *Fence) Current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// Peek runs fn with the current generation while holding the fence. fn must
// not call back into the fence.
func (f *Fence) Peek(fn func(gen uint64)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.gen)
}

// Do runs fn while holding the fence if gen is still current, and reports
// whether it ran. fn must not call back into the fence.
func (f *Fence) Do(gen uint64, fn func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return false
	}
	fn()
	return true
}
