package runner

import "sync"

// Pool gates submissions through a fixed number of worker slots. The
// sequential runner uses a single slot; it is the one place where the
// degree of parallelism is decided.
type Pool struct {
	workers   int
	available int
	peak      int
	mu        sync.Mutex
	onChange  func(inFlight int)
}

// NewPool creates a pool with the given number of worker slots
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers:   workers,
		available: workers,
	}
}

// SetOnChange sets a callback invoked with the in-flight count whenever it changes
func (p *Pool) SetOnChange(callback func(inFlight int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = callback
}

// Acquire tries to claim a slot. Returns false if every slot is busy.
func (p *Pool) Acquire() bool {
	p.mu.Lock()
	if p.available <= 0 {
		p.mu.Unlock()
		return false
	}
	p.available--
	inFlight := p.workers - p.available
	if inFlight > p.peak {
		p.peak = inFlight
	}
	callback := p.onChange
	p.mu.Unlock()

	// Notify outside of lock to avoid deadlock
	if callback != nil {
		callback(inFlight)
	}
	return true
}

// Release returns a slot to the pool
func (p *Pool) Release() {
	p.mu.Lock()
	if p.available < p.workers {
		p.available++
	}
	inFlight := p.workers - p.available
	callback := p.onChange
	p.mu.Unlock()

	if callback != nil {
		callback(inFlight)
	}
}

// InFlight returns the number of claimed slots
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers - p.available
}

// Peak returns the highest in-flight count observed
func (p *Pool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Workers returns the pool capacity
func (p *Pool) Workers() int {
	return p.workers
}
