package application

import "sync"

// pendingCounter tracks rename requests awaiting acknowledgement. Waiters
// take a snapshot and block on the returned channel, which is closed on the
// next change.
type pendingCounter struct {
	mu      sync.Mutex
	n       int
	changed chan struct{}
}

func newPendingCounter() *pendingCounter {
	return &pendingCounter{changed: make(chan struct{})}
}

func (p *pendingCounter) add() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.n++
	p.notifyLocked()
}

// done decrements the counter. It reports false, leaving the counter at
// zero, when nothing was pending.
func (p *pendingCounter) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.n == 0 {
		return false
	}
	p.n--
	p.notifyLocked()
	return true
}

func (p *pendingCounter) value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func (p *pendingCounter) snapshot() (int, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n, p.changed
}

func (p *pendingCounter) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
