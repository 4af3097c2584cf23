// File: internal/mailbox/pool.go
package mailbox

import "sync"

// Pool is a FIFO queue of pre-allocated mailbox addresses. The orchestrator
// consumes it before falling back to on-demand allocation. It is not
// persisted across process restarts.
type Pool struct {
	mu    sync.Mutex
	queue []string
}

// NewPool seeds a pool with the given addresses, preserving order.
func NewPool(addresses ...string) *Pool {
	p := &Pool{}
	p.queue = append(p.queue, addresses...)
	return p
}

// Push appends an address to the back of the queue.
func (p *Pool) Push(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, address)
}

// Pop removes and returns the oldest address.
func (p *Pool) Pop() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	address := p.queue[0]
	p.queue = p.queue[1:]
	return address, true
}

// Len reports the number of queued addresses.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
