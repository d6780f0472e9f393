package order

import (
	"sort"
	"sync"
)

// Nonces hands out wallet nonces to the engines of one run. A reserved nonce
// that was never broadcast is given back with Rollback and handed out again
// before any new value.
type Nonces struct {
	mu   sync.Mutex
	next uint64
	free []uint64
}

// NewNonces starts allocation at next, the wallet's pending transaction count.
func NewNonces(next uint64) *Nonces {
	return &Nonces{next: next}
}

// Reserve returns the lowest unused nonce.
func (n *Nonces) Reserve() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.free) > 0 {
		v := n.free[0]
		n.free = n.free[1:]
		return v
	}
	v := n.next
	n.next++
	return v
}

// Rollback returns v to the allocator after a failed submission.
func (n *Nonces) Rollback(v uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v >= n.next {
		return
	}
	for _, f := range n.free {
		if f == v {
			return
		}
	}
	if v+1 == n.next {
		n.next = v
		// Collapse any freed values that now sit at the top.
		for len(n.free) > 0 && n.free[len(n.free)-1]+1 == n.next {
			n.next = n.free[len(n.free)-1]
			n.free = n.free[:len(n.free)-1]
		}
		return
	}
	n.free = append(n.free, v)
	sort.Slice(n.free, func(i, j int) bool { return n.free[i] < n.free[j] })
}

// Next is the value the next Reserve returns.
func (n *Nonces) Next() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.free) > 0 {
		return n.free[0]
	}
	return n.next
}

// Resync restarts allocation at next, the node's pending nonce, and forgets
// rolled-back values. It returns what Next reported before.
func (n *Nonces) Resync(next uint64) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.next
	if len(n.free) > 0 {
		prev = n.free[0]
	}
	n.next = next
	n.free = nil
	return prev
}
