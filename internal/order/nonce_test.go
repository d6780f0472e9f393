package order

import (
	"sync"
	"testing"
)

func TestNoncesReserveSequential(t *testing.T) {
	n := NewNonces(10)
	for want := uint64(10); want < 13; want++ {
		if got := n.Reserve(); got != want {
			t.Fatalf("Reserve: got %d want %d", got, want)
		}
	}
	if n.Next() != 13 {
		t.Fatalf("Next: got %d", n.Next())
	}
}

func TestNoncesRollbackLatest(t *testing.T) {
	n := NewNonces(4)
	v := n.Reserve()
	n.Rollback(v)
	if n.Next() != 4 {
		t.Fatalf("Next: got %d want 4", n.Next())
	}
	if got := n.Reserve(); got != 4 {
		t.Fatalf("Reserve after rollback: got %d", got)
	}
}

func TestNoncesRollbackOutOfOrder(t *testing.T) {
	n := NewNonces(0)
	a, b, c := n.Reserve(), n.Reserve(), n.Reserve()

	// a failed while b and c are in flight: a is reused first.
	n.Rollback(a)
	if got := n.Reserve(); got != a {
		t.Fatalf("Reserve: got %d want %d", got, a)
	}
	if got := n.Reserve(); got != 3 {
		t.Fatalf("Reserve: got %d want 3", got)
	}

	// Releasing b then the top value collapses the gap.
	n.Rollback(b)
	n.Rollback(3)
	if n.Next() != b {
		t.Fatalf("Next: got %d want %d", n.Next(), b)
	}
	n.Rollback(c)
	if got := n.Reserve(); got != b {
		t.Fatalf("Reserve: got %d want %d", got, b)
	}
}

func TestNoncesRollbackIgnoresUnknown(t *testing.T) {
	n := NewNonces(5)
	n.Rollback(9)
	n.Rollback(5)
	if n.Next() != 5 {
		t.Fatalf("Next: got %d want 5", n.Next())
	}
	v := n.Reserve()
	n.Reserve()
	n.Rollback(v)
	n.Rollback(v)
	if got, next := n.Reserve(), n.Reserve(); got != v || next != 7 {
		t.Fatalf("duplicate rollback handed out twice: %d %d", got, next)
	}
}

func TestNoncesConcurrentReserveUnique(t *testing.T) {
	n := NewNonces(100)
	var (
		mu   sync.Mutex
		seen = map[uint64]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := n.Reserve()
			mu.Lock()
			defer mu.Unlock()
			if seen[v] {
				t.Errorf("nonce %d reserved twice", v)
			}
			seen[v] = true
		}()
	}
	wg.Wait()
	if n.Next() != 150 {
		t.Fatalf("Next: got %d want 150", n.Next())
	}
}

func TestNoncesResync(t *testing.T) {
	n := NewNonces(5)
	a := n.Reserve()
	n.Reserve()
	n.Rollback(a)
	if prev := n.Resync(9); prev != a {
		t.Fatalf("Resync: got previous %d want %d", prev, a)
	}
	if got := n.Reserve(); got != 9 {
		t.Fatalf("Reserve after raising: got %d want 9", got)
	}

	if prev := n.Resync(6); prev != 10 {
		t.Fatalf("Resync: got previous %d want 10", prev)
	}
	if got := n.Reserve(); got != 6 {
		t.Fatalf("Reserve after lowering: got %d want 6", got)
	}
}
