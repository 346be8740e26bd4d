package bufpool

import (
	"context"
	"sync"
)

// capSemaphore is a weighted, cancellable semaphore used to enforce
// MemoryCap. It is the byte-weighted generalization of the fixed-slot
// channel semaphore beenet's ContentFetcher uses for concurrent-fetch
// backpressure (cf.semaphore).
type capSemaphore struct {
	mu      sync.Mutex
	cap     int64
	inUse   int64
	waiters []*capWaiter
}

// capWaiter is one queued acquire. release reserves its n bytes of
// budget itself, under the same lock that decided to wake it, before
// closing ready — the waiter never adds n on its own, so there is no
// gap between "decided to admit" and "budget reserved" for a concurrent
// acquire to race into.
type capWaiter struct {
	n     int64
	ready chan struct{}
}

func newCapSemaphore(capacity int64) *capSemaphore {
	return &capSemaphore{cap: capacity}
}

// acquire blocks until n bytes of budget are available or ctx is done.
// waited reports whether the caller had to suspend.
func (s *capSemaphore) acquire(ctx context.Context, n int64) (waited bool, err error) {
	s.mu.Lock()
	if len(s.waiters) == 0 && (s.inUse+n <= s.cap || s.inUse == 0) {
		// Always admit a lone request even if it alone exceeds cap, so
		// a single large acquire can't deadlock forever. Gated on an
		// empty queue so a fresh acquire can never cut ahead of an
		// older waiter release is about to admit.
		s.inUse += n
		s.mu.Unlock()
		return false, nil
	}

	w := &capWaiter{n: n, ready: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		// release already added n to inUse on our behalf, atomically
		// with dequeuing us; nothing left to reserve here.
		return true, nil
	case <-ctx.Done():
		s.abandon(w)
		return true, ctx.Err()
	}
}

// abandon removes w from the queue if release hasn't claimed it yet. If
// w is no longer in the queue, release already dequeued it and reserved
// its budget in the same locked section that removed it — so that
// budget must be handed back rather than leaked.
func (s *capSemaphore) abandon(w *capWaiter) {
	s.mu.Lock()
	for i, q := range s.waiters {
		if q == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	s.release(w.n)
}

// release returns n bytes of budget and admits as many of the oldest
// waiters as now fit, reserving each one's budget itself before waking
// it. This is a simplified FIFO policy: it does not attempt to satisfy
// an out-of-order waiter whose smaller request would fit before an
// older, larger one does.
func (s *capSemaphore) release(n int64) {
	s.mu.Lock()
	s.inUse -= n
	if s.inUse < 0 {
		s.inUse = 0
	}

	var woken []*capWaiter
	for len(s.waiters) > 0 {
		front := s.waiters[0]
		if s.inUse+front.n > s.cap && s.inUse != 0 {
			break
		}
		s.inUse += front.n
		woken = append(woken, front)
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()

	for _, w := range woken {
		close(w.ready)
	}
}
