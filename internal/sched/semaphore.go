package sched

// semaphore is a channel-based counting semaphore with tokens pre-filled up
// to the limit. It gates concurrent executions of one job id.
//
// Note: the limit is fixed for the life of the semaphore. Replacing a job
// with a different MaxInstances allocates a fresh semaphore; runs still
// holding old tokens drain against the old one.
type semaphore struct {
	limit int
	ch    chan struct{}
}

func newSemaphore(limit int) *semaphore {
	if limit <= 0 {
		limit = 1
	}
	s := &semaphore{limit: limit, ch: make(chan struct{}, limit)}
	for i := 0; i < limit; i++ {
		s.ch <- struct{}{}
	}
	return s
}

func (s *semaphore) tryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *semaphore) release() {
	if s == nil {
		return
	}
	// Best-effort: never block on release.
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// inUse reports how many tokens are currently held.
func (s *semaphore) inUse() int {
	if s == nil {
		return 0
	}
	return s.limit - len(s.ch)
}
