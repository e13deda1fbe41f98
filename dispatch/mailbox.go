package dispatch

import "sync"

// mailbox is a bounded FIFO of jobs with an admission policy. Consumers
// range over ch; close lets them drain what is left and then stop.
type mailbox struct {
	ch        chan *job
	policy    Admission
	closing   chan struct{}
	closeOnce sync.Once
	lock      sync.RWMutex // held shared by senders, exclusive by close
	closed    bool
	evictLock sync.Mutex
}

func newMailbox(size int, policy Admission) *mailbox {
	return &mailbox{
		ch:      make(chan *job, size),
		policy:  policy,
		closing: make(chan struct{}),
	}
}

// push admits j. Under DropOldest it returns the jobs evicted to make room;
// the caller settles them.
func (m *mailbox) push(j *job) ([]*job, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	switch m.policy {
	case Reject:
		select {
		case m.ch <- j:
			return nil, nil
		default:
			return nil, ErrQueueFull
		}
	case DropOldest:
		m.evictLock.Lock()
		defer m.evictLock.Unlock()
		var evicted []*job
		for {
			select {
			case m.ch <- j:
				return evicted, nil
			default:
			}
			select {
			case old := <-m.ch:
				evicted = append(evicted, old)
			default:
			}
		}
	default:
		select {
		case m.ch <- j:
			return nil, nil
		case <-m.closing:
			return nil, ErrClosed
		}
	}
}

func (m *mailbox) len() int {
	return len(m.ch)
}

// close stops intake. Blocked senders are released with ErrClosed before
// the channel is closed.
func (m *mailbox) close() {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.lock.Lock()
		m.closed = true
		close(m.ch)
		m.lock.Unlock()
	})
}
