package dispatch

import (
	"sync"

	"github.com/linchenxuan/taglog/log"
)

// Lane runs its tasks one at a time, in submission order, on a dedicated
// goroutine. It shares the dispatcher's admission policy, queue size,
// pending count and completion context.
type Lane struct {
	name      string
	d         *Dispatcher
	mailbox   *mailbox
	done      chan struct{}
	closeOnce sync.Once
}

func newLane(d *Dispatcher, name string) *Lane {
	l := &Lane{
		name:    name,
		d:       d,
		mailbox: newMailbox(d.cfg.QueueSize, d.cfg.Admission),
		done:    make(chan struct{}),
	}
	go l.runLoop()
	return l
}

// Name implements Executor.
func (l *Lane) Name() string {
	return l.name
}

func (l *Lane) submit(j *job) error {
	_, err := l.d.admit(l.name, l.mailbox, j)
	return err
}

func (l *Lane) runLoop() {
	defer close(l.done)
	log.Debug().Str("lane", l.name).Msg("lane started")
	for j := range l.mailbox.ch {
		l.d.execute(l.name, j)
	}
	log.Debug().Str("lane", l.name).Msg("lane exited")
}

// Close stops intake, runs the tasks left in the mailbox and waits for the
// lane goroutine to exit. The name becomes free for a new lane.
func (l *Lane) Close() {
	l.closeOnce.Do(func() {
		if n := l.mailbox.len(); n > 0 {
			log.Info().Str("lane", l.name).Int("count", n).Msg("processing remaining tasks on close")
		}
		l.mailbox.close()
	})
	<-l.done
	l.d.forgetLane(l)
}
