// Package schedule abstracts the repeating and one-shot timers that drive
// monitoring, so the same code runs on the wall clock and on a virtual clock
// in tests.
package schedule

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be canceled. Stop is idempotent.
type Timer interface {
	Stop()
}

type Scheduler interface {
	Now() time.Time
	// After runs fn once after d.
	After(d time.Duration, fn func()) Timer
	// Every runs fn each d until stopped. The first run happens after d.
	Every(d time.Duration, fn func()) Timer
}

// Real schedules callbacks on the wall clock.
type Real struct{}

func NewReal() *Real {
	return &Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) After(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() {
	r.t.Stop()
}

func (Real) Every(d time.Duration, fn func()) Timer {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
