package kernel

import (
	"runtime"
	"time"
)

// Scheduler is the cooperative task interface the kernel consumes. The
// interrupt path never calls it; only the idle loop yields through it.
type Scheduler interface {
	CreateTask(entry func()) error
	Yield()
	Delay(ticks uint64)
}

// GoScheduler maps the task interface onto goroutines.
type GoScheduler struct {
	Tick time.Duration
}

func (s GoScheduler) CreateTask(entry func()) error {
	go entry()
	return nil
}

func (s GoScheduler) Yield() { runtime.Gosched() }

func (s GoScheduler) Delay(ticks uint64) {
	tick := s.Tick
	if tick == 0 {
		tick = time.Millisecond
	}
	time.Sleep(time.Duration(ticks) * tick)
}
