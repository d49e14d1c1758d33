package core

import "time"

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	timer := time.AfterFunc(d, fn)
	return timer.Stop
}

// SystemScheduler schedules with time.AfterFunc.
func SystemScheduler() Scheduler {
	return timeScheduler{}
}

type goroutineExecutor struct{}

func (goroutineExecutor) Go(fn func()) {
	if fn == nil {
		return
	}
	go fn()
}

// GoroutineExecutor runs each task on its own goroutine.
func GoroutineExecutor() Executor {
	return goroutineExecutor{}
}

// InlineExecutor runs tasks on the calling goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Go(fn func()) {
	if fn != nil {
		fn()
	}
}
