package chatclient

import "time"

// Timer — отменяемый отложенный вызов.
type Timer interface {
	Stop() bool
}

// Scheduler планирует отложенные вызовы. В тестах подменяется ручным.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
