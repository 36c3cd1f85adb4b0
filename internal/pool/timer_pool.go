// Package pool keeps reusable timers for the timeouts on waits and receiver reads.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer for the given duration d from the pool.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // only *time.Timer values are put into the pool
		if t.Reset(d) {
			// Timer was active, drain the channel to prevent potential leaks
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// Drain t.C if it wasn't obtained by the caller yet.
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Timeout is an optional pooled timer. A Timeout created with a non-positive
// duration never fires.
type Timeout struct {
	timer *time.Timer
}

// NewTimeout returns a Timeout firing after d, or a disabled Timeout when d <= 0.
//
// Stop must be called to give the timer back to the pool.
func NewTimeout(d time.Duration) Timeout {
	if d <= 0 {
		return Timeout{}
	}

	return Timeout{timer: GetTimer(d)}
}

// C returns the channel the timeout fires on. It is nil for a disabled Timeout,
// so selecting on it blocks forever.
func (t Timeout) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}

	return t.timer.C
}

// Stop releases the underlying timer.
func (t Timeout) Stop() {
	if t.timer != nil {
		PutTimer(t.timer)
	}
}
