// Package guard runs blocking operations under a hard wall-clock deadline.
//
// Browser automation can wedge indefinitely on a hung render or a stalled
// network. The guard converts "it never returned" into a distinguishable
// failure instead of hanging the caller: the worker goroutine is abandoned
// on timeout, not cancelled, and its eventual result is discarded.
package guard

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is returned when the operation did not finish within the deadline.
var ErrTimedOut = errors.New("operation timed out")

type outcome[T any] struct {
	value T
	err   error
}

// Run executes op on its own goroutine and waits at most deadline for it to
// finish. A panic inside op is forwarded as an error rather than taking the
// whole batch down.
func Run[T any](op func() (T, error), deadline time.Duration) (T, error) {
	ch := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- outcome[T]{value: zero, err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		v, err := op()
		ch <- outcome[T]{value: v, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("%w (>%s)", ErrTimedOut, deadline)
	}
}
