package futex

import "errors"

// ErrTimeout is returned by WaitTimeout when the deadline elapses before
// the awaited value changes.
var ErrTimeout = errors.New("futex: wait timed out")
