// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// ErrPanic is wrapped by the error Guard returns for a recovered panic
var ErrPanic = errors.New("recovered panic")

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// HandlePanicFunc logs panic details and calls the provided cleanup function
// before exiting.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Guard runs fn and turns a panic into an error wrapping ErrPanic, so a
// goroutine such as the beat driver can report a failing listener to its
// owner instead of taking the process down.
//
//	go func() {
//		errCh <- recovery.Guard(func() error { return drv.Run(ctx) })
//	}()
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n\nStack trace:\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn()
}
