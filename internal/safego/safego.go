// Package safego launches fire-and-forget goroutines that survive panics.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic in fn is recovered and logged with
// its stack instead of killing the process. Use it for goroutines nothing
// waits on, like the HTTP listeners in main; goroutines tracked by a
// WaitGroup handle their own recovery.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
