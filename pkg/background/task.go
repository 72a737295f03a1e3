// Package background runs fire-and-forget tasks. No caller exists to
// receive a detached task's failure, so the wrapper catches every failure
// variant, panics included, and forwards it to the injected logger instead
// of letting it vanish.
package background

import (
	"github.com/bmops/provisioner/internal/lg"
)

// Go runs fn on its own goroutine. The returned channel is closed when the
// task finishes; fire-and-forget callers simply ignore it.
func Go(log lg.Logger, name string, fn func() error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("background task panicked",
					lg.String("task", name),
					lg.Any("panic", rec))
			}
		}()
		if err := fn(); err != nil {
			log.Error("background task failed",
				lg.String("task", name),
				lg.Err(err))
		}
	}()
	return done
}
