// Package signals cancels solver runs on shutdown signals.
//
// The search loop stops at the next restart boundary once its context is
// cancelled, so the first SIGINT or SIGTERM requests a clean interrupt and
// leaves already found models intact. A second signal aborts the process.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	interruptCtx context.Context
	cancel       context.CancelFunc
	once         sync.Once
)

// Context returns a context cancelled on the first SIGINT or SIGTERM. A
// second signal terminates the program with exit code 1.
func Context() context.Context {
	once.Do(func() {
		c := make(chan os.Signal, 2)
		signal.Notify(c, interruptSignals...)
		interruptCtx, cancel = context.WithCancel(context.Background())
		go func() {
			<-c
			cancel()
			<-c
			os.Exit(1) // second signal. Exit directly.
		}()
	})

	return interruptCtx
}
