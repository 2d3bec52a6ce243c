package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signalContext cancels the returned context on the first SIGINT or SIGTERM
// so running commands can shut down. A second signal exits immediately.
func signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			arrowf(os.Stderr, colError, "Received %v. Cancelling, press Ctrl+C again to force exit", sig)
			cancel()
		case <-stop:
			return
		}
		select {
		case <-sigs:
			arrowf(os.Stderr, colError, "Second interrupt received. Forcing immediate exit.")
			os.Exit(130)
		case <-stop:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(stop)
		cancel()
	}
}
