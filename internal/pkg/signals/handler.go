// Package signals wires OS signal delivery into worker shutdown.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dnsflow/internal/pkg/constants"
	"dnsflow/internal/pkg/logger"
)

// SetupHandler cancels ctx on SIGINT or SIGTERM. Returns a cleanup function
// to call once the handler is no longer needed.
func SetupHandler(ctx context.Context, cancel context.CancelFunc) (cleanup func()) {
	sigCh := make(chan os.Signal, constants.SignalChannelBuffer)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating shutdown", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

// SetupChildHandler watches for SIGCHLD and invokes onChildExit with the
// reaped PID each time a child terminates. Used by the parent worker so
// that any child death triggers group-wide shutdown (see WorkerGroup in
// SPEC_FULL.md §3 and §9's second Open Question).
func SetupChildHandler(ctx context.Context, onChildExit func(pid int)) (cleanup func()) {
	sigCh := make(chan os.Signal, constants.SignalChannelBuffer)
	signal.Notify(sigCh, syscall.SIGCHLD)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-sigCh:
				for {
					var ws syscall.WaitStatus
					pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
					if pid <= 0 || err != nil {
						break
					}
					logger.Info("child exited", "pid", pid)
					onChildExit(pid)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
		<-done
	}
}
