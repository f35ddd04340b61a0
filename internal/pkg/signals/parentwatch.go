package signals

import (
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"dnsflow/internal/pkg/constants"
)

// ParentWatch notifies a callback when this process's parent has died.
// On Linux it installs a kernel death signal; elsewhere it falls back to
// polling getppid().
type ParentWatch struct {
	stop chan struct{}
}

// NewParentWatch registers for parent-death notification. On the polling
// path it invokes onOrphan exactly once, from a background goroutine, when
// the parent is gone; call Stop to cancel the watch before it fires. When
// the kernel death signal is installed, onOrphan is not called: the
// parent's death arrives as SIGTERM instead.
func NewParentWatch(onOrphan func()) *ParentWatch {
	w := &ParentWatch{stop: make(chan struct{})}

	if runtime.GOOS == "linux" {
		if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0); err == nil {
			// SIGTERM on parent death is handled by SetupHandler's normal
			// signal path; nothing further to do here.
			return w
		}
	}

	go w.pollLoop(onOrphan)
	return w
}

func (w *ParentWatch) pollLoop(onOrphan func()) {
	ticker := time.NewTicker(constants.ParentWatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if os.Getppid() == 1 {
				onOrphan()
				return
			}
		case <-w.stop:
			return
		}
	}
}

// Stop cancels a poll-based watch. It is a no-op when the kernel death
// signal path was used.
func (w *ParentWatch) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}
