package cmdutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PIDFile holds an exclusive advisory lock on a pid file for the lifetime of
// the process that created it.
type PIDFile struct {
	path string
	file *os.File
}

// WritePIDFile creates path, takes a non-blocking exclusive lock on it, and
// writes the current process id. A second instance pointed at the same path
// fails with a descriptive error instead of blocking.
func WritePIDFile(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open pid file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("pid file %s is locked by another instance", path)
		}
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate pid file %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync pid file %s: %w", path, err)
	}

	return &PIDFile{path: path, file: f}, nil
}

// Close releases the lock and closes the underlying file. It does not
// remove the file so that a concurrent reader can still observe the pid
// until the next instance starts.
func (p *PIDFile) Close() error {
	if p == nil || p.file == nil {
		return nil
	}
	return p.file.Close()
}
