// Package lock keeps two cibox processes from driving the same container.
//
// Each container gets an advisory flock(2) on {dir}/{name}.lock, held for the
// whole command. The lock is released by Release or when the process exits.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/Iron-Ham/cibox/internal/errors"
)

// Lock is a held container lock.
type Lock struct {
	path string
	file *os.File
}

// Path returns the lock file path for container under dir.
func Path(dir, container string) string {
	return filepath.Join(dir, container+".lock")
}

// Acquire takes the lock for container without blocking. When another
// process holds it the error wraps errors.ErrLocked and names the holder's
// pid when known.
func Acquire(dir, container string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := Path(dir, container)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			cause := errors.ErrLocked
			if pid := Holder(dir, container); pid > 0 {
				cause = fmt.Errorf("%w (pid %d)", errors.ErrLocked, pid)
			}
			return nil, errors.NewContainerError(container, "lock", cause)
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	// The pid is informational only; the flock is what excludes.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, file: f}, nil
}

// Holder returns the pid recorded in the lock file, or 0.
func Holder(dir, container string) int {
	data, err := os.ReadFile(Path(dir, container))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		l.file = nil
		return fmt.Errorf("funlock: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
