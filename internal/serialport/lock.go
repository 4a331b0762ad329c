package serialport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrPortBusy is returned when another flasher instance holds the port.
var ErrPortBusy = errors.New("port is in use by another flashing session")

// LockDir is where port lock files are created.
var LockDir = filepath.Join(os.TempDir(), "esp32-flasher-locks")

// PortLock is an advisory, cross-process lock on one serial port.
type PortLock struct {
	fl *flock.Flock
}

// Lock takes the lock for port without blocking.
func Lock(port string) (*PortLock, error) {
	if err := os.MkdirAll(LockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(LockDir, lockName(port)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", port, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", port, ErrPortBusy)
	}
	return &PortLock{fl: fl}, nil
}

// Unlock releases the lock.
func (l *PortLock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// lockName turns "/dev/ttyUSB0" or "COM3" into a safe file name.
func lockName(port string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", ":", "_", ".", "_")
	return r.Replace(strings.TrimLeft(port, `/\.`)) + ".lock"
}
