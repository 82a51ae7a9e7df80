package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrDeviceBusy is returned when another process holds the device lock
var ErrDeviceBusy = errors.New("capture device is busy")

// lockRetryDelay is how often a held device lock is polled
const lockRetryDelay = 100 * time.Millisecond

// CommandConfig holds configuration for a CommandDevice
type CommandConfig struct {
	// Command is run through no shell, e.g. "libcamera-still -n -o -"
	Command string
	// LockPath, when set, is held exclusively for the duration of a capture
	LockPath string
	// LockTimeout bounds the wait for the lock. Zero fails immediately.
	LockTimeout time.Duration
}

// CommandDevice runs an external capture program and reads the image from
// its stdout
type CommandDevice struct {
	name    string
	args    []string
	lock    *flock.Flock
	timeout time.Duration
}

// NewCommandDevice creates a new CommandDevice
func NewCommandDevice(cfg CommandConfig) (*CommandDevice, error) {
	parts := strings.Fields(cfg.Command)
	if len(parts) == 0 {
		return nil, errors.New("capture command is required")
	}

	d := &CommandDevice{
		name:    parts[0],
		args:    parts[1:],
		timeout: cfg.LockTimeout,
	}
	if cfg.LockPath != "" {
		d.lock = flock.New(cfg.LockPath)
	}
	return d, nil
}

// Frame runs the capture command once
func (d *CommandDevice) Frame(ctx context.Context) (*Frame, error) {
	if d.lock != nil {
		if err := d.acquire(ctx); err != nil {
			return nil, err
		}
		defer d.lock.Unlock()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.name, d.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("running %s: %w: %s", d.name, err, msg)
		}
		return nil, fmt.Errorf("running %s: %w", d.name, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("running %s: %w", d.name, ErrEmptyFrame)
	}

	return &Frame{Data: stdout.Bytes(), Source: d.name}, nil
}

func (d *CommandDevice) acquire(ctx context.Context) error {
	var (
		ok  bool
		err error
	)
	if d.timeout > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		ok, err = d.lock.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		ok, err = d.lock.TryLock()
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrDeviceBusy, d.lock.Path())
		}
		return fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceBusy, d.lock.Path())
	}
	return nil
}
