package runstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	DefaultLockTimeout = 10 * time.Second
	defaultLockRetry   = 50 * time.Millisecond
	lockOwnerSuffix    = ".owner.json"
)

var ErrLockTimeout = errors.New("timed out waiting for state lock")

// Lock is an advisory file lock scoped to one host. Holders record who they
// are next to the lock file so a waiter can report it.
type Lock struct {
	fl        *flock.Flock
	ownerPath string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock polls for the lock until timeout elapses or ctx is done.
func AcquireLock(ctx context.Context, path string, timeout, retry time.Duration) (*Lock, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return nil, fmt.Errorf("lock path is required")
	}
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if retry <= 0 {
		retry = defaultLockRetry
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(target)
	ok, err := fl.TryLockContext(waitCtx, retry)
	if err != nil || !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", target, err)
		}
		return nil, lockTimeoutError(target)
	}

	l := &Lock{fl: fl, ownerPath: target + lockOwnerSuffix}
	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(l.ownerPath, owner); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write lock owner for %s: %w", target, err)
	}
	return l, nil
}

func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	_ = os.Remove(l.ownerPath)
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.fl.Path(), err)
	}
	return nil
}

func lockTimeoutError(target string) error {
	var owner lockOwner
	if err := ReadJSON(target+lockOwnerSuffix, &owner); err == nil && owner.PID > 0 && owner.CreatedAt != "" {
		return fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)", ErrLockTimeout, target, owner.PID, owner.CreatedAt, owner.Hostname)
	}
	return fmt.Errorf("%w: %s", ErrLockTimeout, target)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
