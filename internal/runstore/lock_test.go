package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".processing_state.lock")

	lock, err := AcquireLock(context.Background(), path, time.Second, 0)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireLock(context.Background(), path, 60*time.Millisecond, 10*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "pid=") {
		t.Fatalf("expected owner details in timeout error, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(context.Background(), path, time.Second, 0)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireLock_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".processing_state.lock")

	lock, err := AcquireLock(context.Background(), path, time.Second, 0)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = lock.Release()
	}()

	lock2, err := AcquireLock(context.Background(), path, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected waiter to get the lock after release: %v", err)
	}
	_ = lock2.Release()
}

func TestAcquireLock_HonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".processing_state.lock")
	lock, err := AcquireLock(context.Background(), path, time.Second, 0)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AcquireLock(ctx, path, time.Second, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
