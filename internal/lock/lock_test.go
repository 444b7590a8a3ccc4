package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestHolder(t *testing.T) {
	tmpDir := t.TempDir()

	if _, ok := Holder(tmpDir); ok {
		t.Fatal("Holder() reported a holder before Acquire")
	}

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	pid, ok := Holder(tmpDir)
	if !ok || pid != os.Getpid() {
		t.Errorf("Holder() = (%d, %v), want (%d, true)", pid, ok, os.Getpid())
	}

	_ = l.Release()
	if _, ok := Holder(tmpDir); ok {
		t.Error("Holder() reported a holder after Release")
	}
}

// TestHolderIgnoresStaleFile verifies a LOCK file left behind by a crashed
// daemon (no flock held) is not reported as a running daemon.
func TestHolderIgnoresStaleFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("pid=99999\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, ok := Holder(tmpDir); ok {
		t.Error("Holder() treated a stale lock file as held")
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
