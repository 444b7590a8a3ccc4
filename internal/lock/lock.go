package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the name of the lock file inside a session directory.
const FileName = "LOCK"

// HeldError is returned when another daemon already owns the session.
type HeldError struct {
	PID  int
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session already served by daemon PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired, exclusive session lock. One daemon per session.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive flock on sessionDir/LOCK and records the
// holder's PID and start time in it.
func Acquire(sessionDir string) (*Lock, error) {
	lockPath := filepath.Join(sessionDir, FileName)

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		pid, _ := readHolder(lockPath)
		_ = f.Close()
		return nil, &HeldError{PID: pid, Path: lockPath}
	}

	if err := writeHolder(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: lockPath}, nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before close so a stale file never outlives the flock.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Holder reports the PID of the daemon currently holding the session lock.
// ok is false when nobody holds it (including a stale file left by a crash).
func Holder(sessionDir string) (pid int, ok bool) {
	lockPath := filepath.Join(sessionDir, FileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return 0, false
	}
	pid, _ = readHolder(lockPath)
	return pid, true
}

func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_, err := f.WriteString(content)
	return err
}

func readHolder(lockPath string) (int, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			return strconv.Atoi(after)
		}
	}
	return 0, nil
}
