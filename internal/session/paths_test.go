package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".rishta", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(HomeEnv, tmp)
	if got := Dir("x"); got != filepath.Join(tmp, "sessions", "x") {
		t.Errorf("Dir(x) = %q with %s=%s", got, HomeEnv, tmp)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	names, err := List()
	if err != nil || len(names) != 0 {
		t.Fatalf("List() on empty home = %v, %v", names, err)
	}

	for _, n := range []string{"work", "main"} {
		if err := EnsureDir(n); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(LogDir("work"))
	if err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}

	names, err = List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"main", "work"}) {
		t.Errorf("List() = %v, want [main work]", names)
	}
}
