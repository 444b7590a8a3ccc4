package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultSession: "work", APIURL: "https://api.example.test"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.APIURL != "https://api.example.test" {
		t.Errorf("APIURL = %q", loaded.APIURL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestResolveMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Resolve(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.TypingIdle.Duration != 1500*time.Millisecond {
		t.Errorf("TypingIdle = %v, want 1.5s", cfg.TypingIdle)
	}
	if cfg.MaxAttachmentBytes != 10<<20 {
		t.Errorf("MaxAttachmentBytes = %d", cfg.MaxAttachmentBytes)
	}
}

func TestResolveFileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "api_url = \"https://file.test\"\npresence_poll = \"45s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RISHTA_API_URL", "https://env.test")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.APIURL != "https://env.test" {
		t.Errorf("APIURL = %q, want env override", cfg.APIURL)
	}
	if cfg.PresencePoll.Duration != 45*time.Second {
		t.Errorf("PresencePoll = %v, want 45s from file", cfg.PresencePoll)
	}
	if cfg.SocketURL != Defaults().SocketURL {
		t.Errorf("SocketURL = %q, want default", cfg.SocketURL)
	}
}

func TestResolveDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RISHTA_TYPING_TTL=9s\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("RISHTA_TYPING_TTL") })

	cfg, err := Resolve(filepath.Join(dir, "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TypingTTL.Duration != 9*time.Second {
		t.Errorf("TypingTTL = %v, want 9s from .env", cfg.TypingTTL)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
