package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"LISTEN_ADDR", "AUTH_PASSWORD", "AUTH_PASSWORD_HASH", "SESSION_TTL", "REDIS_HOST", "WATCH_LIBRARY", "FFPROBE_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("LIBRARY_ROOT", t.TempDir())

	cfg := FromEnv()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v, want 7 days", cfg.SessionTTL)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled without a password")
	}
	if cfg.RedisEnabled() {
		t.Error("redis should be disabled without a host")
	}
	if !cfg.WatchLibrary {
		t.Error("library watching should default to on")
	}
	if cfg.FFprobePath != "ffprobe" {
		t.Errorf("FFprobePath = %q, want ffprobe from PATH", cfg.FFprobePath)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LIBRARY_ROOT", t.TempDir())
	t.Setenv("AUTH_PASSWORD", "hunter2")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("REDIS_HOST", "127.0.0.1")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("WATCH_LIBRARY", "false")
	t.Setenv("WATCH_DEBOUNCE", "not-a-duration")
	t.Setenv("FFPROBE_PATH", "/opt/ffmpeg/bin/ffprobe")

	cfg := FromEnv()
	if !cfg.AuthEnabled() {
		t.Error("auth should be enabled")
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if !cfg.RedisEnabled() || cfg.RedisDB != 4 {
		t.Errorf("redis config = %q db %d", cfg.RedisHost, cfg.RedisDB)
	}
	if cfg.WatchLibrary {
		t.Error("WATCH_LIBRARY=false ignored")
	}
	if cfg.WatchDebounce != 2*time.Second {
		t.Errorf("invalid duration should fall back, got %v", cfg.WatchDebounce)
	}
	if cfg.FFprobePath != "/opt/ffmpeg/bin/ffprobe" {
		t.Errorf("FFprobePath = %q", cfg.FFprobePath)
	}
}

func TestCanonicalRoot_ResolvesSymlinks(t *testing.T) {
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "music")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	want, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatal(err)
	}
	if got := CanonicalRoot(link); got != want {
		t.Errorf("CanonicalRoot(%q) = %q, want %q", link, got, want)
	}
}

func TestCanonicalRoot_MissingDirStaysAbsolute(t *testing.T) {
	got := CanonicalRoot("does/not/exist")
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}
}
