package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const watcherYAMLv1 = `
server:
  listen_addr: ":8080"
  log_level: info
translation:
  primary:
    name: googlecloud
    api_key: key
`

const watcherYAMLv2 = `
server:
  listen_addr: ":8080"
  log_level: debug
translation:
  primary:
    name: googlecloud
    api_key: key
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	// Nudge mtime so the watcher's quick check notices the change even on
	// filesystems with coarse timestamp resolution.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil")
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want 'info'", cfg.Server.LogLevel)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	var mu sync.Mutex
	var gotOld, gotNew *Config
	changed := make(chan struct{}, 1)

	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, watcherYAMLv2)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Server.LogLevel != LogInfo {
		t.Errorf("old LogLevel = %q, want 'info'", gotOld.Server.LogLevel)
	}
	if gotNew.Server.LogLevel != LogDebug {
		t.Errorf("new LogLevel = %q, want 'debug'", gotNew.Server.LogLevel)
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("Current().LogLevel = %q, want 'debug'", w.Current().Server.LogLevel)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	w, err := NewWatcher(path, func(_, _ *Config) {
		t.Error("onChange should not fire for an invalid config")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "server:\n  log_level: shouting\n")

	// Give the poller a few cycles to pick up the broken file.
	time.Sleep(100 * time.Millisecond)

	if w.Current().Server.LogLevel != LogInfo {
		t.Errorf("Current().LogLevel = %q, want unchanged 'info'", w.Current().Server.LogLevel)
	}
}
