package config

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

func TestReloadWatcherDeliversUpdatedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bcasl.yaml")
	if err := os.WriteFile(path, []byte("required_files: [a.py]"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logger.CreateLoggerWithOutput("error", io.Discard)
	watcher := NewReloadWatcher(dir, log)
	watcher.SetDebouncePeriod(20 * time.Millisecond)

	updates := make(chan *types.PipelineConfig, 4)
	watcher.AddCallback(func(cfg *types.PipelineConfig, err error) {
		if err == nil {
			updates <- cfg
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()
	if !watcher.IsWatching() {
		t.Fatal("watcher should report active")
	}

	// fsnotify needs the watch to settle before the write.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("required_files: [b.py]"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-updates:
		if !reflect.DeepEqual(cfg.RequiredFiles, []string{"b.py"}) {
			t.Errorf("required files = %v, want [b.py]", cfg.RequiredFiles)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
	}
}

func TestReloadWatcherStartTwice(t *testing.T) {
	log := logger.CreateLoggerWithOutput("error", io.Discard)
	watcher := NewReloadWatcher(t.TempDir(), log)

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err == nil {
		t.Error("second Start should fail")
	}
}

func TestReloadWatcherStopWithoutStart(t *testing.T) {
	log := logger.CreateLoggerWithOutput("error", io.Discard)
	watcher := NewReloadWatcher(t.TempDir(), log)

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop before Start should be a no-op: %v", err)
	}
}
