package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// ReloadWatcher watches a workspace pipeline document and reloads it
// when the file changes on disk.
type ReloadWatcher struct {
	workspaceDir   string
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	lastModTime    time.Time
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	watching       bool
}

// ReloadCallback receives the freshly loaded pipeline configuration,
// or an error when the document became unreadable.
type ReloadCallback func(*types.PipelineConfig, error)

// NewReloadWatcher creates a watcher over workspaceDir's pipeline
// document.
func NewReloadWatcher(workspaceDir string, log logger.Logger) *ReloadWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReloadWatcher{
		workspaceDir:   workspaceDir,
		logger:         log,
		debouncePeriod: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// AddCallback registers a reload callback.
func (rw *ReloadWatcher) AddCallback(cb ReloadCallback) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.callbacks = append(rw.callbacks, cb)
}

// Start begins watching the workspace for pipeline document changes.
func (rw *ReloadWatcher) Start() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.watching {
		return fmt.Errorf("already watching pipeline config")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	rw.watcher = watcher

	if err := rw.watcher.Add(rw.workspaceDir); err != nil {
		rw.watcher.Close()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	if path := FindPipelineDocument(rw.workspaceDir); path != "" {
		if stat, err := os.Stat(path); err == nil {
			rw.lastModTime = stat.ModTime()
		}
	}

	rw.watching = true
	go rw.watchLoop()

	rw.logger.Debug("Watching pipeline config",
		logger.WithField("workspace", rw.workspaceDir))
	return nil
}

// Stop ends watching. Safe to call when not started.
func (rw *ReloadWatcher) Stop() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if !rw.watching {
		return nil
	}

	rw.cancel()
	if rw.debounceTimer != nil {
		rw.debounceTimer.Stop()
		rw.debounceTimer = nil
	}
	if rw.watcher != nil {
		if err := rw.watcher.Close(); err != nil {
			rw.logger.Warn("Error closing file watcher", logger.WithField("error", err))
		}
		rw.watcher = nil
	}
	rw.watching = false
	return nil
}

// SetDebouncePeriod adjusts how long file events are coalesced before
// a reload.
func (rw *ReloadWatcher) SetDebouncePeriod(period time.Duration) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.debouncePeriod = period
}

// IsWatching reports whether the watcher is active.
func (rw *ReloadWatcher) IsWatching() bool {
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	return rw.watching
}

func (rw *ReloadWatcher) watchLoop() {
	defer func() {
		if r := recover(); r != nil {
			rw.logger.Error("Pipeline config watcher panic recovered",
				logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-rw.ctx.Done():
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if !rw.isPipelineDocEvent(event.Name) {
				continue
			}
			rw.logger.Debug("Pipeline config event received",
				logger.WithField("event", event.String()))
			rw.debounceReload()

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Error("Pipeline config watcher error",
				logger.WithField("error", err))
			rw.notifyCallbacks(nil, err)
		}
	}
}

func (rw *ReloadWatcher) isPipelineDocEvent(eventPath string) bool {
	name := filepath.Base(eventPath)
	for _, doc := range pipelineDocNames {
		if name == doc {
			return true
		}
		// Editors write through temporary siblings before renaming.
		if strings.HasPrefix(name, doc) && strings.HasSuffix(name, ".tmp") {
			return true
		}
	}
	return false
}

func (rw *ReloadWatcher) debounceReload() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.debounceTimer != nil {
		rw.debounceTimer.Stop()
	}
	rw.debounceTimer = time.AfterFunc(rw.debouncePeriod, rw.handleChange)
}

func (rw *ReloadWatcher) handleChange() {
	path := FindPipelineDocument(rw.workspaceDir)
	if path == "" {
		rw.notifyCallbacks(nil, fmt.Errorf("pipeline config removed from %s", rw.workspaceDir))
		return
	}

	stat, err := os.Stat(path)
	if err != nil {
		rw.notifyCallbacks(nil, err)
		return
	}

	rw.mu.Lock()
	if !stat.ModTime().After(rw.lastModTime) {
		rw.mu.Unlock()
		return
	}
	rw.lastModTime = stat.ModTime()
	rw.mu.Unlock()

	cfg, err := LoadPipelineConfig(rw.workspaceDir)
	if err != nil {
		rw.logger.Error("Failed to reload pipeline config",
			logger.WithField("error", err))
		rw.notifyCallbacks(nil, err)
		return
	}

	rw.logger.Info("Pipeline config reloaded",
		logger.WithField("plugins", len(cfg.Plugins)))
	rw.notifyCallbacks(cfg, nil)
}

func (rw *ReloadWatcher) notifyCallbacks(cfg *types.PipelineConfig, err error) {
	rw.mu.RLock()
	callbacks := make([]ReloadCallback, len(rw.callbacks))
	copy(callbacks, rw.callbacks)
	rw.mu.RUnlock()

	for _, callback := range callbacks {
		go func(cb ReloadCallback) {
			defer func() {
				if r := recover(); r != nil {
					rw.logger.Error("Reload callback panic recovered",
						logger.WithField("panic", r))
				}
			}()
			cb(cfg, err)
		}(callback)
	}
}
