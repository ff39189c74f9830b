package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"jobpulse/internal/errors"
)

// PromptWatcher watches prompt override files for changes and reloads their
// content. Reload swaps template text only; it never changes the dispatcher
// pool or any other configuration.
type PromptWatcher struct {
	mu sync.Mutex

	cfg   *Config
	paths []string

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan chan struct{}
	logger   *errors.Logger

	running bool
}

// NewPromptWatcher creates a watcher for the configured prompt files.
// Returns (nil, nil) when watching is disabled or no files are configured.
func NewPromptWatcher(cfg *Config, logger *errors.Logger) (*PromptWatcher, error) {
	if !cfg.AI.CustomPrompts.WatchFiles {
		return nil, nil
	}

	paths := cfg.promptFilePaths()
	if len(paths) == 0 {
		return nil, nil
	}

	debounce := cfg.AI.CustomPrompts.WatchDebounceDelay
	if debounce == 0 {
		debounce = time.Second
	}

	return &PromptWatcher{
		cfg:           cfg,
		paths:         paths,
		debounceDelay: debounce,
		stopChan:      make(chan struct{}),
		logger:        logger,
	}, nil
}

// Start begins watching prompt files for changes
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	pw.fsWatcher = watcher

	// Watch parent directories; editors replace files rather than write in place
	watched := make(map[string]bool)
	for _, path := range pw.paths {
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			pw.logger.Warn("Failed to watch prompt directory", "dir", dir, "error", err.Error())
			continue
		}
		watched[dir] = true
	}

	pw.running = true
	go pw.watchLoop()

	pw.logger.Info("Prompt file watcher started", "files", pw.paths, "debounce", pw.debounceDelay.String())
	return nil
}

// Stop stops the watcher
func (pw *PromptWatcher) Stop() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.running {
		return
	}
	close(pw.stopChan)
	if pw.fsWatcher != nil {
		_ = pw.fsWatcher.Close()
	}
	pw.running = false
}

// IsRunning reports whether the watcher is active
func (pw *PromptWatcher) IsRunning() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.running
}

func (pw *PromptWatcher) watchLoop() {
	for {
		select {
		case <-pw.stopChan:
			return
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if !pw.isWatchedFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pw.scheduleReload(event.Name)
		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("Prompt watcher error", "error", err.Error())
		}
	}
}

func (pw *PromptWatcher) isWatchedFile(name string) bool {
	return slices.Contains(pw.paths, filepath.Clean(name))
}

// scheduleReload debounces bursts of file events into a single reload
func (pw *PromptWatcher) scheduleReload(name string) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		if err := pw.cfg.loadPromptsFromFiles(); err != nil {
			pw.logger.LogError(err, "Prompt reload failed; keeping previous templates", "trigger", name)
			return
		}
		pw.logger.Info("Prompt templates reloaded", "trigger", name)
	})
}
