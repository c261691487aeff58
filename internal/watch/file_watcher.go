package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/agentcoord/internal/observability"
)

// FileWatcher bridges cross-process mutations into a local Registry by
// watching a project's sections directory. A coordinator in one process sees
// section writes committed by workers in other processes, which the
// in-process registry alone cannot observe.
type FileWatcher struct {
	projectID   string
	sectionsDir string
	registry    *Registry
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	stopChan    chan struct{}
	debounce    time.Duration
	pending     map[string]time.Time
}

// NewFileWatcher creates a watcher for the sections directory of a project.
func NewFileWatcher(projectID, sectionsDir string, registry *Registry) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	absDir, err := filepath.Abs(sectionsDir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve sections dir: %w", err)
	}
	return &FileWatcher{
		projectID:   projectID,
		sectionsDir: absDir,
		registry:    registry,
		watcher:     watcher,
		stopChan:    make(chan struct{}),
		debounce:    200 * time.Millisecond,
		pending:     make(map[string]time.Time),
	}, nil
}

// Start begins monitoring. Watching the directory rather than individual
// files survives the atomic rename writes used by the store.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := fw.watcher.Add(fw.sectionsDir); err != nil {
		return fmt.Errorf("failed to watch sections dir %s: %w", fw.sectionsDir, err)
	}
	observability.InfoContext(ctx, "starting section file watcher",
		slog.String("project.id", fw.projectID), slog.String("dir", fw.sectionsDir))

	go fw.watchLoop(ctx)
	return nil
}

// Stop ends monitoring and releases the underlying watcher.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	close(fw.stopChan)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(fw.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp-") || strings.Contains(name, ".lease-") {
				continue
			}
			section := strings.TrimSuffix(name, ".json")
			fw.mu.Lock()
			fw.pending[section] = time.Now()
			fw.mu.Unlock()
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Section watcher error", "project_id", fw.projectID, "error", err)
		case <-ticker.C:
			fw.flush()
		}
	}
}

// flush delivers debounced section events whose quiet period has elapsed.
func (fw *FileWatcher) flush() {
	now := time.Now()
	var ready []string
	fw.mu.Lock()
	for section, last := range fw.pending {
		if now.Sub(last) >= fw.debounce {
			ready = append(ready, section)
			delete(fw.pending, section)
		}
	}
	fw.mu.Unlock()

	for _, section := range ready {
		errs := fw.registry.Notify(Mutation{
			ProjectID: fw.projectID,
			Section:   section,
			Kind:      "section",
			Timestamp: now,
		})
		for _, err := range errs {
			slog.Warn("Watcher failed on external mutation", "project_id", fw.projectID, "section", section, "error", err)
		}
	}
}
