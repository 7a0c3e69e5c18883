package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"buildwarden/pkg/logging"
)

// FilesystemDetector implements ChangeDetector for configuration files.
//
// It watches the parent directory of every file so that editors and
// configuration management tools replacing a file by rename are seen, and
// debounces bursts of events per domain.
type FilesystemDetector struct {
	mu sync.Mutex

	// files maps a cleaned absolute path to the domains it feeds.
	files map[string][]Domain

	watcher          *fsnotify.Watcher
	debounceInterval time.Duration
	pending          map[Domain]*debounceEntry
	stopCh           chan struct{}
	running          bool
}

type debounceEntry struct {
	event ChangeEvent
	timer *time.Timer
}

// NewFilesystemDetector creates a detector for files.
func NewFilesystemDetector(files map[string][]Domain, debounceInterval time.Duration) *FilesystemDetector {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	cleaned := make(map[string][]Domain, len(files))
	for path, domains := range files {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		cleaned[filepath.Clean(path)] = append(cleaned[filepath.Clean(path)], domains...)
	}
	return &FilesystemDetector{
		files:            cleaned,
		debounceInterval: debounceInterval,
		pending:          make(map[Domain]*debounceEntry),
		stopCh:           make(chan struct{}),
	}
}

// Start begins watching.
func (d *FilesystemDetector) Start(ctx context.Context, changes chan<- ChangeEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := map[string]bool{}
	for path := range d.files {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logging.Debug("FilesystemDetector", "Watching directory: %s", dir)
	}

	d.watcher = watcher
	d.running = true
	d.stopCh = make(chan struct{})
	go d.processEvents(ctx, watcher, d.stopCh, changes)

	logging.Info("FilesystemDetector", "Started watching %d files for changes", len(d.files))
	return nil
}

func (d *FilesystemDetector) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh chan struct{}, changes chan<- ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			d.cleanupPending()
			return
		case <-stopCh:
			d.cleanupPending()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			d.handleFsEvent(event, changes)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("FilesystemDetector", err, "Filesystem watcher error")
		}
	}
}

func (d *FilesystemDetector) handleFsEvent(event fsnotify.Event, changes chan<- ChangeEvent) {
	domains, ok := d.files[filepath.Clean(event.Name)]
	if !ok {
		return
	}

	var op ChangeOperation
	switch {
	case event.Has(fsnotify.Create):
		op = OperationCreate
	case event.Has(fsnotify.Write):
		op = OperationUpdate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OperationDelete
	default:
		return
	}

	now := time.Now()
	for _, domain := range domains {
		d.debounce(ChangeEvent{
			Domain:    domain,
			Operation: op,
			Timestamp: now,
			Source:    SourceFilesystem,
			FilePath:  event.Name,
		}, changes)
	}
}

func (d *FilesystemDetector) debounce(event ChangeEvent, changes chan<- ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.pending[event.Domain]; ok {
		entry.timer.Stop()
		event.Operation = mergeOperations(entry.event.Operation, event.Operation)
	}

	entry := &debounceEntry{event: event}
	entry.timer = time.AfterFunc(d.debounceInterval, func() {
		d.mu.Lock()
		current, ok := d.pending[event.Domain]
		if ok && current == entry {
			delete(d.pending, event.Domain)
		}
		d.mu.Unlock()
		if !ok || current != entry {
			return
		}

		select {
		case changes <- entry.event:
			logging.Debug("FilesystemDetector", "Emitted change event: %s %s (%s)",
				entry.event.Operation, entry.event.Domain, entry.event.FilePath)
		default:
			logging.Warn("FilesystemDetector", "Change event channel full, dropping event for %s", entry.event.Domain)
		}
	})
	d.pending[event.Domain] = entry
}

// mergeOperations folds two debounced operations into one.
func mergeOperations(old, new ChangeOperation) ChangeOperation {
	if new == OperationDelete {
		return OperationDelete
	}
	if old == OperationCreate || (old == OperationDelete && new == OperationCreate) {
		return OperationCreate
	}
	return new
}

func (d *FilesystemDetector) cleanupPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for domain, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, domain)
	}
}

// Stop gracefully stops the detector.
func (d *FilesystemDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)

	var err error
	if d.watcher != nil {
		err = d.watcher.Close()
		d.watcher = nil
	}
	logging.Info("FilesystemDetector", "Stopped filesystem detector")
	return err
}

// GetSource returns SourceFilesystem.
func (d *FilesystemDetector) GetSource() ChangeSource {
	return SourceFilesystem
}
