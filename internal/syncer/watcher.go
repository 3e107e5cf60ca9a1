package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/smartsubstation/fieldsync/internal/store"
)

// Watcher enqueues evidence files dropped into the capture directory.
//
// Capture tools write files named {businessType}--{businessID}--{rest} into
// the directory; the watcher picks them up, registers them as pending
// uploads, and nudges the reporter. Writes are debounced so a file still
// being written is only enqueued after it settles.
type Watcher struct {
	dir      string
	store    *store.Store
	reporter *Reporter
	logger   *log.Logger

	debounce time.Duration

	mu      sync.Mutex
	changes map[string]time.Time
}

// NewWatcher creates a Watcher for the given capture directory. reporter may
// be nil. debounce defaults to 2s.
func NewWatcher(dir string, st *store.Store, reporter *Reporter, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("capture directory cannot be empty")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watcher] ", log.LstdFlags)
	}
	return &Watcher{
		dir:      dir,
		store:    st,
		reporter: reporter,
		logger:   logger,
		debounce: debounce,
		changes:  make(map[string]time.Time),
	}, nil
}

// Run watches the capture directory until ctx is cancelled. Files already
// present at startup are scanned before event processing begins, so captures
// taken while the daemon was down are not lost.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	if err := w.scanExisting(ctx); err != nil {
		w.logger.Printf("Initial capture scan failed: %v", err)
	}

	w.logger.Printf("Watching capture directory %s", w.dir)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.mu.Lock()
			w.changes[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Watch error: %v", err)
		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

// scanExisting enqueues regular files already sitting in the directory.
func (w *Watcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.enqueue(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// flushSettled enqueues files whose last write is older than the debounce
// window.
func (w *Watcher) flushSettled(ctx context.Context) {
	cutoff := time.Now().Add(-w.debounce)

	w.mu.Lock()
	var ready []string
	for path, last := range w.changes {
		if last.Before(cutoff) {
			ready = append(ready, path)
			delete(w.changes, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.enqueue(ctx, path)
	}
}

// enqueue registers one capture file as a pending upload. Files with
// unparseable names or already queued are skipped.
func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	businessType, businessID, ok := parseCaptureName(filepath.Base(path))
	if !ok {
		w.logger.Printf("Ignoring capture file with unrecognized name: %s", filepath.Base(path))
		return
	}

	known, err := w.store.HasPendingFilePath(ctx, path)
	if err != nil {
		w.logger.Printf("Failed to check pending file %s: %v", path, err)
		return
	}
	if known {
		return
	}

	pf := &store.PendingFile{
		FileID:       uuid.NewString(),
		BusinessType: businessType,
		BusinessID:   businessID,
		Path:         path,
		Status:       store.StatusPending,
	}
	if err := w.store.AddPendingFile(ctx, pf); err != nil {
		w.logger.Printf("Failed to enqueue capture file %s: %v", path, err)
		return
	}

	w.logger.Printf("Queued capture file %s (type=%s id=%s)", filepath.Base(path), businessType, businessID)

	if w.reporter != nil {
		if _, err := w.reporter.Recompute(ctx); err != nil {
			w.logger.Printf("Pending count recompute failed: %v", err)
		}
	}
}

// parseCaptureName splits {businessType}--{businessID}--{rest} filenames.
func parseCaptureName(name string) (businessType, businessID string, ok bool) {
	parts := strings.SplitN(name, "--", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
