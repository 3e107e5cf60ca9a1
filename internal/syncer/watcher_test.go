package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestParseCaptureName tests the capture filename convention
func TestParseCaptureName(t *testing.T) {
	tests := []struct {
		name         string
		businessType string
		businessID   string
		ok           bool
	}{
		{"record--r-1--photo.jpg", "record", "r-1", true},
		{"defect--d-9--site--north.png", "defect", "d-9", true},
		{"photo.jpg", "", "", false},
		{"record--photo.jpg", "", "", false},
		{"--r-1--photo.jpg", "", "", false},
	}

	for _, tt := range tests {
		businessType, businessID, ok := parseCaptureName(tt.name)
		if ok != tt.ok {
			t.Errorf("parseCaptureName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if businessType != tt.businessType || businessID != tt.businessID {
			t.Errorf("parseCaptureName(%q) = (%q, %q), want (%q, %q)",
				tt.name, businessType, businessID, tt.businessType, tt.businessID)
		}
	}
}

// TestWatcher_EnqueuesExistingFiles tests the startup scan
func TestWatcher_EnqueuesExistingFiles(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	good := filepath.Join(dir, "record--r-1--photo.jpg")
	if err := os.WriteFile(good, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	// unparseable names are ignored, not enqueued
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	w, err := NewWatcher(dir, st, nil, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.scanExisting(ctx); err != nil {
		t.Fatalf("scanExisting() failed: %v", err)
	}

	files, err := st.GetPendingFiles(ctx)
	if err != nil {
		t.Fatalf("GetPendingFiles() failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("queued %d files, want 1", len(files))
	}
	if files[0].Path != good {
		t.Errorf("Path = %q, want %q", files[0].Path, good)
	}
	if files[0].BusinessType != "record" || files[0].BusinessID != "r-1" {
		t.Errorf("linkage = (%q, %q), want (record, r-1)", files[0].BusinessType, files[0].BusinessID)
	}
}

// TestWatcher_DedupesSeenPaths tests that a rescan doesn't enqueue twice
func TestWatcher_DedupesSeenPaths(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "record--r-1--photo.jpg")
	if err := os.WriteFile(path, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	w, err := NewWatcher(dir, st, nil, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := w.scanExisting(ctx); err != nil {
			t.Fatalf("scanExisting() run %d failed: %v", i, err)
		}
	}

	files, err := st.GetPendingFiles(ctx)
	if err != nil {
		t.Fatalf("GetPendingFiles() failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("queued %d files after rescan, want 1", len(files))
	}
}

// TestWatcher_PicksUpNewFiles tests live detection through the event loop
func TestWatcher_PicksUpNewFiles(t *testing.T) {
	st := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	w, err := NewWatcher(dir, st, nil, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "defect--d-1--photo.jpg")
	if err := os.WriteFile(path, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		files, err := st.GetPendingFiles(ctx)
		if err != nil {
			t.Fatalf("GetPendingFiles() failed: %v", err)
		}
		if len(files) == 1 {
			if files[0].BusinessType != "defect" {
				t.Errorf("BusinessType = %q, want defect", files[0].BusinessType)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never picked up the new file")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
}
