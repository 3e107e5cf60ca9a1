package netmon

import (
	"context"
	"testing"
	"time"
)

// startMonitor runs a monitor over a signal source and waits for seeding
func startMonitor(t *testing.T, initial bool) (*Monitor, *SignalSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	source := NewSignalSource(initial)
	m := New(nil)
	go m.Run(ctx, source)

	// banner flag distinguishes the seeded state from the zero value
	deadline := time.After(2 * time.Second)
	for m.Online() != initial || m.ShowOfflineBanner() == initial {
		select {
		case <-deadline:
			t.Fatal("monitor never seeded initial state")
		case <-time.After(time.Millisecond):
		}
	}
	return m, source
}

// TestMonitor_InitialState tests seeding from the source's current state
func TestMonitor_InitialState(t *testing.T) {
	m, _ := startMonitor(t, false)

	if m.Online() {
		t.Error("Online() = true, want seeded offline")
	}
	if !m.ShowOfflineBanner() {
		t.Error("ShowOfflineBanner() = false while offline")
	}
}

// TestMonitor_Transition tests the flag flip and subscriber notification
func TestMonitor_Transition(t *testing.T) {
	m, source := startMonitor(t, false)
	events := m.Subscribe()

	source.Signal(true)

	select {
	case ev := <-events:
		if !ev.Online {
			t.Error("event Online = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for offline to online transition")
	}

	if !m.Online() {
		t.Error("Online() = false after transition")
	}
	if m.ShowOfflineBanner() {
		t.Error("ShowOfflineBanner() = true while online")
	}
}

// TestMonitor_DeduplicatesRepeats tests that repeated signals don't emit
// duplicate events
func TestMonitor_DeduplicatesRepeats(t *testing.T) {
	m, source := startMonitor(t, true)
	events := m.Subscribe()

	// same state three times, then a real transition
	source.Signal(true)
	source.Signal(true)
	source.Signal(true)
	source.Signal(false)

	select {
	case ev := <-events:
		if ev.Online {
			t.Error("first event Online = true, want the offline transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for the real transition")
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected extra event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if m.Online() {
		t.Error("Online() = true after offline signal")
	}
}
