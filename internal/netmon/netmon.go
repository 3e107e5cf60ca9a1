// Package netmon owns the process-wide connectivity state.
//
// The monitor is the only component that listens to raw connectivity
// signals; everything else reads the derived isOnline flag or subscribes to
// typed change events. An offline→online transition is how the sync
// orchestrator learns to start a run.
//
// The derived flag is advisory: a true value does not guarantee a
// subsequent request succeeds.
package netmon

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Event is a typed connectivity change notification.
type Event struct {
	// Online is the new derived state.
	Online bool
	// At is when the transition was observed.
	At time.Time
}

// Source delivers raw connectivity signals to the monitor.
type Source interface {
	// Current reports connectivity at startup; it seeds the initial state.
	Current(ctx context.Context) bool

	// Watch emits raw online/offline signals until ctx is cancelled.
	// Signals may repeat the current state; the monitor deduplicates.
	Watch(ctx context.Context) <-chan bool
}

// Monitor holds the derived connectivity state and fans out change events.
type Monitor struct {
	mu         sync.RWMutex
	online     bool
	showBanner bool
	subs       []chan Event

	logger *log.Logger
}

// New creates a Monitor with the given starting state.
func New(logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{logger: logger}
}

// Run consumes the source until ctx is cancelled. The source's current
// state seeds the monitor before any signal is processed.
func (m *Monitor) Run(ctx context.Context, source Source) {
	initial := source.Current(ctx)
	m.mu.Lock()
	m.online = initial
	m.showBanner = !initial
	m.mu.Unlock()

	m.logger.Printf("Initial connectivity: online=%v", initial)

	signals := source.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-signals:
			if !ok {
				return
			}
			m.apply(online)
		}
	}
}

// apply processes one raw signal, mutating state and notifying subscribers
// only on a real transition.
func (m *Monitor) apply(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}

	m.online = online
	m.showBanner = !online
	subs := make([]chan Event, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Printf("Connectivity changed: online=%v", online)

	ev := Event{Online: online, At: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// subscriber lagging; the flag read covers the missed event
		}
	}
}

// Online returns the derived connectivity flag.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// ShowOfflineBanner reports whether the UI should render the offline banner.
func (m *Monitor) ShowOfflineBanner() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.showBanner
}

// Subscribe returns a channel receiving connectivity change events.
// The channel is buffered; slow consumers drop events and should poll
// Online() instead.
func (m *Monitor) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// ProbeSource detects connectivity by probing an HTTP endpoint at a fixed
// interval. It stands in for a platform online/offline notification on
// hosts that have none.
type ProbeSource struct {
	// URL is probed with a HEAD request; any response counts as online.
	URL string

	// Interval between probes (default 5s).
	Interval time.Duration

	// Client used for probing. Defaults to a 3-second-timeout client.
	Client *http.Client
}

// Current implements Source with a single probe.
func (p *ProbeSource) Current(ctx context.Context) bool {
	return p.probe(ctx)
}

// Watch implements Source, probing at the configured interval.
func (p *ProbeSource) Watch(ctx context.Context) <-chan bool {
	interval := p.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}

	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- p.probe(ctx):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (p *ProbeSource) probe(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// SignalSource is a manually driven Source for tests and for embedding the
// monitor behind an external notification mechanism.
type SignalSource struct {
	initial bool
	ch      chan bool
}

// NewSignalSource creates a SignalSource seeded with the given state.
func NewSignalSource(initial bool) *SignalSource {
	return &SignalSource{initial: initial, ch: make(chan bool, 8)}
}

// Current implements Source.
func (s *SignalSource) Current(ctx context.Context) bool {
	return s.initial
}

// Watch implements Source.
func (s *SignalSource) Watch(ctx context.Context) <-chan bool {
	return s.ch
}

// Signal injects a raw connectivity signal.
func (s *SignalSource) Signal(online bool) {
	s.ch <- online
}
