// Package connwatch tracks whether folio's upstream services (the model
// provider, GitHub) are reachable, so the root endpoint can report a
// degraded dependency before a chat request discovers it.
//
// A Watcher probes while the service is down with exponential backoff
// and, once it is up, at a fixed poll interval.
package connwatch

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ProbeFunc returns nil when the service is reachable.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing. Zero fields take the defaults from
// DefaultBackoff.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// DefaultBackoff retries a down service after 2s, 4s, 8s ... up to 2m,
// and re-checks a healthy one every 5 minutes.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     2 * time.Minute,
		PollInterval: 5 * time.Minute,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Status is the last known health of one service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Failures  int       `json:"consecutive_failures"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher probes a single service in the background.
type Watcher struct {
	name    string
	probe   ProbeFunc
	backoff Backoff
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status Status
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.InitialDelay
	for {
		up := w.check(ctx)

		wait := w.backoff.PollInterval
		if up {
			delay = w.backoff.InitialDelay
		} else {
			wait = delay
			delay = min(delay*2, w.backoff.MaxDelay)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// check runs one probe and records the result, logging transitions.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	wasReady, checked := w.status.Ready, !w.status.LastCheck.IsZero()
	w.status.LastCheck = time.Now()
	if err != nil {
		w.status.Ready = false
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.Ready = true
		w.status.Failures = 0
		w.status.LastError = ""
	}
	failures := w.status.Failures
	w.mu.Unlock()

	switch {
	case err == nil && !wasReady:
		w.logger.Info("service reachable", "service", w.name)
	case err != nil && (wasReady || !checked):
		w.logger.Warn("service unreachable", "service", w.name, "error", err)
	case err != nil:
		w.logger.Debug("service still unreachable", "service", w.name, "failures", failures, "error", err)
	}
	return err == nil
}

// Status returns the watcher's last result.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

// Manager owns a set of watchers.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{watchers: make(map[string]*Watcher), logger: logger}
}

// Watch starts probing name until ctx ends or Stop is called. Watching
// a name twice replaces the earlier watcher.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, b Backoff) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:    name,
		probe:   probe,
		backoff: b.withDefaults(),
		logger:  m.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  Status{Name: name},
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns the health of every watched service keyed by name.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	watchers := maps.Clone(m.watchers)
	m.mu.RUnlock()

	out := make(map[string]Status, len(watchers))
	for name, w := range watchers {
		out[name] = w.Status()
	}
	return out
}

// Stop stops every watcher.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
