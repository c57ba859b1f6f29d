// Package health tracks the availability of the pipeline's backing
// services (transcription, classification, synthesis).
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status of a single backing service.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Checker is anything with a Health probe. All provider clients
// implement it.
type Checker interface {
	Name() string
	Health(ctx context.Context) error
}

// Report is one service's last observed state.
type Report struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency"`
	LastError string        `json:"lastError,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Config holds monitor configuration
type Config struct {
	// Timeout per probe
	Timeout time.Duration
	// How often to re-probe
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Timeout:         3 * time.Second,
		RefreshInterval: 30 * time.Second,
	}
}

// Monitor probes a fixed set of checkers in the background. Providers
// never retry on their own; the monitor is the one place that knows
// whether a service has come back.
type Monitor struct {
	cfg      *Config
	checkers []Checker
	logger   zerolog.Logger

	mu       sync.RWMutex
	reports  map[string]Report
	onUpdate func([]Report)
	running  bool
	stopCh   chan struct{}
}

// NewMonitor creates a monitor over the given checkers.
func NewMonitor(cfg *Config, logger zerolog.Logger, checkers ...Checker) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Monitor{
		cfg:      cfg,
		checkers: checkers,
		logger:   logger.With().Str("component", "health").Logger(),
		reports:  make(map[string]Report),
		stopCh:   make(chan struct{}),
	}
}

// SetOnUpdate sets the callback fired after every probe round.
func (m *Monitor) SetOnUpdate(fn func([]Report)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Start begins background probing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	// Initial probe
	go m.Probe()

	// Periodic refresh
	go func() {
		ticker := time.NewTicker(m.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Probe()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop stops background probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		close(m.stopCh)
		m.running = false
	}
}

// Probe checks every service once and returns the fresh reports.
func (m *Monitor) Probe() []Report {
	var wg sync.WaitGroup
	results := make([]Report, len(m.checkers))

	for i, c := range m.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.probe(c)
		}(i, c)
	}
	wg.Wait()

	m.mu.Lock()
	for _, r := range results {
		prev, seen := m.reports[r.Name]
		if seen && prev.Status != r.Status {
			m.logger.Info().
				Str("service", r.Name).
				Str("old", string(prev.Status)).
				Str("new", string(r.Status)).
				Msg("Service status changed")
		}
		m.reports[r.Name] = r
	}
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(results)
	}
	return results
}

func (m *Monitor) probe(c Checker) Report {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := c.Health(ctx)
	report := Report{
		Name:      c.Name(),
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	if err != nil {
		report.Status = StatusOffline
		report.LastError = err.Error()
	} else {
		report.Status = StatusOnline
	}
	return report
}

// Reports returns the last observed state of every service.
func (m *Monitor) Reports() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out
}

// Report returns one service's last state.
func (m *Monitor) Report(name string) (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[name]
	return r, ok
}
