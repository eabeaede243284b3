package session

import (
	"sync"
	"time"
)

// MonitorConfig holds polling parameters for the session [Monitor].
type MonitorConfig struct {
	// Interval is the fixed polling period.
	Interval time.Duration
	// WarnThreshold raises OnWarning once remaining time drops below it.
	WarnThreshold time.Duration
}

// Monitor polls the session table, warning on sessions close to expiry and
// forcing logout on sessions at zero or past the inactivity timeout. Each
// poll is safe to run with no work to do.
type Monitor struct {
	manager *Manager
	config  MonitorConfig

	// OnWarning fires at most once per session per extension.
	OnWarning func(*State, time.Duration)
	// OnExpired fires when a session is removed by the monitor.
	OnExpired func(*State)

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a [Monitor] over the given manager. Call Start to
// begin polling.
func NewMonitor(manager *Manager, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Monitor{
		manager: manager,
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Poll()
		case <-m.done:
			return
		}
	}
}

// Poll applies one sweep pass and dispatches callbacks outside the session
// table lock.
func (m *Monitor) Poll() {
	warned, expired := m.manager.sweep(m.config.WarnThreshold)

	if m.OnWarning != nil {
		now := m.manager.now()
		for _, s := range warned {
			m.OnWarning(s, s.Remaining(now))
		}
	}
	if m.OnExpired != nil {
		for _, s := range expired {
			m.OnExpired(s)
		}
	}
}

// Stop halts polling. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}
