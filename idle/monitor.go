package idle

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTimeout is the idle window used by the session manager when none
// is configured.
const DefaultTimeout = 30 * time.Minute

// ErrInvalidTimeout is returned by New for a non-positive timeout.
var ErrInvalidTimeout = errors.New("idle: timeout must be positive")

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSignals overrides the signals that count as activity.
func WithSignals(signals ...Signal) Option {
	return func(m *Monitor) {
		if len(signals) > 0 {
			m.signals = signals
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor counts down an idle window and calls a logout callback when it
// elapses without activity. The zero value is not usable; call New.
type Monitor struct {
	timeout time.Duration
	source  ActivitySource
	clock   clockwork.Clock
	signals []Signal
	logger  *slog.Logger

	mu          sync.Mutex
	running     bool
	gen         uint64
	timer       clockwork.Timer
	deadline    time.Time
	logout      func()
	unsubscribe func()
}

// New returns a stopped Monitor. source may be nil, in which case only
// Touch counts as activity.
func New(timeout time.Duration, source ActivitySource, opts ...Option) (*Monitor, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	m := &Monitor{
		timeout: timeout,
		source:  source,
		clock:   clockwork.NewRealClock(),
		signals: DefaultSignals(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start subscribes to activity and arms the countdown. Calling Start on a
// running monitor restarts it with the new callback.
func (m *Monitor) Start(logout func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.running = true
	m.logout = logout
	if m.source != nil {
		m.unsubscribe = m.source.Subscribe(m.signals, func(Signal) { m.Touch() })
	}
	m.armLocked()
}

// Touch records activity and re-arms the countdown. It is a no-op on a
// stopped monitor.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.armLocked()
	}
}

// Stop cancels the countdown and unsubscribes. It is safe to call more
// than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Running reports whether a countdown is armed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Deadline returns when the session expires if no activity occurs.
func (m *Monitor) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline, m.running
}

// Timeout returns the configured idle window.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

func (m *Monitor) armLocked() {
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.deadline = m.clock.Now().Add(m.timeout)
	m.timer = m.clock.AfterFunc(m.timeout, func() { m.expire(gen) })
}

func (m *Monitor) stopLocked() {
	m.gen++
	m.running = false
	m.deadline = time.Time{}
	m.logout = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	// a Touch, Stop or restart after this timer was armed supersedes it
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}
	logout := m.logout
	m.stopLocked()
	m.mu.Unlock()

	m.logger.Info("idle: session timed out", "timeout", m.timeout)
	if logout != nil {
		logout()
	}
}
