package goSession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/client"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/idle"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

// Builder assembles a Manager. A Builder is single use.
type Builder struct {
	config Config

	store      session.KeyValueStore
	refresher  refresh.Refresher
	httpClient *http.Client
	navigator  Navigator
	prefs      Preferences
	auditSink  AuditSink
	activity   idle.ActivitySource
	clock      clockwork.Clock
	logger     *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore persists sessions to kv instead of the configured storage
// driver. The caller keeps ownership of kv.
func (b *Builder) WithStore(kv session.KeyValueStore) *Builder {
	b.store = kv
	return b
}

// WithRefresher replaces the backend refresh call.
func (b *Builder) WithRefresher(r refresh.Refresher) *Builder {
	b.refresher = r
	return b
}

// WithHTTPClient sets the transport used for every backend call.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithNavigator sets the redirect-to-login collaborator.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithPreferences sets the per-user preferences collaborator.
func (b *Builder) WithPreferences(p Preferences) *Builder {
	b.prefs = p
	return b
}

// WithAuditSink adds a sink for audit events. Audit must also be enabled
// in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithActivitySource feeds the idle monitor from src instead of the
// Manager's own bus.
func (b *Builder) WithActivitySource(src idle.ActivitySource) *Builder {
	b.activity = src
	return b
}

// WithClock replaces the wall clock used by the idle monitor and
// background tasks.
func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger shared by every component.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles metric recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component and restores
// any persisted session. A restored session arms the idle monitor exactly
// as a fresh login does.
func (b *Builder) Build(ctx context.Context) (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	kv := b.store
	var storeCloser io.Closer = nopCloser
	if kv == nil {
		var err error
		kv, storeCloser, err = OpenStore(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("opening session storage: %w", err)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
		metrics:     NewMetrics(cfg.Metrics),
		navigator:   b.navigator,
		prefs:       b.prefs,
		storeCloser: storeCloser,
		baseCtx:     baseCtx,
		cancel:      cancel,
		routes:      make(map[string]guard.Spec, len(cfg.Routes)),
	}
	if m.navigator == nil {
		m.navigator = noNavigator{}
	}
	if m.prefs == nil {
		m.prefs = noPreferences{}
	}

	if err := m.wire(b, kv); err != nil {
		cancel()
		m.audit.Close()
		_ = m.amqp.Close()
		_ = storeCloser.Close()
		return nil, err
	}

	for _, w := range buildSecurityReport(cfg).Warnings() {
		logger.Warn("goSession: security posture", "warning", w)
	}

	status, err := m.store.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("goSession: restoring session failed, starting signed out", "err", err)
	case status == session.LoadCorrupt:
		m.metrics.Inc(MetricSessionCorrupt)
	}
	return m, nil
}

func (m *Manager) wire(b *Builder, kv session.KeyValueStore) error {
	cfg := m.cfg

	if cfg.Audit.Enabled {
		sinks := audit.MultiSink{}
		if b.auditSink != nil {
			sinks = append(sinks, b.auditSink)
		}
		if cfg.Audit.AMQPURL != "" {
			s, err := audit.DialAMQPSink(cfg.Audit.AMQPURL, cfg.Audit.AMQPExchange, cfg.Audit.AMQPRoutingKey, m.logger)
			if err != nil {
				m.logger.Warn("goSession: amqp audit sink disabled", "err", err)
			} else {
				s.OnFailure(func() { m.metrics.Inc(MetricAuditPublishFailure) })
				m.amqp = s
				sinks = append(sinks, s)
			}
		}
		m.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sinks, m.logger)
	}

	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Client.Timeout}
	}

	m.store = session.NewStore(kv, session.WithKey(cfg.Session.StorageKey), session.WithLogger(m.logger))
	m.backend = api.NewBackend(cfg.Backend.BaseURL, hc, cfg.Backend.Paths)

	var refresher refresh.Refresher = m.backend
	if b.refresher != nil {
		refresher = b.refresher
	}
	coord, err := refresh.New(refresh.Options{
		Provider:  m.store,
		Refresher: refresher,
		Timeout:   cfg.Refresh.Timeout,
		Hooks:     m.refreshHooks(),
		Logger:    m.logger,
	})
	if err != nil {
		return err
	}
	m.coordinator = coord

	m.client = client.New(m.store, coord,
		client.WithHTTPClient(hc),
		client.WithBaseURL(cfg.Backend.BaseURL),
		client.WithProactiveRefresh(cfg.Client.ProactiveRefreshSkew),
		client.WithHooks(m.clientHooks()),
		client.WithLogger(m.logger),
	)
	m.account = m.backend.Account(m.client)

	if cfg.Idle.Enabled {
		source := b.activity
		if source == nil {
			m.bus = idle.NewBus()
			source = m.bus
		}
		signals, err := parseSignals(cfg.Idle.Signals)
		if err != nil {
			return err
		}
		m.idle, err = idle.New(cfg.Idle.Timeout, source,
			idle.WithClock(m.clock),
			idle.WithSignals(signals...),
			idle.WithLogger(m.logger),
		)
		if err != nil {
			return err
		}
	}

	for name, opts := range cfg.Routes {
		spec, err := guard.FromOptions(opts)
		if err != nil {
			return fmt.Errorf("route %q: %w", name, err)
		}
		m.routes[name] = spec
	}

	if b.prefs != nil {
		m.prefsQueue = make(chan func(context.Context), prefsQueueSize)
		m.wg.Add(1)
		go m.runPreferences()
	}

	m.unsubscribe = m.store.Subscribe(m.onSessionEvent)
	return nil
}

var errIncompleteAuth = errors.New("backend response is missing the user or the token pair")
