package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/credentials"
	"github.com/Checker-Finance/login-verifier/internal/metrics"
	"github.com/Checker-Finance/login-verifier/internal/verifier"
	"github.com/Checker-Finance/login-verifier/pkg/model"
)

// ResultSaver persists results (implemented by store.RedisStore).
type ResultSaver interface {
	SaveResult(ctx context.Context, r model.Result) error
}

// ResultPublisher emits results (implemented by publisher.Publisher).
type ResultPublisher interface {
	PublishResult(ctx context.Context, r model.Result) error
}

// invalidator is implemented by resolvers that cache credentials.
type invalidator interface {
	Invalidate()
}

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = time.Minute

// Monitor periodically verifies the login contract and fans results out to sinks.
type Monitor struct {
	logger    *zap.Logger
	verifier  *verifier.Verifier
	resolver  credentials.Resolver
	saver     ResultSaver
	publisher ResultPublisher
	interval  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	runMu    sync.Mutex // one run at a time

	mu      sync.RWMutex
	lastRun time.Time
	lastRes []model.Result
	lastErr error
}

// New builds a monitor. saver and pub may be nil; a nil resolver uses the fixture credentials.
func New(
	logger *zap.Logger,
	v *verifier.Verifier,
	resolver credentials.Resolver,
	saver ResultSaver,
	pub ResultPublisher,
	interval time.Duration,
) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = credentials.NewStatic()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		logger:    logger,
		verifier:  v,
		resolver:  resolver,
		saver:     saver,
		publisher: pub,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs immediately and then on every tick until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitor.started",
		zap.Duration("interval", m.interval),
		zap.String("base_url", m.verifier.BaseURL()))

	_, _ = m.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			_, _ = m.RunOnce(ctx)
		case <-m.stopCh:
			m.logger.Info("monitor.stopped", zap.String("reason", "manual stop"))
			return
		case <-ctx.Done():
			m.logger.Info("monitor.stopped", zap.String("reason", "context canceled"))
			return
		}
	}
}

// Stop halts the loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// RunOnce verifies every scenario and records the results. The error is only
// non-nil when the run could not start (credential resolution).
func (m *Monitor) RunOnce(ctx context.Context) ([]model.Result, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	start := time.Now()
	creds, err := m.resolver.Valid(ctx)
	if err != nil {
		err = fmt.Errorf("resolve credentials: %w", err)
		m.logger.Error("monitor.credentials_failed", zap.Error(err))
		m.record(start, nil, err)
		return nil, err
	}

	v := m.verifier.WithCredentials(creds)
	results := v.RunAll(ctx, v.Scenarios())

	for _, r := range results {
		metrics.RecordScenario(r.Scenario, r.Failure)
		m.sink(ctx, r)
	}
	metrics.SetLastRun(time.Now())
	m.record(start, results, nil)
	m.invalidateOnRejection(results)

	m.logger.Info("monitor.run_completed",
		zap.String("run_id", runID(results)),
		zap.Bool("passed", model.AllPassed(results)),
		zap.Int("scenarios", len(results)),
		zap.Duration("duration", time.Since(start)))
	return results, nil
}

// LastRun returns the time, results and error of the most recent run.
func (m *Monitor) LastRun() (time.Time, []model.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Result, len(m.lastRes))
	copy(out, m.lastRes)
	return m.lastRun, out, m.lastErr
}

// Scenarios lists the scenario names this monitor verifies.
func (m *Monitor) Scenarios() []string {
	scs := m.verifier.Scenarios()
	names := make([]string, len(scs))
	for i, sc := range scs {
		names[i] = sc.Name
	}
	return names
}

func (m *Monitor) sink(ctx context.Context, r model.Result) {
	if m.saver != nil {
		if err := m.saver.SaveResult(ctx, r); err != nil {
			metrics.IncError("monitor", "save_failed")
			m.logger.Warn("monitor.save_failed", zap.String("scenario", r.Scenario), zap.Error(err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishResult(ctx, r); err != nil {
			metrics.IncError("monitor", "publish_failed")
			m.logger.Warn("monitor.publish_failed", zap.String("scenario", r.Scenario), zap.Error(err))
		}
	}
}

// invalidateOnRejection drops cached credentials when the known-good pair was
// refused, so a rotated secret is picked up on the next run.
func (m *Monitor) invalidateOnRejection(results []model.Result) {
	inv, ok := m.resolver.(invalidator)
	if !ok {
		return
	}
	for _, r := range results {
		if r.Scenario == model.ScenarioLoginSuccess && r.Failure == model.FailureAssertion {
			inv.Invalidate()
			m.logger.Info("monitor.credentials_invalidated", zap.String("run_id", r.RunID.String()))
			return
		}
	}
}

func (m *Monitor) record(at time.Time, results []model.Result, err error) {
	m.mu.Lock()
	m.lastRun = at
	m.lastRes = results
	m.lastErr = err
	m.mu.Unlock()
}

func runID(results []model.Result) string {
	if len(results) == 0 {
		return ""
	}
	return results[0].RunID.String()
}
