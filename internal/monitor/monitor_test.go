package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/credentials"
	"github.com/Checker-Finance/login-verifier/internal/httpclient"
	"github.com/Checker-Finance/login-verifier/internal/loginstub"
	"github.com/Checker-Finance/login-verifier/internal/verifier"
	"github.com/Checker-Finance/login-verifier/pkg/model"
	"github.com/Checker-Finance/login-verifier/pkg/secrets"
)

type recordingSink struct {
	mu      sync.Mutex
	results []model.Result
	err     error
}

func (s *recordingSink) SaveResult(_ context.Context, r model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func (s *recordingSink) PublishResult(ctx context.Context, r model.Result) error {
	return s.SaveResult(ctx, r)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

type failingResolver struct{}

func (failingResolver) Valid(context.Context) (model.Credentials, error) {
	return model.Credentials{}, errors.New("secret unavailable")
}

func newTestVerifier(t *testing.T, users []model.Credentials) *verifier.Verifier {
	t.Helper()
	srv, err := loginstub.Start(users)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	exec := httpclient.New(zap.NewNop(), nil, &http.Client{Timeout: 2 * time.Second}, 0, "login")
	v, err := verifier.New(verifier.Config{BaseURL: srv.URL}, zap.NewNop(), exec)
	require.NoError(t, err)
	return v
}

func TestRunOnce_AllPass(t *testing.T) {
	saver, pub := &recordingSink{}, &recordingSink{}
	m := New(zap.NewNop(), newTestVerifier(t, loginstub.DefaultUsers()), nil, saver, pub, time.Minute)

	results, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, model.AllPassed(results))

	assert.Equal(t, 2, saver.count())
	assert.Equal(t, 2, pub.count())

	at, last, lastErr := m.LastRun()
	assert.False(t, at.IsZero())
	assert.Len(t, last, 2)
	assert.NoError(t, lastErr)
}

func TestRunOnce_UsesResolvedCredentials(t *testing.T) {
	users := []model.Credentials{{Username: "probe", Password: "rotated"}}
	m := New(zap.NewNop(), newTestVerifier(t, users),
		credentials.Static{Username: "probe", Password: "rotated"}, nil, nil, time.Minute)

	results, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, model.AllPassed(results))
}

func TestRunOnce_FixtureCredentialsRejected(t *testing.T) {
	// user1 is unknown to this service, so only the failure scenario holds.
	users := []model.Credentials{{Username: "someone", Password: "else"}}
	m := New(zap.NewNop(), newTestVerifier(t, users), nil, nil, nil, time.Minute)

	results, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Passed)
	assert.Equal(t, model.FailureAssertion, results[0].Failure)
	assert.True(t, results[1].Passed)
}

func TestRunOnce_SinkErrorsDoNotAbort(t *testing.T) {
	saver := &recordingSink{err: errors.New("redis down")}
	pub := &recordingSink{err: errors.New("nats down")}
	m := New(zap.NewNop(), newTestVerifier(t, loginstub.DefaultUsers()), nil, saver, pub, time.Minute)

	results, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, model.AllPassed(results))
	assert.Equal(t, 2, saver.count())
	assert.Equal(t, 2, pub.count())
}

func TestRunOnce_ResolverError(t *testing.T) {
	m := New(zap.NewNop(), newTestVerifier(t, loginstub.DefaultUsers()), failingResolver{}, nil, nil, time.Minute)

	_, err := m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve credentials")

	_, _, lastErr := m.LastRun()
	assert.Error(t, lastErr)
}

func TestStart_RunsImmediatelyAndOnTick(t *testing.T) {
	saver := &recordingSink{}
	m := New(zap.NewNop(), newTestVerifier(t, loginstub.DefaultUsers()), nil, saver, nil, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return saver.count() >= 4 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	m := New(zap.NewNop(), newTestVerifier(t, loginstub.DefaultUsers()), nil, nil, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		at, _, _ := m.LastRun()
		return !at.IsZero()
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestScenarios(t *testing.T) {
	m := New(nil, newTestVerifier(t, loginstub.DefaultUsers()), nil, nil, nil, time.Minute)
	assert.Equal(t, []string{model.ScenarioLoginSuccess, model.ScenarioLoginFailure}, m.Scenarios())
}

func TestNew_NonPositiveIntervalUsesDefault(t *testing.T) {
	v := newTestVerifier(t, loginstub.DefaultUsers())
	for _, d := range []time.Duration{0, -time.Second} {
		m := New(nil, v, nil, nil, nil, d)
		assert.Equal(t, DefaultInterval, m.interval)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NotPanics(t, func() { m.Start(ctx) })
	}
}

// rotatingProvider serves whatever password is currently stored.
type rotatingProvider struct {
	mu       sync.Mutex
	password string
	calls    int
}

func (p *rotatingProvider) GetSecret(context.Context, string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return map[string]string{"username": "user1", "password": p.password}, nil
}

func (p *rotatingProvider) rotate(password string) {
	p.mu.Lock()
	p.password = password
	p.mu.Unlock()
}

func TestRunOnce_RejectedCredentialsAreRefetched(t *testing.T) {
	users := []model.Credentials{{Username: "user1", Password: "rotated"}}
	provider := &rotatingProvider{password: "password1"}
	cache := secrets.NewCache[model.Credentials](time.Hour)
	resolver := credentials.NewSecretsResolver(zap.NewNop(), provider, cache, "login-verifier/credentials")
	m := New(zap.NewNop(), newTestVerifier(t, users), resolver, nil, nil, time.Minute)

	// cached pair is stale: the service already moved to the rotated password
	results, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.Equal(t, model.FailureAssertion, results[0].Failure)
	assert.Equal(t, 0, cache.Len(), "rejected pair dropped from cache")

	provider.rotate("rotated")

	results, err = m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, model.AllPassed(results))

	_, err = m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "passing pair stays cached")
}
