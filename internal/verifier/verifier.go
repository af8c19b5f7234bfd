package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/httpclient"
	"github.com/Checker-Finance/login-verifier/pkg/model"
	"github.com/Checker-Finance/login-verifier/pkg/utils"
)

const (
	DefaultBaseURL   = "http://localhost:3000"
	DefaultLoginPath = "/login"
)

// Config points the verifier at one login service.
type Config struct {
	BaseURL   string
	LoginPath string
}

// Verifier checks a login endpoint against fixed request/response scenarios.
type Verifier struct {
	logger   *zap.Logger
	exec     *httpclient.Executor
	baseURL  string
	loginURL string
	rateKey  string
	valid    model.Credentials
}

// New validates cfg and builds a Verifier. The known-good credentials default
// to the user1/password1 fixture; see WithCredentials.
func New(cfg Config, logger *zap.Logger, exec *httpclient.Executor) (*Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exec == nil {
		exec = httpclient.New(logger, nil, nil, 0, "login")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", cfg.BaseURL)
	}

	path := cfg.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &Verifier{
		logger:   logger,
		exec:     exec,
		baseURL:  base,
		loginURL: base + path,
		rateKey:  u.Host,
		valid:    model.DefaultCredentials(),
	}, nil
}

// WithCredentials returns a copy that uses valid as the known-good pair.
func (v *Verifier) WithCredentials(valid model.Credentials) *Verifier {
	cp := *v
	cp.valid = valid
	return &cp
}

// BaseURL returns the normalised base address.
func (v *Verifier) BaseURL() string { return v.baseURL }

// Scenarios returns both contract scenarios for the configured credentials.
func (v *Verifier) Scenarios() []model.Scenario {
	return model.Scenarios(v.valid)
}

// Login posts creds to the login endpoint. Any HTTP response is returned;
// only a missing response is an error.
func (v *Verifier) Login(ctx context.Context, creds model.Credentials) (*model.LoginResponse, error) {
	resp, err := v.exec.PostJSON(ctx, v.loginURL, creds, v.rateKey)
	if err != nil {
		return nil, &ConnectionError{URL: v.loginURL, Err: err}
	}

	out := &model.LoginResponse{StatusCode: resp.StatusCode}
	var body model.LoginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		// a partially decoded body may hold an allocated empty message; keep it absent
		if !errors.Is(err, httpclient.ErrEmptyBody) {
			v.logger.Debug("verifier.body_not_json",
				zap.Int("status", resp.StatusCode),
				zap.Error(err))
		}
		return out, nil
	}
	out.Message = body.Message
	return out, nil
}

// VerifySuccessfulLogin checks that user1/password1 yields 200 "Login successful".
func (v *Verifier) VerifySuccessfulLogin(ctx context.Context) (*model.Result, error) {
	return v.Verify(ctx, model.SuccessfulLogin(v.valid))
}

// VerifyFailedLogin checks that user1/wrongpassword yields 401 "Invalid credentials".
func (v *Verifier) VerifyFailedLogin(ctx context.Context) (*model.Result, error) {
	return v.Verify(ctx, model.FailedLogin(v.valid))
}

// Verify runs one request/assert cycle. The result is always non-nil; err is
// an *AssertionError or *ConnectionError when the scenario did not pass.
func (v *Verifier) Verify(ctx context.Context, sc model.Scenario) (*model.Result, error) {
	return v.verify(ctx, uuid.New(), sc)
}

// RunAll verifies every scenario in parallel under one run ID.
// Results keep the order of scenarios.
func (v *Verifier) RunAll(ctx context.Context, scenarios []model.Scenario) []model.Result {
	runID := uuid.New()
	results := make([]model.Result, len(scenarios))

	var wg sync.WaitGroup
	for i, sc := range scenarios {
		wg.Add(1)
		go func(i int, sc model.Scenario) {
			defer wg.Done()
			res, _ := v.verify(ctx, runID, sc)
			results[i] = *res
		}(i, sc)
	}
	wg.Wait()
	return results
}

func (v *Verifier) verify(ctx context.Context, runID uuid.UUID, sc model.Scenario) (*model.Result, error) {
	start := time.Now()
	res := &model.Result{
		RunID:     runID,
		Scenario:  sc.Name,
		BaseURL:   v.baseURL,
		CheckedAt: start.UTC(),
	}

	resp, err := v.Login(ctx, sc.Credentials)
	res.Latency = time.Since(start)
	if err == nil {
		res.StatusCode = resp.StatusCode
		res.Message = resp.MessageOrEmpty()
		err = check(sc, resp)
	}

	if err != nil {
		res.Failure = failureKind(err)
		res.Error = err.Error()
		v.logger.Warn("verifier."+res.Failure+"_failed",
			zap.String("scenario", sc.Name),
			zap.String("url", v.loginURL),
			zap.String("username", sc.Credentials.Username),
			zap.String("password", utils.MaskSecret(sc.Credentials.Password)),
			zap.Error(err))
		return res, err
	}

	res.Passed = true
	v.logger.Info("verifier.scenario_passed",
		zap.String("scenario", sc.Name),
		zap.Int("status", res.StatusCode),
		zap.Duration("latency", res.Latency))
	return res, nil
}

// check asserts status first, then message.
func check(sc model.Scenario, resp *model.LoginResponse) error {
	if resp.StatusCode != sc.ExpectedStatus {
		return &AssertionError{
			Scenario: sc.Name,
			Field:    "status",
			Expected: sc.ExpectedStatus,
			Actual:   resp.StatusCode,
		}
	}
	if resp.Message == nil {
		return &AssertionError{
			Scenario: sc.Name,
			Field:    "message",
			Expected: fmt.Sprintf("%q", sc.ExpectedMessage),
			Actual:   "<absent>",
		}
	}
	if *resp.Message != sc.ExpectedMessage {
		return &AssertionError{
			Scenario: sc.Name,
			Field:    "message",
			Expected: fmt.Sprintf("%q", sc.ExpectedMessage),
			Actual:   fmt.Sprintf("%q", *resp.Message),
		}
	}
	return nil
}
