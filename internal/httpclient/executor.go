package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/metrics"
	"github.com/Checker-Finance/login-verifier/internal/rate"
)

// ErrEmptyBody is returned by DecodeJSON when the response carried no body.
var ErrEmptyBody = errors.New("empty response body")

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// DecodeJSON unmarshals the body into out.
func (r *Response) DecodeJSON(out any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

// RequestFunc builds a fresh request for every attempt so bodies can be re-sent.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Executor handles rate-limited HTTP execution with optional retries.
// Only transport errors and 5xx responses are retried; any other status is
// handed back to the caller untouched.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	retryMax int
	tag      string
}

// New creates an Executor. rateMgr may be nil. retryMax=0 means a single attempt.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	tag string,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if retryMax < 0 {
		retryMax = 0
	}
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		retryMax: retryMax,
		tag:      tag,
	}
}

// Do executes the request built by newReq. rateLimitKey scopes the rate limiter.
// A 5xx on the final attempt is returned as a Response, not an error.
func (e *Executor) Do(ctx context.Context, newReq RequestFunc, rateLimitKey string) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := e.roundTrip(req)
		if err != nil {
			lastErr = err
			metrics.IncHTTPRequest(e.tag, req.Method, "error")
			e.logger.Warn(e.tag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		metrics.IncHTTPRequest(e.tag, req.Method, strconv.Itoa(resp.StatusCode))
		metrics.ObserveHTTPLatency(e.tag, req.Method, resp.Latency)

		if resp.StatusCode >= 500 && attempt < e.retryMax {
			e.logger.Warn(e.tag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Duration("latency", resp.Latency))
			continue
		}

		e.logger.Debug(e.tag+".http_done",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", resp.Latency))
		return resp, nil
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w", e.tag, e.retryMax+1, lastErr)
}

// PostJSON marshals body and POSTs it to url with a JSON content type.
func (e *Executor) PostJSON(ctx context.Context, url string, body any, rateLimitKey string) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return e.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, rateLimitKey)
}

func (e *Executor) roundTrip(req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
