package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/rate"
)

func newExec(retryMax int, client *http.Client) *Executor {
	return New(zap.NewNop(), nil, client, retryMax, "test")
}

// countingHandler returns failStatus for the first failCount calls, then 200 with body.
func countingHandler(failCount int, failStatus int, successBody []byte) (http.Handler, *atomic.Int32) {
	var n atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(n.Add(1)) <= failCount {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(successBody)
	}), &n
}

// ─── Basic success ────────────────────────────────────────────────────────────

func TestPostJSON_SendsJSONBody(t *testing.T) {
	var gotType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	exec := newExec(0, srv.Client())
	resp, err := exec.PostJSON(context.Background(), srv.URL+"/login",
		map[string]string{"username": "user1", "password": "password1"}, "k")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "user1", gotBody["username"])
	assert.Equal(t, "password1", gotBody["password"])

	var out map[string]string
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "ok", out["message"])
}

// ─── 4xx is a response, not an error ─────────────────────────────────────────

func TestDo_4xxReturnedWithoutRetry(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer srv.Close()

	exec := newExec(2, srv.Client())
	resp, err := exec.PostJSON(context.Background(), srv.URL, map[string]string{}, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, string(resp.Body))
	assert.EqualValues(t, 1, count.Load(), "4xx must not be retried")
}

// ─── 5xx retry then success ───────────────────────────────────────────────────

func TestDo_Retries5xxThenSucceeds(t *testing.T) {
	h, count := countingHandler(1, http.StatusServiceUnavailable, []byte(`{"result":"ok"}`))
	srv := httptest.NewServer(h)
	defer srv.Close()

	exec := newExec(2, srv.Client())
	resp, err := exec.PostJSON(context.Background(), srv.URL, nil, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, count.Load())
}

// ─── Final 5xx is handed back ─────────────────────────────────────────────────

func TestDo_Final5xxReturnedAsResponse(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())
	resp, err := exec.PostJSON(context.Background(), srv.URL, nil, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.EqualValues(t, 2, count.Load(), "retryMax=1 means 2 total attempts")
}

// ─── retryMax=0: single attempt only ─────────────────────────────────────────

func TestDo_ZeroRetries(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exec := newExec(0, srv.Client())
	resp, err := exec.PostJSON(context.Background(), srv.URL, nil, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 1, count.Load())
}

// ─── POST body is re-sent on retry ───────────────────────────────────────────

func TestDo_PostBodyResentOnRetry(t *testing.T) {
	var mu sync.Mutex
	var received []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(b))
		n := len(received)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())
	_, err := exec.PostJSON(context.Background(), srv.URL, map[string]string{"value": "hello"}, "k")
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.JSONEq(t, `{"value":"hello"}`, received[0])
	assert.JSONEq(t, `{"value":"hello"}`, received[1], "retry must re-send the full body")
}

// ─── Connection failure ──────────────────────────────────────────────────────

func TestDo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exec := newExec(1, &http.Client{Timeout: time.Second})
	_, err := exec.PostJSON(context.Background(), url, nil, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	exec := newExec(3, srv.Client())
	_, err := exec.PostJSON(ctx, srv.URL, nil, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ─── Rate limiter ─────────────────────────────────────────────────────────────

func TestDo_RateLimitWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 1, Burst: 1})
	mgr.GetLimiter("k").Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exec := New(zap.NewNop(), mgr, srv.Client(), 0, "test")
	_, err := exec.PostJSON(ctx, srv.URL, nil, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

// ─── JSON decode ─────────────────────────────────────────────────────────────

func TestResponse_DecodeJSON(t *testing.T) {
	var out map[string]string

	err := (&Response{Body: []byte("not-json")}).DecodeJSON(&out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")

	assert.ErrorIs(t, (&Response{Body: []byte("  ")}).DecodeJSON(&out), ErrEmptyBody)
}
