package guidewire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

const compositeOK = `{"responses":[
	{"status":201,"body":{"data":{"attributes":{"id":"pc:acct1","accountNumber":"A-1001"}}}},
	{"status":201,"body":{"data":{"attributes":{"id":"pc:job1","jobNumber":"J-2002"}}}},
	{"status":201,"body":{"data":{"attributes":{"id":"cov"}}}},
	{"status":200,"body":{"data":{"attributes":{}}}},
	{"status":200,"body":{"data":{"attributes":{"totalPremium":{"amount":"1234.50","currency":"usd"}}}}}
]}`

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, url string, cfg Config, opts ...Option) *Client {
	t.Helper()
	cfg.BaseURL = url
	if cfg.Username == "" {
		cfg.Token = "static-token"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry()
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no base url", Config{Token: "x"}},
		{"no credentials", Config{BaseURL: "http://pc"}},
		{"username only", Config{BaseURL: "http://pc", Username: "svc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestSync_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, compositePath, r.URL.Path)
		assert.Equal(t, "Bearer static-token", r.Header.Get("Authorization"))

		var body Composite
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Requests, 5)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(compositeOK)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{})
	ref, err := c.Sync(context.Background(), model.WorkItem{
		ID:     "wi-1",
		Fields: model.Fields{"insured_name": "Acme", "coverage_amount": "$1,000,000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pc:acct1", ref.AccountID)
	assert.Equal(t, "A-1001", ref.AccountNumber)
	assert.Equal(t, "pc:job1", ref.JobID)
	assert.Equal(t, "J-2002", ref.JobNumber)
	assert.InDelta(t, 1234.5, ref.TotalPremium, 0.001)
}

func TestSubmit_TokenCachedAndRefreshed(t *testing.T) {
	t.Parallel()

	var authCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == defaultAuthPath {
			var creds map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "svc", creds["username"])
			n := authCalls.Add(1)
			w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","expires_in":120}`)) //nolint:errcheck
			return
		}
		assert.Equal(t, "Bearer tok-"+string(rune('0'+authCalls.Load())), r.Header.Get("Authorization"))
		w.Write([]byte(compositeOK)) //nolint:errcheck
	}))
	defer srv.Close()

	var mu sync.Mutex
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := newTestClient(t, srv.URL, Config{Username: "svc", Password: "pw"}, WithClock(clock))

	ctx := context.Background()
	_, err := c.Submit(ctx, Composite{})
	require.NoError(t, err)
	_, err = c.Submit(ctx, Composite{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), authCalls.Load())

	// Inside the one-minute buffer of a two-minute token.
	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	_, err = c.Submit(ctx, Composite{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), authCalls.Load())
}

func TestSubmit_RejectedTokenIsRefetched(t *testing.T) {
	t.Parallel()

	var authCalls, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == defaultAuthPath {
			authCalls.Add(1)
			w.Write([]byte(`{"token":"fresh"}`)) //nolint:errcheck
			return
		}
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(compositeOK)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{Username: "svc", Password: "pw"})
	res, err := c.Submit(context.Background(), Composite{})
	require.NoError(t, err)
	assert.Equal(t, "J-2002", res.JobNumber)
	assert.Equal(t, int32(2), authCalls.Load())
	assert.Equal(t, int32(2), posts.Load())
}

func TestSubmit_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(compositeOK)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{})
	res, err := c.Submit(context.Background(), Composite{})
	require.NoError(t, err)
	assert.Equal(t, "A-1001", res.AccountNumber)
	assert.Equal(t, "1234.5", res.TotalPremium.String())
	assert.Equal(t, "usd", res.Currency)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmit_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"userMessage":"bad producer"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{})
	_, err := c.Submit(context.Background(), Composite{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmit_OpenCircuitIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{BreakerThreshold: 1, BreakerCooldown: time.Hour})
	ctx := context.Background()
	_, err := c.Submit(ctx, Composite{})
	require.Error(t, err)

	_, err = c.Submit(ctx, Composite{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseComposite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"failed step", `{"responses":[{"status":201,"body":{"data":{"attributes":{"accountNumber":"A"}}}},{"status":422,"body":{"userMessage":"invalid state"}}]}`, "invalid state"},
		{"too short", `{"responses":[]}`, "at least 2"},
		{"missing job number", `{"responses":[{"body":{"data":{"attributes":{"accountNumber":"A"}}}},{"body":{"data":{"attributes":{"id":"j"}}}}]}`, "missing account or job"},
		{"not json", `<html>`, "decode composite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseComposite([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseComposite_NoQuote(t *testing.T) {
	t.Parallel()
	res, err := parseComposite([]byte(`{"responses":[
		{"body":{"data":{"attributes":{"accountNumber":"A"}}}},
		{"body":{"data":{"attributes":{"jobNumber":"J"}}}}]}`))
	require.NoError(t, err)
	assert.True(t, res.TotalPremium.IsZero())
	assert.Zero(t, res.PolicyRef().TotalPremium)
}
