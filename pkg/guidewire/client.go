// Package guidewire pushes approved cyber submissions into PolicyCenter
// through its composite REST endpoint.
package guidewire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

const (
	compositePath   = "/rest/composite/v1/composite"
	defaultAuthPath = "/rest/common/v1/auth/token"
	defaultTTL      = time.Hour
)

// Config holds connection and resilience settings.
type Config struct {
	BaseURL      string
	Token        string
	Username     string
	Password     string
	AuthPath     string
	ProducerCode string

	Timeout     time.Duration
	TokenBuffer time.Duration
	RateLimit   float64

	Retry            resilience.RetryConfig
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Result is the subset of the composite response the workbench keeps.
type Result struct {
	AccountID     string
	AccountNumber string
	JobID         string
	JobNumber     string
	TotalPremium  decimal.Decimal
	Currency      string
}

// PolicyRef converts the result to the stored reference.
func (r Result) PolicyRef() model.PolicyRef {
	premium, _ := r.TotalPremium.Float64()
	return model.PolicyRef{
		AccountID:     r.AccountID,
		AccountNumber: r.AccountNumber,
		JobID:         r.JobID,
		JobNumber:     r.JobNumber,
		TotalPremium:  premium,
	}
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock overrides time.Now for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client talks to the PolicyCenter composite API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	mapper  *Mapper
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, eris.New("guidewire: base url is required")
	}
	if cfg.Token == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, eris.New("guidewire: token or username and password are required")
	}
	if cfg.AuthPath == "" {
		cfg.AuthPath = defaultAuthPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenBuffer <= 0 {
		cfg.TokenBuffer = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("guidewire", "composite")
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker("guidewire", cfg.BreakerThreshold, cfg.BreakerCooldown),
		mapper:  NewMapper(cfg.ProducerCode),
		now:     time.Now,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(int(cfg.RateLimit), 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mapper.Now = c.now
	return c, nil
}

// Sync maps a work item's extracted fields to a new account, submission
// and quote. It satisfies intake.PolicySyncer.
func (c *Client) Sync(ctx context.Context, item model.WorkItem) (model.PolicyRef, error) {
	res, err := c.Submit(ctx, c.mapper.Build(item.Fields))
	if err != nil {
		return model.PolicyRef{}, err
	}
	zap.L().Info("guidewire: submission created",
		zap.String("work_item_id", item.ID),
		zap.String("account_number", res.AccountNumber),
		zap.String("job_number", res.JobNumber),
		zap.String("total_premium", res.TotalPremium.StringFixed(2)),
	)
	return res.PolicyRef(), nil
}

// Submit posts a composite request behind the circuit breaker and retry
// policy. An open circuit is reported as transient so callers can queue
// the work for later.
func (c *Client) Submit(ctx context.Context, req Composite) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "guidewire: marshal composite")
	}
	res, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*Result, error) {
		return resilience.DoVal(ctx, c.cfg.Retry, func(ctx context.Context) (*Result, error) {
			return c.post(ctx, body)
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "guidewire: composite"), 0)
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Result, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "guidewire: rate limit")
	}
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+compositePath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "guidewire: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "guidewire: composite request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "guidewire: read response")
	}
	if resp.StatusCode == http.StatusUnauthorized && c.cfg.Token == "" {
		c.invalidate()
		return nil, resilience.NewTransientError(eris.New("guidewire: token rejected"), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.HTTPError("guidewire", resp.StatusCode, string(raw))
	}
	return parseComposite(raw)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// bearer returns a usable token, fetching a fresh one when the cached
// token is missing or within TokenBuffer of expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	if c.cfg.Token != "" {
		return c.cfg.Token, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-c.cfg.TokenBuffer)) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{"username": c.cfg.Username, "password": c.cfg.Password})
	if err != nil {
		return "", eris.Wrap(err, "guidewire: marshal auth")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.AuthPath, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "guidewire: create auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "guidewire: auth request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "guidewire: read auth response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", resilience.HTTPError("guidewire auth", resp.StatusCode, string(raw))
	}

	var tok struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Bearer      string `json:"bearerToken"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", eris.Wrap(err, "guidewire: decode auth response")
	}
	value := firstNonEmpty(tok.Token, tok.AccessToken, tok.Bearer)
	if value == "" {
		return "", eris.New("guidewire: auth response has no token")
	}
	ttl := defaultTTL
	if tok.ExpiresIn > 0 {
		ttl = time.Duration(tok.ExpiresIn) * time.Second
	}
	c.token = value
	c.expiresAt = c.now().Add(ttl)
	return value, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

type compositeResponse struct {
	Responses []struct {
		Status int `json:"status"`
		Body   struct {
			Data struct {
				Attributes json.RawMessage `json:"attributes"`
			} `json:"data"`
			UserMessage string `json:"userMessage"`
		} `json:"body"`
	} `json:"responses"`
}

type entityAttrs struct {
	ID            string `json:"id"`
	AccountNumber string `json:"accountNumber"`
	JobNumber     string `json:"jobNumber"`
	TotalPremium  *struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"totalPremium"`
}

// parseComposite reads the account (step 0), job (step 1) and quote
// (step 4) out of a composite response. A failed step is a permanent
// error since PolicyCenter rolls the whole composite back.
func parseComposite(raw []byte) (*Result, error) {
	var cr compositeResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, eris.Wrap(err, "guidewire: decode composite response")
	}
	for i, sub := range cr.Responses {
		if sub.Status >= 400 {
			return nil, eris.Errorf("guidewire: composite step %d failed with status %d: %s", i, sub.Status, sub.Body.UserMessage)
		}
	}
	if len(cr.Responses) < 2 {
		return nil, eris.Errorf("guidewire: composite returned %d responses, want at least 2", len(cr.Responses))
	}

	attrs := func(i int) (entityAttrs, error) {
		var a entityAttrs
		if i >= len(cr.Responses) || len(cr.Responses[i].Body.Data.Attributes) == 0 {
			return a, nil
		}
		if err := json.Unmarshal(cr.Responses[i].Body.Data.Attributes, &a); err != nil {
			return a, eris.Wrapf(err, "guidewire: decode step %d attributes", i)
		}
		return a, nil
	}

	account, err := attrs(0)
	if err != nil {
		return nil, err
	}
	job, err := attrs(1)
	if err != nil {
		return nil, err
	}
	quote, err := attrs(4)
	if err != nil {
		return nil, err
	}

	res := &Result{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		JobID:         job.ID,
		JobNumber:     job.JobNumber,
	}
	if quote.TotalPremium != nil {
		res.TotalPremium = quote.TotalPremium.Amount
		res.Currency = quote.TotalPremium.Currency
	}
	if res.AccountNumber == "" || res.JobNumber == "" {
		return nil, eris.New("guidewire: composite response missing account or job number")
	}
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// String reports the target for logs without credentials.
func (c *Client) String() string {
	return fmt.Sprintf("guidewire(%s)", c.cfg.BaseURL)
}
