package leadsystem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

const (
	headerAPIID  = "tld-api-id"
	headerAPIKey = "tld-api-key"

	maxResponseBytes = 4 << 20
)

// Operation names used in logs, metrics and errors.
const (
	OpUpsert = "upsert"
	OpSearch = "search"
	OpAttach = "attach"
)

// Client talks to the Lead System. It is safe for concurrent use.
type Client struct {
	cfg      config.LeadSystemConfig
	http     *http.Client
	attempts []Attempt
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithAttempts replaces the ordered (method, encoding) list tried by UpsertLead.
func WithAttempts(attempts ...Attempt) Option {
	return func(c *Client) {
		if len(attempts) > 0 {
			c.attempts = append([]Attempt(nil), attempts...)
		}
	}
}

// NewClient builds a Lead System client from cfg.
func NewClient(cfg config.LeadSystemConfig, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxSearchPages <= 0 {
		cfg.MaxSearchPages = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		attempts: DefaultAttempts(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != ""
}

func (c *Client) endpoint(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.cfg.BaseURL + path
}

// setWriteAuth applies the configured auth mode to a write request.
func (c *Client) setWriteAuth(req *http.Request) {
	if c.cfg.AuthMode == config.AuthModeBasic {
		req.SetBasicAuth(c.cfg.APIID, c.cfg.APIKey)
		return
	}
	c.setHeaderAuth(req)
}

func (c *Client) setHeaderAuth(req *http.Request) {
	req.Header.Set(headerAPIID, c.cfg.APIID)
	req.Header.Set(headerAPIKey, c.cfg.APIKey)
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// do sends req and reads the body. Non-2xx answers are returned as *RemoteError.
func (c *Client) do(ctx context.Context, op, encoding string, req *http.Request) (*response, error) {
	log := logger.FromContext(ctx).With(
		zap.String("component", "leadsystem"),
		zap.String("operation", op),
		zap.String("method", req.Method),
	)

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		observer.ObserveLeadSystemRequest(op, req.Method, encoding, 0, time.Since(start))
		log.Warn("Lead System request failed", zap.Error(err))
		return nil, &RemoteError{Operation: op, Method: req.Method, Encoding: encoding, Cause: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	observer.ObserveLeadSystemRequest(op, req.Method, encoding, resp.StatusCode, time.Since(start))
	if readErr != nil {
		return nil, &RemoteError{Operation: op, Method: req.Method, Encoding: encoding, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read body: %w", readErr)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RemoteError{
			Operation:  op,
			Method:     req.Method,
			Encoding:   encoding,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 2048),
		}
		log.Debug("Lead System answered with an error",
			zap.Int("status", resp.StatusCode),
			zap.Bool("contract_mismatch", rerr.ContractMismatch()),
		)
		return nil, rerr
	}

	log.Debug("Lead System request succeeded", zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
	return &response{status: resp.StatusCode, body: body}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
