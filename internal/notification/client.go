package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// UnknownCustomer is sent as customer_id when no lead id is known.
const UnknownCustomer = "unknown"

// Field is one typed name/value pair of the relay payload.
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Payload is the relay envelope.
type Payload struct {
	CustomerID string  `json:"customer_id"`
	Fields     []Field `json:"fields"`
	FlowType   string  `json:"flow_type"`
}

// Outcome values the relay needs to forward.
type Outcome struct {
	LeadID    string
	FirstName string
	LastName  string
	Phone     string
	Email     string
	SSNLast4  string
}

// Result is the relay answer.
type Result struct {
	Status int             `json:"status"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Client posts outcomes to the notification relay. Calls are never retried
// and never deduplicated.
type Client struct {
	cfg  config.NotificationConfig
	http *http.Client
}

// NewClient builds a relay client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.NotificationConfig, httpClient *http.Client) *Client {
	if cfg.FlowType == "" {
		cfg.FlowType = "customer"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 25 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// BuildPayload maps an outcome to the relay envelope.
func (c *Client) BuildPayload(o Outcome) Payload {
	customerID := o.LeadID
	if customerID == "" {
		customerID = UnknownCustomer
	}
	return Payload{
		CustomerID: customerID,
		FlowType:   c.cfg.FlowType,
		Fields: []Field{
			{Name: "lead_id", Type: "string", Value: o.LeadID},
			{Name: "first_name", Type: "string", Value: o.FirstName},
			{Name: "last_name", Type: "string", Value: o.LastName},
			{Name: "phone", Type: "string", Value: o.Phone},
			{Name: "email", Type: "string", Value: o.Email},
			{Name: "ssn_last4", Type: "string", Value: o.SSNLast4},
		},
	}
}

// Notify sends one relay request. Any non-2xx answer is an error carrying
// the status and body.
func (c *Client) Notify(ctx context.Context, o Outcome) (*Result, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return nil, fmt.Errorf("%w: notification url is not configured", apperrors.ErrBadRequest)
	}

	body, err := json.Marshal(c.BuildPayload(o))
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Authorization != "" {
		req.Header.Set("Authorization", c.cfg.Authorization)
	}

	log := logger.FromContext(ctx).With(zap.String("component", "notification"))

	resp, err := c.http.Do(req)
	if err != nil {
		observer.IncNotification(0)
		log.Warn("Notification relay unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: notification relay: %w", apperrors.ErrRemote, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	observer.IncNotification(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("Notification relay rejected request", zap.Int("status", resp.StatusCode))
		return &Result{Status: resp.StatusCode}, fmt.Errorf("%w: notification relay: status %d: %s",
			apperrors.ErrRemote, resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 2048))
	}

	log.Info("Notification relayed", zap.Int("status", resp.StatusCode))
	res := &Result{Status: resp.StatusCode}
	if trimmed := bytes.TrimSpace(respBody); len(trimmed) > 0 && json.Valid(trimmed) {
		res.Raw = json.RawMessage(trimmed)
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
