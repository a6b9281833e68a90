package leadsystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// Body encodings for the write endpoint.
const (
	EncodingJSON = "json"
	EncodingForm = "form"
)

// Attempt is one (method, encoding) combination tried against the write endpoint.
type Attempt struct {
	Method   string `json:"method"`
	Encoding string `json:"encoding"`
}

// DefaultAttempts returns POST+JSON, PUT+JSON, POST+form, PUT+form.
func DefaultAttempts() []Attempt {
	return []Attempt{
		{Method: http.MethodPost, Encoding: EncodingJSON},
		{Method: http.MethodPut, Encoding: EncodingJSON},
		{Method: http.MethodPost, Encoding: EncodingForm},
		{Method: http.MethodPut, Encoding: EncodingForm},
	}
}

// AttemptTrace records the outcome of one attempt.
type AttemptTrace struct {
	Method   string `json:"method"`
	Encoding string `json:"encoding"`
	Status   int    `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UpsertTrace describes the request shape that was finally accepted.
type UpsertTrace struct {
	Method   string            `json:"method,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Sent     map[string]string `json:"sent"`
	Attempts []AttemptTrace    `json:"attempts"`
}

// UpsertResult is the outcome of UpsertLead. LeadID is empty when the
// response carried no recognisable identifier.
type UpsertResult struct {
	LeadID string          `json:"lead_id,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Trace  UpsertTrace     `json:"trace"`
}

// UpsertLead creates or updates a lead. Only name, phone and email (and the
// known lead id) are sent. Attempts are tried in order; a contract mismatch
// moves on to the next one, any other failure is returned at once. The
// returned result is non-nil even on error so the attempt trace can be kept.
func (c *Client) UpsertLead(ctx context.Context, fields model.ApplicantFields, leadID string) (*UpsertResult, error) {
	sent := upsertPayload(fields, leadID)
	result := &UpsertResult{Trace: UpsertTrace{Sent: sent}}
	log := logger.FromContext(ctx).With(zap.String("component", "leadsystem"))

	var lastErr error
	for _, attempt := range c.attempts {
		req, err := c.newUpsertRequest(attempt, sent)
		if err != nil {
			return result, err
		}

		resp, err := c.do(ctx, OpUpsert, attempt.Encoding, req)
		if err != nil {
			trace := AttemptTrace{Method: attempt.Method, Encoding: attempt.Encoding, Error: err.Error()}
			var rerr *RemoteError
			if errors.As(err, &rerr) {
				trace.Status = rerr.StatusCode
			}
			result.Trace.Attempts = append(result.Trace.Attempts, trace)

			if rerr != nil && rerr.ContractMismatch() {
				log.Info("Lead System rejected request shape, trying next",
					zap.String("method", attempt.Method),
					zap.String("encoding", attempt.Encoding),
					zap.Int("status", rerr.StatusCode),
				)
				lastErr = err
				continue
			}
			return result, err
		}

		result.Trace.Attempts = append(result.Trace.Attempts, AttemptTrace{Method: attempt.Method, Encoding: attempt.Encoding, Status: resp.status})
		result.Trace.Method = attempt.Method
		result.Trace.Encoding = attempt.Encoding
		result.Raw = rawJSON(resp.body)
		result.LeadID = ExtractLeadID(resp.body)

		log.Info("Lead upserted",
			zap.String("method", attempt.Method),
			zap.String("encoding", attempt.Encoding),
			zap.Bool("has_lead_id", result.LeadID != ""),
		)
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no upsert attempts configured")
	}
	return result, lastErr
}

func upsertPayload(fields model.ApplicantFields, leadID string) map[string]string {
	sent := map[string]string{
		"first_name": fields.FirstName,
		"last_name":  fields.LastName,
		"phone":      fields.Phone,
		"email":      fields.Email,
	}
	if leadID != "" {
		sent["lead_id"] = leadID
	}
	return sent
}

func (c *Client) newUpsertRequest(attempt Attempt, sent map[string]string) (*http.Request, error) {
	var (
		body        []byte
		contentType string
	)
	switch attempt.Encoding {
	case EncodingJSON:
		b, err := json.Marshal(sent)
		if err != nil {
			return nil, fmt.Errorf("encode upsert payload: %w", err)
		}
		body = b
		contentType = "application/json"
	case EncodingForm:
		form := url.Values{}
		for k, v := range sent {
			if v != "" {
				form.Set(k, v)
			}
		}
		body = []byte(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		return nil, fmt.Errorf("unknown upsert encoding %q", attempt.Encoding)
	}

	req, err := http.NewRequest(strings.ToUpper(attempt.Method), c.endpoint(c.cfg.IngressLeadsPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.setWriteAuth(req)
	return req, nil
}

// ExtractLeadID looks for the lead id in lead_id, id, lead.lead_id and
// response.lead_id, in that order. String and numeric ids are accepted.
func ExtractLeadID(body []byte) string {
	doc, ok := decodeJSON(body)
	if !ok {
		return ""
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return ""
	}
	if id := scalarString(obj["lead_id"]); id != "" {
		return id
	}
	if id := scalarString(obj["id"]); id != "" {
		return id
	}
	if lead, ok := obj["lead"].(map[string]interface{}); ok {
		if id := scalarString(lead["lead_id"]); id != "" {
			return id
		}
	}
	if inner, ok := obj["response"].(map[string]interface{}); ok {
		if id := scalarString(inner["lead_id"]); id != "" {
			return id
		}
	}
	return ""
}

// decodeJSON decodes body keeping numbers as json.Number.
func decodeJSON(body []byte) (interface{}, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// scalarString renders strings and numbers; anything else yields "".
func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if t.String() == "0" {
			return ""
		}
		return t.String()
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// rawJSON keeps a JSON body as is and quotes anything else.
func rawJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(string(trimmed))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}
