package leadsystem

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// SearchResult holds the candidates left after the last-4 filter.
type SearchResult struct {
	Candidates []model.LeadCandidate `json:"candidates"`
	Scanned    int                   `json:"scanned"`    // rows seen before filtering
	Pages      int                   `json:"pages"`      // pages fetched
	Strategies []string              `json:"strategies"` // parser used per page
}

// MatchOutcome is the result of resolving a search to one lead id.
type MatchOutcome string

const (
	MatchNotFound  MatchOutcome = "not_found"
	MatchUnique    MatchOutcome = "matched"
	MatchAmbiguous MatchOutcome = "ambiguous"
)

// MatchResult reports the resolved lead id, or the competing ids when ambiguous.
type MatchResult struct {
	Outcome      MatchOutcome  `json:"outcome"`
	LeadID       string        `json:"lead_id,omitempty"`
	CandidateIDs []string      `json:"candidate_ids,omitempty"`
	Search       *SearchResult `json:"search,omitempty"`
}

// Last4FromValue strips non-digits and returns the trailing 4 digits, or ""
// when fewer than 4 digits are present.
func Last4FromValue(v string) string {
	digits := make([]rune, 0, len(v))
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// SearchLeads queries the read endpoint by name and filters the rows by the
// last 4 digits of their ssn. last4 is never sent. An empty last4 returns
// every row. Pages are followed through navigate.next up to the configured cap.
func (c *Client) SearchLeads(ctx context.Context, firstName, lastName, last4 string) (*SearchResult, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: name search requires first_name and last_name", apperrors.ErrValidation)
	}

	log := logger.FromContext(ctx).With(zap.String("component", "leadsystem"))
	next, err := c.searchURL(firstName, lastName)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Candidates: []model.LeadCandidate{}}
	var rows []map[string]interface{}
	for next != "" && result.Pages < c.cfg.MaxSearchPages {
		req, err := http.NewRequest(http.MethodGet, next, nil)
		if err != nil {
			return result, fmt.Errorf("build search request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(ctx, OpSearch, "", req)
		if err != nil {
			return result, err
		}
		result.Pages++

		pg, strategy := parsePage(resp.body)
		result.Strategies = append(result.Strategies, strategy)
		rows = append(rows, pg.rows...)

		next = resolveNext(req.URL, pg.next)
	}
	result.Scanned = len(rows)

	for _, row := range rows {
		cand := candidateFromRow(row)
		if last4 != "" && Last4FromValue(cand.SSN) != last4 {
			continue
		}
		result.Candidates = append(result.Candidates, cand)
	}

	log.Info("Lead search finished",
		zap.Int("pages", result.Pages),
		zap.Int("scanned", result.Scanned),
		zap.Int("candidates", len(result.Candidates)),
		zap.Strings("strategies", result.Strategies),
	)
	return result, nil
}

// FindLeadID searches by name and last 4 and adopts a lead id only when the
// filtered candidates carry exactly one distinct id.
func (c *Client) FindLeadID(ctx context.Context, firstName, lastName, last4 string) (*MatchResult, error) {
	search, err := c.SearchLeads(ctx, firstName, lastName, last4)
	if err != nil {
		return &MatchResult{Outcome: MatchNotFound, Search: search}, err
	}
	return ResolveMatch(search), nil
}

// ResolveMatch reduces search candidates to a match outcome.
func ResolveMatch(search *SearchResult) *MatchResult {
	res := &MatchResult{Outcome: MatchNotFound, Search: search}
	if search == nil {
		return res
	}
	seen := make(map[string]struct{})
	for _, cand := range search.Candidates {
		if cand.LeadID == "" {
			continue
		}
		if _, dup := seen[cand.LeadID]; dup {
			continue
		}
		seen[cand.LeadID] = struct{}{}
		res.CandidateIDs = append(res.CandidateIDs, cand.LeadID)
	}
	switch len(res.CandidateIDs) {
	case 0:
	case 1:
		res.Outcome = MatchUnique
		res.LeadID = res.CandidateIDs[0]
	default:
		res.Outcome = MatchAmbiguous
	}
	return res
}

func (c *Client) searchURL(firstName, lastName string) (string, error) {
	u, err := url.Parse(c.endpoint(c.cfg.EgressLeadsPath))
	if err != nil {
		return "", fmt.Errorf("%w: invalid search url: %w", apperrors.ErrBadRequest, err)
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("api_id", c.cfg.APIID)
	q.Set("columns", c.cfg.SearchColumns)
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolveNext turns a navigate.next reference into an absolute URL.
func resolveNext(current *url.URL, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return current.ResolveReference(ref).String()
}

func candidateFromRow(row map[string]interface{}) model.LeadCandidate {
	id := scalarString(row["lead_id"])
	if id == "" {
		id = scalarString(row["id"])
	}
	return model.LeadCandidate{
		LeadID:    id,
		FirstName: scalarString(row["first_name"]),
		LastName:  scalarString(row["last_name"]),
		Email:     scalarString(row["email"]),
		Phone:     scalarString(row["phone"]),
		SSN:       scalarString(row["ssn"]),
		Raw:       row,
	}
}
