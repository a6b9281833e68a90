package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReconcileJob asks the worker to reconcile one intake. LeadIDOverride is set
// when an operator resolves an ambiguous or failed intake by hand.
type ReconcileJob struct {
	IntakeID       string    `json:"intake_id" validate:"required"`
	LeadIDOverride string    `json:"lead_id_override,omitempty"`
	RequestedBy    string    `json:"requested_by,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// ParseReconcileJob decodes a job received from the queue.
func ParseReconcileJob(data []byte) (*ReconcileJob, error) {
	var job ReconcileJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode reconcile job: %w", err)
	}
	job.IntakeID = strings.TrimSpace(job.IntakeID)
	job.LeadIDOverride = strings.TrimSpace(job.LeadIDOverride)
	if job.IntakeID == "" {
		return nil, fmt.Errorf("decode reconcile job: missing intake_id")
	}
	return &job, nil
}
