package usecase

import (
	"context"
	"io"
	"os"

	"gitlab.com/timkado/api/doc-intake-relay/internal/leadsystem"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/notification"
)

// LeadSystem is the part of leadsystem.Client the reconciler uses.
type LeadSystem interface {
	UpsertLead(ctx context.Context, fields model.ApplicantFields, leadID string) (*leadsystem.UpsertResult, error)
	FindLeadID(ctx context.Context, firstName, lastName, last4 string) (*leadsystem.MatchResult, error)
	AttachDocument(ctx context.Context, leadID string, doc leadsystem.Document) (*leadsystem.AttachResult, error)
}

// Notifier forwards reconciliation outcomes to the notification relay.
type Notifier interface {
	Notify(ctx context.Context, o notification.Outcome) (*notification.Result, error)
}

// DocumentStore keeps uploaded files on disk.
type DocumentStore interface {
	Save(originalName, declaredMIME string, r io.Reader, maxBytes int64) (model.FileDescriptor, error)
	Open(storedAs string) (*os.File, error)
	Remove(storedAs string) error
}

// Dispatcher hands a reconcile job to whatever runs it: the in-process
// worker pool or the job queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.ReconcileJob) error
}

// IntakeSubmitter accepts new intakes. Implemented by IntakeService.
type IntakeSubmitter interface {
	Submit(ctx context.Context, form model.IntakeForm, uploads []Upload) (*model.Intake, error)
}

// JobSubmitter accepts reconcile jobs for asynchronous processing.
type JobSubmitter interface {
	SubmitJob(job model.ReconcileJob) error
}
