package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/leadsystem"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/notification"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/internal/reqctx"
	"gitlab.com/timkado/api/doc-intake-relay/internal/storage"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

// ReconcileMeta is the diagnostic trace stored in Intake.LeadMeta.
type ReconcileMeta struct {
	RequestedBy    string                   `json:"requested_by,omitempty"`
	LeadIDOverride string                   `json:"lead_id_override,omitempty"`
	Upsert         *leadsystem.UpsertResult `json:"upsert,omitempty"`
	UpsertError    string                   `json:"upsert_error,omitempty"`
	Match          *leadsystem.MatchResult  `json:"match,omitempty"`
	MatchError     string                   `json:"match_error,omitempty"`
	Files          []FileTrace              `json:"files,omitempty"`
	Notify         *NotifyTrace             `json:"notify,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	EncodeError    string                   `json:"encode_error,omitempty"`
}

// FileTrace records one document attach attempt.
type FileTrace struct {
	File   string          `json:"file"`
	Status int             `json:"status,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NotifyTrace records the relay call.
type NotifyTrace struct {
	CustomerID string          `json:"customer_id"`
	Status     int             `json:"status,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Reconciler runs the Lead System and notification pipeline for one intake.
// Stages run in order; a failing stage is recorded and the next one still runs.
type Reconciler struct {
	repo     storage.IntakeRepo
	leads    LeadSystem
	notifier Notifier
	files    DocumentStore
}

// NewReconciler creates a new reconciler
func NewReconciler(repo storage.IntakeRepo, leads LeadSystem, notifier Notifier, files DocumentStore) *Reconciler {
	return &Reconciler{repo: repo, leads: leads, notifier: notifier, files: files}
}

// run holds the evolving outcome of one reconciliation.
type run struct {
	intake *model.Intake
	job    model.ReconcileJob
	leadID string
	status string
	errs   []model.StageError
	meta   ReconcileMeta
}

func (r *run) fail(stage, ref string, err error) {
	r.errs = append(r.errs, model.StageError{Stage: stage, Ref: ref, Error: err.Error()})
}

// Reconcile loads the intake named by job, runs every stage and persists the
// outcome with a single update. The returned error is only about loading or
// persisting; stage failures are recorded on the intake.
func (rc *Reconciler) Reconcile(ctx context.Context, job model.ReconcileJob) (*model.Intake, error) {
	ctx = reqctx.WithIntakeID(ctx, job.IntakeID)
	log := logger.FromContext(ctx).With(zap.String("component", "reconciler"))

	intake, err := rc.repo.FindByID(ctx, job.IntakeID)
	if err != nil {
		return nil, fmt.Errorf("load intake %s: %w", job.IntakeID, err)
	}

	st := &run{
		intake: intake,
		job:    job,
		meta: ReconcileMeta{
			RequestedBy:    job.RequestedBy,
			LeadIDOverride: job.LeadIDOverride,
			StartedAt:      utils.Now(),
		},
	}

	rc.stage(ctx, st, model.StageUpsert, rc.upsert)
	if st.leadID == "" {
		rc.stage(ctx, st, model.StageSearch, rc.search)
	}
	if st.leadID != "" {
		rc.stage(ctx, st, model.StageFile, rc.attachFiles)
	}
	notifyErr := rc.stage(ctx, st, model.StageNotify, rc.notify)

	st.meta.FinishedAt = utils.Now()
	rc.finish(ctx, st, notifyErr)
	if err := rc.repo.Complete(ctx, intake); err != nil {
		log.Error("Failed to persist reconciliation outcome", zap.Error(err))
		return intake, fmt.Errorf("complete intake %s: %w", intake.ID, err)
	}

	log.Info("Reconciliation finished",
		zap.String("lead_status", intake.LeadStatus),
		zap.String("notify_status", intake.NotifyStatus),
		zap.Bool("has_lead_id", intake.LeadID != nil),
		zap.Int("stage_errors", len(st.errs)),
	)
	return intake, nil
}

// stage runs fn with panic recovery. A panic becomes a stage error. The
// stage's own error, if any, is returned after being counted.
func (rc *Reconciler) stage(ctx context.Context, st *run, name string, fn func(context.Context, *run) error) error {
	wrapped := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		return fn(ctx, st)
	})
	err := wrapped(ctx)
	observer.IncReconcileStage(name, err)
	if errors.Is(err, utils.ErrPanicRecovered) {
		st.fail(name, "", err)
		if name == model.StageUpsert && st.status == "" {
			st.status = model.LeadStatusError
		}
	}
	return err
}

func (rc *Reconciler) upsert(ctx context.Context, st *run) error {
	res, err := rc.leads.UpsertLead(ctx, st.intake.Applicant(), st.job.LeadIDOverride)
	st.meta.Upsert = res
	if err != nil {
		st.meta.UpsertError = err.Error()
		st.fail(model.StageUpsert, "", err)
		st.status = model.LeadStatusError
		st.leadID = st.job.LeadIDOverride
		return err
	}

	switch {
	case res.LeadID != "":
		st.leadID = res.LeadID
		st.status = model.LeadStatusOK
	case st.job.LeadIDOverride != "":
		st.leadID = st.job.LeadIDOverride
		st.status = model.LeadStatusOK
	default:
		st.status = model.LeadStatusNoLeadID
	}
	return nil
}

func (rc *Reconciler) search(ctx context.Context, st *run) error {
	match, err := rc.leads.FindLeadID(ctx, st.intake.FirstName, st.intake.LastName, st.intake.SSNLast4)
	st.meta.Match = match
	if err != nil {
		st.meta.MatchError = err.Error()
		st.fail(model.StageSearch, "", err)
		return err
	}

	switch match.Outcome {
	case leadsystem.MatchUnique:
		st.leadID = match.LeadID
		st.status = model.LeadStatusAutoMatched
	case leadsystem.MatchAmbiguous:
		st.status = model.LeadStatusAmbiguousMatch
		logger.FromContext(ctx).Warn("Lead search is ambiguous, operator action needed",
			zap.Strings("candidate_ids", match.CandidateIDs))
	}
	return nil
}

// attachFiles attaches every stored file independently.
func (rc *Reconciler) attachFiles(ctx context.Context, st *run) error {
	files, err := st.intake.FileList()
	if err != nil {
		st.fail(model.StageFile, "", err)
		return err
	}

	var errs []error
	for _, f := range files {
		trace := FileTrace{File: f.OriginalName}
		res, err := rc.attachOne(ctx, st.leadID, f)
		if err != nil {
			trace.Error = err.Error()
			st.fail(model.StageFile, f.OriginalName, err)
			errs = append(errs, err)
		} else {
			trace.Status = res.Status
			trace.Raw = res.Raw
		}
		st.meta.Files = append(st.meta.Files, trace)
	}
	return errors.Join(errs...)
}

func (rc *Reconciler) attachOne(ctx context.Context, leadID string, f model.FileDescriptor) (*leadsystem.AttachResult, error) {
	body, err := rc.files.Open(f.StoredAs)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return rc.leads.AttachDocument(ctx, leadID, leadsystem.Document{
		Name:     f.OriginalName,
		MimeType: f.MimeType,
		Body:     body,
	})
}

func (rc *Reconciler) notify(ctx context.Context, st *run) error {
	outcome := notification.Outcome{
		LeadID:    st.leadID,
		FirstName: st.intake.FirstName,
		LastName:  st.intake.LastName,
		Phone:     st.intake.Phone,
		Email:     st.intake.Email,
		SSNLast4:  st.intake.SSNLast4,
	}
	trace := &NotifyTrace{CustomerID: outcome.LeadID}
	if trace.CustomerID == "" {
		trace.CustomerID = notification.UnknownCustomer
	}
	st.meta.Notify = trace

	res, err := rc.notifier.Notify(ctx, outcome)
	if res != nil {
		trace.Status = res.Status
		trace.Raw = res.Raw
	}
	if err != nil {
		trace.Error = err.Error()
		st.fail(model.StageNotify, "", err)
		return err
	}
	return nil
}

// finish copies the run outcome onto the intake. A trace that cannot be
// encoded is replaced by its scalar fields and recorded as a persist stage
// error, so the outcome is always stored.
func (rc *Reconciler) finish(ctx context.Context, st *run, notifyErr error) {
	in := st.intake
	now := utils.Now()
	in.CompletedAt = &now
	in.LeadID = model.StringPtr(st.leadID)
	in.LeadStatus = st.status
	if in.LeadStatus == "" {
		in.LeadStatus = model.LeadStatusError
	}

	in.NotifyStatus = model.NotifyStatusOK
	in.NotifyError = nil
	if notifyErr != nil {
		in.NotifyStatus = model.NotifyStatusError
		in.NotifyError = model.StringPtr(notifyErr.Error())
	}

	meta, err := json.Marshal(st.meta)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to encode reconcile trace", zap.Error(err))
		st.fail(model.StagePersist, "", fmt.Errorf("encode lead meta: %w", err))
		meta, _ = json.Marshal(ReconcileMeta{
			RequestedBy:    st.meta.RequestedBy,
			LeadIDOverride: st.meta.LeadIDOverride,
			UpsertError:    st.meta.UpsertError,
			MatchError:     st.meta.MatchError,
			StartedAt:      st.meta.StartedAt,
			FinishedAt:     st.meta.FinishedAt,
			EncodeError:    err.Error(),
		})
	}
	in.LeadMeta = meta

	if err := in.SetStageErrors(st.errs); err != nil {
		logger.FromContext(ctx).Error("Failed to encode stage errors", zap.Error(err))
		in.StageErrors = nil
		in.LeadError = model.StringPtr("encode stage errors: " + err.Error())
	}
}
