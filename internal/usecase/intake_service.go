package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/internal/reqctx"
	"gitlab.com/timkado/api/doc-intake-relay/internal/storage"
	"gitlab.com/timkado/api/doc-intake-relay/internal/validator"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

// Upload is one file received with the intake form.
type Upload struct {
	Name        string
	ContentType string
	Size        int64 // declared size, -1 when unknown
	Body        io.Reader
}

// IntakeService validates and stores new intakes and hands them to
// reconciliation. It never calls the remote systems itself.
type IntakeService struct {
	repo       storage.IntakeRepo
	files      DocumentStore
	dispatcher Dispatcher
	cfg        config.UploadConfig
}

var _ IntakeSubmitter = (*IntakeService)(nil)

// NewIntakeService creates a new intake service
func NewIntakeService(repo storage.IntakeRepo, files DocumentStore, dispatcher Dispatcher, cfg config.UploadConfig) *IntakeService {
	return &IntakeService{
		repo:       repo,
		files:      files,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Submit validates the form and files, stores them, records the intake as
// queued and dispatches reconciliation. Validation errors wrap
// apperrors.ErrValidation and leave nothing behind. A dispatch failure is not
// returned: the intake is completed with lead_status enqueue_error instead.
func (s *IntakeService) Submit(ctx context.Context, form model.IntakeForm, uploads []Upload) (*model.Intake, error) {
	form = sanitizeForm(form)
	if err := validator.Validate(form); err != nil {
		observer.IncIntakeSubmitted("rejected")
		return nil, err
	}
	if err := s.checkUploads(uploads); err != nil {
		observer.IncIntakeSubmitted("rejected")
		return nil, err
	}

	intake := &model.Intake{
		ID:           uuid.New().String(),
		CreatedAt:    utils.Now(),
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Phone:        form.Phone,
		Email:        form.Email,
		SSNLast4:     form.SSNLast4,
		LeadStatus:   model.LeadStatusQueued,
		NotifyStatus: model.NotifyStatusQueued,
	}
	ctx = reqctx.WithIntakeID(ctx, intake.ID)
	log := logger.FromContext(ctx).With(zap.String("component", "intake_service"))

	stored, err := s.storeUploads(uploads)
	if err != nil {
		observer.IncIntakeSubmitted("rejected")
		return nil, err
	}
	if err := intake.SetFiles(stored); err != nil {
		s.removeAll(ctx, stored)
		observer.IncIntakeSubmitted("error")
		return nil, fmt.Errorf("encode file list: %w", err)
	}

	if err := s.repo.Save(ctx, intake); err != nil {
		s.removeAll(ctx, stored)
		observer.IncIntakeSubmitted("error")
		log.Error("Failed to save intake", zap.Error(err))
		return nil, err
	}
	observer.AddIntakeFiles(len(stored))

	job := model.ReconcileJob{IntakeID: intake.ID, RequestedBy: "intake", EnqueuedAt: utils.Now()}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		log.Error("Failed to dispatch reconcile job", zap.Error(err))
		s.markEnqueueError(ctx, intake, err)
		observer.IncIntakeSubmitted("enqueue_error")
		return intake, nil
	}

	observer.IncIntakeSubmitted("accepted")
	log.Info("Intake accepted", zap.Int("files", len(stored)))
	return intake, nil
}

func sanitizeForm(f model.IntakeForm) model.IntakeForm {
	return model.IntakeForm{
		FirstName: validator.Sanitize(f.FirstName),
		LastName:  validator.Sanitize(f.LastName),
		Phone:     validator.Sanitize(f.Phone),
		Email:     validator.Sanitize(f.Email),
		SSNLast4:  validator.Sanitize(f.SSNLast4),
		Certify:   strings.ToLower(validator.Sanitize(f.Certify)),
	}
}

// checkUploads applies the limits that can be checked before writing to disk.
func (s *IntakeService) checkUploads(uploads []Upload) error {
	if s.cfg.MaxFiles > 0 && len(uploads) > s.cfg.MaxFiles {
		return fmt.Errorf("%w: too many files (max %d)", apperrors.ErrValidation, s.cfg.MaxFiles)
	}
	maxBytes := s.cfg.MaxFileBytes()
	for _, u := range uploads {
		if u.Body == nil {
			return fmt.Errorf("%w: file %q is empty", apperrors.ErrValidation, u.Name)
		}
		if maxBytes > 0 && u.Size > maxBytes {
			return fmt.Errorf("%w: file %q exceeds %s", apperrors.ErrValidation, u.Name, utils.ByteCountSI(maxBytes))
		}
		declared := baseMIME(u.ContentType)
		if declared != "" && declared != "application/octet-stream" && !s.mimeAllowed(declared) {
			return fmt.Errorf("%w: unsupported file type: %s", apperrors.ErrValidation, declared)
		}
	}
	return nil
}

// storeUploads writes every upload; on any failure the ones already written are removed.
func (s *IntakeService) storeUploads(uploads []Upload) ([]model.FileDescriptor, error) {
	stored := make([]model.FileDescriptor, 0, len(uploads))
	for _, u := range uploads {
		desc, err := s.files.Save(u.Name, u.ContentType, u.Body, s.cfg.MaxFileBytes())
		if err != nil {
			s.removeAll(context.Background(), stored)
			if errors.Is(err, apperrors.ErrValidation) {
				return nil, err
			}
			return nil, fmt.Errorf("store %q: %w", u.Name, err)
		}
		stored = append(stored, desc)
		if !s.mimeAllowed(desc.MimeType) {
			s.removeAll(context.Background(), stored)
			return nil, fmt.Errorf("%w: unsupported file type: %s", apperrors.ErrValidation, desc.MimeType)
		}
	}
	return stored, nil
}

func (s *IntakeService) mimeAllowed(mimeType string) bool {
	if len(s.cfg.AllowedMimes) == 0 {
		return true
	}
	mimeType = baseMIME(mimeType)
	for _, allowed := range s.cfg.AllowedMimes {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func (s *IntakeService) removeAll(ctx context.Context, files []model.FileDescriptor) {
	for _, f := range files {
		if err := s.files.Remove(f.StoredAs); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove stored file", zap.String("stored_as", f.StoredAs), zap.Error(err))
		}
	}
}

func (s *IntakeService) markEnqueueError(ctx context.Context, intake *model.Intake, cause error) {
	now := utils.Now()
	intake.LeadStatus = model.LeadStatusEnqueueError
	intake.CompletedAt = &now
	if err := intake.SetStageErrors([]model.StageError{{Stage: model.StageEnqueue, Error: cause.Error()}}); err != nil {
		logger.FromContext(ctx).Error("Failed to encode stage errors", zap.Error(err))
	}
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repo.Complete(completeCtx, intake); err != nil {
		logger.FromContext(ctx).Error("Failed to record enqueue error", zap.Error(err))
	}
}

func baseMIME(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
}
