package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

const intakeEntity = "intake"

// Save inserts a new intake row.
func (r *GormRepo) Save(ctx context.Context, intake *model.Intake) error {
	if intake == nil || intake.ID == "" {
		return fmt.Errorf("%w: intake id is required", apperrors.ErrBadRequest)
	}
	if intake.CreatedAt.IsZero() {
		intake.CreatedAt = utils.Now()
	}

	operation := func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(intake).Error)
	}

	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "SaveIntake", operation)
	observer.ObserveDbOperationDuration("save", intakeEntity, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save intake", zap.String("intake_id", intake.ID), zap.Error(err))
		return err
	}

	logger.FromContext(ctx).Debug("Saved intake", zap.String("intake_id", intake.ID))
	return nil
}

// Complete writes the reconciliation outcome in a single UPDATE. Applicant
// fields and the file list are never touched.
func (r *GormRepo) Complete(ctx context.Context, intake *model.Intake) error {
	if intake == nil || intake.ID == "" {
		return fmt.Errorf("%w: intake id is required", apperrors.ErrBadRequest)
	}
	if intake.CompletedAt == nil {
		now := utils.Now()
		intake.CompletedAt = &now
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Intake{}).
			Where("id = ?", intake.ID).
			Select(model.CompletionUpdatableFields()).
			Updates(intake)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: intake %s", apperrors.ErrNotFound, intake.ID)
		}
		return nil
	}

	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "CompleteIntake", operation)
	observer.ObserveDbOperationDuration("complete", intakeEntity, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to complete intake", zap.String("intake_id", intake.ID), zap.Error(err))
		return err
	}
	return nil
}

// FindByID loads one intake.
func (r *GormRepo) FindByID(ctx context.Context, id string) (*model.Intake, error) {
	var intake model.Intake
	operation := func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Where("id = ?", id).First(&intake).Error)
	}

	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindIntakeByID", operation)
	observer.ObserveDbOperationDuration("find", intakeEntity, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return &intake, nil
}

// ListRecent returns up to limit intakes, newest first.
func (r *GormRepo) ListRecent(ctx context.Context, limit int) ([]model.Intake, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", apperrors.ErrBadRequest)
	}

	var intakes []model.Intake
	operation := func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&intakes).Error)
	}

	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "ListRecentIntakes", operation)
	observer.ObserveDbOperationDuration("list", intakeEntity, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return intakes, nil
}
