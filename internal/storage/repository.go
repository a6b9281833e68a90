package storage

import (
	"context"

	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
)

// IntakeRepo defines intake storage operations. An intake row is inserted once
// by Save and updated once by Complete.
type IntakeRepo interface {
	Save(ctx context.Context, intake *model.Intake) error
	Complete(ctx context.Context, intake *model.Intake) error
	FindByID(ctx context.Context, id string) (*model.Intake, error)
	ListRecent(ctx context.Context, limit int) ([]model.Intake, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
