package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
)

// IntakeRepoMock mocks the storage.IntakeRepo interface
type IntakeRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *IntakeRepoMock) Save(ctx context.Context, intake *model.Intake) error {
	args := m.Called(ctx, intake)
	return args.Error(0)
}

// Complete mocks the Complete method
func (m *IntakeRepoMock) Complete(ctx context.Context, intake *model.Intake) error {
	args := m.Called(ctx, intake)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *IntakeRepoMock) FindByID(ctx context.Context, id string) (*model.Intake, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Intake), args.Error(1)
}

// ListRecent mocks the ListRecent method
func (m *IntakeRepoMock) ListRecent(ctx context.Context, limit int) ([]model.Intake, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Intake), args.Error(1)
}

// Ping mocks the Ping method
func (m *IntakeRepoMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks the Close method
func (m *IntakeRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
