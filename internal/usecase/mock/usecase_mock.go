package mock

import (
	"context"
	"io"
	"os"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/doc-intake-relay/internal/leadsystem"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/notification"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
)

// LeadSystemMock mocks usecase.LeadSystem
type LeadSystemMock struct {
	mock.Mock
}

// UpsertLead mocks the UpsertLead method
func (m *LeadSystemMock) UpsertLead(ctx context.Context, fields model.ApplicantFields, leadID string) (*leadsystem.UpsertResult, error) {
	args := m.Called(ctx, fields, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leadsystem.UpsertResult), args.Error(1)
}

// FindLeadID mocks the FindLeadID method
func (m *LeadSystemMock) FindLeadID(ctx context.Context, firstName, lastName, last4 string) (*leadsystem.MatchResult, error) {
	args := m.Called(ctx, firstName, lastName, last4)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leadsystem.MatchResult), args.Error(1)
}

// AttachDocument mocks the AttachDocument method
func (m *LeadSystemMock) AttachDocument(ctx context.Context, leadID string, doc leadsystem.Document) (*leadsystem.AttachResult, error) {
	args := m.Called(ctx, leadID, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leadsystem.AttachResult), args.Error(1)
}

// NotifierMock mocks usecase.Notifier
type NotifierMock struct {
	mock.Mock
}

// Notify mocks the Notify method
func (m *NotifierMock) Notify(ctx context.Context, o notification.Outcome) (*notification.Result, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Result), args.Error(1)
}

// DocumentStoreMock mocks usecase.DocumentStore
type DocumentStoreMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *DocumentStoreMock) Save(originalName, declaredMIME string, r io.Reader, maxBytes int64) (model.FileDescriptor, error) {
	args := m.Called(originalName, declaredMIME, r, maxBytes)
	return args.Get(0).(model.FileDescriptor), args.Error(1)
}

// Open mocks the Open method
func (m *DocumentStoreMock) Open(storedAs string) (*os.File, error) {
	args := m.Called(storedAs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*os.File), args.Error(1)
}

// Remove mocks the Remove method
func (m *DocumentStoreMock) Remove(storedAs string) error {
	args := m.Called(storedAs)
	return args.Error(0)
}

// DispatcherMock mocks usecase.Dispatcher
type DispatcherMock struct {
	mock.Mock
}

// Dispatch mocks the Dispatch method
func (m *DispatcherMock) Dispatch(ctx context.Context, job model.ReconcileJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// IntakeSubmitterMock mocks usecase.IntakeSubmitter
type IntakeSubmitterMock struct {
	mock.Mock
}

// Submit mocks the Submit method
func (m *IntakeSubmitterMock) Submit(ctx context.Context, form model.IntakeForm, uploads []usecase.Upload) (*model.Intake, error) {
	args := m.Called(ctx, form, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Intake), args.Error(1)
}

// JobSubmitterMock mocks usecase.JobSubmitter
type JobSubmitterMock struct {
	mock.Mock
}

// SubmitJob mocks the SubmitJob method
func (m *JobSubmitterMock) SubmitJob(job model.ReconcileJob) error {
	args := m.Called(job)
	return args.Error(0)
}

// JobRunnerMock mocks usecase.JobRunner
type JobRunnerMock struct {
	mock.Mock
}

// Reconcile mocks the Reconcile method
func (m *JobRunnerMock) Reconcile(ctx context.Context, job model.ReconcileJob) (*model.Intake, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Intake), args.Error(1)
}

var (
	_ usecase.LeadSystem      = (*LeadSystemMock)(nil)
	_ usecase.Notifier        = (*NotifierMock)(nil)
	_ usecase.DocumentStore   = (*DocumentStoreMock)(nil)
	_ usecase.Dispatcher      = (*DispatcherMock)(nil)
	_ usecase.IntakeSubmitter = (*IntakeSubmitterMock)(nil)
	_ usecase.JobSubmitter    = (*JobSubmitterMock)(nil)
	_ usecase.JobRunner       = (*JobRunnerMock)(nil)
)
