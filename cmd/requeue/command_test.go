package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	storagemock "gitlab.com/timkado/api/doc-intake-relay/internal/storage/mock"
	usecasemock "gitlab.com/timkado/api/doc-intake-relay/internal/usecase/mock"
)

func TestRequeue(t *testing.T) {
	repo := new(storagemock.IntakeRepoMock)
	dispatcher := new(usecasemock.DispatcherMock)
	leadID := "L-1"
	repo.On("FindByID", mock.Anything, "abc").
		Return(&model.Intake{ID: "abc", LeadStatus: model.LeadStatusAmbiguousMatch, LeadID: &leadID}, nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job model.ReconcileJob) bool {
		return job.IntakeID == "abc" && job.LeadIDOverride == "42" && job.RequestedBy == "cli" && !job.EnqueuedAt.IsZero()
	})).Return(nil).Once()

	var out bytes.Buffer
	err := requeue(t.Context(), &out, &backends{finder: repo, dispatcher: dispatcher}, " abc ", " 42 ")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "lead_status=ambiguous_match")
	assert.Contains(t, out.String(), "queued reconcile for abc with lead_id 42")
	dispatcher.AssertExpectations(t)
}

func TestRequeue_UnknownIntake(t *testing.T) {
	repo := new(storagemock.IntakeRepoMock)
	dispatcher := new(usecasemock.DispatcherMock)
	repo.On("FindByID", mock.Anything, "nope").Return(nil, fmt.Errorf("%w: intake nope", apperrors.ErrNotFound)).Once()

	err := requeue(t.Context(), &bytes.Buffer{}, &backends{finder: repo, dispatcher: dispatcher}, "nope", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestRequeue_SkipCheck(t *testing.T) {
	dispatcher := new(usecasemock.DispatcherMock)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	var out bytes.Buffer
	require.NoError(t, requeue(t.Context(), &out, &backends{dispatcher: dispatcher}, "abc", ""))
	assert.Equal(t, "queued reconcile for abc\n", out.String())
}

func TestRequeue_EmptyID(t *testing.T) {
	err := requeue(t.Context(), &bytes.Buffer{}, &backends{}, "  ", "")
	assert.EqualError(t, err, "intake id is empty")
}

func TestRootCommand(t *testing.T) {
	t.Setenv("NATS_URL", "nats://example:4222")
	dispatcher := new(usecasemock.DispatcherMock)
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job model.ReconcileJob) bool {
		return job.IntakeID == "abc" && job.LeadIDOverride == "7"
	})).Return(nil).Once()

	closed := false
	var verified bool
	cmd := newRootCommand(func(_ context.Context, cfg *config.Config, verify bool) (*backends, error) {
		assert.Equal(t, "nats://example:4222", cfg.Queue.NatsURL)
		verified = verify
		return &backends{dispatcher: dispatcher, closers: []func(){func() { closed = true }}}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"abc", "--lead-id", "7", "--skip-check"})

	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.False(t, verified)
	assert.True(t, closed)
	assert.Contains(t, out.String(), "queued reconcile for abc")
}

func TestRootCommand_ConnectError(t *testing.T) {
	cmd := newRootCommand(func(context.Context, *config.Config, bool) (*backends, error) {
		return nil, errors.New("nats: no servers available for connection")
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"abc"})
	assert.Error(t, cmd.ExecuteContext(t.Context()))
}

func TestRootCommand_RequiresArg(t *testing.T) {
	cmd := newRootCommand(defaultBackends)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.ExecuteContext(t.Context()))
}
