package storage

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

const completeQuery = `UPDATE "intakes" SET "completed_at"=$1,"lead_id"=$2,"lead_status"=$3,"lead_error"=$4,"notify_status"=$5,"notify_error"=$6,"lead_meta"=$7,"stage_errors"=$8 WHERE id = $9`

func TestGormRepo_FindByID(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "ssn_last4", "lead_status", "notify_status", "files"}).
			AddRow("intake-1", "Jane", "Doe", "9876", model.LeadStatusQueued, model.NotifyStatusQueued, []byte(`[{"original_name":"a.pdf"}]`))
		mock.ExpectQuery(`SELECT * FROM "intakes" WHERE id = $1 ORDER BY "intakes"."id" LIMIT $2`).
			WithArgs("intake-1", 1).
			WillReturnRows(rows)

		got, err := repo.FindByID(context.Background(), "intake-1")
		require.NoError(t, err)
		assert.Equal(t, "Jane", got.FirstName)
		files, err := got.FileList()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "a.pdf", files[0].OriginalName)
	})

	t.Run("Not Found", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		mock.ExpectQuery(`SELECT * FROM "intakes" WHERE id = $1 ORDER BY "intakes"."id" LIMIT $2`).
			WithArgs("missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestGormRepo_ListRecent(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	t.Cleanup(teardown)
	repo := NewGormRepo(gormDB)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).
		AddRow("b", now).
		AddRow("a", now.Add(-time.Minute))
	mock.ExpectQuery(`SELECT * FROM "intakes" ORDER BY created_at DESC LIMIT $1`).
		WithArgs(200).
		WillReturnRows(rows)

	got, err := repo.ListRecent(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	_, err = repo.ListRecent(context.Background(), 0)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestGormRepo_Complete(t *testing.T) {
	t.Run("Single update", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		intake := model.NewIntake()
		intake.LeadStatus = model.LeadStatusNoLeadID
		intake.NotifyStatus = model.NotifyStatusOK

		mock.ExpectExec(completeQuery).
			WithArgs(AnyTime{}, nil, model.LeadStatusNoLeadID, nil, model.NotifyStatusOK, nil, AnyJSON{}, AnyJSON{}, intake.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Complete(context.Background(), intake))
		assert.NotNil(t, intake.CompletedAt)
	})

	t.Run("Missing row", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		intake := model.NewIntake()
		mock.ExpectExec(completeQuery).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Complete(context.Background(), intake)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("Permanent error is not retried", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		mock.ExpectExec(completeQuery).WillReturnError(errors.New("syntax error"))

		err := repo.Complete(context.Background(), model.NewIntake())
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}

// IntakeRepoSuite exercises the repository end to end against in-memory SQLite.
type IntakeRepoSuite struct {
	suite.Suite
	repo *GormRepo
	ctx  context.Context
}

func (s *IntakeRepoSuite) SetupTest() {
	if runtime.GOOS == "windows" {
		s.T().Skip("skipping sqlite test on windows because CGO is disabled")
	}
	logger.Log = zaptest.NewLogger(s.T())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1) // every :memory: connection is a separate database
	s.Require().NoError(db.AutoMigrate(&model.Intake{}))

	s.repo = NewGormRepo(db)
	s.ctx = context.Background()
}

func (s *IntakeRepoSuite) TearDownTest() {
	if s.repo != nil {
		_ = s.repo.Close(s.ctx)
	}
}

func (s *IntakeRepoSuite) TestSaveAndFind() {
	intake := model.NewIntake(&model.Intake{FirstName: "Jane", LastName: "Doe", SSNLast4: "9876"})
	s.Require().NoError(s.repo.Save(s.ctx, intake))

	got, err := s.repo.FindByID(s.ctx, intake.ID)
	s.Require().NoError(err)
	s.Equal("Jane", got.FirstName)
	s.Equal("9876", got.SSNLast4)
	s.Equal(model.LeadStatusQueued, got.LeadStatus)
	s.Nil(got.LeadID)
	s.Nil(got.CompletedAt)

	files, err := got.FileList()
	s.Require().NoError(err)
	s.Len(files, 1)
}

func (s *IntakeRepoSuite) TestSaveDuplicate() {
	intake := model.NewIntake()
	s.Require().NoError(s.repo.Save(s.ctx, intake))

	dup := model.NewIntake(&model.Intake{ID: intake.ID})
	err := s.repo.Save(s.ctx, dup)
	s.ErrorIs(err, apperrors.ErrDuplicate)
}

func (s *IntakeRepoSuite) TestCompleteKeepsFiles() {
	intake := model.NewIntake()
	originalFiles := string(intake.Files)
	s.Require().NoError(s.repo.Save(s.ctx, intake))

	intake.LeadID = model.StringPtr("L-77")
	intake.LeadStatus = model.LeadStatusAutoMatched
	intake.NotifyStatus = model.NotifyStatusError
	intake.NotifyError = model.StringPtr("relay returned 502")
	intake.LeadMeta = model.RandomJSONBMap(map[string]interface{}{"search": map[string]interface{}{"pages": 1}})
	s.Require().NoError(intake.SetStageErrors([]model.StageError{{Stage: model.StageNotify, Error: "relay returned 502"}}))
	intake.Files = nil // must not be written

	s.Require().NoError(s.repo.Complete(s.ctx, intake))

	got, err := s.repo.FindByID(s.ctx, intake.ID)
	s.Require().NoError(err)
	s.Equal("L-77", got.LeadIDValue())
	s.Equal(model.LeadStatusAutoMatched, got.LeadStatus)
	s.Equal(model.NotifyStatusError, got.NotifyStatus)
	s.NotNil(got.CompletedAt)
	s.JSONEq(originalFiles, string(got.Files))

	errs, err := got.StageErrorList()
	s.Require().NoError(err)
	s.Len(errs, 1)
}

func (s *IntakeRepoSuite) TestCompleteMissing() {
	err := s.repo.Complete(s.ctx, model.NewIntake())
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *IntakeRepoSuite) TestListRecentNewestFirst() {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.repo.Save(s.ctx, model.NewIntake(&model.Intake{CreatedAt: base.Add(time.Duration(i) * time.Minute)})))
	}

	got, err := s.repo.ListRecent(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.True(got[0].CreatedAt.After(got[1].CreatedAt))
	s.True(got[1].CreatedAt.After(got[2].CreatedAt))
}

func (s *IntakeRepoSuite) TestPing() {
	s.NoError(s.repo.Ping(s.ctx))
}

func TestIntakeRepoSuite(t *testing.T) {
	suite.Run(t, new(IntakeRepoSuite))
}
