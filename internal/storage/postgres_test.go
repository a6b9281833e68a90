package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// Placeholder for AnyTime argument matcher
type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// Placeholder for JSON columns
type AnyJSON struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyJSON) Match(v driver.Value) bool {
	switch v.(type) {
	case []byte, string, nil:
		return true
	default:
		return false
	}
}

// newMockDB creates a sqlmock backed gorm handle using the postgres dialect.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return gormDB, mock, teardown
}

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Nil error", err: nil, expected: false},
		{name: "Context deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "Wrapped Context deadline exceeded", err: fmt.Errorf("operation failed: %w", context.DeadlineExceeded), expected: true},
		{name: "GORM Record Not Found", err: gorm.ErrRecordNotFound, expected: false},
		{name: "PG Error - Connection Exception (08000)", err: &pgconn.PgError{Code: "08000"}, expected: true},
		{name: "PG Error - Insufficient Resources (53100)", err: &pgconn.PgError{Code: "53100"}, expected: true},
		{name: "PG Error - Deadlock Detected (40P01)", err: &pgconn.PgError{Code: "40P01"}, expected: true},
		{name: "PG Error - Syntax Error (42601)", err: &pgconn.PgError{Code: "42601"}, expected: false},
		{name: "Network Error - Connection Refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), expected: true},
		{name: "Network Error - I/O Timeout", err: errors.New("read tcp 10.0.0.1:1234->10.0.0.2:5432: i/o timeout"), expected: true},
		{name: "SQLite busy", err: errors.New("database is locked"), expected: true},
		{name: "Generic Non-Transient Error", err: errors.New("some other database error"), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isTransientError(tc.err))
		})
	}
}

func TestCheckConstraintViolation(t *testing.T) {
	testCases := []struct {
		name            string
		inErr           error
		expectedStdErr  error
		originalMsgFrag string
	}{
		{name: "Nil error", inErr: nil, expectedStdErr: nil},
		{name: "GORM Record Not Found", inErr: gorm.ErrRecordNotFound, expectedStdErr: apperrors.ErrNotFound, originalMsgFrag: "record not found"},
		{name: "GORM Duplicated Key", inErr: gorm.ErrDuplicatedKey, expectedStdErr: apperrors.ErrDuplicate, originalMsgFrag: "duplicated key"},
		{name: "PG Unique Violation (23505)", inErr: &pgconn.PgError{Code: "23505", ConstraintName: "intakes_pkey"}, expectedStdErr: apperrors.ErrDuplicate, originalMsgFrag: "intakes_pkey"},
		{name: "PG Not Null Violation (23502)", inErr: &pgconn.PgError{Code: "23502", ColumnName: "ssn_last4"}, expectedStdErr: apperrors.ErrBadRequest, originalMsgFrag: "ssn_last4"},
		{name: "PG String Truncation (22001)", inErr: &pgconn.PgError{Code: "22001", ColumnName: "ssn_last4"}, expectedStdErr: apperrors.ErrBadRequest, originalMsgFrag: "value too long"},
		{name: "PG Connection (08003)", inErr: &pgconn.PgError{Code: "08003"}, expectedStdErr: apperrors.ErrDatabase, originalMsgFrag: "connection error"},
		{name: "PG Unhandled (XX000)", inErr: &pgconn.PgError{Code: "XX000"}, expectedStdErr: apperrors.ErrDatabase, originalMsgFrag: "XX000"},
		{name: "Generic", inErr: errors.New("some generic DB error"), expectedStdErr: apperrors.ErrDatabase, originalMsgFrag: "some generic DB error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkConstraintViolation(tc.inErr)
			if tc.expectedStdErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expectedStdErr)
			assert.Contains(t, err.Error(), tc.originalMsgFrag)
		})
	}
}

func TestRetryableOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := retryableOperation(ctx, newRetryPolicy(ctx, time.Second), "test", func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("not found is permanent", func(t *testing.T) {
		calls := 0
		err := retryableOperation(ctx, newRetryPolicy(ctx, time.Second), "test", func() error {
			calls++
			return fmt.Errorf("%w: x", apperrors.ErrNotFound)
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.False(t, apperrors.IsFatal(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("unknown errors are fatal", func(t *testing.T) {
		calls := 0
		base := errors.New("syntax error at or near")
		err := retryableOperation(ctx, newRetryPolicy(ctx, time.Second), "FindIntakeByID", func() error {
			calls++
			return base
		})
		assert.True(t, apperrors.IsFatal(err))
		assert.ErrorIs(t, err, base)
		assert.Contains(t, err.Error(), "FindIntakeByID")
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted transient errors are retryable", func(t *testing.T) {
		err := retryableOperation(ctx, newRetryPolicy(ctx, 50*time.Millisecond), "SaveIntake", func() error {
			return errors.New("connection refused")
		})
		assert.True(t, apperrors.IsRetryable(err))
		assert.False(t, apperrors.IsFatal(err))
	})
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@db:5432/intake"))
	assert.True(t, IsPostgresDSN("postgresql://u:p@db/intake"))
	assert.True(t, IsPostgresDSN("host=db user=u dbname=intake"))
	assert.False(t, IsPostgresDSN("file:intake.db"))
	assert.False(t, IsPostgresDSN(":memory:"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("  ", true)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestGormRepo_Close(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		mock.ExpectClose()

		assert.NoError(t, repo.Close(context.Background()))
	})

	t.Run("Close Fails", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		repo := NewGormRepo(gormDB)

		mock.ExpectClose().WillReturnError(errors.New("db close error"))

		err := repo.Close(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close SQL DB")
		assert.Contains(t, err.Error(), "db close error")
	})
}

func TestGormRepo_Ping(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		mock.ExpectPing()

		assert.NoError(t, NewGormRepo(gormDB).Ping(context.Background()))
	})

	t.Run("Failure", func(t *testing.T) {
		gormDB, mock, teardown := newMockDB(t)
		t.Cleanup(teardown)
		mock.ExpectPing().WillReturnError(errors.New("down"))

		err := NewGormRepo(gormDB).Ping(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}

func TestOpen_SQLite(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping sqlite test on windows because CGO is disabled")
	}
	logger.Log = zaptest.NewLogger(t)

	repo, err := Open(":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	assert.NoError(t, repo.Ping(context.Background()))
	assert.True(t, repo.db.Migrator().HasTable("intakes"))
}
