package usecase_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/filestore"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	storagemock "gitlab.com/timkado/api/doc-intake-relay/internal/storage/mock"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	usecasemock "gitlab.com/timkado/api/doc-intake-relay/internal/usecase/mock"
)

func testUploadConfig(dir string) config.UploadConfig {
	return config.UploadConfig{
		Dir:          dir,
		MaxFiles:     2,
		MaxFileMB:    1,
		AllowedMimes: []string{"application/pdf", "image/png"},
	}
}

func validForm() model.IntakeForm {
	return model.IntakeForm{
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "555-0100",
		Email:     "jane@example.com",
		SSNLast4:  "9876",
		Certify:   "on",
	}
}

func pdfUpload(name string) usecase.Upload {
	return usecase.Upload{Name: name, ContentType: "application/pdf", Size: 8, Body: strings.NewReader("%PDF-1.4")}
}

type intakeFixture struct {
	svc        *usecase.IntakeService
	repo       *storagemock.IntakeRepoMock
	dispatcher *usecasemock.DispatcherMock
	store      *filestore.Store
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	dir := t.TempDir()
	store := filestore.New(dir, zaptest.NewLogger(t))
	require.NoError(t, store.EnsureDir())
	repo := new(storagemock.IntakeRepoMock)
	dispatcher := new(usecasemock.DispatcherMock)
	return &intakeFixture{
		svc:        usecase.NewIntakeService(repo, store, dispatcher, testUploadConfig(dir)),
		repo:       repo,
		dispatcher: dispatcher,
		store:      store,
	}
}

func (f *intakeFixture) storedFiles(t *testing.T) []os.DirEntry {
	entries, err := os.ReadDir(f.store.Dir())
	require.NoError(t, err)
	return entries
}

func TestSubmit_Accepted(t *testing.T) {
	f := newIntakeFixture(t)

	var saved *model.Intake
	f.repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Intake")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*model.Intake) }).
		Return(nil).Once()
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job model.ReconcileJob) bool {
		return job.IntakeID != "" && job.RequestedBy == "intake" && job.LeadIDOverride == ""
	})).Return(nil).Once()

	form := validForm()
	form.FirstName = "  <b>Jane</b> "
	intake, err := f.svc.Submit(context.Background(), form, []usecase.Upload{pdfUpload("Jane Doe ID.pdf")})
	require.NoError(t, err)

	f.repo.AssertExpectations(t)
	f.dispatcher.AssertExpectations(t)
	f.repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	assert.Same(t, saved, intake)
	assert.Len(t, intake.ID, 36)
	assert.Equal(t, "Jane", intake.FirstName)
	assert.Equal(t, "9876", intake.SSNLast4)
	assert.Equal(t, model.LeadStatusQueued, intake.LeadStatus)
	assert.Equal(t, model.NotifyStatusQueued, intake.NotifyStatus)
	assert.Nil(t, intake.LeadID)

	files, err := intake.FileList()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Jane Doe ID.pdf", files[0].OriginalName)
	assert.Equal(t, "application/pdf", files[0].MimeType)
	assert.True(t, strings.HasPrefix(files[0].StoredAs, "Jane_Doe_ID_"))
	assert.Len(t, f.storedFiles(t), 1)
}

func TestSubmit_NoFiles(t *testing.T) {
	f := newIntakeFixture(t)
	f.repo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	intake, err := f.svc.Submit(context.Background(), validForm(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(intake.Files))
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.IntakeForm)
		uploads []usecase.Upload
		want    string
	}{
		{"missing first name", func(f *model.IntakeForm) { f.FirstName = "" }, nil, "first_name"},
		{"only markup in last name", func(f *model.IntakeForm) { f.LastName = "<i></i>" }, nil, "last_name"},
		{"certify not checked", func(f *model.IntakeForm) { f.Certify = "" }, nil, "certify"},
		{"certify off", func(f *model.IntakeForm) { f.Certify = "off" }, nil, "certify"},
		{"ssn letters", func(f *model.IntakeForm) { f.SSNLast4 = "12a4" }, nil, "ssn_last4"},
		{"ssn five digits", func(f *model.IntakeForm) { f.SSNLast4 = "12345" }, nil, "ssn_last4"},
		{"ssn signed", func(f *model.IntakeForm) { f.SSNLast4 = "+123" }, nil, "ssn_last4"},
		{"bad email", func(f *model.IntakeForm) { f.Email = "not-an-email" }, nil, "email"},
		{
			"too many files", nil,
			[]usecase.Upload{pdfUpload("a.pdf"), pdfUpload("b.pdf"), pdfUpload("c.pdf")},
			"too many files",
		},
		{
			"declared type not allowed", nil,
			[]usecase.Upload{{Name: "a.exe", ContentType: "application/x-msdownload", Size: 1, Body: strings.NewReader("MZ")}},
			"unsupported file type: application/x-msdownload",
		},
		{
			"declared size too large", nil,
			[]usecase.Upload{{Name: "big.pdf", ContentType: "application/pdf", Size: 2 << 20, Body: strings.NewReader("x")}},
			"exceeds",
		},
		{
			"streamed size too large", nil,
			[]usecase.Upload{{Name: "big.pdf", ContentType: "application/pdf", Size: -1, Body: strings.NewReader(strings.Repeat("x", 1<<20+1))}},
			"exceeds",
		},
		{
			"sniffed type not allowed", nil,
			[]usecase.Upload{pdfUpload("ok.pdf"), {Name: "notes", ContentType: "application/octet-stream", Size: -1, Body: strings.NewReader("just some text")}},
			"unsupported file type: text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			form := validForm()
			if tt.mutate != nil {
				tt.mutate(&form)
			}

			intake, err := f.svc.Submit(context.Background(), form, tt.uploads)
			require.Error(t, err)
			assert.Nil(t, intake)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)

			f.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
			assert.Empty(t, f.storedFiles(t), "no file may remain after a rejected submission")
		})
	}
}

func TestSubmit_SaveFailureRemovesFiles(t *testing.T) {
	f := newIntakeFixture(t)
	f.repo.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrDatabase).Once()

	_, err := f.svc.Submit(context.Background(), validForm(), []usecase.Upload{pdfUpload("a.pdf")})
	require.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.Empty(t, f.storedFiles(t))
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSubmit_DispatchFailureMarksEnqueueError(t *testing.T) {
	f := newIntakeFixture(t)
	f.repo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("nats: no responders available")).Once()
	f.repo.On("Complete", mock.Anything, mock.MatchedBy(func(in *model.Intake) bool {
		return in.LeadStatus == model.LeadStatusEnqueueError && in.CompletedAt != nil
	})).Return(nil).Once()

	intake, err := f.svc.Submit(context.Background(), validForm(), []usecase.Upload{pdfUpload("a.pdf")})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)

	assert.Equal(t, model.LeadStatusEnqueueError, intake.LeadStatus)
	assert.Equal(t, model.NotifyStatusQueued, intake.NotifyStatus)
	require.NotNil(t, intake.LeadError)
	assert.Contains(t, *intake.LeadError, "no responders")

	stageErrs, err := intake.StageErrorList()
	require.NoError(t, err)
	require.Len(t, stageErrs, 1)
	assert.Equal(t, model.StageEnqueue, stageErrs[0].Stage)
	assert.Len(t, f.storedFiles(t), 1, "files are kept for a later requeue")
}
