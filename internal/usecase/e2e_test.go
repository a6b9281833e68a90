package usecase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/filestore"
	"gitlab.com/timkado/api/doc-intake-relay/internal/leadsystem"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/notification"
	"gitlab.com/timkado/api/doc-intake-relay/internal/storage"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
)

// inlineDispatcher runs reconciliation synchronously so the test can inspect the final row.
type inlineDispatcher struct {
	rc *usecase.Reconciler
}

func (d inlineDispatcher) Dispatch(ctx context.Context, job model.ReconcileJob) error {
	_, err := d.rc.Reconcile(context.WithoutCancel(ctx), job)
	return err
}

func TestEndToEnd_NoLeadIDAndNoNameMatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sqlite in-memory tests are skipped on windows")
	}

	var upserts, searches, attaches, notifies atomic.Int32
	var notified notification.Payload
	leadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/egress/leads"):
			searches.Add(1)
			assert.Empty(t, r.URL.Query().Get("ssn_last4"))
			_, _ = w.Write([]byte(`{"results":[],"navigate":{"next":null}}`))
		case strings.HasPrefix(r.URL.Path, "/api/ingress/leads"):
			upserts.Add(1)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
		default:
			attaches.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer leadSrv.Close()

	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notifies.Add(1)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&notified))
	}))
	defer relaySrv.Close()

	repo, err := storage.Open(":memory:", true)
	require.NoError(t, err)
	defer repo.Close(context.Background())

	store := filestore.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, store.EnsureDir())

	leads := leadsystem.NewClient(config.LeadSystemConfig{
		BaseURL:          leadSrv.URL,
		APIID:            "id",
		APIKey:           "key",
		AuthMode:         config.AuthModeHeaders,
		IngressLeadsPath: "/api/ingress/leads",
		EgressLeadsPath:  "/api/egress/leads",
		DocumentsPath:    "/api/ingress/documents/upload/lead",
		SearchColumns:    "ssn,lead_id,first_name,last_name,email,phone",
		MaxSearchPages:   3,
		Timeout:          5 * time.Second,
	})
	relay := notification.NewClient(config.NotificationConfig{URL: relaySrv.URL, Authorization: "Bearer t", FlowType: "customer"}, nil)
	rc := usecase.NewReconciler(repo, leads, relay, store)
	svc := usecase.NewIntakeService(repo, store, inlineDispatcher{rc: rc}, config.UploadConfig{
		Dir: store.Dir(), MaxFiles: 10, MaxFileMB: 10, AllowedMimes: []string{"application/pdf"},
	})

	intake, err := svc.Submit(context.Background(), model.IntakeForm{
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "555-0100",
		Email:     "jane@example.com",
		SSNLast4:  "9876",
		Certify:   "on",
	}, []usecase.Upload{{Name: "Jane's Driver License.pdf", ContentType: "application/pdf", Size: 8, Body: strings.NewReader("%PDF-1.4")}})
	require.NoError(t, err)

	got, err := repo.FindByID(context.Background(), intake.ID)
	require.NoError(t, err)

	assert.Nil(t, got.LeadID)
	assert.Equal(t, model.LeadStatusNoLeadID, got.LeadStatus)
	assert.Equal(t, model.NotifyStatusOK, got.NotifyStatus)
	assert.Nil(t, got.LeadError)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "9876", got.SSNLast4)

	files, err := got.FileList()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Jane's Driver License.pdf", files[0].OriginalName)
	assert.Equal(t, "application/pdf", files[0].MimeType)

	assert.Equal(t, int32(1), upserts.Load())
	assert.Equal(t, int32(1), searches.Load())
	assert.Zero(t, attaches.Load(), "no lead id, nothing to attach to")
	assert.Equal(t, int32(1), notifies.Load())
	assert.Equal(t, notification.UnknownCustomer, notified.CustomerID)

	var meta usecase.ReconcileMeta
	require.NoError(t, json.Unmarshal(got.LeadMeta, &meta))
	require.NotNil(t, meta.Match)
	assert.Equal(t, leadsystem.MatchNotFound, meta.Match.Outcome)
	require.NotNil(t, meta.Upsert)
	assert.NotContains(t, meta.Upsert.Trace.Sent, "ssn_last4")
	assert.NotContains(t, meta.Upsert.Trace.Sent, "ssn")
}
