package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewFileDescriptor creates a FileDescriptor with fake data.
func NewFileDescriptor(overrideDefaults ...*FileDescriptor) FileDescriptor {
	name := gofakeit.Word() + ".pdf"
	storedAs := fmt.Sprintf("%s_%d.pdf", gofakeit.Word(), utils.Now().UnixMilli())
	base := FileDescriptor{
		OriginalName: name,
		MimeType:     "application/pdf",
		Size:         int64(gofakeit.Number(1024, 1024*1024)),
		StoredAs:     storedAs,
		Path:         "uploads/" + storedAs,
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.OriginalName != "" {
			base.OriginalName = ovr.OriginalName
		}
		if ovr.MimeType != "" {
			base.MimeType = ovr.MimeType
		}
		if ovr.Size != 0 {
			base.Size = ovr.Size
		}
		if ovr.StoredAs != "" {
			base.StoredAs = ovr.StoredAs
		}
		if ovr.Path != "" {
			base.Path = ovr.Path
		}
	}
	return base
}

// NewIntake creates a queued Intake instance with default fake data and one file.
func NewIntake(overrideDefaults ...*Intake) *Intake {
	base := &Intake{
		ID:           uuid.NewString(),
		CreatedAt:    utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Minute),
		FirstName:    gofakeit.FirstName(),
		LastName:     gofakeit.LastName(),
		Phone:        gofakeit.Phone(),
		Email:        gofakeit.Email(),
		SSNLast4:     gofakeit.DigitN(4),
		LeadStatus:   LeadStatusQueued,
		NotifyStatus: NotifyStatusQueued,
	}
	_ = base.SetFiles([]FileDescriptor{NewFileDescriptor()})

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if ovr.FirstName != "" {
			base.FirstName = ovr.FirstName
		}
		if ovr.LastName != "" {
			base.LastName = ovr.LastName
		}
		if ovr.Phone != "" {
			base.Phone = ovr.Phone
		}
		if ovr.Email != "" {
			base.Email = ovr.Email
		}
		if ovr.SSNLast4 != "" {
			base.SSNLast4 = ovr.SSNLast4
		}
		if ovr.LeadStatus != "" {
			base.LeadStatus = ovr.LeadStatus
		}
		if ovr.NotifyStatus != "" {
			base.NotifyStatus = ovr.NotifyStatus
		}
		if ovr.Files != nil {
			base.Files = ovr.Files
		}
		base.LeadID = ovr.LeadID
		base.CompletedAt = ovr.CompletedAt
	}
	return base
}

// NewLeadCandidate creates a search row with a full SSN ending in last4.
func NewLeadCandidate(leadID, last4 string) LeadCandidate {
	ssn := fmt.Sprintf("%s-%s-%s", gofakeit.DigitN(3), gofakeit.DigitN(2), last4)
	return LeadCandidate{
		LeadID:    leadID,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
		Phone:     gofakeit.Phone(),
		SSN:       ssn,
		Raw: map[string]interface{}{
			"lead_id": leadID,
			"ssn":     ssn,
		},
	}
}

// NewReconcileJob creates a job for the given intake.
func NewReconcileJob(intakeID string) *ReconcileJob {
	return &ReconcileJob{
		IntakeID:   intakeID,
		EnqueuedAt: utils.Now(),
	}
}
