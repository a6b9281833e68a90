package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Lead System status values stored in Intake.LeadStatus.
const (
	LeadStatusQueued         = "queued"
	LeadStatusOK             = "lead_ok"
	LeadStatusNoLeadID       = "no_lead_id"
	LeadStatusError          = "lead_error"
	LeadStatusAutoMatched    = "auto_matched"
	LeadStatusAmbiguousMatch = "ambiguous_match"
	LeadStatusEnqueueError   = "enqueue_error"
)

// Notification status values stored in Intake.NotifyStatus.
const (
	NotifyStatusQueued = "queued"
	NotifyStatusOK     = "ok"
	NotifyStatusError  = "error"
)

// Pipeline stages recorded in StageError.Stage.
const (
	StageUpsert  = "upsert"
	StageSearch  = "search"
	StageFile    = "file"
	StageNotify  = "notify"
	StageEnqueue = "enqueue"
	StagePersist = "persist"
)

// Intake is one submission and the outcome of reconciling it with the Lead System
// and the notification relay. It is inserted once at submit time and updated once
// when reconciliation completes.
type Intake struct {
	ID           string         `json:"id" gorm:"column:id;primaryKey;type:varchar(36)"`
	CreatedAt    time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" gorm:"column:completed_at"`
	FirstName    string         `json:"first_name" gorm:"column:first_name;not null"`
	LastName     string         `json:"last_name" gorm:"column:last_name;not null"`
	Phone        string         `json:"phone" gorm:"column:phone;not null"`
	Email        string         `json:"email" gorm:"column:email;not null"`
	SSNLast4     string         `json:"ssn_last4" gorm:"column:ssn_last4;type:char(4);not null"`
	LeadID       *string        `json:"lead_id" gorm:"column:lead_id;index"`
	LeadStatus   string         `json:"lead_status" gorm:"column:lead_status;index;not null"`
	LeadError    *string        `json:"lead_error,omitempty" gorm:"column:lead_error;type:text"`
	NotifyStatus string         `json:"notify_status" gorm:"column:notify_status;not null"`
	NotifyError  *string        `json:"notify_error,omitempty" gorm:"column:notify_error;type:text"`
	Files        datatypes.JSON `json:"files" gorm:"type:jsonb;column:files;not null"`
	LeadMeta     datatypes.JSON `json:"lead_meta,omitempty" gorm:"type:jsonb;column:lead_meta"`
	StageErrors  datatypes.JSON `json:"stage_errors,omitempty" gorm:"type:jsonb;column:stage_errors"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Intake) TableName(namer schema.Namer) string {
	return namer.TableName("intakes")
}

// CompletionUpdatableFields lists the columns written when reconciliation completes.
// files and the applicant fields are never rewritten.
func CompletionUpdatableFields() []string {
	return []string{
		"completed_at", "lead_id", "lead_status", "lead_error",
		"notify_status", "notify_error", "lead_meta", "stage_errors",
	}
}

// FileDescriptor describes one uploaded document stored on disk.
type FileDescriptor struct {
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	StoredAs     string `json:"stored_as"`
	Path         string `json:"path"`
}

// StageError records the failure of one pipeline stage.
type StageError struct {
	Stage string `json:"stage"`
	Ref   string `json:"ref,omitempty"` // e.g. the file name for file stage errors
	Error string `json:"error"`
}

// SetFiles encodes the descriptor list into the Files column.
func (i *Intake) SetFiles(files []FileDescriptor) error {
	if files == nil {
		files = []FileDescriptor{}
	}
	b, err := json.Marshal(files)
	if err != nil {
		return err
	}
	i.Files = datatypes.JSON(b)
	return nil
}

// FileList decodes the Files column. An empty column yields an empty list.
func (i *Intake) FileList() ([]FileDescriptor, error) {
	var files []FileDescriptor
	if len(i.Files) == 0 {
		return files, nil
	}
	if err := json.Unmarshal(i.Files, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// SetStageErrors stores the structured error list and the legacy pipe-joined
// text of the lead-system stages.
func (i *Intake) SetStageErrors(errs []StageError) error {
	if len(errs) == 0 {
		i.StageErrors = nil
		i.LeadError = nil
		return nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	i.StageErrors = datatypes.JSON(b)

	var parts []string
	for _, e := range errs {
		if e.Stage == StageNotify {
			continue
		}
		if e.Ref != "" {
			parts = append(parts, e.Ref+": "+e.Error)
		} else {
			parts = append(parts, e.Error)
		}
	}
	if len(parts) > 0 {
		joined := strings.Join(parts, " | ")
		i.LeadError = &joined
	} else {
		i.LeadError = nil
	}
	return nil
}

// StageErrorList decodes the StageErrors column.
func (i *Intake) StageErrorList() ([]StageError, error) {
	var errs []StageError
	if len(i.StageErrors) == 0 {
		return errs, nil
	}
	if err := json.Unmarshal(i.StageErrors, &errs); err != nil {
		return nil, err
	}
	return errs, nil
}

// LeadIDValue returns the lead id or "" when unset.
func (i *Intake) LeadIDValue() string {
	if i.LeadID == nil {
		return ""
	}
	return *i.LeadID
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
