package httpapi

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// DocumentsField is the multipart field carrying the uploaded files.
const DocumentsField = "documents"

// multipartOverhead covers the text fields and part headers on top of the files.
const multipartOverhead = 1 << 20

// IntakeHandler serves the public intake form.
type IntakeHandler struct {
	submitter usecase.IntakeSubmitter
	upload    config.UploadConfig
}

// NewIntakeHandler creates the intake handler.
func NewIntakeHandler(submitter usecase.IntakeSubmitter, upload config.UploadConfig) *IntakeHandler {
	return &IntakeHandler{submitter: submitter, upload: upload}
}

// RegisterRoutes mounts GET / and POST /upload.
func (h *IntakeHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Form)
	r.POST("/upload", h.Upload)
}

type formField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type formDescription struct {
	Action    string      `json:"action"`
	Fields    []formField `json:"fields"`
	Documents struct {
		Field        string   `json:"field"`
		MaxFiles     int      `json:"max_files"`
		MaxFileMB    int      `json:"max_file_mb"`
		AllowedMimes []string `json:"allowed_mimes"`
	} `json:"documents"`
}

// Form describes the intake form fields and limits.
func (h *IntakeHandler) Form(c *gin.Context) {
	desc := formDescription{
		Action: "/upload",
		Fields: []formField{
			{Name: "first_name", Type: "text", Required: true},
			{Name: "last_name", Type: "text", Required: true},
			{Name: "phone", Type: "tel", Required: true},
			{Name: "email", Type: "email", Required: true},
			{Name: "ssn_last4", Type: "text", Required: true},
			{Name: "certify", Type: "checkbox", Required: true},
		},
	}
	desc.Documents.Field = DocumentsField
	desc.Documents.MaxFiles = h.upload.MaxFiles
	desc.Documents.MaxFileMB = h.upload.MaxFileMB
	desc.Documents.AllowedMimes = h.upload.AllowedMimes
	if desc.Documents.AllowedMimes == nil {
		desc.Documents.AllowedMimes = []string{}
	}
	c.JSON(http.StatusOK, desc)
}

type uploadResponse struct {
	ID           string `json:"id"`
	LeadStatus   string `json:"lead_status"`
	NotifyStatus string `json:"notify_status"`
}

// Upload accepts the multipart intake form and answers 202 once the intake is
// recorded. Reconciliation happens in the background.
func (h *IntakeHandler) Upload(c *gin.Context) {
	if limit := h.bodyLimit(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	mf, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusBadRequest, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	var form model.IntakeForm
	if err := c.ShouldBind(&form); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	headers := mf.File[DocumentsField]
	if h.upload.MaxFiles > 0 && len(headers) > h.upload.MaxFiles {
		writeError(c, http.StatusBadRequest, fmt.Errorf("too many files (max %d)", h.upload.MaxFiles))
		return
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		respondError(c, err)
		return
	}

	intake, err := h.submitter.Submit(c.Request.Context(), form, uploads)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("Intake submission failed", zap.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, uploadResponse{
		ID:           intake.ID,
		LeadStatus:   intake.LeadStatus,
		NotifyStatus: intake.NotifyStatus,
	})
}

func (h *IntakeHandler) bodyLimit() int64 {
	if h.upload.MaxFiles <= 0 || h.upload.MaxFileMB <= 0 {
		return 0
	}
	return int64(h.upload.MaxFiles)*h.upload.MaxFileBytes() + multipartOverhead
}

func openUploads(headers []*multipart.FileHeader) ([]usecase.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	uploads := make([]usecase.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("%w: read upload %q: %w", apperrors.ErrBadRequest, fh.Filename, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, usecase.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
