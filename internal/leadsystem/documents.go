package leadsystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

// Document is a file to attach to a lead.
type Document struct {
	Name        string // original file name sent to the Lead System
	MimeType    string
	Description string
	Body        io.Reader
}

// AttachResult is the Lead System answer to a document upload.
type AttachResult struct {
	Status int             `json:"status"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// AttachDocument streams doc to the lead's document endpoint as multipart
// field "file". Header auth is always used on this endpoint.
func (c *Client) AttachDocument(ctx context.Context, leadID string, doc Document) (*AttachResult, error) {
	if strings.TrimSpace(leadID) == "" {
		return nil, fmt.Errorf("%w: lead id is required to attach a document", apperrors.ErrValidation)
	}
	if doc.Body == nil {
		return nil, fmt.Errorf("%w: document %q has no content", apperrors.ErrValidation, doc.Name)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeDocument(mw, doc))
	}()

	endpoint := strings.TrimRight(c.endpoint(c.cfg.DocumentsPath), "/") + "/" + url.PathEscape(leadID)
	req, err := http.NewRequest(http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("build attach request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.setHeaderAuth(req)

	resp, err := c.do(ctx, OpAttach, "multipart", req)
	// unblock the writer if the request ended early
	_ = pr.Close()
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Document attached to lead",
		zap.String("component", "leadsystem"),
		zap.String("lead_id", leadID),
		zap.String("file", doc.Name),
		zap.Int("status", resp.status),
	)
	return &AttachResult{Status: resp.status, Raw: rawJSON(resp.body)}, nil
}

func writeDocument(mw *multipart.Writer, doc Document) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(doc.Name)))
	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, doc.Body); err != nil {
		return fmt.Errorf("stream %s: %w", doc.Name, err)
	}
	if doc.Description != "" {
		if err := mw.WriteField("description", doc.Description); err != nil {
			return err
		}
	}
	return mw.Close()
}
