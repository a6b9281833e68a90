package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/reqctx"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

const defaultListLimit = 200

// IntakeReader is the read side of the intake repository.
type IntakeReader interface {
	FindByID(ctx context.Context, id string) (*model.Intake, error)
	ListRecent(ctx context.Context, limit int) ([]model.Intake, error)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	intakes    IntakeReader
	dispatcher usecase.Dispatcher
	cfg        config.AdminConfig
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(intakes IntakeReader, dispatcher usecase.Dispatcher, cfg config.AdminConfig) *AdminHandler {
	return &AdminHandler{intakes: intakes, dispatcher: dispatcher, cfg: cfg}
}

// RegisterRoutes mounts the admin group behind basic auth.
func (h *AdminHandler) RegisterRoutes(r gin.IRouter) {
	admin := r.Group("/admin", AdminAuth(h.cfg))
	{
		admin.GET("/intakes", h.List)
		admin.GET("/intakes/:id", h.Get)
		admin.POST("/intakes/:id/reconcile", h.Reconcile)
	}
}

type intakeListItem struct {
	model.Intake
	CreatedAtFmt string `json:"created_at_fmt"`
}

type intakeListResponse struct {
	Items []intakeListItem `json:"items"`
	Count int              `json:"count"`
	Limit int              `json:"limit"`
}

func (h *AdminHandler) listLimit() int {
	if h.cfg.ListLimit > 0 {
		return h.cfg.ListLimit
	}
	return defaultListLimit
}

// List returns the newest intakes first.
func (h *AdminHandler) List(c *gin.Context) {
	maxLimit := h.listLimit()
	limit := maxLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxLimit)
	}

	intakes, err := h.intakes.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]intakeListItem, 0, len(intakes))
	for _, in := range intakes {
		items = append(items, intakeListItem{Intake: in, CreatedAtFmt: utils.FormatAdmin(in.CreatedAt)})
	}
	c.JSON(http.StatusOK, intakeListResponse{Items: items, Count: len(items), Limit: limit})
}

// Get returns one intake with its diagnostic trace.
func (h *AdminHandler) Get(c *gin.Context) {
	intake, err := h.intakes.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intakeListItem{Intake: *intake, CreatedAtFmt: utils.FormatAdmin(intake.CreatedAt)})
}

type reconcileRequest struct {
	LeadID string `json:"lead_id"`
}

type reconcileResponse struct {
	ID             string `json:"id"`
	Queued         bool   `json:"queued"`
	LeadIDOverride string `json:"lead_id_override,omitempty"`
}

// Reconcile re-runs reconciliation for an intake, optionally pinning the lead id.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	ctx := reqctx.WithIntakeID(c.Request.Context(), c.Param("id"))
	intake, err := h.intakes.FindByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	job := model.ReconcileJob{
		IntakeID:       intake.ID,
		LeadIDOverride: strings.TrimSpace(req.LeadID),
		RequestedBy:    "admin",
		EnqueuedAt:     utils.Now(),
	}
	if err := h.dispatcher.Dispatch(ctx, job); err != nil {
		logger.FromContext(ctx).Error("Failed to dispatch operator reconcile", zap.Error(err))
		if !errors.Is(err, apperrors.ErrQueue) {
			err = fmt.Errorf("%w: %w", apperrors.ErrQueue, err)
		}
		respondError(c, err)
		return
	}

	logger.FromContext(ctx).Info("Operator requested reconcile", zap.String("lead_id_override", job.LeadIDOverride))
	c.JSON(http.StatusAccepted, reconcileResponse{ID: intake.ID, Queued: true, LeadIDOverride: job.LeadIDOverride})
}
