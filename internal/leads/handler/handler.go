package handler

import (
	"net/http"

	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/service"
	"crm_pipeline_backend/internal/leads/transport"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the pipeline board, lead edits and metrics.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid lead id"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/columns", h.Columns)
	rg.GET("/metrics", h.Metrics)
	rg.POST("/refresh", h.Refresh)
	rg.GET("/leads", h.List)
	rg.GET("/leads/:id/score", h.Score)
	rg.POST("/leads/:id/move", h.Move)
	rg.PATCH("/leads/:id", h.Update)
}

// Columns returns the board grouped by status.
// GET /api/v1/pipeline/columns
func (h *Handler) Columns(c *gin.Context) {
	req, ok := h.bindList(c)
	if !ok {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	view, err := h.svc.Columns(c.Request.Context(), tenantID, req.Filter())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToColumnsResponse(view.Columns, view.Summary))
}

// Metrics returns the temporal report for a period preset.
// GET /api/v1/pipeline/metrics?period=this_month
func (h *Handler) Metrics(c *gin.Context) {
	var req transport.MetricsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	report, err := h.svc.TemporalMetrics(c.Request.Context(), tenantID, req.Period)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// List returns the filtered leads.
// GET /api/v1/pipeline/leads
func (h *Handler) List(c *gin.Context) {
	req, ok := h.bindList(c)
	if !ok {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	leads, err := h.svc.ListLeads(c.Request.Context(), tenantID, req.Filter())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadListResponse{Items: transport.ToLeadResponses(leads), Total: len(leads)})
}

// Score explains the current score of a lead.
// GET /api/v1/pipeline/leads/:id/score
func (h *Handler) Score(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	card, err := h.svc.ScoreCard(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, card)
}

// Move transitions a lead to another status.
// POST /api/v1/pipeline/leads/:id/move
func (h *Handler) Move(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.MoveLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	actorID := identity.UserID()
	status, _ := domain.ParseStatus(req.Status)

	lead, err := h.svc.MoveLead(c.Request.Context(), tenantID, &actorID, id, service.MoveRequest{
		Status:            status,
		LossReason:        req.LossReason,
		LossReasonDetails: req.LossReasonDetails,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// Update edits lead fields.
// PATCH /api/v1/pipeline/leads/:id
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	actorID := identity.UserID()

	lead, err := h.svc.UpdateFields(c.Request.Context(), tenantID, &actorID, id, service.FieldsUpdate{
		DisplayName:       req.DisplayName,
		EstimatedValue:    req.EstimatedValue,
		Notes:             req.Notes,
		Tags:              req.Tags,
		WinProbability:    domain.Optional[int]{Value: req.WinProbability.Value, Set: req.WinProbability.Set},
		RecordInteraction: req.RecordInteraction,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// Refresh drops cached views and reloads them from the database.
// POST /api/v1/pipeline/refresh
func (h *Handler) Refresh(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Refresh(c.Request.Context(), tenantID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) bindList(c *gin.Context) (transport.ListLeadsRequest, bool) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return req, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return req, false
	}
	return req, true
}
