package handler

import (
	"net/http"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/automation/service"
	"crm_pipeline_backend/internal/automation/transport"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves automation rule management and manual runs.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid automation id"
	msgInvalidStatus    = "invalid lead status"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/run", h.Run)
	rg.PATCH("/:id/active", h.SetActive)
	rg.DELETE("/:id", h.Delete)
}

// List returns the tenant's rules.
// GET /api/v1/automations
func (h *Handler) List(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	rules, err := h.svc.ListRules(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleListResponse(rules))
}

// Create stores a new rule.
// POST /api/v1/automations
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	rule, err := h.svc.CreateRule(c.Request.Context(), tenantID, service.CreateRuleInput{
		Name:          req.Name,
		IsActive:      req.IsActive,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		ActionType:    req.ActionType,
		ActionConfig:  req.ActionConfig,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, transport.ToRuleResponse(rule))
}

// SetActive enables or disables a rule.
// PATCH /api/v1/automations/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	rule, err := h.svc.SetActive(c.Request.Context(), tenantID, id, *req.IsActive)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

// Delete removes a rule.
// DELETE /api/v1/automations/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteRule(c.Request.Context(), tenantID, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Run executes the tenant's rules now and returns the summary.
// POST /api/v1/automations/run
func (h *Handler) Run(c *gin.Context) {
	var req transport.RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	var event *domain.StatusChangeEvent
	if req.Event != nil {
		parsed, ok := toEvent(*req.Event)
		if !ok {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidStatus, nil)
			return
		}
		event = &parsed
	}

	summary, err := h.svc.RunNow(c.Request.Context(), tenantID, event)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

func toEvent(req transport.StatusChangeRequest) (domain.StatusChangeEvent, bool) {
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		return domain.StatusChangeEvent{}, false
	}
	newStatus, ok := leaddomain.ParseStatus(req.NewStatus)
	if !ok {
		return domain.StatusChangeEvent{}, false
	}
	var oldStatus leaddomain.Status
	if req.OldStatus != "" {
		if oldStatus, ok = leaddomain.ParseStatus(req.OldStatus); !ok {
			return domain.StatusChangeEvent{}, false
		}
	}
	return domain.StatusChangeEvent{LeadID: leadID, OldStatus: oldStatus, NewStatus: newStatus}, true
}
