package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequireRole("admin", "manager")) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns the audit trail, newest first
// @Summary      List audit logs
// @Description  Retrieves audit events with their balance before/after changes, optionally scoped to one document
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        event_key    query     string  false  "Filter by event key (e.g. salesNote.payment.created)"
// @Param        entity_type  query     string  false  "Filter by root entity type (SALES_NOTE, QUOTATION, SUPPLIER_PURCHASE)"
// @Param        entity_id    query     string  false  "Filter by root entity ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Failure      500          {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.AuditFilter{
		EventKey:       c.Query("event_key"),
		RootEntityType: c.Query("entity_type"),
		RootEntityID:   c.Query("entity_id"),
		Page:           p.Page,
		Limit:          p.Limit,
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessPage(http.StatusOK, logs, total, p.Page, p.Limit))
}
