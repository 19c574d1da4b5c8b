package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type SalesNoteHandler struct {
	noteService service.SalesNoteService
}

func NewSalesNoteHandler(noteService service.SalesNoteService) *SalesNoteHandler {
	return &SalesNoteHandler{noteService: noteService}
}

func (h *SalesNoteHandler) RegisterRoutes(router *gin.RouterGroup) {
	notes := router.Group("/api/sales-notes")
	notes.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		notes.POST("", h.CreateSalesNote)
		notes.GET("", h.ListSalesNotes)
		notes.GET("/:id", h.GetSalesNote)
		notes.POST("/:id/payments", h.RecordPayment)
		notes.PUT("/:id/toggle-active", h.ToggleActive)
	}
}

// CreateSalesNote creates a sales note with its lines in one transaction
// @Summary      Create sales note
// @Description  Creates a sales note with its lines, assigns a folio and writes the audit trail
// @Tags         sales-notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSalesNoteRequest  true  "Create Sales Note Payload"
// @Success      201      {object}  response.Response{data=service.SalesNoteResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/sales-notes [post]
func (h *SalesNoteHandler) CreateSalesNote(c *gin.Context) {
	var req service.CreateSalesNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.noteService.CreateSalesNote(c.Request.Context(), middleware.UserIDFromContext(c), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}

// ListSalesNotes returns a paginated list of sales notes
// @Summary      List sales notes
// @Description  Retrieves a paginated list of sales notes, optionally filtered by status, party or folio
// @Tags         sales-notes
// @Security     BearerAuth
// @Produce      json
// @Param        status    query     string  false  "Filter by status (ACTIVE, INACTIVE)"
// @Param        party_id  query     string  false  "Filter by customer"
// @Param        folio     query     string  false  "Filter by folio"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Failure      500       {object}  response.Response
// @Router       /api/sales-notes [get]
func (h *SalesNoteHandler) ListSalesNotes(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.SalesNoteFilter{
		Status:  c.Query("status"),
		PartyID: c.Query("party_id"),
		Folio:   c.Query("folio"),
		Page:    p.Page,
		Limit:   p.Limit,
	}

	notes, total, err := h.noteService.ListSalesNotes(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessPage(http.StatusOK, notes, total, p.Page, p.Limit))
}

// GetSalesNote returns one sales note with lines and payments
// @Summary      Get sales note
// @Tags         sales-notes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sales Note ID"
// @Success      200  {object}  response.Response{data=service.SalesNoteResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sales-notes/{id} [get]
func (h *SalesNoteHandler) GetSalesNote(c *gin.Context) {
	note, err := h.noteService.GetSalesNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, note))
}

// RecordPayment records a payment against a sales note
// @Summary      Record payment
// @Description  Records a payment, updates the balance and writes the before/after audit entries
// @Tags         sales-notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Sales Note ID"
// @Param        payload  body      service.RecordPaymentRequest  true  "Payment Payload"
// @Success      201      {object}  response.Response{data=service.SalesNoteResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/sales-notes/{id}/payments [post]
func (h *SalesNoteHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.noteService.RecordPayment(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}

// ToggleActive deactivates or reactivates a sales note
// @Summary      Toggle sales note active state
// @Description  Deactivating cancels the note and removes its payments; reactivating restores the note with the balance reset
// @Tags         sales-notes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sales Note ID"
// @Success      200  {object}  response.Response{data=service.SalesNoteResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/sales-notes/{id}/toggle-active [put]
func (h *SalesNoteHandler) ToggleActive(c *gin.Context) {
	note, err := h.noteService.ToggleActive(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, note))
}
