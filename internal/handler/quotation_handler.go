package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type QuotationHandler struct {
	quotationService service.QuotationService
}

func NewQuotationHandler(quotationService service.QuotationService) *QuotationHandler {
	return &QuotationHandler{quotationService: quotationService}
}

func (h *QuotationHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotations := router.Group("/api/quotations")
	quotations.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		quotations.POST("", h.CreateQuotation)
		quotations.GET("", h.ListQuotations)
		quotations.GET("/:id", h.GetQuotation)
		quotations.POST("/:id/convert", h.ConvertToSalesNote)
	}
}

// CreateQuotation creates a quotation with its lines
func (h *QuotationHandler) CreateQuotation(c *gin.Context) {
	var req service.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	quotation, err := h.quotationService.CreateQuotation(c.Request.Context(), middleware.UserIDFromContext(c), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quotation))
}

// ListQuotations returns a paginated list of quotations
func (h *QuotationHandler) ListQuotations(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.QuotationFilter{
		Status:  c.Query("status"),
		PartyID: c.Query("party_id"),
		Page:    p.Page,
		Limit:   p.Limit,
	}

	quotations, total, err := h.quotationService.ListQuotations(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessPage(http.StatusOK, quotations, total, p.Page, p.Limit))
}

// GetQuotation returns one quotation with its lines
func (h *QuotationHandler) GetQuotation(c *gin.Context) {
	quotation, err := h.quotationService.GetQuotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotation))
}

// ConvertToSalesNote creates a sales note from an open quotation
// @Summary      Convert quotation
// @Description  Creates a sales note from an open quotation and marks the quotation converted
// @Tags         quotations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quotation ID"
// @Success      201  {object}  response.Response{data=service.SalesNoteResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/quotations/{id}/convert [post]
func (h *QuotationHandler) ConvertToSalesNote(c *gin.Context) {
	note, err := h.quotationService.ConvertToSalesNote(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}
