package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PartyHandler struct {
	partyService service.PartyService
	noteService  service.SalesNoteService
}

func NewPartyHandler(partyService service.PartyService, noteService service.SalesNoteService) *PartyHandler {
	return &PartyHandler{partyService: partyService, noteService: noteService}
}

func (h *PartyHandler) RegisterRoutes(router *gin.RouterGroup) {
	parties := router.Group("/api/parties")
	parties.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		parties.POST("", h.CreateParty)
		parties.GET("", h.ListParties)
		parties.GET("/walk-in", h.GetWalkInParty)
		parties.GET("/:id", h.GetParty)
		parties.GET("/:id/balance", h.GetPartyBalance)
		parties.PUT("/:id", h.UpdateParty)
		parties.DELETE("/:id", middleware.RequireRole("admin", "manager"), h.DeleteParty)
	}
}

// CreateParty creates a customer or supplier
// @Summary      Create party
// @Description  Creates a customer, supplier or both
// @Tags         parties
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePartyRequest  true  "Create Party Payload"
// @Success      201      {object}  response.Response{data=service.PartyResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/parties [post]
func (h *PartyHandler) CreateParty(c *gin.Context) {
	var req service.CreatePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	party, err := h.partyService.CreateParty(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, party))
}

// ListParties returns a paginated list of parties
// @Summary      List parties
// @Tags         parties
// @Security     BearerAuth
// @Produce      json
// @Param        kind    query     string  false  "Filter by kind (CUSTOMER, SUPPLIER, BOTH)"
// @Param        search  query     string  false  "Search by name or phone"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Failure      500     {object}  response.Response
// @Router       /api/parties [get]
func (h *PartyHandler) ListParties(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.PartyFilter{
		Kind:   c.Query("kind"),
		Search: c.Query("search"),
		Page:   p.Page,
		Limit:  p.Limit,
	}

	parties, total, err := h.partyService.ListParties(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessPage(http.StatusOK, parties, total, p.Page, p.Limit))
}

// GetWalkInParty resolves the singleton anonymous customer, creating it on
// first use.
func (h *PartyHandler) GetWalkInParty(c *gin.Context) {
	party, err := h.partyService.WalkInParty(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, party))
}

// GetParty returns one party by ID
func (h *PartyHandler) GetParty(c *gin.Context) {
	party, err := h.partyService.GetParty(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, party))
}

// GetPartyBalance returns the outstanding balance across the party's active sales notes
// @Summary      Party balance
// @Tags         parties
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Party ID"
// @Success      200  {object}  response.Response{data=service.PartyBalanceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/parties/{id}/balance [get]
func (h *PartyHandler) GetPartyBalance(c *gin.Context) {
	balance, err := h.noteService.PartyBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, balance))
}

// UpdateParty updates party fields; system parties are immutable
func (h *PartyHandler) UpdateParty(c *gin.Context) {
	var req service.UpdatePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	party, err := h.partyService.UpdateParty(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, party))
}

// DeleteParty removes a party; system parties are protected
func (h *PartyHandler) DeleteParty(c *gin.Context) {
	if err := h.partyService.DeleteParty(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": true}))
}
