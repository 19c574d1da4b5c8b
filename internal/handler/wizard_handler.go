package handler

import (
	"errors"
	"net/http"
	"strconv"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/internal/wizard"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type WizardHandler struct {
	sessionService service.WizardSessionService
}

func NewWizardHandler(sessionService service.WizardSessionService) *WizardHandler {
	return &WizardHandler{sessionService: sessionService}
}

func (h *WizardHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/api/wizard/sessions")
	sessions.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetState)
		sessions.PATCH("/:id/values", h.SetValues)
		sessions.POST("/:id/next", h.Next)
		sessions.POST("/:id/back", h.Back)
		sessions.POST("/:id/goto", h.GoToStep)
		sessions.POST("/:id/save-draft", h.SaveDraft)
		sessions.POST("/:id/submit", h.Submit)
		sessions.DELETE("/:id", h.CloseSession)
	}
}

// respond maps a session-service result to the wire. Validation failures keep
// the refreshed state in the body so the client can render the issues.
func respond(c *gin.Context, state service.SessionStateResponse, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, response.Success(http.StatusOK, state))
	case errors.Is(err, wizard.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, response.Response{
			Status:     "error",
			StatusCode: http.StatusUnprocessableEntity,
			Data:       state,
			Error:      err.Error(),
		})
	case errors.Is(err, wizard.ErrSubmitInFlight):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	default:
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	}
}

// CreateSession starts a wizard session for a flow
// @Summary      Start wizard session
// @Description  Creates a live wizard session for a document flow, optionally recovering the user's saved draft
// @Tags         wizard
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSessionRequest  true  "Session Payload"
// @Success      201      {object}  response.Response{data=service.SessionStateResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/wizard/sessions [post]
func (h *WizardHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	state, err := h.sessionService.CreateSession(c.Request.Context(), middleware.UserIDFromContext(c), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, state))
}

// GetState returns the session's full navigation and form state
func (h *WizardHandler) GetState(c *gin.Context) {
	state, err := h.sessionService.GetState(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	respond(c, state, err)
}

// SetValues merges field values into the session's form
func (h *WizardHandler) SetValues(c *gin.Context) {
	var req service.SetValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	state, err := h.sessionService.SetValues(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), req)
	respond(c, state, err)
}

// Next validates the current step and advances; on the last step it submits
func (h *WizardHandler) Next(c *gin.Context) {
	state, err := h.sessionService.Next(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	respond(c, state, err)
}

// Back moves to the previous visible step without re-validating
func (h *WizardHandler) Back(c *gin.Context) {
	state, err := h.sessionService.Back(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	respond(c, state, err)
}

// GoToStep jumps to a step when navigation rules allow it
func (h *WizardHandler) GoToStep(c *gin.Context) {
	var req service.GoToStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	state, err := h.sessionService.GoToStep(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), req)
	respond(c, state, err)
}

// SaveDraft forces an immediate draft write for the session
func (h *WizardHandler) SaveDraft(c *gin.Context) {
	state, err := h.sessionService.SaveDraft(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	respond(c, state, err)
}

// Submit validates the whole form and runs the flow's submission
// @Summary      Submit wizard session
// @Description  Runs full-form validation and creates the target document; the created document is returned in result
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response{data=service.SessionStateResponse}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/wizard/sessions/{id}/submit [post]
func (h *WizardHandler) Submit(c *gin.Context) {
	state, err := h.sessionService.Submit(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	respond(c, state, err)
}

// CloseSession tears a session down, optionally discarding its draft
func (h *WizardHandler) CloseSession(c *gin.Context) {
	discard, _ := strconv.ParseBool(c.DefaultQuery("discard_draft", "false"))
	if err := h.sessionService.CloseSession(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), discard); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"closed": true}))
}
