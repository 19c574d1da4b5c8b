package handler

import (
	"errors"
	"net/http"

	"backend/internal/draft"
	"backend/internal/middleware"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type DraftHandler struct {
	store draft.Store
}

func NewDraftHandler(store draft.Store) *DraftHandler {
	return &DraftHandler{store: store}
}

func (h *DraftHandler) RegisterRoutes(router *gin.RouterGroup) {
	drafts := router.Group("/api/drafts")
	drafts.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		drafts.PUT("/:key", h.SaveDraft)
		drafts.GET("/:key", h.LoadDraft)
		drafts.GET("/:key/metadata", h.GetMetadata)
		drafts.DELETE("/:key", h.ClearDraft)
		drafts.GET("", h.ListDrafts)
		drafts.POST("/cleanup", middleware.RequireRole("admin"), h.CleanupExpired)
	}
}

type saveDraftRequest struct {
	Data           map[string]any `json:"data" binding:"required"`
	ExpirationDays int            `json:"expiration_days"`
	SchemaVersion  string         `json:"schema_version"`
}

// userKey scopes a client-supplied draft key to the authenticated user so
// users cannot read each other's drafts.
func userKey(c *gin.Context) string {
	return c.Param("key") + ":" + middleware.UserIDFromContext(c)
}

// SaveDraft stores a draft payload under the caller's key
// @Summary      Save draft
// @Description  Persists in-progress form values under a per-user key with an expiry
// @Tags         drafts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        key      path      string  true  "Draft key"
// @Param        payload  body      object  true  "Draft payload"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      507      {object}  response.Response
// @Router       /api/drafts/{key} [put]
func (h *DraftHandler) SaveDraft(c *gin.Context) {
	var req saveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	err := h.store.Save(c.Request.Context(), userKey(c), req.Data, draft.SaveOptions{
		ExpirationDays: req.ExpirationDays,
		SchemaVersion:  req.SchemaVersion,
	})
	if err != nil {
		if errors.Is(err, draft.ErrQuotaExceeded) {
			c.JSON(http.StatusInsufficientStorage, response.Error(http.StatusInsufficientStorage, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"saved": true}))
}

// LoadDraft returns a stored draft; expired and corrupt entries read as absent
// @Summary      Load draft
// @Tags         drafts
// @Security     BearerAuth
// @Produce      json
// @Param        key  path      string  true  "Draft key"
// @Success      200  {object}  response.Response{data=draft.StoredDraft}
// @Failure      404  {object}  response.Response
// @Router       /api/drafts/{key} [get]
func (h *DraftHandler) LoadDraft(c *gin.Context) {
	stored, err := h.store.Load(c.Request.Context(), userKey(c), draft.LoadOptions{})
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) || errors.Is(err, draft.ErrExpired) || errors.Is(err, draft.ErrCorrupted) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Draft not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stored))
}

// GetMetadata returns draft metadata without the payload body
func (h *DraftHandler) GetMetadata(c *gin.Context) {
	meta, err := h.store.Metadata(c.Request.Context(), userKey(c))
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Draft not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, meta))
}

// ClearDraft deletes a draft; deleting a missing draft is not an error
func (h *DraftHandler) ClearDraft(c *gin.Context) {
	existed, err := h.store.Clear(c.Request.Context(), userKey(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"existed": existed}))
}

// ListDrafts lists the caller's draft keys
func (h *DraftHandler) ListDrafts(c *gin.Context) {
	keys, err := h.store.ListKeys(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	// Only surface keys belonging to this user.
	suffix := ":" + middleware.UserIDFromContext(c)
	own := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			own = append(own, key[:len(key)-len(suffix)])
		}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"keys": own}))
}

// CleanupExpired deletes every expired draft and reports how many were removed
func (h *DraftHandler) CleanupExpired(c *gin.Context) {
	removed, err := h.store.CleanupExpired(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"removed": removed}))
}
