package todo

import (
	"net/http"
	"strconv"

	"hosa-study-board/internal/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type AddRequest struct {
	Text    string `json:"text" binding:"required,max=500"`
	AddedBy string `json:"added_by" binding:"max=64"`
}

type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Add(c *gin.Context) {
	var form AddRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	item, err := h.service.Add(c.Request.Context(), form.Text, form.AddedBy)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// Remove takes the index the client rendered and, optionally, the item's
// created_at so a shifted list cannot lose the wrong entry.
func (h *Handler) Remove(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.Error(errors.BadRequest("Invalid index", err))
		return
	}

	var createdAt *int64
	if raw := c.Query("created_at"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Error(errors.BadRequest("Invalid created_at", err))
			return
		}
		createdAt = &v
	}

	if err := h.service.Remove(c.Request.Context(), index, createdAt); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Clear(c *gin.Context) {
	var form ConfirmRequest
	if err := c.ShouldBindJSON(&form); err != nil || !form.Confirm {
		c.Error(errors.UnprocessableEntity("Clear all team to-do items? Send confirm=true", err))
		return
	}

	if err := h.service.Clear(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
