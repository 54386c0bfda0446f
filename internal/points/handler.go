package points

import (
	"net/http"
	"strings"

	"hosa-study-board/internal/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type AddPointsRequest struct {
	Member string `json:"member" binding:"required,max=64"`
	Task   string `json:"task" binding:"required,oneof=textbook review_notes practice"`
}

// ConfirmRequest guards destructive actions.
type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) Show(c *gin.Context) {
	rows, err := h.service.Leaderboard(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) Add(c *gin.Context) {
	var form AddPointsRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	member := strings.TrimSpace(form.Member)
	if member == "" {
		c.Error(errors.UnprocessableEntity("Member cannot be empty", nil))
		return
	}

	rows, err := h.service.AddPoints(c.Request.Context(), member, form.Task)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) Reset(c *gin.Context) {
	var form ConfirmRequest
	if err := c.ShouldBindJSON(&form); err != nil || !form.Confirm {
		c.Error(errors.UnprocessableEntity("Reset all points to zero? Send confirm=true", err))
		return
	}

	if err := h.service.Reset(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
