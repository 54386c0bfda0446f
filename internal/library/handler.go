package library

import (
	"net/http"
	"strings"

	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/errors"
	"hosa-study-board/internal/projector"
	"hosa-study-board/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type RecordRequest struct {
	Title       string   `json:"title" binding:"required,max=255"`
	URL         string   `json:"url" binding:"required,max=2048"`
	Description string   `json:"description" binding:"max=2000"`
	Tags        []string `json:"tags" binding:"max=20,dive,max=40"`
	OpenNewTab  *bool    `json:"openNewTab"`
}

// clean trims the form and normalizes its URL. Title and URL must survive
// trimming.
func (f RecordRequest) clean() (domain.Record, error) {
	r := domain.Record{
		Title:       strings.TrimSpace(f.Title),
		URL:         NormalizeURL(strings.TrimSpace(f.URL)),
		Description: strings.TrimSpace(f.Description),
		Tags:        []string{},
	}
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			r.Tags = append(r.Tags, t)
		}
	}
	if r.Title == "" || r.URL == "" {
		return domain.Record{}, errors.UnprocessableEntity("Please provide a title and URL.", nil)
	}
	return r, nil
}

type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) List(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)
	q := projector.Query{
		Text: c.Query("q"),
		Tags: projector.ParseTags(c.Query("tags")),
	}

	result, err := h.service.List(c.Request.Context(), q, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Show(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) Create(c *gin.Context) {
	var form RecordRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	record, err := h.service.Create(c.Request.Context(), form)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *Handler) Update(c *gin.Context) {
	var form RecordRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	record, err := h.service.Update(c.Request.Context(), c.Param("id"), form)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.Error(errors.UnprocessableEntity("Delete this record? Send confirm=true", nil))
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Clear(c *gin.Context) {
	var form ConfirmRequest
	if err := c.ShouldBindJSON(&form); err != nil || !form.Confirm {
		c.Error(errors.UnprocessableEntity("Clear all records? Send confirm=true", err))
		return
	}

	if err := h.service.Clear(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Export(c *gin.Context) {
	export, err := h.service.Export(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", export.Body)
}
