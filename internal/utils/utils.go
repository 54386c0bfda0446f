package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

func GetPaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	return page, pageSize
}

type PageMeta struct {
	CurrentPage int `json:"current_page"`
	TotalPage   int `json:"total_page"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
}

// Paginate slices an already filtered and ordered list. A page past the end
// is empty.
func Paginate[T any](items []T, page, pageSize int) ([]T, PageMeta) {
	meta := PageMeta{
		CurrentPage: page,
		TotalPage:   (len(items) + pageSize - 1) / pageSize,
		Total:       len(items),
		PerPage:     pageSize,
	}

	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, meta
	}
	end := min(start+pageSize, len(items))
	return items[start:end], meta
}
