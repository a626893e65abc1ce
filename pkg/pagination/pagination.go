// Package pagination reads page/size query parameters and shapes paged
// list responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Params holds zero-based page parameters extracted from a request.
type Params struct {
	Page int
	Size int
}

// FromContext extracts page and size from the echo context.
func FromContext(c echo.Context) Params {
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}
	return Params{Page: page, Size: size}
}

// Limit is the repository limit for the page.
func (p Params) Limit() int { return p.Size }

// Offset is the repository offset for the page.
func (p Params) Offset() int { return p.Page * p.Size }

// Page wraps one page of results.
type Page struct {
	Content       interface{} `json:"content"`
	Page          int         `json:"page"`
	Size          int         `json:"size"`
	TotalElements int         `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	Last          bool        `json:"last"`
}

func NewPage(content interface{}, total int, p Params) *Page {
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return &Page{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
		Last:          p.Page+1 >= pages,
	}
}
