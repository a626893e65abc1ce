package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const DefaultBodyLimit = "1M"

// BodyLimit rejects request bodies larger than limit ("64K", "1M") with 413.
// GET requests are not inspected. A malformed limit panics at startup.
func BodyLimit(limit string) echo.MiddlewareFunc {
	if limit == "" {
		limit = DefaultBodyLimit
	}
	return echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Skipper: func(c echo.Context) bool { return c.Request().Method == http.MethodGet },
		Limit:   limit,
	})
}
