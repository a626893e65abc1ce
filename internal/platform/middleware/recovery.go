package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 and logs it with the stack and
// the request it happened on. http.ErrAbortHandler is re-panicked so the
// server can abort the connection.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if ok && errors.Is(perr, http.ErrAbortHandler) {
					panic(r)
				}
				if !ok {
					perr = fmt.Errorf("panic: %v", r)
				}

				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				req := c.Request()
				logger.Error().
					Err(perr).
					Str("request_id", RequestIDFrom(c)).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Bytes("stack", stack[:n]).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(perr)
			}()
			return next(c)
		}
	}
}
