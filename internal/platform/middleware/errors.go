package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

// ErrorBody is the JSON error envelope returned for every failed request.
type ErrorBody struct {
	Timestamp   time.Time              `json:"timestamp"`
	Status      int                    `json:"status"`
	Error       string                 `json:"error"`
	Message     string                 `json:"message"`
	TraceID     string                 `json:"traceId,omitempty"`
	FieldErrors []lifecycle.FieldError `json:"fieldErrors,omitempty"`
}

// StatusOf maps an error to the HTTP status it is reported with.
func StatusOf(err error) int {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		switch le.Kind {
		case lifecycle.KindUnauthorized:
			return http.StatusForbidden
		case lifecycle.KindValidation:
			return http.StatusBadRequest
		case lifecycle.KindConflict:
			return http.StatusConflict
		case lifecycle.KindRuleViolation:
			if le.Status != 0 {
				return le.Status
			}
			return http.StatusUnprocessableEntity
		case lifecycle.KindTransport:
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func bodyFor(err error, status int) ErrorBody {
	body := ErrorBody{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
	}
	var le *lifecycle.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &le):
		body.Message = le.Message
		body.FieldErrors = le.Fields
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			body.Message = msg
		} else {
			body.Message = http.StatusText(status)
		}
	default:
		body.Message = "internal server error"
	}
	return body
}

// ErrorHandler writes ErrorBody for any error returned by a handler.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := StatusOf(err)
		body := bodyFor(err, status)
		body.TraceID = RequestIDFrom(c)
		if status >= 500 {
			logger.Error().Err(err).Str("request_id", body.TraceID).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("writing error response")
		}
	}
}
