package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if RequestIDFrom(c) == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := RequestIDFrom(c); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}
	_ = RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := Logger(logger)(func(c echo.Context) error {
		return lifecycle.Conflictf("stale")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to pass through")
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["status"] != float64(http.StatusConflict) || entry["level"] != "warn" {
		t.Errorf("unexpected log entry %v", entry)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set(requestIDKey, "req-9")

	err := Recovery(logger)(func(c echo.Context) error {
		panic("test panic")
	})(c)

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if httpErr.Internal == nil || !strings.Contains(httpErr.Internal.Error(), "test panic") {
		t.Errorf("expected the panic value kept as the internal error, got %v", httpErr.Internal)
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
	for _, want := range []string{`"path":"/panic"`, `"request_id":"req-9"`, "panic recovered"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log missing %s: %s", want, buf.String())
		}
	}
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
	t.Error("abort should not be recovered")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{lifecycle.Unauthorizedf("no"), http.StatusForbidden},
		{lifecycle.FieldValidation("reason", "required"), http.StatusBadRequest},
		{lifecycle.Conflictf("stale"), http.StatusConflict},
		{lifecycle.RuleViolation(http.StatusUnprocessableEntity, "overpaid"), http.StatusUnprocessableEntity},
		{&lifecycle.Error{Kind: lifecycle.KindRuleViolation}, http.StatusUnprocessableEntity},
		{echo.NewHTTPError(http.StatusPreconditionRequired, "If-Match"), http.StatusPreconditionRequired},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorHandler_WritesBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	ErrorHandler(zerolog.Nop())(lifecycle.FieldValidation("reason", "a reason is required"), c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TraceID != "req-1" || body.Status != 400 || body.Error != "Bad Request" {
		t.Errorf("unexpected body %+v", body)
	}
	if len(body.FieldErrors) != 1 || body.FieldErrors[0].Field != "reason" {
		t.Errorf("expected reason field error, got %+v", body.FieldErrors)
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for h, v := range want {
		if got := rec.Header().Get(h); got != v {
			t.Errorf("%s = %q, want %q", h, got, v)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	read := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	if err := BodyLimit("1K")(read)(e.NewContext(small, httptest.NewRecorder())); err != nil {
		t.Errorf("small body rejected: %v", err)
	}

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2048)))
	err := BodyLimit("1K")(read)(e.NewContext(big, httptest.NewRecorder()))
	if StatusOf(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}

	get := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(strings.Repeat("x", 2048)))
	if err := BodyLimit("1K")(read)(e.NewContext(get, httptest.NewRecorder())); err != nil {
		t.Errorf("GET should not be limited: %v", err)
	}
}
