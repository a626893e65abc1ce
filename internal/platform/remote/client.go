// Package remote talks to the hospital administration service over HTTP and
// implements transition.Remote.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
	"github.com/ehr/hospital-admin/internal/domain/transition"
	"github.com/ehr/hospital-admin/internal/platform/middleware"
	"github.com/ehr/hospital-admin/internal/platform/versioning"
)

const (
	apiPrefix       = "/api/v1"
	maxResponseBody = 1 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New returns a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid service url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

func entityPath(ref transition.Ref) (string, error) {
	switch ref.Type {
	case lifecycle.EntityAppointment:
		return "/appointments/" + url.PathEscape(ref.ID), nil
	case lifecycle.EntityInvoice:
		return "/invoices/" + url.PathEscape(ref.ID), nil
	}
	return "", lifecycle.Validationf("unknown entity type %q", ref.Type)
}

// Fetch returns the current server copy of ref.
func (c *Client) Fetch(ctx context.Context, ref transition.Ref) (transition.Entity, error) {
	path, err := entityPath(ref)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorFor(resp)
	}
	return decodeEntity(ref.Type, resp)
}

type statusBody struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Submit sends a stamped transition. Payments go to the payments endpoint
// and carry no status; all other actions use the status endpoint.
func (c *Client) Submit(ctx context.Context, req transition.Request) (transition.Entity, error) {
	path, err := entityPath(req.Ref)
	if err != nil {
		return nil, err
	}
	method := http.MethodPatch
	var body any = statusBody{Action: string(req.Action), Reason: req.Reason}
	if req.Action == lifecycle.ActionRecordPayment {
		if req.Payment == nil {
			return nil, lifecycle.FieldValidation("amount", "a payment amount is required")
		}
		method = http.MethodPost
		path += "/payments"
		body = req.Payment
	} else {
		path += "/status"
	}

	resp, err := c.do(ctx, method, path, body, req.Version)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorFor(resp)
	}
	return decodeEntity(req.Ref.Type, resp)
}

// Book creates an appointment.
func (c *Client) Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error) {
	e, err := c.create(ctx, "/appointments", req, lifecycle.EntityAppointment)
	if err != nil {
		return nil, err
	}
	return e.(*scheduling.Appointment), nil
}

// CreateInvoice creates an invoice for an appointment.
func (c *Client) CreateInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.Invoice, error) {
	e, err := c.create(ctx, "/invoices", req, lifecycle.EntityInvoice)
	if err != nil {
		return nil, err
	}
	return e.(*billing.Invoice), nil
}

func (c *Client) create(ctx context.Context, path string, body any, entity lifecycle.EntityType) (transition.Entity, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, errorFor(resp)
	}
	return decodeEntity(entity, resp)
}

// Preview asks the service for the totals it would compute.
func (c *Client) Preview(ctx context.Context, req billing.PreviewRequest) (billing.Preview, error) {
	var p billing.Preview
	resp, err := c.do(ctx, http.MethodPost, "/invoices/preview", req, 0)
	if err != nil {
		return p, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p, errorFor(resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&p); err != nil {
		return p, lifecycle.Transport(err, "decoding preview")
	}
	return p, nil
}

// do sends one request. A positive version is sent as If-Match.
func (c *Client) do(ctx context.Context, method, path string, body any, version int) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if version > 0 {
		req.Header.Set(versioning.HeaderIfMatch, versioning.FormatETag(version))
	}
	reqID := uuid.NewString()
	req.Header.Set(middleware.RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return nil, lifecycle.Transport(err, "%s %s", method, path)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Str("request_id", reqID).
		Msg("request")
	return resp, nil
}

// errorFor maps a non-success response to a lifecycle error, keeping the
// server's message verbatim.
func errorFor(resp *http.Response) error {
	var body middleware.ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	code := resp.StatusCode
	switch {
	case code == http.StatusConflict || code == http.StatusPreconditionFailed:
		return &lifecycle.Error{Kind: lifecycle.KindConflict, Message: msg, Status: code}
	case code == http.StatusBadRequest || code == http.StatusPreconditionRequired:
		return &lifecycle.Error{Kind: lifecycle.KindValidation, Message: msg, Fields: body.FieldErrors, Status: code}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &lifecycle.Error{Kind: lifecycle.KindUnauthorized, Message: msg, Status: code}
	case code >= 400 && code < 500:
		return lifecycle.RuleViolation(code, msg)
	}
	return &lifecycle.Error{Kind: lifecycle.KindTransport, Message: msg, Status: code}
}
