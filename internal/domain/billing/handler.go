package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/auth"
	"github.com/ehr/hospital-admin/internal/platform/versioning"
	"github.com/ehr/hospital-admin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts invoice endpoints on api. Status changes and payments
// are authorized by the invoice status graph, not by route.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := api.Group("", auth.RequireRole(lifecycle.RoleAdmin, lifecycle.RoleReceptionist))
	desk.GET("/invoices", h.ListInvoices)
	desk.GET("/invoices/:id", h.GetInvoice)
	desk.POST("/invoices", h.CreateInvoice)
	desk.POST("/invoices/preview", h.PreviewInvoice)

	api.PATCH("/invoices/:id/status", h.ChangeStatus)
	api.POST("/invoices/:id/payments", h.RecordPayment)
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	}
	return err
}

func respond(c echo.Context, status int, inv *Invoice) error {
	versioning.SetVersionHeaders(c, inv.Version)
	return c.JSON(status, inv)
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req CreateInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	inv, err := h.svc.CreateInvoice(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, inv)
}

func (h *Handler) PreviewInvoice(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	p, err := h.svc.Preview(req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	inv, err := h.svc.GetInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	if versioning.CheckIfNoneMatch(c, inv.Version) {
		versioning.SetVersionHeaders(c, inv.Version)
		return c.NoContent(http.StatusNotModified)
	}
	return respond(c, http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInvoices(c.Request().Context(), pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	version, err := versioning.RequireIfMatch(c)
	if err != nil {
		return err
	}
	var change StatusChange
	if err := c.Bind(&change); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	inv, err := h.svc.ChangeStatus(c.Request().Context(), actor, c.Param("id"), change, version)
	if err != nil {
		return notFound(err)
	}
	return respond(c, http.StatusOK, inv)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	version, err := versioning.RequireIfMatch(c)
	if err != nil {
		return err
	}
	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	inv, err := h.svc.RecordPayment(c.Request().Context(), actor, c.Param("id"), req, version)
	if err != nil {
		return notFound(err)
	}
	return respond(c, http.StatusOK, inv)
}
