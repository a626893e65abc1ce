package scheduling

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

// RegisterRoutes mounts appointment endpoints on api. Any authenticated role
// may read; transitions are authorized by the appointment status graph.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id/status", h.ChangeStatus)

	booking := api.Group("", auth.RequireRole(lifecycle.RoleAdmin, lifecycle.RoleReceptionist))
	booking.POST("/appointments", h.BookAppointment)
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return err
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	a, err := h.svc.Book(c.Request().Context(), auth.ActorFromContext(c.Request().Context()), req)
	if err != nil {
		return err
	}
	versioning.SetVersionHeaders(c, a.Version)
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.svc.GetAppointment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	versioning.SetVersionHeaders(c, a.Version)
	if versioning.CheckIfNoneMatch(c, a.Version) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), c.QueryParam("doctorId"), pg.Limit(), pg.Offset())
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
	a, err := h.svc.ChangeStatus(c.Request().Context(), auth.ActorFromContext(c.Request().Context()), c.Param("id"), change, version)
	if err != nil {
		return notFound(err)
	}
	versioning.SetVersionHeaders(c, a.Version)
	return c.JSON(http.StatusOK, a)
}
