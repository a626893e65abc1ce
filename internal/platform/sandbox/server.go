// Package sandbox runs an in-process reference implementation of the
// hospital administration service for demos and integration tests, and seeds
// it with reproducible appointments and invoices.
package sandbox

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
	"github.com/ehr/hospital-admin/internal/platform/auth"
	"github.com/ehr/hospital-admin/internal/platform/middleware"
	"github.com/ehr/hospital-admin/internal/platform/telemetry"
)

type Options struct {
	JWT         auth.JWTConfig
	TaxRate     decimal.Decimal
	CORSOrigins []string
	BodyLimit   string
	Logger      zerolog.Logger
	Metrics     *telemetry.Provider
}

type Server struct {
	Echo         *echo.Echo
	Appointments *scheduling.Service
	Invoices     *billing.Service
	Metrics      *telemetry.Provider
}

// NewServer wires the services, handlers and middleware. Nothing listens
// until Start is called.
func NewServer(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewProvider()
	}
	authz := lifecycle.NewAuthorizer(nil)
	appts := scheduling.NewService(scheduling.NewMemoryRepo(), authz)
	s := &Server{
		Echo:         echo.New(),
		Appointments: appts,
		Invoices:     billing.NewService(billing.NewMemoryRepo(), authz, opts.TaxRate).WithAppointments(appointmentLookup{appts}),
		Metrics:      opts.Metrics,
	}

	e := s.Echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(opts.Logger)

	e.Use(middleware.Recovery(opts.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(opts.Logger))
	e.Use(opts.Metrics.MetricsMiddleware(middleware.StatusOf))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	if len(opts.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch},
			AllowHeaders:  []string{"Authorization", "Content-Type", "If-Match", "If-None-Match", middleware.RequestIDHeader},
			ExposeHeaders: []string{"ETag", middleware.RequestIDHeader},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", opts.Metrics.Handler())

	api := e.Group("/api/v1", auth.JWTMiddleware(opts.JWT))
	scheduling.NewHandler(s.Appointments).RegisterRoutes(api)
	billing.NewHandler(s.Invoices).RegisterRoutes(api)

	sandbox := api.Group("/sandbox", auth.RequireRole(lifecycle.RoleAdmin))
	NewSeedHandler(s.Appointments, s.Invoices).RegisterRoutes(sandbox)

	return s
}

// Seed generates demo data directly through the services.
func (s *Server) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	return NewSeeder(cfg, s.Appointments, s.Invoices, seederActor).Generate(ctx)
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// appointmentLookup lets invoices resolve the appointment they bill.
type appointmentLookup struct {
	appts *scheduling.Service
}

func (l appointmentLookup) BilledParties(ctx context.Context, id string) (string, string, error) {
	a, err := l.appts.GetAppointment(ctx, id)
	if errors.Is(err, scheduling.ErrNotFound) {
		return "", "", billing.ErrAppointmentNotFound
	}
	if err != nil {
		return "", "", err
	}
	return a.PatientID, a.DoctorID, nil
}
