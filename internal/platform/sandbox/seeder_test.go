package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
	"github.com/ehr/hospital-admin/internal/platform/validation"
)

func newServices() (*scheduling.Service, *billing.Service) {
	return scheduling.NewService(scheduling.NewMemoryRepo(), nil),
		billing.NewService(billing.NewMemoryRepo(), nil, decimal.NewFromInt(5))
}

func TestDataGenerator_BookingIsValid(t *testing.T) {
	g := NewDataGenerator(42)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		req := g.Booking("pat-1", "doc-1", day)
		if err := validation.Struct(req, "", "invalid"); err != nil {
			t.Fatalf("booking %d invalid: %v (%+v)", i, err, req)
		}
		if req.AppointmentDate != "2026-03-02" {
			t.Fatalf("unexpected date %s", req.AppointmentDate)
		}
	}
}

func TestDataGenerator_LineItemsDerive(t *testing.T) {
	g := NewDataGenerator(7)
	for i := 0; i < 50; i++ {
		items := g.LineItems()
		if len(items) < 1 || len(items) > 3 {
			t.Fatalf("expected 1-3 items, got %d", len(items))
		}
		if _, err := billing.Derive(items, g.DiscountPercent(), decimal.Zero); err != nil {
			t.Fatalf("generated items do not derive: %v", err)
		}
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a, b := NewDataGenerator(99), NewDataGenerator(99)
	for i := 0; i < 10; i++ {
		if ra, rb := a.Booking("p", "d", day), b.Booking("p", "d", day); ra != rb {
			t.Fatalf("same seed produced different bookings: %+v vs %+v", ra, rb)
		}
	}
	if a.nextID("x") != b.nextID("x") {
		t.Fatal("same seed produced different ids")
	}
}

func TestDataGenerator_PaymentNeverExceedsDue(t *testing.T) {
	g := NewDataGenerator(3)
	due := decimal.RequireFromString("80.01")
	for i := 0; i < 30; i++ {
		req, ok := g.Payment(due)
		if !ok {
			continue
		}
		if req.Amount.GreaterThan(due) || req.Amount.Sign() <= 0 {
			t.Fatalf("payment %s outside (0, %s]", req.Amount, due)
		}
		if err := billing.ValidatePayment(req); err != nil {
			t.Fatalf("generated payment invalid: %v", err)
		}
	}
}

func TestSeeder_Generate(t *testing.T) {
	appts, invoices := newServices()
	cfg := SeedConfig{PatientCount: 6, DoctorCount: 2, AppointmentsPerPatient: 3, StartDate: "2026-03-02", Seed: 42}
	result, err := NewSeeder(cfg, appts, invoices, seederActor).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.TotalAppointments != 18 {
		t.Errorf("expected 18 appointments, got %d", result.TotalAppointments)
	}
	if result.TotalInvoices != result.Appointments[lifecycle.AppointmentCompleted] {
		t.Errorf("expected one invoice per completed appointment, got %d for %d",
			result.TotalInvoices, result.Appointments[lifecycle.AppointmentCompleted])
	}

	stored, total, err := invoices.ListInvoices(context.Background(), 100, 0)
	if err != nil || total != result.TotalInvoices {
		t.Fatalf("ListInvoices: total=%d err=%v", total, err)
	}
	for _, inv := range stored {
		want, err := billing.Derive(inv.LineItems, inv.DiscountPercent, inv.TaxRate)
		if err != nil {
			t.Fatal(err)
		}
		if !want.Equal(inv.Totals()) {
			t.Errorf("invoice %s totals %+v, derived %+v", inv.ID, inv.Totals(), want)
		}
		switch inv.Status {
		case lifecycle.InvoiceIssued, lifecycle.InvoicePartiallyPaid, lifecycle.InvoicePaid:
		default:
			t.Errorf("unexpected seeded invoice status %s", inv.Status)
		}
	}
}

func TestSeeder_RejectsBadConfig(t *testing.T) {
	appts, invoices := newServices()
	tests := []SeedConfig{
		{PatientCount: -1},
		{PatientCount: 1, DoctorCount: -2},
		{PatientCount: 1, AppointmentsPerPatient: 21},
		{PatientCount: 1, AppointmentsPerPatient: 1, StartDate: "02/03/2026"},
	}
	for _, cfg := range tests {
		if _, err := NewSeeder(cfg, appts, invoices, seederActor).Generate(context.Background()); !errors.Is(err, lifecycle.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", cfg, err)
		}
	}
}

func setupSeedEcho() (*echo.Echo, *scheduling.Service, *billing.Service) {
	appts, invoices := newServices()
	e := echo.New()
	NewSeedHandler(appts, invoices).RegisterRoutes(e.Group("/sandbox"))
	return e, appts, invoices
}

func TestSeedHandler_Seed(t *testing.T) {
	e, appts, _ := setupSeedEcho()

	body := `{"patientCount":3,"doctorCount":1,"appointmentsPerPatient":2,"startDate":"2026-03-02","seed":42}`
	req := httptest.NewRequest(http.MethodPost, "/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if result.TotalAppointments != 6 {
		t.Fatalf("expected 6 appointments, got %d", result.TotalAppointments)
	}
	if _, total, _ := appts.ListAppointments(context.Background(), "", 10, 0); total != 6 {
		t.Errorf("expected 6 stored appointments, got %d", total)
	}
}

func TestSeedHandler_ExportNDJSON(t *testing.T) {
	e, appts, invoices := setupSeedEcho()
	cfg := SeedConfig{PatientCount: 40, DoctorCount: 3, AppointmentsPerPatient: 3, StartDate: "2026-03-02", Seed: 1}
	result, err := NewSeeder(cfg, appts, invoices, seederActor).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sandbox/export/ndjson/appointment", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	lines := 0
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var a scheduling.Appointment
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != result.TotalAppointments {
		t.Errorf("expected %d lines across pages, got %d", result.TotalAppointments, lines)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sandbox/export/ndjson/patient", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown type: expected 404, got %d", rec.Code)
	}
}
