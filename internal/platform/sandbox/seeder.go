package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
)

// SeedConfig controls the volume and shape of generated demo data.
type SeedConfig struct {
	PatientCount           int    `json:"patientCount"`
	DoctorCount            int    `json:"doctorCount"`
	AppointmentsPerPatient int    `json:"appointmentsPerPatient"`
	StartDate              string `json:"startDate,omitempty"`
	Seed                   int64  `json:"seed"`
}

// DefaultSeedConfig returns a small clinic's worth of data.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:           10,
		DoctorCount:            3,
		AppointmentsPerPatient: 2,
	}
}

// SeedResult summarises a Generate run.
type SeedResult struct {
	Appointments      map[lifecycle.Status]int `json:"appointments"`
	Invoices          map[lifecycle.Status]int `json:"invoices"`
	TotalAppointments int                      `json:"totalAppointments"`
	TotalInvoices     int                      `json:"totalInvoices"`
	Duration          time.Duration            `json:"duration"`
}

type catalogueEntry struct {
	code        string
	description string
	price       string
}

var serviceCatalogue = []catalogueEntry{
	{"CONS-GEN", "General consultation", "75.00"},
	{"CONS-SPEC", "Specialist consultation", "140.00"},
	{"LAB-CBC", "Complete blood count", "32.50"},
	{"LAB-LIPID", "Lipid panel", "45.25"},
	{"IMG-XRAY", "Chest X-ray", "88.00"},
	{"PROC-ECG", "Electrocardiogram", "60.00"},
	{"VAC-FLU", "Influenza vaccination", "24.99"},
	{"PROC-DRESS", "Wound dressing", "18.75"},
}

var visitReasons = []string{
	"Annual physical", "Persistent cough", "Blood pressure review",
	"Follow-up after surgery", "Lower back pain", "Medication review",
	"Skin rash", "Headaches", "Pre-operative assessment",
}

var cancelReasons = []string{
	"Patient requested reschedule", "Doctor unavailable",
	"Patient admitted elsewhere", "Duplicate booking",
}

// appointmentPaths are the action sequences applied after booking, giving a
// spread of statuses.
var appointmentPaths = [][]lifecycle.Action{
	{},
	{lifecycle.ActionConfirm},
	{lifecycle.ActionConfirm, lifecycle.ActionCheckIn},
	{lifecycle.ActionConfirm, lifecycle.ActionCheckIn, lifecycle.ActionStart},
	{lifecycle.ActionConfirm, lifecycle.ActionCheckIn, lifecycle.ActionStart, lifecycle.ActionComplete},
	{lifecycle.ActionConfirm, lifecycle.ActionCheckIn, lifecycle.ActionStart, lifecycle.ActionComplete},
	{lifecycle.ActionCancel},
	{lifecycle.ActionConfirm, lifecycle.ActionNoShow},
}

// DataGenerator produces deterministic demo requests.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) nextID(prefix string) string {
	g.counter++
	return fmt.Sprintf("%s-%08x-%04x", prefix, g.rng.Uint32(), g.counter)
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// Booking returns a valid booking request on day for the given patient and doctor.
func (g *DataGenerator) Booking(patientID, doctorID string, day time.Time) scheduling.BookRequest {
	durations := []int{15, 30, 45, 60}
	return scheduling.BookRequest{
		PatientID:       patientID,
		DoctorID:        doctorID,
		Type:            scheduling.AppointmentTypes[g.rng.Intn(len(scheduling.AppointmentTypes))],
		AppointmentDate: day.Format(scheduling.DateLayout),
		StartTime:       fmt.Sprintf("%02d:%02d", 8+g.rng.Intn(9), 15*g.rng.Intn(4)),
		DurationMinutes: durations[g.rng.Intn(len(durations))],
		Reason:          g.pick(visitReasons),
	}
}

// LineItems returns one to three distinct billable services.
func (g *DataGenerator) LineItems() []billing.LineItem {
	n := 1 + g.rng.Intn(3)
	perm := g.rng.Perm(len(serviceCatalogue))[:n]
	items := make([]billing.LineItem, 0, n)
	for _, i := range perm {
		entry := serviceCatalogue[i]
		items = append(items, billing.LineItem{
			ServiceCode: entry.code,
			Description: entry.description,
			Quantity:    1 + g.rng.Intn(2),
			UnitPrice:   decimal.RequireFromString(entry.price),
		})
	}
	return items
}

// DiscountPercent is usually zero, sometimes 5-20%.
func (g *DataGenerator) DiscountPercent() decimal.Decimal {
	if g.rng.Intn(4) != 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(5 * (1 + g.rng.Intn(4))))
}

// Path picks the actions to apply to a new appointment.
func (g *DataGenerator) Path() []lifecycle.Action {
	return appointmentPaths[g.rng.Intn(len(appointmentPaths))]
}

// Payment returns a fraction of due: nothing, part of it or all of it.
func (g *DataGenerator) Payment(due decimal.Decimal) (billing.PaymentRequest, bool) {
	switch g.rng.Intn(3) {
	case 0:
		return billing.PaymentRequest{}, false
	case 1:
		part := billing.Round(due.Div(decimal.NewFromInt(2)))
		if part.Sign() <= 0 {
			return billing.PaymentRequest{}, false
		}
		return g.paymentOf(part), true
	}
	return g.paymentOf(due), true
}

func (g *DataGenerator) paymentOf(amount decimal.Decimal) billing.PaymentRequest {
	return billing.PaymentRequest{
		Amount:          amount,
		PaymentMethod:   billing.PaymentMethods[g.rng.Intn(len(billing.PaymentMethods))],
		ReferenceNumber: g.nextID("ref"),
	}
}

// Seeder books appointments, walks them through the lifecycle and bills the
// completed ones, all through the services so every rule applies.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	appts     *scheduling.Service
	invoices  *billing.Service
	actor     lifecycle.Actor
	now       func() time.Time
}

// NewSeeder creates a Seeder writing through appts and invoices as actor.
func NewSeeder(config SeedConfig, appts *scheduling.Service, invoices *billing.Service, actor lifecycle.Actor) *Seeder {
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		appts:     appts,
		invoices:  invoices,
		actor:     actor,
		now:       time.Now,
	}
}

func (s *Seeder) startDay() (time.Time, error) {
	if s.config.StartDate == "" {
		return s.now().UTC().Truncate(24 * time.Hour), nil
	}
	day, err := time.Parse(scheduling.DateLayout, s.config.StartDate)
	if err != nil {
		return time.Time{}, lifecycle.FieldValidation("startDate", "must be a date like 2006-01-02")
	}
	return day, nil
}

// Generate creates the configured data.
func (s *Seeder) Generate(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	if err := checkSeedConfig(s.config); err != nil {
		return nil, err
	}
	day, err := s.startDay()
	if err != nil {
		return nil, err
	}

	doctors := make([]string, s.config.DoctorCount)
	for i := range doctors {
		doctors[i] = s.generator.nextID("doc")
	}
	if len(doctors) == 0 {
		doctors = []string{s.generator.nextID("doc")}
	}

	result := &SeedResult{
		Appointments: make(map[lifecycle.Status]int),
		Invoices:     make(map[lifecycle.Status]int),
	}
	for i := 0; i < s.config.PatientCount; i++ {
		patientID := s.generator.nextID("pat")
		for j := 0; j < s.config.AppointmentsPerPatient; j++ {
			doctorID := doctors[(i+j)%len(doctors)]
			a, err := s.appts.Book(ctx, s.actor, s.generator.Booking(patientID, doctorID, day.AddDate(0, 0, j)))
			if err != nil {
				return nil, fmt.Errorf("booking appointment: %w", err)
			}
			a, err = s.walk(ctx, a)
			if err != nil {
				return nil, err
			}
			result.Appointments[a.Status]++
			result.TotalAppointments++

			if a.Status != lifecycle.AppointmentCompleted {
				continue
			}
			inv, err := s.bill(ctx, a)
			if err != nil {
				return nil, err
			}
			result.Invoices[inv.Status]++
			result.TotalInvoices++
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Seeder) walk(ctx context.Context, a *scheduling.Appointment) (*scheduling.Appointment, error) {
	for _, action := range s.generator.Path() {
		change := scheduling.StatusChange{Action: string(action)}
		if action == lifecycle.ActionCancel {
			change.Reason = s.generator.pick(cancelReasons)
		}
		next, err := s.appts.ChangeStatus(ctx, s.actor, a.ID, change, a.Version)
		if err != nil {
			return nil, fmt.Errorf("%s appointment %s: %w", action, a.ID, err)
		}
		a = next
	}
	return a, nil
}

func (s *Seeder) bill(ctx context.Context, a *scheduling.Appointment) (*billing.Invoice, error) {
	inv, err := s.invoices.CreateInvoice(ctx, s.actor, billing.CreateInvoiceRequest{
		PatientID:       a.PatientID,
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		LineItems:       s.generator.LineItems(),
		DiscountPercent: s.generator.DiscountPercent(),
		Issue:           true,
	})
	if err != nil {
		return nil, fmt.Errorf("invoicing appointment %s: %w", a.ID, err)
	}
	if req, ok := s.generator.Payment(inv.AmountDue); ok {
		inv, err = s.invoices.RecordPayment(ctx, s.actor, inv.ID, req, inv.Version)
		if err != nil {
			return nil, fmt.Errorf("paying invoice: %w", err)
		}
	}
	return inv, nil
}

var seederActor = lifecycle.Actor{ID: "sandbox-seeder", Role: lifecycle.RoleAdmin}

// SeedHandler provides HTTP endpoints for sandbox data management.
type SeedHandler struct {
	appts    *scheduling.Service
	invoices *billing.Service
	mu       sync.Mutex
}

func NewSeedHandler(appts *scheduling.Service, invoices *billing.Service) *SeedHandler {
	return &SeedHandler{appts: appts, invoices: invoices}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/export/ndjson/:type", h.handleExportNDJSON)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := checkSeedConfig(cfg); err != nil {
		return err
	}

	result, err := NewSeeder(cfg, h.appts, h.invoices, seederActor).Generate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func checkSeedConfig(cfg SeedConfig) error {
	switch {
	case cfg.PatientCount < 0 || cfg.PatientCount > 1000:
		return lifecycle.FieldValidation("patientCount", "must be between 0 and 1000")
	case cfg.DoctorCount < 0 || cfg.DoctorCount > 100:
		return lifecycle.FieldValidation("doctorCount", "must be between 0 and 100")
	case cfg.AppointmentsPerPatient < 0 || cfg.AppointmentsPerPatient > 20:
		return lifecycle.FieldValidation("appointmentsPerPatient", "must be between 0 and 20")
	}
	return nil
}

const exportPageSize = 100

func (h *SeedHandler) handleExportNDJSON(c echo.Context) error {
	entity, err := lifecycle.ParseEntityType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return h.export(c.Request().Context(), c.Response().Writer, entity)
}

// export writes every entity of the given type as newline-delimited JSON.
func (h *SeedHandler) export(ctx context.Context, w io.Writer, entity lifecycle.EntityType) error {
	enc := json.NewEncoder(w)
	for offset := 0; ; offset += exportPageSize {
		var (
			page  []any
			total int
		)
		switch entity {
		case lifecycle.EntityAppointment:
			items, n, err := h.appts.ListAppointments(ctx, "", exportPageSize, offset)
			if err != nil {
				return err
			}
			for _, a := range items {
				page = append(page, a)
			}
			total = n
		case lifecycle.EntityInvoice:
			items, n, err := h.invoices.ListInvoices(ctx, exportPageSize, offset)
			if err != nil {
				return err
			}
			for _, inv := range items {
				page = append(page, inv)
			}
			total = n
		}
		for _, r := range page {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encoding %s: %w", entity, err)
			}
		}
		if len(page) == 0 || offset+len(page) >= total {
			return nil
		}
	}
}
