package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/validation"
)

// CreateInvoiceRequest seeds a new invoice. Issue selects ISSUED over DRAFT.
// PatientID and DoctorID are ignored when the service has an AppointmentLookup.
type CreateInvoiceRequest struct {
	PatientID       string          `json:"patientId,omitempty"`
	AppointmentID   string          `json:"appointmentId" validate:"required"`
	DoctorID        string          `json:"doctorId,omitempty"`
	LineItems       []LineItem      `json:"lineItems"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Notes           string          `json:"notes,omitempty" validate:"max=500"`
	Issue           bool            `json:"issue"`
}

// PreviewRequest asks for totals without creating anything.
type PreviewRequest struct {
	LineItems       []LineItem      `json:"lineItems"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// StatusChange is the body of a reason-bearing invoice transition.
type StatusChange struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Service is the server-authoritative invoice store used by the sandbox.
type Service struct {
	invoices InvoiceRepository
	authz    *lifecycle.Authorizer
	taxRate  decimal.Decimal
	appts    AppointmentLookup
	now      func() time.Time
}

func NewService(invoices InvoiceRepository, authz *lifecycle.Authorizer, taxRate decimal.Decimal) *Service {
	if authz == nil {
		authz = lifecycle.NewAuthorizer(nil)
	}
	return &Service{invoices: invoices, authz: authz, taxRate: taxRate, now: time.Now}
}

// WithAppointments makes CreateInvoice resolve the billed appointment
// instead of trusting the caller's patient and doctor.
func (s *Service) WithAppointments(l AppointmentLookup) *Service {
	s.appts = l
	return s
}

// TaxRate is the rate applied to new invoices.
func (s *Service) TaxRate() decimal.Decimal { return s.taxRate }

func (s *Service) CreateInvoice(ctx context.Context, actor lifecycle.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if err := validation.Struct(req, "", "invalid invoice"); err != nil {
		return nil, err
	}
	patientID, doctorID, err := s.billedParties(ctx, req)
	if err != nil {
		return nil, err
	}
	totals, err := Derive(req.LineItems, req.DiscountPercent, s.taxRate)
	if err != nil {
		return nil, err
	}
	items := make([]LineItem, len(req.LineItems))
	for i, item := range req.LineItems {
		item.LineTotal = LineTotal(item)
		items[i] = item
	}

	status := lifecycle.InvoiceDraft
	if req.Issue {
		status = lifecycle.InvoiceIssued
	}
	now := s.now().UTC()
	inv := &Invoice{
		ID:              uuid.NewString(),
		PatientID:       patientID,
		AppointmentID:   req.AppointmentID,
		DoctorID:        doctorID,
		Status:          status,
		LineItems:       items,
		DiscountPercent: ClampPercent(req.DiscountPercent),
		TaxRate:         s.taxRate,
		TotalAmount:     totals.Total,
		DiscountAmount:  totals.Discount,
		TaxAmount:       totals.Tax,
		NetAmount:       totals.Net,
		AmountPaid:      decimal.Zero,
		AmountDue:       AmountDue(totals.Net, decimal.Zero),
		Payments:        []Payment{},
		Notes:           req.Notes,
		Version:         1,
		CreatedAt:       now,
		CreatedBy:       actor.ID,
		UpdatedAt:       now,
		UpdatedBy:       actor.ID,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		if errors.Is(err, ErrDuplicateAppointment) {
			return nil, lifecycle.RuleViolation(http.StatusUnprocessableEntity,
				fmt.Sprintf("Appointment %s already has an invoice", req.AppointmentID))
		}
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.List(ctx, limit, offset)
}

// Preview derives totals at the service's tax rate.
func (s *Service) Preview(req PreviewRequest) (Preview, error) {
	return PreviewInvoice(req.LineItems, req.DiscountPercent, s.taxRate)
}

// load fetches the invoice and rejects a stale expected version.
func (s *Service) load(ctx context.Context, id string, expectedVersion int) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Version != expectedVersion {
		return nil, lifecycle.Conflictf("invoice %s is at version %d, not %d", id, inv.Version, expectedVersion)
	}
	return inv, nil
}

func (s *Service) authorize(inv *Invoice, role lifecycle.Role, action lifecycle.Action) (lifecycle.Rule, error) {
	return s.authz.Authorize(lifecycle.EntityInvoice, inv.Status, role, action)
}

func (s *Service) save(ctx context.Context, inv *Invoice, actor lifecycle.Actor, expectedVersion int) error {
	inv.Version = expectedVersion + 1
	inv.UpdatedAt = s.now().UTC()
	inv.UpdatedBy = actor.ID
	if err := s.invoices.Update(ctx, inv, expectedVersion); err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return lifecycle.Conflictf("invoice %s was modified concurrently", inv.ID)
		}
		return err
	}
	return nil
}

// ChangeStatus applies CANCEL or WRITE_OFF. Payments go through RecordPayment.
func (s *Service) ChangeStatus(ctx context.Context, actor lifecycle.Actor, id string, change StatusChange, expectedVersion int) (*Invoice, error) {
	action, err := lifecycle.ParseAction(lifecycle.EntityInvoice, change.Action)
	if err != nil {
		return nil, lifecycle.FieldValidation("action", err.Error())
	}
	if action == lifecycle.ActionRecordPayment {
		return nil, lifecycle.FieldValidation("action", "payments must be recorded through the payments endpoint")
	}
	inv, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	rule, err := s.authorize(inv, actor.Role, action)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(change.Reason)
	if rule.RequiresReason && reason == "" {
		return nil, lifecycle.FieldValidation("reason", "a reason is required to "+humanize(action)+" an invoice")
	}

	inv.Status = rule.Target
	if reason != "" {
		inv.CancelReason = &reason
	}
	if err := s.save(ctx, inv, actor, expectedVersion); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) billedParties(ctx context.Context, req CreateInvoiceRequest) (string, string, error) {
	if s.appts == nil {
		if strings.TrimSpace(req.PatientID) == "" {
			return "", "", lifecycle.FieldValidation("patientId", "patientId is required")
		}
		return req.PatientID, req.DoctorID, nil
	}
	patientID, doctorID, err := s.appts.BilledParties(ctx, req.AppointmentID)
	if errors.Is(err, ErrAppointmentNotFound) {
		return "", "", lifecycle.RuleViolation(http.StatusNotFound, "Appointment not found: "+req.AppointmentID)
	}
	if err != nil {
		return "", "", fmt.Errorf("resolving appointment %s: %w", req.AppointmentID, err)
	}
	return patientID, doctorID, nil
}

// RecordPayment appends a payment and derives the resulting status from the
// amount still due.
func (s *Service) RecordPayment(ctx context.Context, actor lifecycle.Actor, id string, req PaymentRequest, expectedVersion int) (*Invoice, error) {
	if err := ValidatePayment(req); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(inv, actor.Role, lifecycle.ActionRecordPayment); err != nil {
		return nil, err
	}
	amount := Round(req.Amount)
	if amount.GreaterThan(inv.AmountDue) {
		return nil, lifecycle.RuleViolation(http.StatusUnprocessableEntity,
			fmt.Sprintf("Payment amount %s exceeds amount due %s", amount.StringFixed(CurrencyPlaces), inv.AmountDue.StringFixed(CurrencyPlaces)))
	}

	inv.Payments = append(inv.Payments, Payment{
		Amount:          amount,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
		RecordedBy:      actor.ID,
		PaidAt:          s.now().UTC(),
	})
	inv.AmountPaid = AmountPaid(inv.Payments)
	inv.AmountDue = AmountDue(inv.NetAmount, inv.AmountPaid)
	if inv.AmountDue.Sign() <= 0 {
		inv.Status = lifecycle.InvoicePaid
	} else {
		inv.Status = lifecycle.InvoicePartiallyPaid
	}
	if err := s.save(ctx, inv, actor, expectedVersion); err != nil {
		return nil, err
	}
	return inv, nil
}

func humanize(a lifecycle.Action) string {
	return strings.ToLower(strings.ReplaceAll(string(a), "_", " "))
}
