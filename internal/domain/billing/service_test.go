package billing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

var (
	admin        = lifecycle.Actor{ID: "admin-1", Role: lifecycle.RoleAdmin}
	receptionist = lifecycle.Actor{ID: "desk-1", Role: lifecycle.RoleReceptionist}
	doctor       = lifecycle.Actor{ID: "doc-1", Role: lifecycle.RoleDoctor}
)

func newTestService() *Service {
	return NewService(NewMemoryRepo(), nil, decimal.Zero)
}

func seedIssued(t *testing.T, svc *Service, price string) *Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), admin, CreateInvoiceRequest{
		PatientID:     "p-1",
		AppointmentID: "appt-" + price,
		LineItems:     []LineItem{item("CONS", 1, price)},
		Issue:         true,
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv
}

func TestService_CreateInvoice(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil, d("5"))
	inv, err := svc.CreateInvoice(context.Background(), receptionist, CreateInvoiceRequest{
		PatientID:       "p-1",
		AppointmentID:   "a-1",
		LineItems:       []LineItem{item("CONS", 2, "50")},
		DiscountPercent: d("10"),
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.Status != lifecycle.InvoiceDraft || inv.Version != 1 {
		t.Errorf("expected DRAFT v1, got %s v%d", inv.Status, inv.Version)
	}
	if !inv.NetAmount.Equal(d("94.5")) || !inv.AmountDue.Equal(d("94.5")) {
		t.Errorf("unexpected totals net=%s due=%s", inv.NetAmount, inv.AmountDue)
	}
	if !inv.LineItems[0].LineTotal.Equal(d("100")) {
		t.Errorf("line total = %s", inv.LineItems[0].LineTotal)
	}

	_, err = svc.CreateInvoice(context.Background(), receptionist, CreateInvoiceRequest{
		PatientID: "p-1", AppointmentID: "a-1", LineItems: []LineItem{item("CONS", 1, "1")},
	})
	if !errors.Is(err, lifecycle.ErrRuleViolation) {
		t.Errorf("second invoice for an appointment: expected rule violation, got %v", err)
	}

	_, err = svc.CreateInvoice(context.Background(), receptionist, CreateInvoiceRequest{AppointmentID: "a-2", LineItems: []LineItem{item("CONS", 1, "1")}})
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("missing patient: expected validation error, got %v", err)
	}

	_, err = svc.CreateInvoice(context.Background(), receptionist, CreateInvoiceRequest{
		PatientID: "p-1", AppointmentID: "a-3", Issue: true, LineItems: []LineItem{item("CONS", 1, "0.004")},
	})
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("total rounding to zero: expected validation error, got %v", err)
	}
}

type fakeAppointments map[string][2]string

func (f fakeAppointments) BilledParties(ctx context.Context, id string) (string, string, error) {
	a, ok := f[id]
	if !ok {
		return "", "", ErrAppointmentNotFound
	}
	return a[0], a[1], nil
}

func TestService_CreateInvoiceResolvesAppointment(t *testing.T) {
	svc := newTestService().WithAppointments(fakeAppointments{"a-1": {"p-real", "doc-real"}})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, receptionist, CreateInvoiceRequest{
		PatientID: "p-claimed", DoctorID: "doc-claimed", AppointmentID: "a-1",
		LineItems: []LineItem{item("CONS", 1, "40")},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.PatientID != "p-real" || inv.DoctorID != "doc-real" {
		t.Errorf("expected parties from the appointment, got %s / %s", inv.PatientID, inv.DoctorID)
	}

	_, err = svc.CreateInvoice(ctx, receptionist, CreateInvoiceRequest{
		AppointmentID: "ghost", LineItems: []LineItem{item("CONS", 1, "40")},
	})
	var le *lifecycle.Error
	if !errors.As(err, &le) || le.Kind != lifecycle.KindRuleViolation || le.Status != http.StatusNotFound {
		t.Errorf("unknown appointment: expected 404 rule violation, got %v", err)
	}
}

func TestService_PartialThenFullPayment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := seedIssued(t, svc, "150.00")

	inv, err := svc.RecordPayment(ctx, receptionist, inv.ID, PaymentRequest{Amount: d("100"), PaymentMethod: MethodCash}, inv.Version)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if inv.Status != lifecycle.InvoicePartiallyPaid || !inv.AmountDue.Equal(d("50")) {
		t.Fatalf("expected PARTIALLY_PAID with 50 due, got %s / %s", inv.Status, inv.AmountDue)
	}
	if inv.Version != 2 {
		t.Errorf("expected version 2, got %d", inv.Version)
	}

	inv, err = svc.RecordPayment(ctx, receptionist, inv.ID, PaymentRequest{Amount: d("50"), PaymentMethod: MethodCard}, inv.Version)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if inv.Status != lifecycle.InvoicePaid || !inv.AmountDue.IsZero() || !inv.AmountPaid.Equal(d("150")) {
		t.Errorf("expected PAID with nothing due, got %s / due %s / paid %s", inv.Status, inv.AmountDue, inv.AmountPaid)
	}
	if len(inv.Payments) != 2 || inv.Payments[1].RecordedBy != receptionist.ID {
		t.Errorf("unexpected payments %+v", inv.Payments)
	}

	_, err = svc.RecordPayment(ctx, receptionist, inv.ID, PaymentRequest{Amount: d("1"), PaymentMethod: MethodCash}, inv.Version)
	if !errors.Is(err, lifecycle.ErrRuleViolation) {
		t.Errorf("paying a PAID invoice: expected rule violation, got %v", err)
	}
}

func TestService_RecordPaymentRejections(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := seedIssued(t, svc, "80")

	tests := []struct {
		name    string
		actor   lifecycle.Actor
		req     PaymentRequest
		version int
		want    error
		status  int
	}{
		{"overpayment", receptionist, PaymentRequest{Amount: d("80.01"), PaymentMethod: MethodCash}, inv.Version, lifecycle.ErrRuleViolation, http.StatusUnprocessableEntity},
		{"stale version", receptionist, PaymentRequest{Amount: d("1"), PaymentMethod: MethodCash}, inv.Version + 4, lifecycle.ErrConflict, 0},
		{"doctor", doctor, PaymentRequest{Amount: d("1"), PaymentMethod: MethodCash}, inv.Version, lifecycle.ErrUnauthorized, 0},
		{"invalid amount", receptionist, PaymentRequest{Amount: d("0"), PaymentMethod: MethodCash}, inv.Version, lifecycle.ErrValidation, 0},
		{"rounds to zero", receptionist, PaymentRequest{Amount: d("0.004"), PaymentMethod: MethodCash}, inv.Version, lifecycle.ErrValidation, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, tt.actor, inv.ID, tt.req, tt.version)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var le *lifecycle.Error
			if tt.status != 0 && (!errors.As(err, &le) || le.Status != tt.status) {
				t.Errorf("expected status %d, got %v", tt.status, err)
			}
		})
	}

	got, _ := svc.GetInvoice(ctx, inv.ID)
	if got.Version != inv.Version || len(got.Payments) != 0 {
		t.Errorf("rejected payments must not change the invoice: %+v", got)
	}

	draft, _ := svc.CreateInvoice(ctx, admin, CreateInvoiceRequest{PatientID: "p", AppointmentID: "draft", LineItems: []LineItem{item("X", 1, "5")}})
	if _, err := svc.RecordPayment(ctx, receptionist, draft.ID, PaymentRequest{Amount: d("1"), PaymentMethod: MethodCash}, draft.Version); !errors.Is(err, lifecycle.ErrRuleViolation) {
		t.Errorf("DRAFT is not payable: got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, receptionist, "missing", PaymentRequest{Amount: d("1"), PaymentMethod: MethodCash}, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ChangeStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv := seedIssued(t, svc, "60")
	if _, err := svc.ChangeStatus(ctx, admin, inv.ID, StatusChange{Action: "WRITE_OFF", Reason: "  "}, inv.Version); !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("blank reason: expected validation error, got %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, receptionist, inv.ID, StatusChange{Action: "WRITE_OFF", Reason: "bad debt"}, inv.Version); !errors.Is(err, lifecycle.ErrUnauthorized) {
		t.Errorf("receptionist write-off: expected unauthorized, got %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, admin, inv.ID, StatusChange{Action: "RECORD_PAYMENT"}, inv.Version); !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("payment via status endpoint: expected validation error, got %v", err)
	}

	out, err := svc.ChangeStatus(ctx, admin, inv.ID, StatusChange{Action: "WRITE_OFF", Reason: " Uncollectable "}, inv.Version)
	if err != nil {
		t.Fatalf("write off: %v", err)
	}
	if out.Status != lifecycle.InvoiceWrittenOff || out.CancelReason == nil || *out.CancelReason != "Uncollectable" {
		t.Errorf("unexpected invoice %+v", out)
	}
	if out.Version != inv.Version+1 || out.UpdatedBy != admin.ID {
		t.Errorf("expected version bump by admin, got v%d by %s", out.Version, out.UpdatedBy)
	}

	if _, err := svc.ChangeStatus(ctx, admin, inv.ID, StatusChange{Action: "CANCEL", Reason: "x"}, out.Version); !errors.Is(err, lifecycle.ErrRuleViolation) {
		t.Errorf("terminal invoice: expected rule violation, got %v", err)
	}
}

func TestService_CancelPartiallyPaidIsRejected(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := seedIssued(t, svc, "100")
	inv, _ = svc.RecordPayment(ctx, receptionist, inv.ID, PaymentRequest{Amount: d("10"), PaymentMethod: MethodCash}, inv.Version)

	_, err := svc.ChangeStatus(ctx, admin, inv.ID, StatusChange{Action: "CANCEL", Reason: "mistake"}, inv.Version)
	if !errors.Is(err, lifecycle.ErrRuleViolation) {
		t.Errorf("expected rule violation, got %v", err)
	}
}
