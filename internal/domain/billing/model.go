package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

// PaymentMethod is how a payment was tendered.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodInsurance    PaymentMethod = "INSURANCE"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheque       PaymentMethod = "CHEQUE"
)

// PaymentMethods lists the accepted methods in display order.
var PaymentMethods = []PaymentMethod{MethodCash, MethodCard, MethodInsurance, MethodBankTransfer, MethodCheque}

// ParsePaymentMethod maps a string to a known PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// LineItem is one billable service on an invoice.
type LineItem struct {
	ServiceCode string          `json:"serviceCode" validate:"required,max=50"`
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gt=0"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Payment is a recorded payment against an invoice.
type Payment struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	RecordedBy      string          `json:"recordedBy"`
	PaidAt          time.Time       `json:"paidAt"`
}

// PaymentRequest is the body of a RECORD_PAYMENT submission. It carries no
// status: the resulting status is always derived by the service.
type PaymentRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" validate:"required,oneof=CASH CARD INSURANCE BANK_TRANSFER CHEQUE"`
	ReferenceNumber string          `json:"referenceNumber,omitempty" validate:"max=100"`
	Notes           string          `json:"notes,omitempty" validate:"max=500"`
}

// Invoice holds the billing record for exactly one appointment.
type Invoice struct {
	ID              string           `json:"invoiceId"`
	PatientID       string           `json:"patientId"`
	AppointmentID   string           `json:"appointmentId"`
	DoctorID        string           `json:"doctorId,omitempty"`
	Status          lifecycle.Status `json:"status"`
	LineItems       []LineItem       `json:"lineItems"`
	DiscountPercent decimal.Decimal  `json:"discountPercent"`
	TaxRate         decimal.Decimal  `json:"taxRate"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	DiscountAmount  decimal.Decimal  `json:"discountAmount"`
	TaxAmount       decimal.Decimal  `json:"taxAmount"`
	NetAmount       decimal.Decimal  `json:"netAmount"`
	AmountPaid      decimal.Decimal  `json:"amountPaid"`
	AmountDue       decimal.Decimal  `json:"amountDue"`
	Payments        []Payment        `json:"payments"`
	CancelReason    *string          `json:"cancelReason,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
	CreatedBy       string           `json:"createdBy,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	UpdatedBy       string           `json:"updatedBy,omitempty"`
}

func (inv *Invoice) EntityType() lifecycle.EntityType { return lifecycle.EntityInvoice }

func (inv *Invoice) GetID() string { return inv.ID }

func (inv *Invoice) GetStatus() lifecycle.Status { return inv.Status }

// GetVersionID returns the current version.
func (inv *Invoice) GetVersionID() int { return inv.Version }

// Clone returns a deep copy so snapshots never share slices.
func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	cp.LineItems = append([]LineItem(nil), inv.LineItems...)
	cp.Payments = append([]Payment(nil), inv.Payments...)
	if inv.CancelReason != nil {
		r := *inv.CancelReason
		cp.CancelReason = &r
	}
	return &cp
}

// Totals returns the invoice's stored totals in derivation form.
func (inv *Invoice) Totals() Totals {
	return Totals{
		Total:    inv.TotalAmount,
		Discount: inv.DiscountAmount,
		Tax:      inv.TaxAmount,
		Net:      inv.NetAmount,
	}
}
