package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/validation"
)

// CurrencyPlaces is the number of decimal places money is rounded to.
const CurrencyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	// minAmount is the smallest payable amount: one cent.
	minAmount = decimal.New(1, -CurrencyPlaces)
)

// Totals are the derived invoice amounts.
type Totals struct {
	Total    decimal.Decimal `json:"totalAmount"`
	Discount decimal.Decimal `json:"discountAmount"`
	Tax      decimal.Decimal `json:"taxAmount"`
	Net      decimal.Decimal `json:"netAmount"`
}

// Equal reports whether every amount matches exactly.
func (t Totals) Equal(o Totals) bool {
	return t.Total.Equal(o.Total) && t.Discount.Equal(o.Discount) &&
		t.Tax.Equal(o.Tax) && t.Net.Equal(o.Net)
}

// Round rounds half away from zero to currency precision.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(CurrencyPlaces) }

// ClampPercent limits a percentage to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// ValidateLineItems checks the items the way the service does before totals
// are computed.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return lifecycle.FieldValidation("lineItems", "at least one line item is required")
	}
	var fields []lifecycle.FieldError
	for i, item := range items {
		if err := validation.Struct(item, fmt.Sprintf("lineItems[%d].", i), ""); err != nil {
			fields = append(fields, err.(*lifecycle.Error).Fields...)
		}
	}
	if len(fields) > 0 {
		return &lifecycle.Error{Kind: lifecycle.KindValidation, Message: "invalid line items", Fields: fields}
	}
	return nil
}

// ValidatePayment mirrors the service's payment form validation. It does not
// compare the amount with the amount due; only the service enforces that.
// Amounts are compared after rounding to currency precision, so 0.004 is
// rejected rather than recorded as 0.00.
func ValidatePayment(req PaymentRequest) error {
	if err := validation.Struct(req, "", "invalid payment"); err != nil {
		return err
	}
	if Round(req.Amount).LessThan(minAmount) {
		return lifecycle.FieldValidation("amount", "amount must be at least "+minAmount.StringFixed(CurrencyPlaces))
	}
	return nil
}

// Derive computes invoice totals from line items. The sum is rounded once at
// the total; discount and tax are each rounded after their percentage.
func Derive(items []LineItem, discountPercent, taxRate decimal.Decimal) (Totals, error) {
	if err := ValidateLineItems(items); err != nil {
		return Totals{}, err
	}

	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total := Round(sum)
	if total.LessThan(minAmount) {
		return Totals{}, lifecycle.FieldValidation("lineItems", "invoice total must be at least "+minAmount.StringFixed(CurrencyPlaces))
	}

	discount := Round(total.Mul(ClampPercent(discountPercent)).Div(hundred))

	rate := taxRate
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	tax := Round(total.Sub(discount).Mul(rate).Div(hundred))

	return Totals{
		Total:    total,
		Discount: discount,
		Tax:      tax,
		Net:      total.Sub(discount).Add(tax),
	}, nil
}

// LineTotal is quantity × unit price at currency precision, for display.
func LineTotal(item LineItem) decimal.Decimal {
	return Round(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
}

// AmountPaid sums recorded payments.
func AmountPaid(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return Round(sum)
}

// AmountDue is net minus paid.
func AmountDue(net, paid decimal.Decimal) decimal.Decimal {
	return Round(net.Sub(paid))
}

// Preview is the client-side estimate shown while composing an invoice.
type Preview struct {
	Totals
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	AmountDue       decimal.Decimal `json:"amountDue"`
}

// PreviewInvoice derives totals for a new invoice with no payments.
func PreviewInvoice(items []LineItem, discountPercent, taxRate decimal.Decimal) (Preview, error) {
	t, err := Derive(items, discountPercent, taxRate)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Totals:          t,
		DiscountPercent: ClampPercent(discountPercent),
		TaxRate:         decimal.Max(taxRate, decimal.Zero),
		AmountDue:       AmountDue(t.Net, decimal.Zero),
	}, nil
}
