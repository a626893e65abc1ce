package billing

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no invoice has the requested id.
	ErrNotFound = errors.New("invoice not found")
	// ErrVersionMismatch is returned by Update when the stored version moved.
	ErrVersionMismatch = errors.New("invoice version mismatch")
	// ErrDuplicateAppointment is returned when an appointment already has an invoice.
	ErrDuplicateAppointment = errors.New("appointment already has an invoice")
	// ErrAppointmentNotFound is returned by an AppointmentLookup for unknown ids.
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// AppointmentLookup resolves the appointment an invoice bills. The invoice
// takes its patient and doctor from it.
type AppointmentLookup interface {
	BilledParties(ctx context.Context, appointmentID string) (patientID, doctorID string, err error)
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	// Update replaces the invoice only if the stored version equals expectedVersion.
	Update(ctx context.Context, inv *Invoice, expectedVersion int) error
	List(ctx context.Context, limit, offset int) ([]*Invoice, int, error)
}
