package scheduling

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no appointment has the requested id.
	ErrNotFound = errors.New("appointment not found")
	// ErrVersionMismatch is returned by Update when the stored version moved.
	ErrVersionMismatch = errors.New("appointment version mismatch")
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// Update replaces the appointment only if the stored version equals expectedVersion.
	Update(ctx context.Context, a *Appointment, expectedVersion int) error
	ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error)
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
}
