package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/validation"
)

// BookRequest creates an appointment in SCHEDULED.
type BookRequest struct {
	PatientID       string          `json:"patientId" validate:"required"`
	DoctorID        string          `json:"doctorId" validate:"required"`
	Type            AppointmentType `json:"type" validate:"required,oneof=GENERAL_CONSULTATION FOLLOW_UP SPECIALIST EMERGENCY ROUTINE_CHECKUP PROCEDURE"`
	AppointmentDate string          `json:"appointmentDate" validate:"required,datetime=2006-01-02"`
	StartTime       string          `json:"startTime" validate:"required,datetime=15:04"`
	DurationMinutes int             `json:"durationMinutes" validate:"omitempty,gte=5,lte=480"`
	Reason          string          `json:"reason,omitempty" validate:"max=500"`
	Notes           string          `json:"notes,omitempty" validate:"max=1000"`
}

// StatusChange is the body of an appointment transition.
type StatusChange struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

const defaultDurationMinutes = 30

type Service struct {
	appointments AppointmentRepository
	authz        *lifecycle.Authorizer
	now          func() time.Time
}

func NewService(appointments AppointmentRepository, authz *lifecycle.Authorizer) *Service {
	if authz == nil {
		authz = lifecycle.NewAuthorizer(nil)
	}
	return &Service{appointments: appointments, authz: authz, now: time.Now}
}

func (s *Service) Book(ctx context.Context, actor lifecycle.Actor, req BookRequest) (*Appointment, error) {
	if err := validation.Struct(req, "", "invalid appointment"); err != nil {
		return nil, err
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}
	now := s.now().UTC()
	a := &Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Type:            req.Type,
		Status:          lifecycle.AppointmentScheduled,
		AppointmentDate: req.AppointmentDate,
		StartTime:       req.StartTime,
		DurationMinutes: duration,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Version:         1,
		CreatedAt:       now,
		CreatedBy:       actor.ID,
		UpdatedAt:       now,
		UpdatedBy:       actor.ID,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error) {
	if doctorID != "" {
		return s.appointments.ListByDoctor(ctx, doctorID, limit, offset)
	}
	return s.appointments.List(ctx, limit, offset)
}

// ChangeStatus applies action to the appointment if expectedVersion is
// current and the actor's role may take it from the current status.
func (s *Service) ChangeStatus(ctx context.Context, actor lifecycle.Actor, id string, change StatusChange, expectedVersion int) (*Appointment, error) {
	action, err := lifecycle.ParseAction(lifecycle.EntityAppointment, change.Action)
	if err != nil {
		return nil, lifecycle.FieldValidation("action", err.Error())
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Version != expectedVersion {
		return nil, lifecycle.Conflictf("appointment %s is at version %d, not %d", id, a.Version, expectedVersion)
	}
	rule, err := s.authz.Authorize(lifecycle.EntityAppointment, a.Status, actor.Role, action)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(change.Reason)
	if rule.RequiresReason && reason == "" {
		return nil, lifecycle.FieldValidation("reason", "a reason is required to cancel an appointment")
	}

	now := s.now().UTC()
	a.Status = rule.Target
	switch rule.Target {
	case lifecycle.AppointmentCancelled:
		a.CancelReason = &reason
	case lifecycle.AppointmentCheckedIn:
		a.CheckedInAt = &now
	case lifecycle.AppointmentCompleted:
		a.CompletedAt = &now
	}
	a.Version = expectedVersion + 1
	a.UpdatedAt = now
	a.UpdatedBy = actor.ID
	if err := s.appointments.Update(ctx, a, expectedVersion); err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return nil, lifecycle.Conflictf("appointment %s was modified concurrently", id)
		}
		return nil, err
	}
	return a, nil
}
