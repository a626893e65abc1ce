package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

// AppointmentType classifies the visit.
type AppointmentType string

const (
	TypeGeneralConsultation AppointmentType = "GENERAL_CONSULTATION"
	TypeFollowUp            AppointmentType = "FOLLOW_UP"
	TypeSpecialist          AppointmentType = "SPECIALIST"
	TypeEmergency           AppointmentType = "EMERGENCY"
	TypeRoutineCheckup      AppointmentType = "ROUTINE_CHECKUP"
	TypeProcedure           AppointmentType = "PROCEDURE"
)

// AppointmentTypes lists every type in display order.
var AppointmentTypes = []AppointmentType{
	TypeGeneralConsultation, TypeFollowUp, TypeSpecialist,
	TypeEmergency, TypeRoutineCheckup, TypeProcedure,
}

// ParseType maps a string to a known AppointmentType.
func ParseType(s string) (AppointmentType, error) {
	t := AppointmentType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AppointmentTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown appointment type %q", s)
}

// Appointment is a scheduled patient visit with a doctor.
type Appointment struct {
	ID              string           `json:"appointmentId"`
	PatientID       string           `json:"patientId"`
	DoctorID        string           `json:"doctorId"`
	Type            AppointmentType  `json:"type"`
	Status          lifecycle.Status `json:"status"`
	AppointmentDate string           `json:"appointmentDate"`
	StartTime       string           `json:"startTime"`
	DurationMinutes int              `json:"durationMinutes"`
	Reason          string           `json:"reason,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CancelReason    *string          `json:"cancelReason,omitempty"`
	CheckedInAt     *time.Time       `json:"checkedInAt,omitempty"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
	CreatedBy       string           `json:"createdBy,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	UpdatedBy       string           `json:"updatedBy,omitempty"`
}

func (a *Appointment) EntityType() lifecycle.EntityType { return lifecycle.EntityAppointment }

func (a *Appointment) GetID() string { return a.ID }

func (a *Appointment) GetStatus() lifecycle.Status { return a.Status }

// GetVersionID returns the current version.
func (a *Appointment) GetVersionID() int { return a.Version }

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// StartsAt is the scheduled start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.AppointmentDate+" "+a.StartTime, loc)
}

// EndTime is the scheduled end as HH:MM.
func (a *Appointment) EndTime() string {
	start, err := a.StartsAt(time.UTC)
	if err != nil {
		return ""
	}
	return start.Add(time.Duration(a.DurationMinutes) * time.Minute).Format(TimeLayout)
}

// Clone returns a deep copy.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.CancelReason != nil {
		r := *a.CancelReason
		cp.CancelReason = &r
	}
	if a.CheckedInAt != nil {
		t := *a.CheckedInAt
		cp.CheckedInAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
