// Package lifecycle holds the status graphs for appointments and invoices,
// the action authorizer derived from them, and the error taxonomy shared by
// every component that mutates those entities.
package lifecycle

import (
	"fmt"
	"strings"
)

// EntityType names an entity whose status is driven by named actions.
type EntityType string

const (
	EntityAppointment EntityType = "appointment"
	EntityInvoice     EntityType = "invoice"
)

// Role is the acting user's role, supplied by the authentication collaborator.
type Role string

const (
	RoleReceptionist Role = "RECEPTIONIST"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleAdmin        Role = "ADMIN"
)

// AllRoles lists every known role in a stable order.
var AllRoles = []Role{RoleReceptionist, RoleDoctor, RoleNurse, RoleAdmin}

// Actor identifies who performs an action.
type Actor struct {
	ID   string
	Role Role
}

// Status is an entity status. Values are only meaningful together with the
// EntityType they were parsed for.
type Status string

const (
	AppointmentScheduled  Status = "SCHEDULED"
	AppointmentConfirmed  Status = "CONFIRMED"
	AppointmentCheckedIn  Status = "CHECKED_IN"
	AppointmentInProgress Status = "IN_PROGRESS"
	AppointmentCompleted  Status = "COMPLETED"
	AppointmentCancelled  Status = "CANCELLED"
	AppointmentNoShow     Status = "NO_SHOW"

	InvoiceDraft         Status = "DRAFT"
	InvoiceIssued        Status = "ISSUED"
	InvoicePartiallyPaid Status = "PARTIALLY_PAID"
	InvoicePaid          Status = "PAID"
	InvoiceCancelled     Status = "CANCELLED"
	InvoiceWrittenOff    Status = "WRITTEN_OFF"
)

// Action is a named mutation request against an entity.
type Action string

const (
	ActionConfirm       Action = "CONFIRM"
	ActionCheckIn       Action = "CHECK_IN"
	ActionStart         Action = "START"
	ActionComplete      Action = "COMPLETE"
	ActionCancel        Action = "CANCEL"
	ActionNoShow        Action = "NO_SHOW"
	ActionRecordPayment Action = "RECORD_PAYMENT"
	ActionWriteOff      Action = "WRITE_OFF"
)

// ParseEntityType maps a loosely typed string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case EntityAppointment:
		return EntityAppointment, nil
	case EntityInvoice:
		return EntityInvoice, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ParseRole maps a role string from the identity collaborator to a Role.
// Unknown roles are rejected rather than defaulted.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseStatus maps a status string to a Status valid for the entity type.
func ParseStatus(entity EntityType, s string) (Status, error) {
	g, err := GraphFor(entity)
	if err != nil {
		return "", err
	}
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !g.HasStatus(st) {
		return "", fmt.Errorf("unknown %s status %q", entity, s)
	}
	return st, nil
}

// ParseAction maps an action string to an Action defined for the entity type.
func ParseAction(entity EntityType, s string) (Action, error) {
	g, err := GraphFor(entity)
	if err != nil {
		return "", err
	}
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !g.HasAction(a) {
		return "", fmt.Errorf("unknown %s action %q", entity, s)
	}
	return a, nil
}
