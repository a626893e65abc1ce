// Package transition executes lifecycle actions against the remote service
// while keeping one authoritative snapshot per entity.
package transition

import (
	"context"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
)

// Entity is the part of an appointment or invoice the executor needs.
type Entity interface {
	EntityType() lifecycle.EntityType
	GetID() string
	GetStatus() lifecycle.Status
	GetVersionID() int
}

// Ref names one entity.
type Ref struct {
	Type lifecycle.EntityType
	ID   string
}

func (r Ref) String() string { return string(r.Type) + "/" + r.ID }

// RefOf returns the ref of e.
func RefOf(e Entity) Ref { return Ref{Type: e.EntityType(), ID: e.GetID()} }

// cloneEntity deep-copies the entity kinds the executor knows. Other
// implementations are returned as is.
func cloneEntity(e Entity) Entity {
	switch v := e.(type) {
	case *scheduling.Appointment:
		return v.Clone()
	case *billing.Invoice:
		return v.Clone()
	}
	return e
}

// Command is what the actor asked for.
type Command struct {
	Action  lifecycle.Action
	Reason  string
	Payment *billing.PaymentRequest
}

// Request is a stamped command ready to send.
type Request struct {
	Ref     Ref
	Action  lifecycle.Action
	Reason  string
	Version int
	Payment *billing.PaymentRequest
}

// Remote is the service that owns the entities. Implementations report
// failures as *lifecycle.Error.
type Remote interface {
	Fetch(ctx context.Context, ref Ref) (Entity, error)
	Submit(ctx context.Context, req Request) (Entity, error)
}

// Result describes a completed transition. To is always the status the
// server returned.
type Result struct {
	Entity  Entity
	From    lifecycle.Status
	To      lifecycle.Status
	Derived bool
}
