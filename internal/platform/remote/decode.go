package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/scheduling"
	"github.com/ehr/hospital-admin/internal/domain/transition"
	"github.com/ehr/hospital-admin/internal/platform/versioning"
)

// decodeEntity reads an appointment or invoice and rejects anything outside
// the known enums. When an ETag is present it must agree with the body.
func decodeEntity(entity lifecycle.EntityType, resp *http.Response) (transition.Entity, error) {
	var (
		e   transition.Entity
		err error
	)
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody))
	switch entity {
	case lifecycle.EntityAppointment:
		var a scheduling.Appointment
		if err = dec.Decode(&a); err == nil {
			err = checkAppointment(&a)
		}
		e = &a
	case lifecycle.EntityInvoice:
		var inv billing.Invoice
		if err = dec.Decode(&inv); err == nil {
			err = checkInvoice(&inv)
		}
		e = &inv
	default:
		return nil, lifecycle.Validationf("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, lifecycle.Transport(err, "unusable %s response", entity)
	}

	if etag := resp.Header.Get(versioning.HeaderETag); etag != "" {
		v, err := versioning.ParseETag(etag)
		if err != nil {
			return nil, lifecycle.Transport(err, "unusable %s response", entity)
		}
		if v != e.GetVersionID() {
			return nil, lifecycle.Transport(nil, "%s ETag version %d does not match body version %d", entity, v, e.GetVersionID())
		}
	}
	return e, nil
}

func checkAppointment(a *scheduling.Appointment) error {
	if a.ID == "" {
		return fmt.Errorf("missing appointmentId")
	}
	st, err := lifecycle.ParseStatus(lifecycle.EntityAppointment, string(a.Status))
	if err != nil {
		return err
	}
	a.Status = st
	if a.Type != "" {
		t, err := scheduling.ParseType(string(a.Type))
		if err != nil {
			return err
		}
		a.Type = t
	}
	return checkVersion(a.Version)
}

func checkInvoice(inv *billing.Invoice) error {
	if inv.ID == "" {
		return fmt.Errorf("missing invoiceId")
	}
	st, err := lifecycle.ParseStatus(lifecycle.EntityInvoice, string(inv.Status))
	if err != nil {
		return err
	}
	inv.Status = st
	for i, p := range inv.Payments {
		m, err := billing.ParsePaymentMethod(string(p.PaymentMethod))
		if err != nil {
			return fmt.Errorf("payments[%d]: %w", i, err)
		}
		inv.Payments[i].PaymentMethod = m
	}
	return checkVersion(inv.Version)
}

func checkVersion(v int) error {
	if v < 1 {
		return fmt.Errorf("invalid version %d", v)
	}
	return nil
}
