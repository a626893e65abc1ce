package transition

import (
	"context"
	"errors"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/reasoncapture"
)

// Flow drives one interactive action on one entity: it asks for a reason
// when the action needs one and submits through the executor. A Flow is not
// safe for concurrent use.
type Flow struct {
	exec    *Executor
	ref     Ref
	role    lifecycle.Role
	capture *reasoncapture.Capture

	action  lifecycle.Action
	payment *billing.PaymentRequest
	last    Result
}

func NewFlow(exec *Executor, ref Ref, role lifecycle.Role) *Flow {
	return &Flow{exec: exec, ref: ref, role: role, capture: reasoncapture.New()}
}

// State is the reason capture state.
func (f *Flow) State() reasoncapture.State { return f.capture.State() }

// Reason returns the reason typed so far.
func (f *Flow) Reason() string { return f.capture.Reason() }

// Failure returns the error of the last failed submission.
func (f *Flow) Failure() error { return f.capture.Failure() }

// Result returns the most recent successful result.
func (f *Flow) Result() Result { return f.last }

// Begin starts action. When no reason is needed the action is submitted
// immediately and its result returned; otherwise the flow waits in
// PromptingReason and Begin returns a zero Result.
func (f *Flow) Begin(ctx context.Context, action lifecycle.Action, payment *billing.PaymentRequest) (Result, error) {
	rule, err := f.exec.Prepare(f.ref, f.role, action)
	if err != nil {
		return Result{}, err
	}
	if err := f.capture.Begin(string(action), rule.RequiresReason); err != nil {
		return Result{}, err
	}
	f.action = action
	f.payment = payment
	if rule.RequiresReason {
		return Result{}, nil
	}
	return f.run(ctx, "")
}

// SetReason edits the reason. Allowed while prompting or after a failure.
func (f *Flow) SetReason(reason string) error { return f.capture.SetReason(reason) }

// Submit sends the action with the typed reason. A blank reason is a
// validation error and nothing is sent.
func (f *Flow) Submit(ctx context.Context) (Result, error) {
	reason, err := f.capture.Submit()
	if err != nil {
		return Result{}, reasonError(err)
	}
	return f.run(ctx, reason)
}

// Retry resubmits after a failure with the kept reason. After a conflict the
// caller must Reload first or the retry fails the same way.
func (f *Flow) Retry(ctx context.Context) (Result, error) {
	reason, err := f.capture.Retry()
	if err != nil {
		return Result{}, reasonError(err)
	}
	return f.run(ctx, reason)
}

// Reload refetches the entity.
func (f *Flow) Reload(ctx context.Context) (Entity, error) {
	return f.exec.Refresh(ctx, f.ref)
}

// Cancel abandons the flow unless a submission is in flight.
func (f *Flow) Cancel() error {
	if err := f.capture.Cancel(); err != nil {
		return err
	}
	f.action = ""
	f.payment = nil
	return nil
}

func (f *Flow) run(ctx context.Context, reason string) (Result, error) {
	res, err := f.exec.Execute(ctx, f.role, f.ref, Command{Action: f.action, Reason: reason, Payment: f.payment})
	if err != nil {
		if cerr := f.capture.Fail(err); cerr != nil {
			f.logCaptureError(cerr)
		}
		return Result{}, err
	}
	if cerr := f.capture.Succeed(); cerr != nil {
		f.logCaptureError(cerr)
	}
	f.last = res
	f.action = ""
	f.payment = nil
	return res, nil
}

func (f *Flow) logCaptureError(err error) {
	f.exec.logger.Warn().Err(err).
		Str("entity", string(f.ref.Type)).
		Str("id", f.ref.ID).
		Str("action", string(f.action)).
		Str("state", f.capture.State().String()).
		Msg("reason capture out of step with submission")
}

func reasonError(err error) error {
	if errors.Is(err, reasoncapture.ErrReasonRequired) {
		return lifecycle.FieldValidation(reasoncapture.ReasonField, err.Error())
	}
	return err
}
