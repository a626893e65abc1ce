// Package reasoncapture implements the interaction state machine that collects
// a mandatory justification before a destructive action is submitted. It knows
// nothing about statuses or roles; the caller says whether a reason is needed.
package reasoncapture

import (
	"errors"
	"fmt"
	"strings"
)

// State is a ReasonCapture state.
type State int

const (
	Idle State = iota
	PromptingReason
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PromptingReason:
		return "prompting_reason"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ReasonField is the field name used for the reason's field-level error.
const ReasonField = "reason"

// ErrInvalidTransition is returned when a call is not valid in the current state.
var ErrInvalidTransition = errors.New("reasoncapture: invalid transition")

// ErrReasonRequired is the field-level error for a blank reason.
var ErrReasonRequired = errors.New("a reason is required")

// Capture is not safe for concurrent use; one Capture belongs to one view.
type Capture struct {
	state          State
	action         string
	requiresReason bool
	reason         string
	fieldErr       error
	failure        error
	last           State
}

// New returns a Capture in Idle.
func New() *Capture { return &Capture{} }

func (c *Capture) State() State { return c.state }

// Action is the action being captured, empty when Idle.
func (c *Capture) Action() string { return c.action }

// RequiresReason reports whether the current action needs a reason.
func (c *Capture) RequiresReason() bool { return c.requiresReason }

// Reason returns the buffered reason as typed.
func (c *Capture) Reason() string { return c.reason }

// FieldError returns the reason field error, if the last Submit was rejected.
func (c *Capture) FieldError() error { return c.fieldErr }

// Failure returns the error passed to Fail while in Failed.
func (c *Capture) Failure() error { return c.failure }

// LastOutcome reports Succeeded or Failed for the most recent submission, Idle if none.
func (c *Capture) LastOutcome() State { return c.last }

func (c *Capture) invalid(op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, c.state)
}

// Begin starts capturing for action. Actions that need no reason go straight
// to Submitting.
func (c *Capture) Begin(action string, requiresReason bool) error {
	if c.state != Idle {
		return c.invalid("begin")
	}
	c.action = action
	c.requiresReason = requiresReason
	c.reason = ""
	c.fieldErr = nil
	c.failure = nil
	if requiresReason {
		c.state = PromptingReason
	} else {
		c.state = Submitting
	}
	return nil
}

// SetReason replaces the reason buffer.
func (c *Capture) SetReason(reason string) error {
	if c.state != PromptingReason && c.state != Failed {
		return c.invalid("set reason")
	}
	c.reason = reason
	c.fieldErr = nil
	return nil
}

// Submit moves PromptingReason to Submitting when the trimmed reason is not
// empty. A blank reason records a field error and keeps prompting.
func (c *Capture) Submit() (string, error) {
	if c.state != PromptingReason {
		return "", c.invalid("submit")
	}
	trimmed := strings.TrimSpace(c.reason)
	if trimmed == "" {
		c.fieldErr = ErrReasonRequired
		return "", ErrReasonRequired
	}
	c.fieldErr = nil
	c.state = Submitting
	return trimmed, nil
}

// SubmittedReason returns the trimmed reason that is being submitted.
func (c *Capture) SubmittedReason() string {
	if !c.requiresReason {
		return ""
	}
	return strings.TrimSpace(c.reason)
}

// Succeed records success, clears the buffer and returns to Idle.
func (c *Capture) Succeed() error {
	if c.state != Submitting {
		return c.invalid("succeed")
	}
	c.last = Succeeded
	c.reset()
	return nil
}

// Fail records the failure and keeps the reason so it need not be retyped.
func (c *Capture) Fail(err error) error {
	if c.state != Submitting {
		return c.invalid("fail")
	}
	c.state = Failed
	c.failure = err
	c.last = Failed
	return nil
}

// Retry resubmits from Failed using the kept (possibly edited) reason.
func (c *Capture) Retry() (string, error) {
	if c.state != Failed {
		return "", c.invalid("retry")
	}
	if c.requiresReason && strings.TrimSpace(c.reason) == "" {
		c.fieldErr = ErrReasonRequired
		return "", ErrReasonRequired
	}
	c.failure = nil
	c.state = Submitting
	return c.SubmittedReason(), nil
}

// Cancel abandons the capture. A submission in flight cannot be cancelled.
func (c *Capture) Cancel() error {
	if c.state == Submitting {
		return c.invalid("cancel")
	}
	c.reset()
	return nil
}

func (c *Capture) reset() {
	c.state = Idle
	c.action = ""
	c.requiresReason = false
	c.reason = ""
	c.fieldErr = nil
	c.failure = nil
}
