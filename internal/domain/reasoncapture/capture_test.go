package reasoncapture

import (
	"errors"
	"testing"
)

func TestCapture_ReasonRequiredPath(t *testing.T) {
	c := New()
	if err := c.Begin("CANCEL", true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if c.State() != PromptingReason {
		t.Fatalf("expected prompting_reason, got %s", c.State())
	}
	if err := c.SetReason("  Patient requested reschedule "); err != nil {
		t.Fatalf("SetReason: %v", err)
	}
	reason, err := c.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reason != "Patient requested reschedule" {
		t.Errorf("expected trimmed reason, got %q", reason)
	}
	if c.State() != Submitting {
		t.Fatalf("expected submitting, got %s", c.State())
	}
	if err := c.Succeed(); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if c.State() != Idle {
		t.Errorf("expected idle after success, got %s", c.State())
	}
	if c.Reason() != "" {
		t.Errorf("expected reason buffer cleared, got %q", c.Reason())
	}
	if c.LastOutcome() != Succeeded {
		t.Errorf("expected last outcome succeeded, got %s", c.LastOutcome())
	}
}

func TestCapture_BlankReasonStaysPrompting(t *testing.T) {
	for _, blank := range []string{"", "   ", "\t\n"} {
		c := New()
		_ = c.Begin("WRITE_OFF", true)
		_ = c.SetReason(blank)
		_, err := c.Submit()
		if !errors.Is(err, ErrReasonRequired) {
			t.Errorf("reason %q: expected ErrReasonRequired, got %v", blank, err)
		}
		if c.State() != PromptingReason {
			t.Errorf("reason %q: expected prompting_reason, got %s", blank, c.State())
		}
		if c.FieldError() == nil {
			t.Errorf("reason %q: expected field error", blank)
		}
	}
}

func TestCapture_NoReasonSkipsPrompt(t *testing.T) {
	c := New()
	if err := c.Begin("CONFIRM", false); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if c.State() != Submitting {
		t.Fatalf("expected submitting, got %s", c.State())
	}
	if c.SubmittedReason() != "" {
		t.Errorf("expected no reason, got %q", c.SubmittedReason())
	}
	if err := c.SetReason("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SetReason while submitting should be invalid, got %v", err)
	}
}

func TestCapture_FailureKeepsReason(t *testing.T) {
	c := New()
	_ = c.Begin("CANCEL", true)
	_ = c.SetReason("Doctor unavailable")
	_, _ = c.Submit()
	boom := errors.New("conflict")
	if err := c.Fail(boom); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if c.State() != Failed {
		t.Fatalf("expected failed, got %s", c.State())
	}
	if c.Reason() != "Doctor unavailable" {
		t.Errorf("expected reason retained, got %q", c.Reason())
	}
	if !errors.Is(c.Failure(), boom) {
		t.Errorf("expected failure to be kept, got %v", c.Failure())
	}

	reason, err := c.Retry()
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if reason != "Doctor unavailable" || c.State() != Submitting {
		t.Errorf("unexpected retry result %q / %s", reason, c.State())
	}
}

func TestCapture_RetryRevalidates(t *testing.T) {
	c := New()
	_ = c.Begin("CANCEL", true)
	_ = c.SetReason("first")
	_, _ = c.Submit()
	_ = c.Fail(errors.New("rule violation"))
	_ = c.SetReason("  ")
	if _, err := c.Retry(); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}
	if c.State() != Failed {
		t.Errorf("expected to stay failed, got %s", c.State())
	}
}

func TestCapture_Cancel(t *testing.T) {
	c := New()
	_ = c.Begin("CANCEL", true)
	_ = c.SetReason("typed")
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.State() != Idle || c.Reason() != "" {
		t.Errorf("expected clean idle, got %s / %q", c.State(), c.Reason())
	}

	_ = c.Begin("CONFIRM", false)
	if err := c.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel while submitting should be invalid, got %v", err)
	}
}

func TestCapture_InvalidCalls(t *testing.T) {
	c := New()
	tests := []struct {
		name string
		call func() error
	}{
		{"submit from idle", func() error { _, err := c.Submit(); return err }},
		{"succeed from idle", c.Succeed},
		{"fail from idle", func() error { return c.Fail(errors.New("x")) }},
		{"retry from idle", func() error { _, err := c.Retry(); return err }},
		{"set reason from idle", func() error { return c.SetReason("x") }},
	}
	for _, tt := range tests {
		if err := tt.call(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", tt.name, err)
		}
		if c.State() != Idle {
			t.Errorf("%s: state changed to %s", tt.name, c.State())
		}
	}
	_ = c.Begin("CANCEL", true)
	if err := c.Begin("CANCEL", true); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double begin should be invalid, got %v", err)
	}
}
