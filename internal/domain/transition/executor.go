package transition

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/telemetry"
)

// Option configures an Executor.
type Option func(*Executor)

func WithAuthorizer(a *lifecycle.Authorizer) Option {
	return func(x *Executor) { x.authz = a }
}

// WithViews registers a cache to invalidate after each successful transition.
func WithViews(v Invalidator) Option {
	return func(x *Executor) { x.views = append(x.views, v) }
}

func WithMetrics(p *telemetry.Provider) Option {
	return func(x *Executor) { x.metrics = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// Executor runs transitions for one session. It is safe for concurrent use;
// work on the same entity is serialised, work on different entities is not.
type Executor struct {
	remote  Remote
	authz   *lifecycle.Authorizer
	guard   *Guard
	locks   *keyedMutex
	views   []Invalidator
	metrics *telemetry.Provider
	logger  zerolog.Logger
	now     func() time.Time
}

func NewExecutor(remote Remote, opts ...Option) *Executor {
	x := &Executor{
		remote: remote,
		guard:  NewGuard(),
		locks:  newKeyedMutex(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(x)
	}
	if x.authz == nil {
		x.authz = lifecycle.NewAuthorizer(nil)
	}
	return x
}

// Load fetches ref and stores it as the current snapshot.
func (x *Executor) Load(ctx context.Context, ref Ref) (Entity, error) {
	unlock := x.locks.Lock(ref)
	defer unlock()
	return x.fetch(ctx, ref)
}

// Refresh refetches ref, clearing a stale flag. If the fetch fails the old
// snapshot is kept, still stale, unless the service reports ref gone.
func (x *Executor) Refresh(ctx context.Context, ref Ref) (Entity, error) {
	return x.Load(ctx, ref)
}

func (x *Executor) fetch(ctx context.Context, ref Ref) (Entity, error) {
	e, err := x.remote.Fetch(ctx, ref)
	if err != nil {
		err = asLifecycle(err)
		var le *lifecycle.Error
		if errors.As(err, &le) && le.Status == http.StatusNotFound && x.guard.Forget(ref) {
			x.logger.Info().
				Str("entity", string(ref.Type)).
				Str("id", ref.ID).
				Msg("snapshot dropped, entity no longer exists")
		}
		return nil, err
	}
	if e == nil || RefOf(e) != ref {
		return nil, lifecycle.Transport(nil, "service returned a different entity for %s", ref)
	}
	x.guard.Replace(e)
	x.logger.Debug().
		Str("entity", string(ref.Type)).
		Str("id", ref.ID).
		Int("version", e.GetVersionID()).
		Str("status", string(e.GetStatus())).
		Msg("snapshot loaded")
	return e, nil
}

// Snapshot returns a copy of the current snapshot of ref, if loaded.
func (x *Executor) Snapshot(ref Ref) (Entity, bool) {
	e, _, ok := x.guard.Get(ref)
	if !ok {
		return nil, false
	}
	return cloneEntity(e), true
}

// Stale reports whether ref's snapshot must be reloaded before it is edited.
func (x *Executor) Stale(ref Ref) bool {
	_, stale, _ := x.guard.Get(ref)
	return stale
}

// Available lists the actions role may take on the current snapshot of ref.
func (x *Executor) Available(ref Ref, role lifecycle.Role) (lifecycle.ActionSet, error) {
	e, _, ok := x.guard.Get(ref)
	if !ok {
		return nil, lifecycle.Validationf("%s has not been loaded", ref)
	}
	return x.authz.ListAvailableActions(ref.Type, e.GetStatus(), role), nil
}

// Prepare checks that role may take action on ref now and returns the rule
// that grants it. No request is made.
func (x *Executor) Prepare(ref Ref, role lifecycle.Role, action lifecycle.Action) (lifecycle.Rule, error) {
	e, stale, ok := x.guard.Get(ref)
	if !ok {
		return lifecycle.Rule{}, lifecycle.Validationf("%s has not been loaded", ref)
	}
	if stale {
		return lifecycle.Rule{}, lifecycle.Conflictf("%s changed since it was loaded; reload before retrying", ref)
	}
	available := x.authz.ListAvailableActions(ref.Type, e.GetStatus(), role)
	rule, granted := x.authz.Requirement(ref.Type, e.GetStatus(), role, action)
	if !available.Contains(action) || !granted {
		x.logger.Warn().
			Str("entity", string(ref.Type)).
			Str("id", ref.ID).
			Str("action", string(action)).
			Str("role", string(role)).
			Str("status", string(e.GetStatus())).
			Int("version", e.GetVersionID()).
			Msg("action requested that is not available from the current status")
		return lifecycle.Rule{}, lifecycle.Unauthorizedf("%s is not available to %s for %s in status %s",
			action, role, ref, e.GetStatus())
	}
	return rule, nil
}

// Execute submits cmd for ref on behalf of role. Local checks run first and
// nothing is sent when they fail.
func (x *Executor) Execute(ctx context.Context, role lifecycle.Role, ref Ref, cmd Command) (Result, error) {
	unlock := x.locks.Lock(ref)
	defer unlock()

	res, took, err := x.execute(ctx, role, ref, cmd)
	x.record(role, ref, cmd.Action, res, took, err)
	return res, err
}

func (x *Executor) execute(ctx context.Context, role lifecycle.Role, ref Ref, cmd Command) (Result, time.Duration, error) {
	rule, err := x.Prepare(ref, role, cmd.Action)
	if err != nil {
		return Result{}, 0, err
	}
	before, _, _ := x.guard.Get(ref)

	req := Request{Ref: ref, Action: cmd.Action}
	if rule.RequiresReason {
		req.Reason = strings.TrimSpace(cmd.Reason)
		if req.Reason == "" {
			return Result{}, 0, lifecycle.FieldValidation("reason", "a reason is required to "+strings.ToLower(string(cmd.Action)))
		}
	}
	if err := checkPayment(cmd); err != nil {
		return Result{}, 0, err
	}
	req.Payment = cmd.Payment

	req.Version, err = x.guard.Stamp(ref)
	if err != nil {
		return Result{}, 0, err
	}

	start := x.now()
	after, err := x.remote.Submit(ctx, req)
	took := x.now().Sub(start)
	if err != nil {
		err = asLifecycle(err)
		if lifecycle.KindOf(err) == lifecycle.KindConflict {
			x.markStale(ref)
		}
		return Result{}, took, err
	}
	if after == nil || RefOf(after) != ref || after.GetVersionID() <= req.Version {
		x.markStale(ref)
		return Result{}, took, lifecycle.Transport(nil, "service returned an inconsistent response for %s", ref)
	}

	x.guard.Replace(after)
	for _, v := range x.views {
		x.metrics.ViewsInvalidated(v.InvalidateFor(ref))
	}
	return Result{
		Entity:  after,
		From:    before.GetStatus(),
		To:      after.GetStatus(),
		Derived: rule.Derived,
	}, took, nil
}

func checkPayment(cmd Command) error {
	if cmd.Action != lifecycle.ActionRecordPayment {
		if cmd.Payment != nil {
			return lifecycle.Validationf("payment details only apply to %s", lifecycle.ActionRecordPayment)
		}
		return nil
	}
	if cmd.Payment == nil {
		return lifecycle.FieldValidation("amount", "a payment amount is required")
	}
	return billing.ValidatePayment(*cmd.Payment)
}

func (x *Executor) markStale(ref Ref) {
	if x.guard.MarkStale(ref) {
		x.metrics.SnapshotStale(string(ref.Type))
	}
}

func (x *Executor) record(role lifecycle.Role, ref Ref, action lifecycle.Action, res Result, took time.Duration, err error) {
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = lifecycle.KindOf(err).String()
	}
	x.metrics.ObserveTransition(string(ref.Type), string(action), outcome, took)

	ev := x.logger.Info()
	switch lifecycle.KindOf(err) {
	case lifecycle.KindUnknown:
	case lifecycle.KindTransport:
		ev = x.logger.Error().Err(err)
	default:
		ev = x.logger.Warn().Err(err)
	}
	ev = ev.
		Str("entity", string(ref.Type)).
		Str("id", ref.ID).
		Str("action", string(action)).
		Str("role", string(role)).
		Str("outcome", outcome)
	if res.Entity != nil {
		ev = ev.Int("version", res.Entity.GetVersionID()).
			Str("from", string(res.From)).
			Str("to", string(res.To))
	} else if e, _, ok := x.guard.Get(ref); ok {
		ev = ev.Int("version", e.GetVersionID())
	}
	ev.Msg("transition")
}

// asLifecycle leaves typed errors alone and treats anything else as a
// transport failure.
func asLifecycle(err error) error {
	if lifecycle.KindOf(err) != lifecycle.KindUnknown {
		return err
	}
	return lifecycle.Transport(err, "request failed")
}
