package lifecycle

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Override grants an action to a role from every non-terminal status of an
// entity, independent of the explicit edges.
type Override struct {
	Entity         EntityType
	Role           Role
	Action         Action
	RequiresReason bool
	Target         Status
}

// DefaultOverrides holds the blanket rules applied on top of the graphs.
var DefaultOverrides = []Override{
	{
		Entity:         EntityAppointment,
		Role:           RoleAdmin,
		Action:         ActionCancel,
		RequiresReason: true,
		Target:         AppointmentCancelled,
	},
}

// ActionSet is an ordered, duplicate-free set of actions.
type ActionSet []Action

// Contains reports whether a is in the set.
func (s ActionSet) Contains(a Action) bool {
	for _, x := range s {
		if x == a {
			return true
		}
	}
	return false
}

// Strings returns the actions as plain strings.
func (s ActionSet) Strings() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = string(a)
	}
	return out
}

// Authorizer answers which actions a role may take from a status. It holds no
// mutable state; results are always computed from the arguments.
type Authorizer struct {
	overrides []Override
}

// NewAuthorizer returns an authorizer using the given overrides. A nil slice
// means DefaultOverrides.
func NewAuthorizer(overrides []Override) *Authorizer {
	if overrides == nil {
		overrides = DefaultOverrides
	}
	cp := make([]Override, len(overrides))
	copy(cp, overrides)
	return &Authorizer{overrides: cp}
}

var defaultAuthorizer = NewAuthorizer(nil)

// ListAvailableActions uses the default authorizer.
func ListAvailableActions(entity EntityType, status Status, role Role) ActionSet {
	return defaultAuthorizer.ListAvailableActions(entity, status, role)
}

// ListAvailableActions returns the actions role may take on an entity in status.
// Unknown entities, statuses and terminal statuses yield an empty set.
func (a *Authorizer) ListAvailableActions(entity EntityType, status Status, role Role) ActionSet {
	g, err := GraphFor(entity)
	if err != nil || !g.HasStatus(status) || g.IsTerminal(status) {
		return ActionSet{}
	}

	seen := make(map[Action]bool)
	for _, act := range g.Actions(status) {
		if r, _ := g.Edge(status, act); r.Allows(role) {
			seen[act] = true
		}
	}
	for _, o := range a.overrides {
		if o.Entity == entity && o.Role == role {
			seen[o.Action] = true
		}
	}

	out := make(ActionSet, 0, len(seen))
	for act := range seen {
		out = append(out, act)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Requirement returns the rule under which role may take action from status.
// Explicit edges win over overrides.
func (a *Authorizer) Requirement(entity EntityType, status Status, role Role, action Action) (Rule, bool) {
	g, err := GraphFor(entity)
	if err != nil || !g.HasStatus(status) || g.IsTerminal(status) {
		return Rule{}, false
	}
	if r, ok := g.Edge(status, action); ok && r.Allows(role) {
		return r, true
	}
	for _, o := range a.overrides {
		if o.Entity == entity && o.Role == role && o.Action == action {
			return Rule{Roles: []Role{o.Role}, RequiresReason: o.RequiresReason, Target: o.Target}, true
		}
	}
	return Rule{}, false
}

// Requirement uses the default authorizer.
func Requirement(entity EntityType, status Status, role Role, action Action) (Rule, bool) {
	return defaultAuthorizer.Requirement(entity, status, role, action)
}

// Authorize is Requirement with a typed failure. A role lacking an edge the
// status offers is Unauthorized; an action the status does not offer to
// anyone is a RuleViolation with status 422.
func (a *Authorizer) Authorize(entity EntityType, status Status, role Role, action Action) (Rule, error) {
	if r, ok := a.Requirement(entity, status, role, action); ok {
		return r, nil
	}
	g, err := GraphFor(entity)
	if err != nil {
		return Rule{}, Validationf("%v", err)
	}
	if _, exists := g.Edge(status, action); exists {
		return Rule{}, Unauthorizedf("role %s may not %s %s in status %s", role, humanAction(action), articled(entity), status)
	}
	return Rule{}, RuleViolation(http.StatusUnprocessableEntity,
		fmt.Sprintf("%s in status %s does not allow %s", capitalized(entity), status, humanAction(action)))
}

func humanAction(a Action) string {
	return strings.ToLower(strings.ReplaceAll(string(a), "_", " "))
}

func articled(e EntityType) string {
	return "an " + string(e)
}

func capitalized(e EntityType) string {
	s := string(e)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
