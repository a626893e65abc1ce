package lifecycle

import (
	"fmt"
	"sort"
)

// Rule describes one edge leaving a status.
type Rule struct {
	Roles          []Role
	RequiresReason bool
	// Target is the resulting status. It is empty for derived transitions,
	// where the server picks the status from computed data.
	Target Status
	// Derived marks transitions whose target is chosen by the server.
	Derived bool
}

// Allows reports whether role may take this edge.
func (r Rule) Allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Graph is the static transition table for one entity type.
type Graph struct {
	entity   EntityType
	statuses []Status
	terminal map[Status]bool
	edges    map[Status]map[Action]Rule
	actions  map[Action]bool
}

func newGraph(entity EntityType, statuses []Status, terminal []Status) *Graph {
	g := &Graph{
		entity:   entity,
		statuses: statuses,
		terminal: make(map[Status]bool, len(terminal)),
		edges:    make(map[Status]map[Action]Rule),
		actions:  make(map[Action]bool),
	}
	for _, s := range terminal {
		g.terminal[s] = true
	}
	return g
}

func (g *Graph) edge(from []Status, action Action, rule Rule) {
	g.actions[action] = true
	for _, s := range from {
		if g.edges[s] == nil {
			g.edges[s] = make(map[Action]Rule)
		}
		g.edges[s][action] = rule
	}
}

// Entity returns the entity type the graph describes.
func (g *Graph) Entity() EntityType { return g.entity }

// Statuses returns every valid status in declaration order.
func (g *Graph) Statuses() []Status {
	out := make([]Status, len(g.statuses))
	copy(out, g.statuses)
	return out
}

// HasStatus reports whether s is a valid status for the entity.
func (g *Graph) HasStatus(s Status) bool {
	for _, known := range g.statuses {
		if known == s {
			return true
		}
	}
	return false
}

// HasAction reports whether any edge in the graph uses a.
func (g *Graph) HasAction(a Action) bool { return g.actions[a] }

// IsTerminal reports whether s accepts no further actions.
func (g *Graph) IsTerminal(s Status) bool { return g.terminal[s] }

// Edge returns the rule for action leaving status. Terminal statuses have no edges.
func (g *Graph) Edge(s Status, a Action) (Rule, bool) {
	if g.terminal[s] {
		return Rule{}, false
	}
	r, ok := g.edges[s][a]
	return r, ok
}

// Actions returns the actions defined for s, sorted, regardless of role.
func (g *Graph) Actions(s Status) []Action {
	if g.terminal[s] {
		return nil
	}
	out := make([]Action, 0, len(g.edges[s]))
	for a := range g.edges[s] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	appointmentGraph = buildAppointmentGraph()
	invoiceGraph     = buildInvoiceGraph()
)

func buildAppointmentGraph() *Graph {
	g := newGraph(EntityAppointment,
		[]Status{
			AppointmentScheduled, AppointmentConfirmed, AppointmentCheckedIn,
			AppointmentInProgress, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow,
		},
		[]Status{AppointmentCompleted, AppointmentCancelled, AppointmentNoShow},
	)

	cancel := func(roles ...Role) Rule {
		return Rule{Roles: roles, RequiresReason: true, Target: AppointmentCancelled}
	}

	g.edge([]Status{AppointmentScheduled}, ActionConfirm,
		Rule{Roles: []Role{RoleReceptionist, RoleAdmin}, Target: AppointmentConfirmed})
	g.edge([]Status{AppointmentScheduled}, ActionCancel, cancel(RoleReceptionist, RoleAdmin, RoleDoctor))

	g.edge([]Status{AppointmentConfirmed}, ActionCheckIn,
		Rule{Roles: []Role{RoleReceptionist, RoleNurse, RoleAdmin}, Target: AppointmentCheckedIn})
	g.edge([]Status{AppointmentConfirmed}, ActionNoShow,
		Rule{Roles: []Role{RoleReceptionist, RoleAdmin}, Target: AppointmentNoShow})
	g.edge([]Status{AppointmentConfirmed}, ActionCancel, cancel(RoleReceptionist, RoleAdmin, RoleDoctor))

	g.edge([]Status{AppointmentCheckedIn}, ActionStart,
		Rule{Roles: []Role{RoleDoctor, RoleAdmin}, Target: AppointmentInProgress})
	g.edge([]Status{AppointmentCheckedIn}, ActionCancel, cancel(RoleAdmin))

	g.edge([]Status{AppointmentInProgress}, ActionComplete,
		Rule{Roles: []Role{RoleDoctor, RoleAdmin}, Target: AppointmentCompleted})
	g.edge([]Status{AppointmentInProgress}, ActionCancel, cancel(RoleDoctor, RoleAdmin))

	return g
}

func buildInvoiceGraph() *Graph {
	g := newGraph(EntityInvoice,
		[]Status{
			InvoiceDraft, InvoiceIssued, InvoicePartiallyPaid,
			InvoicePaid, InvoiceCancelled, InvoiceWrittenOff,
		},
		[]Status{InvoicePaid, InvoiceCancelled, InvoiceWrittenOff},
	)

	g.edge([]Status{InvoiceDraft, InvoiceIssued}, ActionCancel,
		Rule{Roles: []Role{RoleAdmin}, RequiresReason: true, Target: InvoiceCancelled})
	g.edge([]Status{InvoiceIssued, InvoicePartiallyPaid}, ActionWriteOff,
		Rule{Roles: []Role{RoleAdmin}, RequiresReason: true, Target: InvoiceWrittenOff})
	g.edge([]Status{InvoiceIssued, InvoicePartiallyPaid}, ActionRecordPayment,
		Rule{Roles: []Role{RoleReceptionist, RoleAdmin}, Derived: true})

	return g
}

// GraphFor returns the static graph for an entity type.
func GraphFor(entity EntityType) (*Graph, error) {
	switch entity {
	case EntityAppointment:
		return appointmentGraph, nil
	case EntityInvoice:
		return invoiceGraph, nil
	}
	return nil, fmt.Errorf("no status graph for entity type %q", entity)
}
