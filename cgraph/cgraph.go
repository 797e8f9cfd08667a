// Package cgraph implements ConstraintGraph: the store of variables and
// constraints a GeometricProblem authors, with adjacency lookups and
// change-event emission.
//
// ConstraintGraph only checks that variables and constraints are present or
// absent as each operation needs — it is a storage and notification layer.
// Constraint uniqueness/type validation is the caller's
// (geosolver.Problem's) responsibility; ConstraintGraph only guarantees
// that AddVariable/RemoveVariable and
// AddConstraint/RemoveConstraint keep its own maps and adjacency consistent,
// and that it emits four events: add_variable, rem_variable, add_constraint,
// rem_constraint.
package cgraph

import (
	"errors"
	"fmt"

	"github.com/kmolab/geosolver/event"
)

// Sentinel errors for ConstraintGraph operations.
var (
	// ErrUnknownVariable indicates an operation referenced a variable not
	// present in the graph.
	ErrUnknownVariable = errors.New("cgraph: unknown variable")
	// ErrDuplicateVariable indicates AddVariable was called for a variable
	// already present.
	ErrDuplicateVariable = errors.New("cgraph: variable already present")
	// ErrUnknownConstraint indicates an operation referenced a constraint
	// not present in the graph.
	ErrUnknownConstraint = errors.New("cgraph: unknown constraint")
)

// Event type names published on graph mutations.
const (
	EventAddVariable   = "add_variable"
	EventRemVariable   = "rem_variable"
	EventAddConstraint = "add_constraint"
	EventRemConstraint = "rem_constraint"
)

// Constraint is the minimal surface ConstraintGraph needs: a stable instance
// identity and the variables it touches. Concrete constraint kinds
// (package constraint) satisfy this structurally, with no import of cgraph.
type Constraint interface {
	ID() uint64
	Variables() []string
}

// Graph stores variables and constraints and emits change events. It is the
// Go counterpart of geometric.py's ConstraintGraph / notify.Notifier pair.
//
// Concurrency: not safe for concurrent use — see package event's doc comment
// on Bus for why this module omits locking throughout.
type Graph struct {
	bus *event.Bus

	variables   map[string]struct{}
	constraints map[uint64]Constraint

	// onVar maps a variable to the set of constraint IDs touching it,
	// mirroring geometric.py's get_constraints_on lookup.
	onVar map[string]map[uint64]struct{}
}

// New returns an empty Graph subscribed to no one; it publishes on itself as
// the event source (Publish(g, ...)).
func New() *Graph {
	return &Graph{
		bus:         event.NewBus(),
		variables:   make(map[string]struct{}),
		constraints: make(map[uint64]Constraint),
		onVar:       make(map[string]map[uint64]struct{}),
	}
}

// Subscribe registers fn to receive every event this Graph publishes.
func (g *Graph) Subscribe(fn event.Listener) {
	g.bus.Subscribe(g, fn)
}

// HasVariable reports whether v is a vertex of the graph.
func (g *Graph) HasVariable(v string) bool {
	_, ok := g.variables[v]
	return ok
}

// AddVariable inserts v as a graph vertex and publishes add_variable.
// Returns ErrDuplicateVariable if v is already present.
func (g *Graph) AddVariable(v string) error {
	if _, ok := g.variables[v]; ok {
		return fmt.Errorf("AddVariable(%s): %w", v, ErrDuplicateVariable)
	}
	g.variables[v] = struct{}{}
	g.onVar[v] = make(map[uint64]struct{})
	g.bus.Publish(g, event.Event{Type: EventAddVariable, Data: v})
	return nil
}

// RemoveVariable deletes v and publishes rem_variable. It does not cascade
// to constraints touching v: they stay stored, and geosolver.Problem's
// RemovePoint does not remove them either.
// Returns ErrUnknownVariable if v is absent.
func (g *Graph) RemoveVariable(v string) error {
	if _, ok := g.variables[v]; !ok {
		return fmt.Errorf("RemoveVariable(%s): %w", v, ErrUnknownVariable)
	}
	delete(g.variables, v)
	delete(g.onVar, v)
	g.bus.Publish(g, event.Event{Type: EventRemVariable, Data: v})
	return nil
}

// Variables returns the graph's variables in no particular order.
func (g *Graph) Variables() []string {
	out := make([]string, 0, len(g.variables))
	for v := range g.variables {
		out = append(out, v)
	}
	return out
}

// AddConstraint stores con, indexes it by each of its variables, and
// publishes add_constraint. Every variable in con.Variables() must already
// be present in the graph; returns ErrUnknownVariable otherwise.
func (g *Graph) AddConstraint(con Constraint) error {
	for _, v := range con.Variables() {
		if _, ok := g.variables[v]; !ok {
			return fmt.Errorf("AddConstraint: %w: %s", ErrUnknownVariable, v)
		}
	}
	g.constraints[con.ID()] = con
	for _, v := range con.Variables() {
		g.onVar[v][con.ID()] = struct{}{}
	}
	g.bus.Publish(g, event.Event{Type: EventAddConstraint, Data: con})
	return nil
}

// RemoveConstraint drops con and publishes rem_constraint.
// Returns ErrUnknownConstraint if con is not currently stored.
func (g *Graph) RemoveConstraint(con Constraint) error {
	if _, ok := g.constraints[con.ID()]; !ok {
		return fmt.Errorf("RemoveConstraint: %w", ErrUnknownConstraint)
	}
	delete(g.constraints, con.ID())
	for _, v := range con.Variables() {
		delete(g.onVar[v], con.ID())
	}
	g.bus.Publish(g, event.Event{Type: EventRemConstraint, Data: con})
	return nil
}

// Constraints returns every constraint currently stored, in no particular order.
func (g *Graph) Constraints() []Constraint {
	out := make([]Constraint, 0, len(g.constraints))
	for _, c := range g.constraints {
		out = append(out, c)
	}
	return out
}

// ConstraintsOn returns every constraint touching variable v.
func (g *Graph) ConstraintsOn(v string) []Constraint {
	ids := g.onVar[v]
	out := make([]Constraint, 0, len(ids))
	for id := range ids {
		out = append(out, g.constraints[id])
	}
	return out
}
