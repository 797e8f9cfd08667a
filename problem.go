// Package geosolver ties the leaf packages (geovec, cluster, clustersolver,
// event, cgraph, constraint, configbuilder) together into the reactive
// constraint-to-cluster mapping layer: GeometricProblem is the authoring
// surface, GeometricSolver is the reactive bridge to ClusterSolver, and
// GeometricCluster is the result tree node.
package geosolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kmolab/geosolver/cgraph"
	"github.com/kmolab/geosolver/constraint"
	"github.com/kmolab/geosolver/event"
	"github.com/kmolab/geosolver/geovec"
)

// Event type names Problem publishes on itself. ConstraintGraph publishes
// its own four (add_variable, rem_variable, add_constraint, rem_constraint)
// directly on the Graph it owns; Problem re-broadcasts parameter and point
// changes on top of those.
const (
	EventSetPoint               = "set_point"
	EventSetParameter           = "set_parameter"
	EventAddSelectionConstraint = "add_selection_constraint"
	EventRemSelectionConstraint = "rem_selection_constraint"
)

// SetPointPayload is the Data payload of an EventSetPoint notification.
type SetPointPayload struct {
	Variable string
	Position geovec.Vector
}

// SetParameterPayload is the Data payload of an EventSetParameter
// notification re-broadcast by Problem on behalf of a parametric constraint.
type SetParameterPayload struct {
	Constraint constraint.Constraint
	Value      interface{}
}

// ProblemOption configures a Problem at construction time.
type ProblemOption func(*Problem)

// WithTolerance overrides the package-wide geovec tolerance epsilon used by
// every Satisfied check. Affects every Problem and Solver in the process,
// since geovec's tolerance is a package-level setting.
func WithTolerance(eps float64) ProblemOption {
	return func(*Problem) { geovec.SetTolerance(eps) }
}

// Problem is the authoring surface: it holds prototype positions and a
// ConstraintGraph, rejects duplicate or invalid additions, and re-broadcasts
// parameter changes to its own subscribers.
type Problem struct {
	dimension int
	cg        *cgraph.Graph
	bus       *event.Bus

	prototypes map[string]geovec.Vector

	constraints map[uint64]constraint.Constraint
	distances   map[string]*constraint.DistanceConstraint
	angles      map[string]*constraint.AngleConstraint
	fixes       map[string]*constraint.FixConstraint
}

// NewProblem returns an empty Problem of the given dimension (2 or 3).
func NewProblem(dimension int, opts ...ProblemOption) (*Problem, error) {
	if dimension != 2 && dimension != 3 {
		return nil, fmt.Errorf("NewProblem(%d): %w", dimension, ErrUnsupportedDimension)
	}
	p := &Problem{
		dimension:   dimension,
		cg:          cgraph.New(),
		bus:         event.NewBus(),
		prototypes:  make(map[string]geovec.Vector),
		constraints: make(map[uint64]constraint.Constraint),
		distances:   make(map[string]*constraint.DistanceConstraint),
		angles:      make(map[string]*constraint.AngleConstraint),
		fixes:       make(map[string]*constraint.FixConstraint),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Dimension returns the problem's fixed dimension (2 or 3).
func (p *Problem) Dimension() int { return p.dimension }

// Graph returns the underlying ConstraintGraph, so a Solver can subscribe
// to its add/rem events directly.
func (p *Problem) Graph() *cgraph.Graph { return p.cg }

// Subscribe registers fn to receive every event Problem publishes on
// itself: set_point, set_parameter, add_selection_constraint, and
// rem_selection_constraint.
func (p *Problem) Subscribe(fn event.Listener) {
	p.bus.Subscribe(p, fn)
}

func distanceKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

func angleKey(a, b, c string) string {
	return a + "\x00" + b + "\x00" + c
}

// AddPoint records v's prototype position and adds it as a ConstraintGraph
// vertex. Returns ErrDuplicateVariable if v is already present. No
// notification is emitted here beyond the add_variable event the
// ConstraintGraph itself emits.
func (p *Problem) AddPoint(v string, proto geovec.Vector) error {
	if p.cg.HasVariable(v) {
		return fmt.Errorf("AddPoint(%s): %w", v, ErrDuplicateVariable)
	}
	p.prototypes[v] = proto.Clone()
	if err := p.cg.AddVariable(v); err != nil {
		delete(p.prototypes, v)
		return fmt.Errorf("AddPoint(%s): %w", v, ErrDuplicateVariable)
	}
	return nil
}

// SetPoint updates v's prototype position and notifies listeners with
// EventSetPoint. Returns ErrUnknownVariable if v is absent.
func (p *Problem) SetPoint(v string, proto geovec.Vector) error {
	if !p.cg.HasVariable(v) {
		return fmt.Errorf("SetPoint(%s): %w", v, ErrUnknownVariable)
	}
	p.prototypes[v] = proto.Clone()
	p.bus.Publish(p, event.Event{Type: EventSetPoint, Data: SetPointPayload{Variable: v, Position: proto.Clone()}})
	return nil
}

// GetPoint returns v's current prototype position, and whether v is known.
func (p *Problem) GetPoint(v string) (geovec.Vector, bool) {
	pos, ok := p.prototypes[v]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// HasPoint reports whether v is a known variable.
func (p *Problem) HasPoint(v string) bool { return p.cg.HasVariable(v) }

// Variables returns every known variable, in no particular order.
func (p *Problem) Variables() []string { return p.cg.Variables() }

// Constraints returns every constraint currently in the problem, in no
// particular order.
func (p *Problem) Constraints() []constraint.Constraint {
	out := make([]constraint.Constraint, 0, len(p.constraints))
	for _, c := range p.constraints {
		out = append(out, c)
	}
	return out
}

// Distance returns the DistanceConstraint over the unordered pair (a,b), if
// one exists.
func (p *Problem) Distance(a, b string) (*constraint.DistanceConstraint, bool) {
	c, ok := p.distances[distanceKey(a, b)]
	return c, ok
}

// Angle returns the AngleConstraint over the ordered triple (a,b,c) with
// apex b, if one exists.
func (p *Problem) Angle(a, b, c string) (*constraint.AngleConstraint, bool) {
	ac, ok := p.angles[angleKey(a, b, c)]
	return ac, ok
}

// Fix returns the FixConstraint on variable v, if one exists.
func (p *Problem) Fix(v string) (*constraint.FixConstraint, bool) {
	c, ok := p.fixes[v]
	return c, ok
}

type parametricSubscriber interface {
	Subscribe(fn event.Listener)
}

// AddConstraint validates and stores c: every variable in c.Variables()
// must already be known, and c must not violate the type-specific
// uniqueness invariant (at most one Distance per pair, one Angle per
// apex-ordered triple, one Fix per variable). SelectionConstraint has no
// uniqueness constraint of its own.
//
// On success, parametric constraints (Distance/Angle/Fix) are subscribed
// so their parameter changes re-broadcast as EventSetParameter; selection
// constraints additionally publish EventAddSelectionConstraint.
func (p *Problem) AddConstraint(c constraint.Constraint) error {
	for _, v := range c.Variables() {
		if !p.cg.HasVariable(v) {
			return fmt.Errorf("AddConstraint: %w: %s", ErrUnknownVariable, v)
		}
	}

	var key string
	switch c.Kind() {
	case constraint.KindDistance:
		dc := c.(*constraint.DistanceConstraint)
		vars := dc.Variables()
		key = distanceKey(vars[0], vars[1])
		if _, exists := p.distances[key]; exists {
			return fmt.Errorf("AddConstraint(Distance %s,%s): %w", vars[0], vars[1], ErrDuplicateConstraint)
		}
	case constraint.KindAngle:
		ac := c.(*constraint.AngleConstraint)
		vars := ac.Variables()
		key = angleKey(vars[0], vars[1], vars[2])
		if _, exists := p.angles[key]; exists {
			return fmt.Errorf("AddConstraint(Angle %s,%s,%s): %w", vars[0], vars[1], vars[2], ErrDuplicateConstraint)
		}
	case constraint.KindFix:
		fc := c.(*constraint.FixConstraint)
		key = fc.Variable()
		if _, exists := p.fixes[key]; exists {
			return fmt.Errorf("AddConstraint(Fix %s): %w", key, ErrDuplicateConstraint)
		}
	case constraint.KindSelection:
		// No uniqueness invariant.
	default:
		return fmt.Errorf("AddConstraint: %w: %v", ErrUnsupportedConstraint, c.Kind())
	}

	if err := p.cg.AddConstraint(c); err != nil {
		return fmt.Errorf("AddConstraint: %w", err)
	}
	p.constraints[c.ID()] = c

	switch c.Kind() {
	case constraint.KindDistance:
		p.distances[key] = c.(*constraint.DistanceConstraint)
	case constraint.KindAngle:
		p.angles[key] = c.(*constraint.AngleConstraint)
	case constraint.KindFix:
		p.fixes[key] = c.(*constraint.FixConstraint)
	case constraint.KindSelection:
		p.bus.Publish(p, event.Event{Type: EventAddSelectionConstraint, Data: c})
	}

	if ps, ok := c.(parametricSubscriber); ok {
		ps.Subscribe(func(_ interface{}, e event.Event) {
			p.bus.Publish(p, event.Event{Type: EventSetParameter, Data: SetParameterPayload{Constraint: c, Value: e.Data}})
		})
	}
	return nil
}

// RemovePoint removes v and its prototype. The ConstraintGraph's own
// rem_variable event is what a subscribed Solver uses to drop the
// corresponding singleton Rigid; RemovePoint does not cascade to
// constraints still referencing v.
func (p *Problem) RemovePoint(v string) error {
	if err := p.cg.RemoveVariable(v); err != nil {
		return fmt.Errorf("RemovePoint(%s): %w", v, ErrUnknownVariable)
	}
	delete(p.prototypes, v)
	return nil
}

// RemoveConstraint removes c. If c is a SelectionConstraint, publishes
// EventRemSelectionConstraint.
func (p *Problem) RemoveConstraint(c constraint.Constraint) error {
	if err := p.cg.RemoveConstraint(c); err != nil {
		return fmt.Errorf("RemoveConstraint: %w", err)
	}
	delete(p.constraints, c.ID())

	switch c.Kind() {
	case constraint.KindDistance:
		dc := c.(*constraint.DistanceConstraint)
		vars := dc.Variables()
		delete(p.distances, distanceKey(vars[0], vars[1]))
	case constraint.KindAngle:
		ac := c.(*constraint.AngleConstraint)
		vars := ac.Variables()
		delete(p.angles, angleKey(vars[0], vars[1], vars[2]))
	case constraint.KindFix:
		fc := c.(*constraint.FixConstraint)
		delete(p.fixes, fc.Variable())
	case constraint.KindSelection:
		p.bus.Publish(p, event.Event{Type: EventRemSelectionConstraint, Data: c})
	}
	return nil
}

// Verify reports whether every constraint is satisfied on solution: false
// if any constraint's variables are missing from solution, or if
// Satisfied(solution) is false for any constraint.
func (p *Problem) Verify(solution map[string]geovec.Vector) bool {
	for _, c := range p.constraints {
		for _, v := range c.Variables() {
			if _, ok := solution[v]; !ok {
				return false
			}
		}
		if !c.Satisfied(solution) {
			return false
		}
	}
	return true
}

// String returns an unspecified-format diagnostic dump of the problem's
// variables and constraints, useful for tests and logging.
func (p *Problem) String() string {
	var b strings.Builder
	vars := p.Variables()
	sort.Strings(vars)
	fmt.Fprintf(&b, "Problem(dimension=%d, variables=%v, constraints=[", p.dimension, vars)
	ids := make([]uint64, 0, len(p.constraints))
	for id := range p.constraints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", p.constraints[id])
	}
	b.WriteString("])")
	return b.String()
}
