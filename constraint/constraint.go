// Package constraint implements the four constraint variants this module
// supports: DistanceConstraint, AngleConstraint, FixConstraint, and
// SelectionConstraint, plus the ParametricConstraint base shared by the
// first three.
//
// This mirrors geosolver/geometric.py's constraint classes; ClusterSolver,
// the vector type, and the notification bus are separate collaborators.
package constraint

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/kmolab/geosolver/event"
	"github.com/kmolab/geosolver/geovec"
)

// nextHandle assigns a stable integer identity on construction, monotonically
// across every constraint ever constructed in this process.
var nextHandle uint64

func allocHandle() uint64 {
	return atomic.AddUint64(&nextHandle, 1)
}

// Kind discriminates the constraint variants for dispatch, a tagged-union
// discriminator in place of a type-switch-by-interface-assertion chain.
type Kind int

const (
	KindDistance Kind = iota
	KindAngle
	KindFix
	KindSelection
)

func (k Kind) String() string {
	switch k {
	case KindDistance:
		return "Distance"
	case KindAngle:
		return "Angle"
	case KindFix:
		return "Fix"
	case KindSelection:
		return "Selection"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Constraint is the common surface every variant satisfies: a stable
// instance handle, the variables it touches, its Kind, and whether a given
// mapping satisfies it.
type Constraint interface {
	ID() uint64
	Kind() Kind
	Variables() []string
	Satisfied(mapping map[string]geovec.Vector) bool
}

// ParametricConstraint is the base for constraints carrying a single scalar
// or vector parameter, with set_parameter notification.
// DistanceConstraint, AngleConstraint, and FixConstraint embed it.
type ParametricConstraint struct {
	handle uint64
	bus    *event.Bus
	value  interface{}
}

// ID returns the constraint's stable instance handle.
func (p *ParametricConstraint) ID() uint64 { return p.handle }

// Subscribe registers fn to receive this constraint's set_parameter events.
// GeometricProblem uses this to re-broadcast parameter changes.
func (p *ParametricConstraint) Subscribe(fn event.Listener) {
	p.bus.Subscribe(p, fn)
}

// EventSetParameter is published whenever SetParameter changes the value.
const EventSetParameter = "set_parameter"

func (p *ParametricConstraint) setParameter(value interface{}) {
	p.value = value
	p.bus.Publish(p, event.Event{Type: EventSetParameter, Data: value})
}

// DistanceConstraint requires ‖pos(a)−pos(b)‖ = d within tolerance.
type DistanceConstraint struct {
	ParametricConstraint
	a, b string
}

// NewDistance returns a DistanceConstraint between a and b with target
// distance d.
func NewDistance(a, b string, d float64) *DistanceConstraint {
	c := &DistanceConstraint{
		ParametricConstraint: ParametricConstraint{handle: allocHandle(), bus: event.NewBus()},
		a:                    a,
		b:                    b,
	}
	c.value = d
	return c
}

func (c *DistanceConstraint) Kind() Kind          { return KindDistance }
func (c *DistanceConstraint) Variables() []string { return []string{c.a, c.b} }

// Distance returns the target distance parameter.
func (c *DistanceConstraint) Distance() float64 { return c.value.(float64) }

// SetDistance updates the target distance and notifies listeners.
func (c *DistanceConstraint) SetDistance(d float64) { c.setParameter(d) }

// Satisfied reports whether mapping[a] and mapping[b] are at distance
// Distance() within tolerance.
func (c *DistanceConstraint) Satisfied(mapping map[string]geovec.Vector) bool {
	pa, okA := mapping[c.a]
	pb, okB := mapping[c.b]
	if !okA || !okB {
		return false
	}
	return geovec.TolEq(geovec.Distance(pa, pb), c.Distance())
}

func (c *DistanceConstraint) String() string {
	return fmt.Sprintf("DistanceConstraint(%s,%s,%v)", c.a, c.b, c.Distance())
}

// AngleConstraint requires the angle at b in triangle a-b-c to equal θ,
// unsigned in 3D, signed in 2D.
type AngleConstraint struct {
	ParametricConstraint
	a, b, c string
}

// NewAngle returns an AngleConstraint with apex b and target angle theta.
func NewAngle(a, b, c string, theta float64) *AngleConstraint {
	ac := &AngleConstraint{
		ParametricConstraint: ParametricConstraint{handle: allocHandle(), bus: event.NewBus()},
		a:                    a,
		b:                    b,
		c:                    c,
	}
	ac.value = theta
	return ac
}

func (c *AngleConstraint) Kind() Kind          { return KindAngle }
func (c *AngleConstraint) Variables() []string { return []string{c.a, c.b, c.c} }

// Theta returns the target angle parameter.
func (c *AngleConstraint) Theta() float64 { return c.value.(float64) }

// SetTheta updates the target angle and notifies listeners.
func (c *AngleConstraint) SetTheta(theta float64) { c.setParameter(theta) }

// Satisfied measures the angle at b and compares it to Theta(). If a or c
// coincides with b, the angle is undefined and it returns false; collinear
// points give an angle of 0 or π and are compared like any other. In 3D the comparison is against math.Abs(Theta()): angles
// are unsigned there. In 2D the comparison retains sign. This asymmetry is
// intentional, not a bug to silently normalize away.
func (c *AngleConstraint) Satisfied(mapping map[string]geovec.Vector) bool {
	pa, okA := mapping[c.a]
	pb, okB := mapping[c.b]
	pc, okC := mapping[c.c]
	if !okA || !okB || !okC {
		return false
	}
	measured, ok := geovec.AngleAt(pa, pb, pc)
	if !ok {
		return false
	}
	target := c.Theta()
	if len(pa) >= 3 {
		target = math.Abs(c.Theta())
	}
	return geovec.TolEq(measured, target)
}

func (c *AngleConstraint) String() string {
	return fmt.Sprintf("AngleConstraint(%s,%s,%s,%v)", c.a, c.b, c.c, c.Theta())
}

// FixConstraint requires pos(v) = p, componentwise within tolerance, over
// the first `dimension` coordinates.
type FixConstraint struct {
	ParametricConstraint
	v string
}

// NewFix returns a FixConstraint pinning v to position p.
func NewFix(v string, p geovec.Vector) *FixConstraint {
	c := &FixConstraint{
		ParametricConstraint: ParametricConstraint{handle: allocHandle(), bus: event.NewBus()},
		v:                    v,
	}
	c.value = p.Clone()
	return c
}

func (c *FixConstraint) Kind() Kind          { return KindFix }
func (c *FixConstraint) Variables() []string { return []string{c.v} }

// Variable returns the fixed variable.
func (c *FixConstraint) Variable() string { return c.v }

// Position returns the target position parameter.
func (c *FixConstraint) Position() geovec.Vector { return c.value.(geovec.Vector) }

// SetPosition updates the target position and notifies listeners.
func (c *FixConstraint) SetPosition(p geovec.Vector) { c.setParameter(p.Clone()) }

// Satisfied compares mapping[v] to Position() componentwise over the first
// dimension coordinates, where dimension = len(Position()). This is the
// intended semantics: compare exactly as many coordinates as the fixed
// position actually carries, rather than hardcoding to 2D.
func (c *FixConstraint) Satisfied(mapping map[string]geovec.Vector) bool {
	p, ok := mapping[c.v]
	if !ok {
		return false
	}
	target := c.Position()
	dimension := len(target)
	if len(p) < dimension {
		return false
	}
	for i := 0; i < dimension; i++ {
		if !geovec.TolEq(p[i], target[i]) {
			return false
		}
	}
	return true
}

func (c *FixConstraint) String() string {
	return fmt.Sprintf("FixConstraint(%s,%v)", c.v, c.Position())
}

// SelectionConstraint is an opaque predicate over a variable tuple: only its
// membership matters to this module. It is never instantiated as a
// primitive cluster; it is forwarded to ClusterSolver via the
// add_selection_constraint/rem_selection_constraint side-channel instead.
type SelectionConstraint struct {
	handle uint64
	vars   []string
	// Predicate is the opaque membership test this constraint wraps. It may
	// be nil if the caller only needs the constraint as a forwarding token.
	Predicate func(mapping map[string]geovec.Vector) bool
}

// NewSelection returns a SelectionConstraint over the given variable tuple.
func NewSelection(vars []string, predicate func(mapping map[string]geovec.Vector) bool) *SelectionConstraint {
	return &SelectionConstraint{
		handle:    allocHandle(),
		vars:      append([]string(nil), vars...),
		Predicate: predicate,
	}
}

func (c *SelectionConstraint) ID() uint64          { return c.handle }
func (c *SelectionConstraint) Kind() Kind          { return KindSelection }
func (c *SelectionConstraint) Variables() []string { return append([]string(nil), c.vars...) }

// Satisfied delegates to Predicate if set, otherwise reports true (a
// SelectionConstraint with no predicate carries no verifiable semantics of
// its own; it exists only to be forwarded).
func (c *SelectionConstraint) Satisfied(mapping map[string]geovec.Vector) bool {
	if c.Predicate == nil {
		return true
	}
	return c.Predicate(mapping)
}

func (c *SelectionConstraint) String() string {
	return fmt.Sprintf("SelectionConstraint(%v)", c.vars)
}
