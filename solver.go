package geosolver

import (
	"fmt"
	"sort"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kmolab/geosolver/cgraph"
	"github.com/kmolab/geosolver/cluster"
	"github.com/kmolab/geosolver/clustersolver"
	"github.com/kmolab/geosolver/configbuilder"
	"github.com/kmolab/geosolver/constraint"
	"github.com/kmolab/geosolver/event"
	"github.com/kmolab/geosolver/geovec"
)

// SolverOption configures a Solver at construction time.
type SolverOption func(*Solver)

// WithLogger attaches a structured logger to both the Solver and the
// ClusterSolver it drives.
func WithLogger(log *logrus.Entry) SolverOption {
	return func(s *Solver) { s.log = log }
}

// Solver is GeometricSolver: the reactive bridge between a Problem's
// ConstraintGraph and a ClusterSolver. It listens to both, maintains a
// bidirectional identity map between constraints/variables and primitive
// clusters, pushes primitives and configurations into ClusterSolver, and
// assembles results on demand.
//
// Concurrency: not safe for concurrent use; see package event's doc comment
// on Bus.
type Solver struct {
	problem   *Problem
	cg        *cgraph.Graph
	dimension int
	cs        *clustersolver.Solver
	log       *logrus.Entry

	nextHandle uint64

	varRigid   map[string]*cluster.Cluster
	conCluster map[uint64]*cluster.Cluster

	fixVars        []string
	fixConstraints map[string]*constraint.FixConstraint
	fixCluster     *cluster.Cluster

	lastErr error
}

// NewSolver constructs a Solver for problem, instantiates the matching
// ClusterSolver, subscribes to both the ConstraintGraph and the Problem,
// and bootstraps by replaying current state in the required order:
// variables, then distance constraints, then every other non-selection
// constraint.
func NewSolver(problem *Problem, opts ...SolverOption) (*Solver, error) {
	s := &Solver{
		problem:        problem,
		cg:             problem.Graph(),
		dimension:      problem.Dimension(),
		log:            logrus.NewEntry(logrus.StandardLogger()),
		varRigid:       make(map[string]*cluster.Cluster),
		conCluster:     make(map[uint64]*cluster.Cluster),
		fixConstraints: make(map[string]*constraint.FixConstraint),
	}
	for _, opt := range opts {
		opt(s)
	}

	cs, err := clustersolver.NewSolver(s.dimension,
		clustersolver.WithLogger(s.log),
		clustersolver.WithPrototypeProvider(problem.GetPoint),
	)
	if err != nil {
		return nil, fmt.Errorf("NewSolver: %w", ErrUnsupportedDimension)
	}
	s.cs = cs

	s.cg.Subscribe(s.dispatch)
	s.problem.Subscribe(s.dispatch)

	s.bootstrap()
	return s, nil
}

func (s *Solver) newHandle() cluster.Handle {
	return cluster.Handle(atomic.AddUint64(&s.nextHandle, 1))
}

// bootstrap replays the problem's current state in decomposition-friendly
// order: every variable, then every DistanceConstraint, then every other
// non-selection constraint.
func (s *Solver) bootstrap() {
	vars := s.problem.Variables()
	sort.Strings(vars)
	for _, v := range vars {
		s.onAddVariable(v)
	}

	all := s.problem.Constraints()
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })

	for _, c := range all {
		if c.Kind() == constraint.KindDistance {
			s.onAddConstraint(c)
		}
	}
	for _, c := range all {
		if c.Kind() != constraint.KindDistance && c.Kind() != constraint.KindSelection {
			s.onAddConstraint(c)
		}
	}
}

// dispatch is the single notification entry point, subscribed to both the
// ConstraintGraph and the Problem. Any other source is a protocol
// violation: unreachable through this package's own wiring, but guarded
// defensively since Bus.Subscribe has no static source check of its own.
func (s *Solver) dispatch(source interface{}, e event.Event) {
	switch source {
	case s.cg:
		s.handleGraphEvent(e)
	case s.problem:
		s.handleProblemEvent(e)
	default:
		s.lastErr = fmt.Errorf("dispatch: %w: unexpected source %v", ErrProtocolViolation, source)
		s.log.WithField("source", source).Error("geosolver: notification from unrecognized source")
	}
}

// Err returns the last protocol violation observed by dispatch, or nil.
func (s *Solver) Err() error { return s.lastErr }

func (s *Solver) handleGraphEvent(e event.Event) {
	switch e.Type {
	case cgraph.EventAddVariable:
		s.onAddVariable(e.Data.(string))
	case cgraph.EventRemVariable:
		s.onRemVariable(e.Data.(string))
	case cgraph.EventAddConstraint:
		s.onAddConstraint(e.Data.(constraint.Constraint))
	case cgraph.EventRemConstraint:
		s.onRemConstraint(e.Data.(constraint.Constraint))
	}
}

func (s *Solver) handleProblemEvent(e event.Event) {
	switch e.Type {
	case EventSetPoint:
		payload := e.Data.(SetPointPayload)
		s.onSetPoint(payload.Variable, payload.Position)
	case EventSetParameter:
		payload := e.Data.(SetParameterPayload)
		s.onSetParameter(payload.Constraint)
	case EventAddSelectionConstraint:
		c := e.Data.(constraint.Constraint)
		s.cs.NotifySelection(true, c.Variables())
	case EventRemSelectionConstraint:
		c := e.Data.(constraint.Constraint)
		s.cs.NotifySelection(false, c.Variables())
	}
}

func (s *Solver) onAddVariable(v string) {
	proto, ok := s.problem.GetPoint(v)
	if !ok {
		return
	}
	rigid := cluster.NewRigid(s.newHandle(), []string{v})
	s.varRigid[v] = rigid
	s.cs.Add(rigid)
	s.cs.Set(rigid, []cluster.Configuration{configbuilder.Variable(v, proto)})
	s.log.WithField("variable", v).Debug("geosolver: add_variable")
}

func (s *Solver) onRemVariable(v string) {
	rigid, ok := s.varRigid[v]
	if !ok {
		return
	}
	s.cs.Remove(rigid)
	delete(s.varRigid, v)
}

func (s *Solver) onAddConstraint(c constraint.Constraint) {
	switch c.Kind() {
	case constraint.KindDistance:
		dc := c.(*constraint.DistanceConstraint)
		vars := dc.Variables()
		rigid := cluster.NewRigid(s.newHandle(), []string{vars[0], vars[1]})
		s.registerConstraintCluster(c.ID(), rigid)
		s.cs.Add(rigid)
		cfg := configbuilder.Distance(vars[0], vars[1], dc.Distance(), s.dimension)
		s.pushAndVerify(c, rigid, cfg)
	case constraint.KindAngle:
		ac := c.(*constraint.AngleConstraint)
		vars := ac.Variables()
		hh := cluster.NewHedgehog(s.newHandle(), vars[1], []string{vars[0], vars[2]})
		s.registerConstraintCluster(c.ID(), hh)
		s.cs.Add(hh)
		cfg := configbuilder.Angle(vars[0], vars[1], vars[2], ac.Theta(), s.dimension)
		s.pushAndVerify(c, hh, cfg)
	case constraint.KindFix:
		fc := c.(*constraint.FixConstraint)
		s.onAddFix(fc)
	case constraint.KindSelection:
		// Not materialized as a primitive; Problem's add_selection_constraint
		// event (handled in handleProblemEvent) is the real transport.
	}
	s.log.WithFields(logrus.Fields{"constraint_id": c.ID(), "kind": c.Kind()}).Debug("geosolver: add_constraint")
}

func (s *Solver) registerConstraintCluster(id uint64, cl *cluster.Cluster) {
	s.conCluster[id] = cl
}

// pushAndVerify sets cfg as cl's configuration, first asserting that cfg
// satisfies con — the invariant a freshly synthesized reference
// configuration must never violate. Failure is fatal: it indicates a bug in
// configbuilder, not a user error, so it panics rather than returning an
// error.
func (s *Solver) pushAndVerify(con constraint.Constraint, cl *cluster.Cluster, cfg cluster.Configuration) {
	if !con.Satisfied(cfg.Map()) {
		panic(pkgerrors.WithStack(fmt.Errorf("%w: constraint %v did not satisfy its own synthesized configuration", ErrInvariantViolation, con)))
	}
	s.cs.Set(cl, []cluster.Configuration{cfg})
}

func (s *Solver) onRemConstraint(c constraint.Constraint) {
	switch c.Kind() {
	case constraint.KindFix:
		fc := c.(*constraint.FixConstraint)
		s.onRemoveFix(fc)
	case constraint.KindSelection:
		// handled via Problem's rem_selection_constraint event
	default:
		cl, ok := s.conCluster[c.ID()]
		if !ok {
			return
		}
		s.cs.Remove(cl)
		delete(s.conCluster, c.ID())
	}
}

// onAddFix and onRemoveFix implement fix aggregation: fixVars tracks
// currently-fixed variables in insertion order; fixCluster is the single
// Rigid over all of them once there are enough to pin the problem's
// orientation (dimension or more).
func (s *Solver) onAddFix(fc *constraint.FixConstraint) {
	v := fc.Variable()
	s.fixConstraints[v] = fc
	s.fixVars = append(s.fixVars, v)
	s.rebuildFixCluster()
}

func (s *Solver) onRemoveFix(fc *constraint.FixConstraint) {
	v := fc.Variable()
	delete(s.fixConstraints, v)
	for i, fv := range s.fixVars {
		if fv == v {
			s.fixVars = append(s.fixVars[:i:i], s.fixVars[i+1:]...)
			break
		}
	}
	s.rebuildFixCluster()
}

// rebuildFixCluster removes the current fixcluster (if any), then — if
// enough variables are fixed — computes and installs a new one, designated
// as the ClusterSolver's root. The old primitive is always removed before
// the new one is computed and added, even though this implementation has no
// exception path between the two that could leave ClusterSolver holding a
// stale fixcluster.
func (s *Solver) rebuildFixCluster() {
	if s.fixCluster != nil {
		s.cs.Remove(s.fixCluster)
		s.fixCluster = nil
	}
	if len(s.fixVars) < s.dimension {
		return
	}

	positions := make(map[string]geovec.Vector, len(s.fixVars))
	for _, v := range s.fixVars {
		positions[v] = s.fixConstraints[v].Position()
	}
	cfg := configbuilder.Fix(positions)
	for _, v := range s.fixVars {
		if !s.fixConstraints[v].Satisfied(cfg.Map()) {
			panic(pkgerrors.WithStack(fmt.Errorf("%w: fixcluster variable %s", ErrInvariantViolation, v)))
		}
	}

	newCluster := cluster.NewRigid(s.newHandle(), append([]string(nil), s.fixVars...))
	s.cs.Add(newCluster)
	s.cs.Set(newCluster, []cluster.Configuration{cfg})
	s.cs.SetRoot(newCluster)
	s.fixCluster = newCluster
}

func (s *Solver) onSetPoint(v string, pos geovec.Vector) {
	rigid, ok := s.varRigid[v]
	if !ok {
		return
	}
	s.cs.Set(rigid, []cluster.Configuration{configbuilder.Variable(v, pos)})
}

func (s *Solver) onSetParameter(con constraint.Constraint) {
	switch con.Kind() {
	case constraint.KindDistance:
		dc := con.(*constraint.DistanceConstraint)
		cl, ok := s.conCluster[con.ID()]
		if !ok {
			return
		}
		vars := dc.Variables()
		cfg := configbuilder.Distance(vars[0], vars[1], dc.Distance(), s.dimension)
		s.pushAndVerify(con, cl, cfg)
	case constraint.KindAngle:
		ac := con.(*constraint.AngleConstraint)
		cl, ok := s.conCluster[con.ID()]
		if !ok {
			return
		}
		vars := ac.Variables()
		cfg := configbuilder.Angle(vars[0], vars[1], vars[2], ac.Theta(), s.dimension)
		s.pushAndVerify(con, cl, cfg)
	case constraint.KindFix:
		s.rebuildFixCluster()
	}
}

// GetResult assembles the hierarchical GeometricCluster tree from
// ClusterSolver's current rigids and merge methods.
func (s *Solver) GetResult() *GeometricCluster {
	byHandle := make(map[cluster.Handle]*GeometricCluster)
	for _, rigid := range s.cs.Rigids() {
		configs, _ := s.cs.Get(rigid)
		solutions := make([]Solution, 0, len(configs))
		for _, cfg := range configs {
			solutions = append(solutions, Solution{Mapping: cfg.Map(), Underconstrained: cfg.Underconstrained})
		}
		byHandle[rigid.Handle] = &GeometricCluster{
			Variables: rigid.Vars(),
			Solutions: solutions,
			Flag:      computeFlag(rigid, solutions),
		}
	}

	for _, m := range s.cs.Methods() {
		for _, out := range m.Outputs() {
			if out.Kind != cluster.KindRigid {
				continue
			}
			parent, ok := byHandle[out.Handle]
			if !ok {
				continue
			}
			if _, isPrototype := m.(*clustersolver.PrototypeMethod); isPrototype {
				in := m.Inputs()[0]
				if inGC, ok := byHandle[in.Handle]; ok {
					parent.Subs = append(parent.Subs, inGC.Subs...)
				}
				continue
			}
			for _, in := range m.Inputs() {
				if in.Kind != cluster.KindRigid {
					continue
				}
				if childGC, ok := byHandle[in.Handle]; ok {
					parent.Subs = append(parent.Subs, childGC)
				}
			}
		}
	}

	var topRigids []*GeometricCluster
	for _, t := range s.cs.TopLevel() {
		if t.Kind != cluster.KindRigid {
			continue
		}
		if gc, ok := byHandle[t.Handle]; ok {
			topRigids = append(topRigids, gc)
		}
	}

	switch len(topRigids) {
	case 0:
		return &GeometricCluster{Flag: FlagUnsolved}
	case 1:
		return topRigids[0]
	default:
		vars := make(map[string]struct{})
		for _, gc := range topRigids {
			for _, v := range gc.Variables {
				vars[v] = struct{}{}
			}
		}
		union := make([]string, 0, len(vars))
		for v := range vars {
			union = append(union, v)
		}
		sort.Strings(union)
		return &GeometricCluster{Variables: union, Subs: topRigids, Flag: FlagSUnder}
	}
}

func computeFlag(rigid *cluster.Cluster, solutions []Solution) Flag {
	if rigid.Overconstrained {
		return FlagSOver
	}
	if len(solutions) == 0 {
		return FlagIOver
	}
	for _, s := range solutions {
		if s.Underconstrained {
			return FlagIUnder
		}
	}
	return FlagOK
}

// GetConstrainedness classifies the problem's overall solvability by
// inspecting ClusterSolver's top level.
func (s *Solver) GetConstrainedness() string {
	top := s.cs.TopLevel()
	if len(top) > 1 {
		return "under-constrained"
	}
	if len(top) == 0 {
		return "error"
	}
	only := top[0]
	if only.Kind != cluster.KindRigid {
		return "under-constrained"
	}
	configs, ok := s.cs.Get(only)
	switch {
	case !ok:
		return "unsolved"
	case len(configs) == 0:
		return "over-constrained"
	default:
		return "well-constrained"
	}
}
