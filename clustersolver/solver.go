// Package clustersolver implements the ClusterSolver contract: the
// low-level engine that tracks primitive clusters (Rigid/Hedgehog), merges
// them opportunistically into larger Rigids, and exposes the resulting
// merge forest.
//
// The rest of this module treats ClusterSolver as an external collaborator
// specified only by its published interface, so this package still has to
// ship a real implementation for the boundary scenarios to be exercised.
// See DESIGN.md for the merge rules' grounding.
//
// Concurrency: Solver is not safe for concurrent use, matching the rest of
// this module's single-threaded, synchronous contract.
package clustersolver

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kmolab/geosolver/cluster"
	"github.com/kmolab/geosolver/geovec"
)

// ErrUnsupportedDimension indicates NewSolver was asked for a dimension
// other than 2 or 3.
var ErrUnsupportedDimension = errors.New("clustersolver: unsupported dimension")

// derivedHandleBase offsets handles this engine mints for merge outputs
// well above any handle a caller is expected to mint for leaf clusters, so
// the two spaces never collide in practice. Handle is an opaque uint64 with
// no ordering contract beyond uniqueness, so this is a convention, not a
// protocol requirement.
const derivedHandleBase = uint64(1) << 40

// Method is a merge step: it consumed Inputs() and produced Outputs().
type Method interface {
	Inputs() []*cluster.Cluster
	Outputs() []*cluster.Cluster
}

type mergeMethod struct {
	inputs  []*cluster.Cluster
	outputs []*cluster.Cluster
}

func (m *mergeMethod) Inputs() []*cluster.Cluster  { return m.inputs }
func (m *mergeMethod) Outputs() []*cluster.Cluster { return m.outputs }

// PrototypeMethod selects, among a Rigid's multiple candidate
// configurations, the one that fits the registered prototype positions most
// closely after rigid alignment.
// Always exactly one input and one output.
type PrototypeMethod struct {
	mergeMethod
}

// PrototypeProvider resolves a variable's prototype position, if any.
// GeometricSolver registers one backed by Problem.GetPoint.
type PrototypeProvider func(variable string) (geovec.Vector, bool)

type leafEntry struct {
	cl      *cluster.Cluster
	configs []cluster.Configuration
}

type node struct {
	cl      *cluster.Cluster
	configs []cluster.Configuration
}

// Option configures a Solver at construction time.
type Option func(*Solver)

// WithLogger attaches a structured logger; defaults to logrus's standard
// logger wrapped in an empty Entry if unset.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Solver) { s.log = log }
}

// WithPrototypeProvider registers the callback used to disambiguate
// multi-solution Rigids via PrototypeMethod.
func WithPrototypeProvider(fn PrototypeProvider) Option {
	return func(s *Solver) { s.prototype = fn }
}

// Solver is the ClusterSolver engine for a fixed dimension (2 or 3).
type Solver struct {
	dimension int
	log       *logrus.Entry
	prototype PrototypeProvider

	leaves      map[cluster.Handle]*leafEntry
	root        cluster.Handle
	hasRoot     bool
	nextDerived uint64

	dirty      bool
	all        map[cluster.Handle]*node
	active     map[cluster.Handle]*node
	methods    []Method
	topLevel   []cluster.Handle
	selections []SelectionEvent
}

// NewSolver returns a Solver for the given dimension (2 or 3).
func NewSolver(dimension int, opts ...Option) (*Solver, error) {
	if dimension != 2 && dimension != 3 {
		return nil, fmt.Errorf("NewSolver(%d): %w", dimension, ErrUnsupportedDimension)
	}
	s := &Solver{
		dimension:   dimension,
		log:         logrus.NewEntry(logrus.StandardLogger()),
		leaves:      make(map[cluster.Handle]*leafEntry),
		nextDerived: derivedHandleBase,
		dirty:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Solver) newHandle() cluster.Handle {
	return cluster.Handle(atomic.AddUint64(&s.nextDerived, 1))
}

// Add registers a new leaf primitive cluster. Merges are deferred to the
// next query (rebuild-on-read).
func (s *Solver) Add(cl *cluster.Cluster) {
	s.leaves[cl.Handle] = &leafEntry{cl: cl}
	s.dirty = true
	s.log.WithFields(logrus.Fields{"handle": cl.Handle, "kind": cl.Kind, "vars": cl.Vars()}).Debug("clustersolver: add")
}

// Remove drops a leaf primitive cluster. Any derived cluster that depended
// on it is recomputed away on the next rebuild, not patched incrementally.
func (s *Solver) Remove(cl *cluster.Cluster) {
	delete(s.leaves, cl.Handle)
	s.dirty = true
	s.log.WithFields(logrus.Fields{"handle": cl.Handle}).Debug("clustersolver: remove")
}

// Set replaces the configuration list of the leaf cluster cl, registering
// it first if it is not already tracked.
func (s *Solver) Set(cl *cluster.Cluster, configs []cluster.Configuration) {
	entry, ok := s.leaves[cl.Handle]
	if !ok {
		entry = &leafEntry{cl: cl}
		s.leaves[cl.Handle] = entry
	}
	entry.configs = configs
	s.dirty = true
}

// Get returns the configurations currently associated with cl (leaf or
// derived), and whether cl is tracked at all.
func (s *Solver) Get(cl *cluster.Cluster) ([]cluster.Configuration, bool) {
	s.rebuild()
	n, ok := s.all[cl.Handle]
	if !ok {
		return nil, false
	}
	return n.configs, true
}

// SetRoot designates cl as the anchor for absolute positioning.
func (s *Solver) SetRoot(cl *cluster.Cluster) {
	s.root = cl.Handle
	s.hasRoot = true
}

// Root returns the designated root cluster itself, if one is set and it is
// still tracked; it is not mapped to a merged cluster that absorbed it.
func (s *Solver) Root() (*cluster.Cluster, bool) {
	if !s.hasRoot {
		return nil, false
	}
	s.rebuild()
	n, ok := s.all[s.root]
	if !ok {
		return nil, false
	}
	return n.cl, true
}

// TopLevel returns the clusters with no parent in the current merge forest.
func (s *Solver) TopLevel() []*cluster.Cluster {
	s.rebuild()
	out := make([]*cluster.Cluster, 0, len(s.topLevel))
	for _, h := range s.topLevel {
		out = append(out, s.all[h].cl)
	}
	return out
}

// Rigids returns every Rigid cluster currently tracked, leaf or derived,
// ordered by handle for determinism.
func (s *Solver) Rigids() []*cluster.Cluster {
	s.rebuild()
	var out []*cluster.Cluster
	for _, n := range s.all {
		if n.cl.Kind == cluster.KindRigid {
			out = append(out, n.cl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Methods returns the merge methods applied to reach the current state, in
// the order they were applied.
func (s *Solver) Methods() []Method {
	s.rebuild()
	return s.methods
}

// SelectionEvent records a selection-constraint forwarded through
// NotifySelection, in the order received.
type SelectionEvent struct {
	Added bool
	Vars  []string
}

// NotifySelection records a selection constraint's addition or removal.
// SelectionConstraint carries no primitive of its own — it never
// participates in merges — so this is pure observability: callers can
// inspect Selections() to confirm forwarding reached the engine.
func (s *Solver) NotifySelection(added bool, vars []string) {
	s.selections = append(s.selections, SelectionEvent{Added: added, Vars: append([]string(nil), vars...)})
	s.log.WithFields(logrus.Fields{"added": added, "vars": vars}).Debug("clustersolver: selection")
}

// Selections returns every selection event recorded via NotifySelection, in
// the order received.
func (s *Solver) Selections() []SelectionEvent {
	return append([]SelectionEvent(nil), s.selections...)
}

// rebuild recomputes the merge forest from the leaf registry if dirty.
func (s *Solver) rebuild() {
	if !s.dirty {
		return
	}
	s.all = make(map[cluster.Handle]*node, len(s.leaves))
	s.active = make(map[cluster.Handle]*node, len(s.leaves))
	s.methods = nil

	for h, entry := range s.leaves {
		n := &node{cl: entry.cl, configs: entry.configs}
		s.all[h] = n
		s.active[h] = n
	}

	s.runMergeRules()
	s.runPrototypeSelection()

	top := make([]cluster.Handle, 0, len(s.active))
	for h := range s.active {
		top = append(top, h)
	}
	sort.Slice(top, func(i, j int) bool { return top[i] < top[j] })
	s.topLevel = top
	s.dirty = false
}

// runMergeRules applies the merge heuristics to a fixed point: singleton
// absorption, SSS triangle merges, hedgehog+distance merges, then generic
// rigid-rigid alignment, in that priority order. DESIGN.md describes each
// rule.
func (s *Solver) runMergeRules() {
	for {
		if s.trySingletonAbsorption() {
			continue
		}
		if s.tryTriangleMerge() {
			continue
		}
		if s.tryHedgehogMerge() {
			continue
		}
		if s.tryGenericAlignment() {
			continue
		}
		return
	}
}

// trySingletonAbsorption drops a 1-variable Rigid from the active set once
// some other active cluster already spans its one variable. A singleton
// carries no shape information of its own — only a placeholder prototype
// position — so once a real multi-variable cluster covers that variable,
// the singleton is fully subsumed and would otherwise linger as a
// redundant top-level cluster forever, since no other merge rule ever
// touches 1-variable Rigids.
func (s *Solver) trySingletonAbsorption() bool {
	handles := s.sortedActiveHandles()
	for _, h := range handles {
		n := s.active[h]
		if n.cl.Kind != cluster.KindRigid || len(n.cl.Vars()) != 1 {
			continue
		}
		v := n.cl.Vars()[0]
		for _, oh := range handles {
			if oh == h {
				continue
			}
			other := s.active[oh]
			if other.cl.HasVar(v) {
				delete(s.active, h)
				return true
			}
		}
	}
	return false
}

func (s *Solver) sortedActiveHandles() []cluster.Handle {
	out := make([]cluster.Handle, 0, len(s.active))
	for h := range s.active {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func firstConfig(n *node) (cluster.Configuration, bool) {
	if len(n.configs) == 0 {
		return cluster.Configuration{}, false
	}
	return n.configs[0], true
}

func (s *Solver) commitMerge(method Method, merged *cluster.Cluster, consumed []cluster.Handle) {
	for _, h := range consumed {
		delete(s.active, h)
	}
	n := &node{cl: merged}
	s.all[merged.Handle] = n
	s.active[merged.Handle] = n
	s.methods = append(s.methods, method)
	s.log.WithFields(logrus.Fields{
		"merged":   merged.Handle,
		"vars":     merged.Vars(),
		"consumed": consumed,
	}).Debug("clustersolver: merge")
}

// pairEdge is a two-variable Rigid viewed as an edge of the merge graph.
type pairEdge struct {
	u, v string
	n    *node
	dist float64
}

func collectPairEdges(active map[cluster.Handle]*node, order []cluster.Handle) []pairEdge {
	var edges []pairEdge
	for _, h := range order {
		n := active[h]
		if n.cl.Kind != cluster.KindRigid || len(n.cl.Vars()) != 2 {
			continue
		}
		cfg, ok := firstConfig(n)
		if !ok {
			continue
		}
		vars := n.cl.Vars()
		pu, okU := cfg.Get(vars[0])
		pv, okV := cfg.Get(vars[1])
		if !okU || !okV {
			continue
		}
		edges = append(edges, pairEdge{u: vars[0], v: vars[1], n: n, dist: geovec.Distance(pu, pv)})
	}
	return edges
}

func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// triangleShare reports, for two distinct edges, whether they share exactly
// one vertex; if so mid is the shared vertex and other1/other2 are the
// remaining vertex of e1 and e2 respectively.
func triangleShare(e1, e2 pairEdge) (mid, other1, other2 string, ok bool) {
	switch {
	case e1.u == e2.u && e1.v != e2.v:
		return e1.u, e1.v, e2.v, true
	case e1.u == e2.v && e1.v != e2.u:
		return e1.u, e1.v, e2.u, true
	case e1.v == e2.u && e1.u != e2.v:
		return e1.v, e1.u, e2.v, true
	case e1.v == e2.v && e1.u != e2.u:
		return e1.v, e1.u, e2.u, true
	default:
		return "", "", "", false
	}
}

const triangleTolerance = 1e-6

// tryTriangleMerge looks for three active 2-variable Rigids whose variable
// pairs close a triangle over three distinct variables, and merges them via
// the law of cosines (SSS construction). Returns true if a merge happened.
func (s *Solver) tryTriangleMerge() bool {
	edges := collectPairEdges(s.active, s.sortedActiveHandles())
	byPair := make(map[string]pairEdge, len(edges))
	for _, e := range edges {
		byPair[pairKey(e.u, e.v)] = e
	}

	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			e1, e2 := edges[i], edges[j]
			mid, o1, o2, ok := triangleShare(e1, e2)
			if !ok || o1 == o2 {
				continue
			}
			e3, ok := byPair[pairKey(o1, o2)]
			if !ok || e3.n.cl.Handle == e1.n.cl.Handle || e3.n.cl.Handle == e2.n.cl.Handle {
				continue
			}
			merged, degenerate := s.buildTriangleConfig(mid, o1, o2, e1.dist, e2.dist, e3.dist)
			vars := sortedVars([]string{mid, o1, o2})
			cl := cluster.NewRigid(s.newHandle(), vars)
			cl.Overconstrained = false
			var configs []cluster.Configuration
			if !degenerate {
				configs = merged
			}
			method := &mergeMethod{
				inputs:  []*cluster.Cluster{e1.n.cl, e2.n.cl, e3.n.cl},
				outputs: []*cluster.Cluster{cl},
			}
			s.commitMerge(method, cl, []cluster.Handle{e1.n.cl.Handle, e2.n.cl.Handle, e3.n.cl.Handle})
			s.all[cl.Handle].configs = configs
			return true
		}
	}
	return false
}

// buildTriangleConfig places o1 at the origin, o2 at (d(o1,o2),0), and
// solves for mid via the law of cosines. Returns both mirror solutions
// (reflections across the o1-o2 axis); when the triangle is flat (near-zero
// height) the two mirrors coincide and only one configuration is returned.
// When an o1 distance is not positive or the triangle inequality is
// violated, it reports degenerate=true and no configuration: the three
// distances admit no triangle, which the caller's empty solution list
// surfaces as incidentally overconstrained.
func (s *Solver) buildTriangleConfig(mid, o1, o2 string, dMidO1, dMidO2, dO1O2 float64) ([]cluster.Configuration, bool) {
	if dO1O2 <= 0 || dMidO1 <= 0 {
		return nil, true
	}
	cosAngle := (dO1O2*dO1O2 + dMidO1*dMidO1 - dMidO2*dMidO2) / (2 * dO1O2 * dMidO1)
	if cosAngle > 1+triangleTolerance || cosAngle < -1-triangleTolerance {
		return nil, true
	}
	if cosAngle > 1 {
		cosAngle = 1
	}
	if cosAngle < -1 {
		cosAngle = -1
	}
	angle := math.Acos(cosAngle)
	midX := dMidO1 * math.Cos(angle)
	midY := dMidO1 * math.Sin(angle)

	base := map[string]geovec.Vector{
		o1:  pad(s.dimension),
		o2:  pad(s.dimension, dO1O2),
		mid: pad(s.dimension, midX, midY),
	}
	cfg1 := cluster.NewConfiguration(base)
	if math.Abs(midY) <= triangleTolerance {
		return []cluster.Configuration{cfg1}, false
	}
	mirror := map[string]geovec.Vector{
		o1:  pad(s.dimension),
		o2:  pad(s.dimension, dO1O2),
		mid: pad(s.dimension, midX, -midY),
	}
	cfg2 := cluster.NewConfiguration(mirror)
	return []cluster.Configuration{cfg1, cfg2}, false
}

func pad(dimension int, components ...float64) geovec.Vector {
	v := make(geovec.Vector, dimension)
	copy(v, components)
	return v
}

func sortedVars(vars []string) []string {
	out := append([]string(nil), vars...)
	sort.Strings(out)
	return out
}

// tryHedgehogMerge looks for an active Hedgehog whose center-spoke distance
// is known for every spoke via an active 2-variable Rigid, and merges them
// into a single Rigid by scaling the Hedgehog's own unit spoke directions —
// which already encode the constrained angle between spokes — by the known
// distances.
func (s *Solver) tryHedgehogMerge() bool {
	for _, h := range s.sortedActiveHandles() {
		hh := s.active[h]
		if hh.cl.Kind != cluster.KindHedgehog {
			continue
		}
		hhCfg, ok := firstConfig(hh)
		if !ok {
			continue
		}
		center := hh.cl.Center
		centerPos, ok := hhCfg.Get(center)
		if !ok {
			continue
		}
		var rigidInputs []*cluster.Cluster
		var rigidHandles []cluster.Handle
		distances := make(map[string]float64, len(hh.cl.Spokes))
		allFound := true
		for _, spoke := range hh.cl.Spokes {
			var found *pairEdge
			for _, oh := range s.sortedActiveHandles() {
				n := s.active[oh]
				if n.cl.Kind != cluster.KindRigid || len(n.cl.Vars()) != 2 {
					continue
				}
				vars := n.cl.Vars()
				if (vars[0] == center && vars[1] == spoke) || (vars[0] == spoke && vars[1] == center) {
					cfg, ok := firstConfig(n)
					if !ok {
						continue
					}
					pu, okU := cfg.Get(vars[0])
					pv, okV := cfg.Get(vars[1])
					if !okU || !okV {
						continue
					}
					d := geovec.Distance(pu, pv)
					found = &pairEdge{u: vars[0], v: vars[1], n: n, dist: d}
				}
			}
			if found == nil {
				allFound = false
				break
			}
			distances[spoke] = found.dist
			rigidInputs = append(rigidInputs, found.n.cl)
			rigidHandles = append(rigidHandles, found.n.cl.Handle)
		}
		if !allFound {
			continue
		}

		positions := map[string]geovec.Vector{center: pad(s.dimension)}
		for _, spoke := range hh.cl.Spokes {
			spokePos, ok := hhCfg.Get(spoke)
			if !ok {
				allFound = false
				break
			}
			dir := spokePos.Sub(centerPos)
			norm := dir.Norm()
			if norm <= geovec.Tolerance() {
				allFound = false
				break
			}
			scale := distances[spoke] / norm
			scaled := make(geovec.Vector, s.dimension)
			for i := range scaled {
				scaled[i] = dir[i] * scale
			}
			positions[spoke] = scaled
		}
		if !allFound {
			continue
		}

		vars := sortedVars(append([]string{center}, hh.cl.Spokes...))
		merged := cluster.NewRigid(s.newHandle(), vars)
		method := &mergeMethod{
			inputs:  append([]*cluster.Cluster{hh.cl}, rigidInputs...),
			outputs: []*cluster.Cluster{merged},
		}
		consumed := append([]cluster.Handle{hh.cl.Handle}, rigidHandles...)
		s.commitMerge(method, merged, consumed)
		s.all[merged.Handle].configs = []cluster.Configuration{cluster.NewConfiguration(positions)}
		return true
	}
	return false
}

// tryGenericAlignment merges two active Rigids that overlap in enough
// variables to determine a unique rigid transform (a rotation plus
// translation) taking one's frame onto the other's, for cases the more
// specific triangle/hedgehog rules above do not cover.
func (s *Solver) tryGenericAlignment() bool {
	handles := s.sortedActiveHandles()
	for i := 0; i < len(handles); i++ {
		a := s.active[handles[i]]
		if a.cl.Kind != cluster.KindRigid {
			continue
		}
		for j := i + 1; j < len(handles); j++ {
			b := s.active[handles[j]]
			if b.cl.Kind != cluster.KindRigid {
				continue
			}
			shared := a.cl.SharedVars(b.cl)
			if len(shared) < s.dimension {
				continue
			}
			cfgA, okA := firstConfig(a)
			cfgB, okB := firstConfig(b)
			if !okA || !okB {
				continue
			}
			// The designated root's frame is authoritative: when either side
			// is the root cluster, it always plays the "a" role in
			// alignAndMerge so its absolute positions are kept rather than
			// reinterpreted through the other side's frame.
			if s.hasRoot && b.cl.Handle == s.root {
				a, cfgA, b, cfgB = b, cfgB, a, cfgA
			}
			merged, ok := s.alignAndMerge(a.cl, cfgA, b.cl, cfgB, shared)
			if !ok {
				continue
			}
			configs := s.all[merged.Handle].configs
			method := &mergeMethod{
				inputs:  []*cluster.Cluster{a.cl, b.cl},
				outputs: []*cluster.Cluster{merged},
			}
			s.commitMerge(method, merged, []cluster.Handle{a.cl.Handle, b.cl.Handle})
			s.all[merged.Handle].configs = configs
			return true
		}
	}
	return false
}

// alignAndMerge computes the rigid transform mapping cfgB's shared-variable
// positions onto cfgA's, applies it to cfgB's remaining variables, and
// returns the union as a new Rigid cluster with a single configuration.
func (s *Solver) alignAndMerge(a *cluster.Cluster, cfgA cluster.Configuration, b *cluster.Cluster, cfgB cluster.Configuration, shared []string) (*cluster.Cluster, bool) {
	transform, ok := fitTransform(s.dimension, cfgA, cfgB, shared)
	if !ok {
		return nil, false
	}

	positions := make(map[string]geovec.Vector, len(a.Vars())+len(b.Vars()))
	for _, v := range a.Vars() {
		p, _ := cfgA.Get(v)
		positions[v] = p.Clone()
	}
	for _, v := range b.Vars() {
		if _, already := positions[v]; already {
			continue
		}
		p, _ := cfgB.Get(v)
		positions[v] = transform(p)
	}

	vars := sortedVars(append(append([]string(nil), a.Vars()...), b.Vars()...))
	merged := cluster.NewRigid(s.newHandle(), vars)
	s.log.WithField("vars", vars).Debug("clustersolver: generic alignment")
	n := &node{cl: merged, configs: []cluster.Configuration{cluster.NewConfiguration(positions)}}
	s.all[merged.Handle] = n
	return merged, true
}

// fitTransform returns a function mapping points expressed in cfgB's frame
// into cfgA's frame, fit from the shared variables' positions in both. In
// 2D it is a closed-form rotation (via the Kabsch formula specialized to
// 2x2) plus translation. In 3D it needs three non-collinear shared points
// to build an orthonormal frame via Gram-Schmidt; with fewer, it reports
// !ok rather than guess.
func fitTransform(dimension int, cfgA, cfgB cluster.Configuration, shared []string) (func(geovec.Vector) geovec.Vector, bool) {
	pA := make([]geovec.Vector, len(shared))
	pB := make([]geovec.Vector, len(shared))
	for i, v := range shared {
		a, okA := cfgA.Get(v)
		b, okB := cfgB.Get(v)
		if !okA || !okB {
			return nil, false
		}
		pA[i] = a
		pB[i] = b
	}

	centroidA := centroid(pA)
	centroidB := centroid(pB)

	switch dimension {
	case 2:
		var s2, c2 float64
		for i := range pA {
			da := pA[i].Sub(centroidA)
			db := pB[i].Sub(centroidB)
			s2 += geovec.Cross2(db, da)
			c2 += db.Dot(da)
		}
		if s2 == 0 && c2 == 0 {
			return nil, false
		}
		theta := math.Atan2(s2, c2)
		cosT, sinT := math.Cos(theta), math.Sin(theta)
		return func(p geovec.Vector) geovec.Vector {
			d := p.Sub(centroidB)
			rx := cosT*d[0] - sinT*d[1]
			ry := sinT*d[0] + cosT*d[1]
			return geovec.Vector{rx + centroidA[0], ry + centroidA[1]}
		}, true
	case 3:
		if len(shared) < 3 {
			return nil, false
		}
		frameA, okA := orthonormalFrame(pA, centroidA)
		frameB, okB := orthonormalFrame(pB, centroidB)
		if !okA || !okB {
			return nil, false
		}
		return func(p geovec.Vector) geovec.Vector {
			d := p.Sub(centroidB)
			// Coordinates of d in frameB's basis.
			c0 := d.Dot(frameB[0])
			c1 := d.Dot(frameB[1])
			c2 := d.Dot(frameB[2])
			out := geovec.Vector{
				centroidA[0] + c0*frameA[0][0] + c1*frameA[1][0] + c2*frameA[2][0],
				centroidA[1] + c0*frameA[0][1] + c1*frameA[1][1] + c2*frameA[2][1],
				centroidA[2] + c0*frameA[0][2] + c1*frameA[1][2] + c2*frameA[2][2],
			}
			return out
		}, true
	default:
		return nil, false
	}
}

func centroid(pts []geovec.Vector) geovec.Vector {
	dim := len(pts[0])
	c := make(geovec.Vector, dim)
	for _, p := range pts {
		for i := 0; i < dim; i++ {
			c[i] += p[i]
		}
	}
	for i := range c {
		c[i] /= float64(len(pts))
	}
	return c
}

// orthonormalFrame builds a right-handed orthonormal basis from the first
// three (non-collinear) points relative to the centroid, via Gram-Schmidt.
func orthonormalFrame(pts []geovec.Vector, c geovec.Vector) ([3]geovec.Vector, bool) {
	var frame [3]geovec.Vector
	e0 := pts[0].Sub(c)
	n0 := e0.Norm()
	if n0 <= geovec.Tolerance() {
		return frame, false
	}
	for i := range e0 {
		e0[i] /= n0
	}

	e1raw := pts[1].Sub(c)
	proj := e1raw.Dot(e0)
	e1 := make(geovec.Vector, 3)
	for i := range e1 {
		e1[i] = e1raw[i] - proj*e0[i]
	}
	n1 := e1.Norm()
	if n1 <= geovec.Tolerance() {
		return frame, false
	}
	for i := range e1 {
		e1[i] /= n1
	}

	e2 := cross3(e0, e1)
	if e2.Norm() <= geovec.Tolerance() {
		return frame, false
	}

	frame[0], frame[1], frame[2] = e0, e1, e2
	return frame, true
}

func cross3(a, b geovec.Vector) geovec.Vector {
	return geovec.Vector{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// runPrototypeSelection resolves every active multi-solution Rigid by
// rigidly aligning each candidate configuration onto the registered
// prototype positions, scoring it by the summed squared distance that
// remains, and keeping the closest, recording a PrototypeMethod for each.
func (s *Solver) runPrototypeSelection() {
	if s.prototype == nil {
		return
	}
	for _, h := range s.sortedActiveHandles() {
		n := s.active[h]
		if n.cl.Kind != cluster.KindRigid || len(n.configs) < 2 {
			continue
		}
		// Candidates sit in their own local frame, so each one is fitted onto
		// the prototypes before it is scored.
		protos := make(map[string]geovec.Vector)
		var known []string
		for _, v := range n.cl.Vars() {
			if proto, ok := s.prototype(v); ok {
				protos[v] = proto
				known = append(known, v)
			}
		}
		if len(known) == 0 {
			continue
		}
		best := -1
		bestScore := math.Inf(1)
		for i, cfg := range n.configs {
			toProto, fitted := fitTransform(s.dimension, cluster.NewConfiguration(protos), cfg, known)
			if !fitted {
				continue
			}
			score := 0.0
			scored := false
			for _, v := range n.cl.Vars() {
				proto, ok := s.prototype(v)
				if !ok {
					continue
				}
				p, ok := cfg.Get(v)
				if !ok {
					continue
				}
				d := geovec.Distance(toProto(p), proto)
				score += d * d
				scored = true
			}
			if !scored {
				continue
			}
			if score < bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			continue
		}
		picked := n.cl
		output := cluster.NewRigid(s.newHandle(), picked.Vars())
		outNode := &node{cl: output, configs: []cluster.Configuration{n.configs[best]}}
		s.all[output.Handle] = outNode
		delete(s.active, h)
		s.active[output.Handle] = outNode
		method := &PrototypeMethod{mergeMethod{inputs: []*cluster.Cluster{picked}, outputs: []*cluster.Cluster{output}}}
		s.methods = append(s.methods, method)
	}
}
