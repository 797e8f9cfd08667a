// Package cluster defines the primitive cluster types and the immutable
// Configuration value that ClusterSolver (package clustersolver) tracks and
// merges: Rigid, Hedgehog, and Configuration.
//
// These mirror geosolver/cluster.py and geosolver/configuration.py, which
// geometric.py references but does not itself define; their shape here is
// inferred from call sites such as Rigid([vars]), Hedgehog(center, spokes),
// and Configuration({var: point}).
package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kmolab/geosolver/geovec"
)

// Handle is a stable identity for a cluster instance, assigned by whichever
// package constructs it (typically clustersolver). Two clusters are the
// "same" cluster iff they share a Handle; variable sets are not identity.
type Handle uint64

// Kind discriminates the two primitive cluster shapes a decomposition
// solver works with.
type Kind int

const (
	// KindRigid is an unordered set of ≥1 variables with a rigid internal shape.
	KindRigid Kind = iota
	// KindHedgehog is a center variable plus ≥2 spokes: it constrains the
	// angles between spokes as seen from the center, not their distances.
	KindHedgehog
)

func (k Kind) String() string {
	switch k {
	case KindRigid:
		return "Rigid"
	case KindHedgehog:
		return "Hedgehog"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Cluster is a primitive geometric constraint cluster: a Rigid or a Hedgehog.
//
// Vars is always returned sorted, so two clusters over the same variable set
// compare equal regardless of construction order, and Signature can be
// derived from the variable set alone.
type Cluster struct {
	Handle Handle
	Kind   Kind

	// vars holds every variable in the cluster, sorted ascending. For a
	// Hedgehog, Center is also present in vars.
	vars []string

	// Center is only meaningful when Kind == KindHedgehog.
	Center string
	// Spokes holds the non-center variables of a Hedgehog, in the order
	// they were supplied (angle order matters; sorting would lose it).
	Spokes []string

	// Overconstrained is set by the engine when it determines the cluster's
	// shape is structurally impossible to realize (see geosolver.FlagSOver).
	Overconstrained bool
}

// NewRigid returns a Rigid cluster over the given variables (deduplicated,
// sorted). handle must be unique among all clusters tracked by the owning
// solver.
func NewRigid(handle Handle, vars []string) *Cluster {
	return &Cluster{Handle: handle, Kind: KindRigid, vars: sortedUnique(vars)}
}

// NewHedgehog returns a Hedgehog cluster with the given center and spokes.
// Spokes must contain at least two distinct variables, none equal to center;
// NewHedgehog itself does not check this.
func NewHedgehog(handle Handle, center string, spokes []string) *Cluster {
	spokesCopy := append([]string(nil), spokes...)
	all := append([]string{center}, spokes...)
	return &Cluster{
		Handle: handle,
		Kind:   KindHedgehog,
		vars:   sortedUnique(all),
		Center: center,
		Spokes: spokesCopy,
	}
}

// Vars returns the cluster's variables, sorted ascending. The returned slice
// is a defensive copy.
func (c *Cluster) Vars() []string {
	out := make([]string, len(c.vars))
	copy(out, c.vars)
	return out
}

// Signature returns a string uniquely determined by the cluster's sorted
// variable set (and, for Hedgehogs, its center) — NOT by its Handle, so
// structurally identical clusters share a signature.
func (c *Cluster) Signature() string {
	if c.Kind == KindHedgehog {
		return "H(" + c.Center + ":" + strings.Join(c.vars, ",") + ")"
	}
	return "R(" + strings.Join(c.vars, ",") + ")"
}

// HasVar reports whether v is one of the cluster's variables.
func (c *Cluster) HasVar(v string) bool {
	i := sort.SearchStrings(c.vars, v)
	return i < len(c.vars) && c.vars[i] == v
}

// SharedVars returns the sorted intersection of c's and other's variable sets.
func (c *Cluster) SharedVars(other *Cluster) []string {
	var shared []string
	for _, v := range c.vars {
		if other.HasVar(v) {
			shared = append(shared, v)
		}
	}
	return shared
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Cluster) String() string {
	return fmt.Sprintf("%s%v", c.Kind, c.vars)
}

// Configuration is an immutable mapping from variable to position, a
// candidate realization for (a subset of) a cluster's variables.
//
// Underconstrained flags a configuration that satisfies its originating
// constraints but leaves at least one remaining degree of freedom
// unresolved (geosolver.FlagIUnder derives from this).
type Configuration struct {
	mapping          map[string]geovec.Vector
	Underconstrained bool
}

// NewConfiguration returns a Configuration over a copy of the given mapping.
func NewConfiguration(mapping map[string]geovec.Vector) Configuration {
	cp := make(map[string]geovec.Vector, len(mapping))
	for k, v := range mapping {
		cp[k] = v.Clone()
	}
	return Configuration{mapping: cp}
}

// Get returns the position of variable v and whether it is present.
func (cfg Configuration) Get(v string) (geovec.Vector, bool) {
	p, ok := cfg.mapping[v]
	return p, ok
}

// Map returns the configuration's underlying var→position map. Callers must
// not mutate it; Configuration is meant to behave as immutable.
func (cfg Configuration) Map() map[string]geovec.Vector {
	return cfg.mapping
}

// Vars returns the configuration's variables, sorted ascending.
func (cfg Configuration) Vars() []string {
	out := make([]string, 0, len(cfg.mapping))
	for v := range cfg.mapping {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Merge returns a new Configuration containing every mapping from cfg and
// other. Where both define the same variable, cfg's value wins — callers
// merging clusters are expected to have already reconciled shared variables
// before calling Merge.
func (cfg Configuration) Merge(other Configuration) Configuration {
	out := make(map[string]geovec.Vector, len(cfg.mapping)+len(other.mapping))
	for k, v := range other.mapping {
		out[k] = v
	}
	for k, v := range cfg.mapping {
		out[k] = v
	}
	return NewConfiguration(out)
}
