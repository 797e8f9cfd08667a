package geosolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kmolab/geosolver/geovec"
)

// Flag classifies a GeometricCluster's solvability.
type Flag int

const (
	// FlagOK: at least one solution, none underconstrained, not overconstrained.
	FlagOK Flag = iota
	// FlagIOver: incidentally overconstrained — no solutions exist, but the
	// cluster's shape is not structurally impossible.
	FlagIOver
	// FlagIUnder: incidentally underconstrained — at least one solution
	// leaves a remaining degree of freedom.
	FlagIUnder
	// FlagSOver: structurally overconstrained — ClusterSolver determined
	// the cluster's shape is impossible to realize.
	FlagSOver
	// FlagSUnder: structurally underconstrained — more than one top-level
	// Rigid remains; this is a synthesized parent over them.
	FlagSUnder
	// FlagUnsolved: no top-level Rigid cluster exists (e.g. an empty problem).
	FlagUnsolved
)

func (f Flag) String() string {
	switch f {
	case FlagOK:
		return "OK"
	case FlagIOver:
		return "I_OVER"
	case FlagIUnder:
		return "I_UNDER"
	case FlagSOver:
		return "S_OVER"
	case FlagSUnder:
		return "S_UNDER"
	case FlagUnsolved:
		return "UNSOLVED"
	default:
		return fmt.Sprintf("Flag(%d)", int(f))
	}
}

// Solution is one candidate realization of a GeometricCluster's variables.
type Solution struct {
	Mapping          map[string]geovec.Vector
	Underconstrained bool
}

// GeometricCluster is a node in the hierarchical result tree: a variable
// set, its candidate solutions, its sub-clusters, and a constrainedness
// flag.
type GeometricCluster struct {
	Variables []string
	Solutions []Solution
	Subs      []*GeometricCluster
	Flag      Flag
}

// String returns an indented recursive tree dump, useful for tests and
// logging, not part of the solving contract.
func (gc *GeometricCluster) String() string {
	var b strings.Builder
	gc.writeIndented(&b, 0)
	return b.String()
}

func (gc *GeometricCluster) writeIndented(b *strings.Builder, depth int) {
	prefix := strings.Repeat("  ", depth)
	vars := append([]string(nil), gc.Variables...)
	sort.Strings(vars)
	fmt.Fprintf(b, "%sCluster%v flag=%s solutions=%d\n", prefix, vars, gc.Flag, len(gc.Solutions))
	for _, sub := range gc.Subs {
		sub.writeIndented(b, depth+1)
	}
}
