// Package configbuilder synthesizes the canonical reference Configuration
// for each primitive cluster kind GeometricSolver pushes into ClusterSolver.
//
// The literal reference coordinates below are taken directly from
// geosolver/geometric.py's _update_constraint: a distance cluster places its
// two points at the origin and (d,0[,0]); an angle (hedgehog) cluster places
// its center at the origin, one spoke at (1,0[,0]), and the other at
// (cosθ,sinθ[,0]).
package configbuilder

import (
	"math"

	"github.com/kmolab/geosolver/cluster"
	"github.com/kmolab/geosolver/geovec"
)

// pad returns v extended with trailing zeros to the given dimension.
func pad(dimension int, components ...float64) geovec.Vector {
	v := make(geovec.Vector, dimension)
	copy(v, components)
	return v
}

// Variable returns the singleton Configuration a single-variable Rigid
// carries: the variable placed at its prototype position.
func Variable(v string, prototype geovec.Vector) cluster.Configuration {
	return cluster.NewConfiguration(map[string]geovec.Vector{v: prototype.Clone()})
}

// Distance returns the reference Configuration for a Distance(a,b,d) Rigid:
// a at the origin, b at (d,0[,0]).
func Distance(a, b string, d float64, dimension int) cluster.Configuration {
	return cluster.NewConfiguration(map[string]geovec.Vector{
		a: pad(dimension),
		b: pad(dimension, d),
	})
}

// Angle returns the reference Configuration for an Angle(a,b,c,θ) Hedgehog
// with apex b: b at the origin, a at (1,0[,0]), c at (cosθ,sinθ[,0]).
// Magnitude at a and c is arbitrary (a Hedgehog constrains angle only, not
// spoke distances); unit length is the canonical choice.
func Angle(a, b, c string, theta float64, dimension int) cluster.Configuration {
	return cluster.NewConfiguration(map[string]geovec.Vector{
		b: pad(dimension),
		a: pad(dimension, 1, 0),
		c: pad(dimension, math.Cos(theta), math.Sin(theta)),
	})
}

// Fix combines the current parameter of every currently-fixed variable into
// the single Configuration the aggregated fixcluster Rigid carries.
func Fix(positions map[string]geovec.Vector) cluster.Configuration {
	return cluster.NewConfiguration(positions)
}
