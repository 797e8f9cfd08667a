// Package geovec provides the dimension-generic vector type and the numeric
// collaborators (distance, angle, tolerance comparison) that the rest of
// this module treats as external primitives.
//
// A Vector is a plain []float64 of length 2 or 3. Keeping it a slice (rather
// than fixed-arity r2.Vec/r3.Vec structs) lets callers iterate "the first
// dimension components" uniformly, which FixConstraint.Satisfied and the
// ConfigurationBuilder both need to do regardless of whether the problem is
// 2D or 3D.
package geovec

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a point or displacement in 2D or 3D space.
type Vector []float64

// New returns a Vector copying the given components.
func New(components ...float64) Vector {
	v := make(Vector, len(components))
	copy(v, components)
	return v
}

// Zero returns a Vector of the given dimension with all components zero.
func Zero(dimension int) Vector {
	return make(Vector, dimension)
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Sub returns v - w. Panics if the two vectors differ in length, since
// mismatched dimensions indicate a caller bug, not a recoverable condition.
func (v Vector) Sub(w Vector) Vector {
	if len(v) != len(w) {
		panic("geovec: Sub of vectors with different lengths")
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] - w[i]
	}
	return out
}

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) float64 {
	return floats.Dot([]float64(v), []float64(w))
}

// Norm returns the Euclidean (L2) norm of v.
func (v Vector) Norm() float64 {
	return floats.Norm([]float64(v), 2)
}

// Distance returns the Euclidean distance between p and q.
//
// Complexity: O(dimension).
func Distance(p, q Vector) float64 {
	return floats.Distance([]float64(p), []float64(q), 2)
}

// Cross2 returns the scalar (z-component) cross product of two 2D vectors,
// used by AngleAt to recover the sign of a 2D angle.
func Cross2(a, b Vector) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

// AngleAt returns the angle at vertex b in the triangle a-b-c.
//
// In 3D this is the unsigned angle in [0, π]. In 2D it is signed, in
// (−π, π], positive for a counter-clockwise turn from b→a to b→c — this
// matches the sign convention AngleConstraint's 2D parameter expects.
//
// The second return value is false when the angle is undefined: a or c
// coincide with b (within tolerance), so no direction can be formed.
func AngleAt(a, b, c Vector) (float64, bool) {
	ba := a.Sub(b)
	bc := c.Sub(b)
	normBA := ba.Norm()
	normBC := bc.Norm()
	if TolEq(normBA, 0) || TolEq(normBC, 0) {
		return 0, false
	}
	cosTheta := ba.Dot(bc) / (normBA * normBC)
	// clamp against floating-point drift outside [-1, 1]
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	if len(a) >= 3 {
		return math.Acos(cosTheta), true
	}
	// 2D: recover sign via the z-component of the cross product.
	theta := math.Atan2(Cross2(ba, bc), ba.Dot(bc))
	return theta, true
}

// defaultEpsilon is the tolerance used by TolEq unless overridden via
// SetTolerance. It matches the magnitude a geometric solver typically needs
// for double-precision coordinate comparisons.
const defaultEpsilon = 1e-6

var epsilon = defaultEpsilon

// SetTolerance overrides the package-wide epsilon used by TolEq. Intended
// for tests and for callers working with unusually large or small
// coordinate magnitudes; not safe to call concurrently with TolEq.
func SetTolerance(eps float64) {
	epsilon = eps
}

// Tolerance returns the current epsilon used by TolEq.
func Tolerance() float64 {
	return epsilon
}

// TolEq reports whether x and y are equal within the package's tolerance.
func TolEq(x, y float64) bool {
	return math.Abs(x-y) <= epsilon
}
