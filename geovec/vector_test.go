package geovec_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kmolab/geosolver/geovec"
)

func TestDistance(t *testing.T) {
	a := geovec.New(0, 0)
	b := geovec.New(3, 4)
	assert.InDelta(t, 5.0, geovec.Distance(a, b), 1e-9)
}

func TestAngleAt_3D_Unsigned(t *testing.T) {
	b := geovec.New(0, 0, 0)
	a := geovec.New(1, 0, 0)
	c := geovec.New(0, 1, 0)
	theta, ok := geovec.AngleAt(a, b, c)
	assert.True(t, ok)
	assert.InDelta(t, math.Pi/2, theta, 1e-9)
}

func TestAngleAt_2D_Signed(t *testing.T) {
	b := geovec.New(0, 0)
	a := geovec.New(1, 0)
	c := geovec.New(0, 1)
	theta, ok := geovec.AngleAt(a, b, c)
	assert.True(t, ok)
	assert.InDelta(t, math.Pi/2, theta, 1e-9)

	// swap a and c: sign should flip in 2D
	theta2, ok2 := geovec.AngleAt(c, b, a)
	assert.True(t, ok2)
	assert.InDelta(t, -math.Pi/2, theta2, 1e-9)
}

func TestAngleAt_Undefined(t *testing.T) {
	b := geovec.New(1, 1)
	_, ok := geovec.AngleAt(b, b, geovec.New(0, 0))
	assert.False(t, ok)
}

func TestAngleAt_Collinear(t *testing.T) {
	b := geovec.New(1, 0)
	a := geovec.New(0, 0)
	c := geovec.New(2, 0)
	theta, ok := geovec.AngleAt(a, b, c)
	assert.True(t, ok)
	assert.InDelta(t, math.Pi, math.Abs(theta), 1e-9)
}

func TestTolEq(t *testing.T) {
	orig := geovec.Tolerance()
	defer geovec.SetTolerance(orig)

	geovec.SetTolerance(1e-3)
	assert.True(t, geovec.TolEq(1.0, 1.0009))
	assert.False(t, geovec.TolEq(1.0, 1.01))
}
