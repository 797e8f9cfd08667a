package clustersolver_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmolab/geosolver/cluster"
	"github.com/kmolab/geosolver/clustersolver"
	"github.com/kmolab/geosolver/geovec"
)

func TestTriangleMerge_SSS(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	ab := cluster.NewRigid(1, []string{"A", "B"})
	bc := cluster.NewRigid(2, []string{"B", "C"})
	ac := cluster.NewRigid(3, []string{"A", "C"})
	s.Add(ab)
	s.Add(bc)
	s.Add(ac)

	s.Set(ab, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0),
		"B": geovec.New(3, 0),
	})})
	s.Set(bc, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(0, 0),
		"C": geovec.New(4, 0),
	})})
	s.Set(ac, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0),
		"C": geovec.New(5, 0),
	})})

	rigids := s.Rigids()
	var triangle *cluster.Cluster
	for _, r := range rigids {
		if len(r.Vars()) == 3 {
			triangle = r
		}
	}
	require.NotNil(t, triangle, "expected a merged 3-variable Rigid")

	configs, ok := s.Get(triangle)
	require.True(t, ok)
	require.NotEmpty(t, configs, "3-4-5 triangle should be realizable")

	cfg := configs[0]
	pa, _ := cfg.Get("A")
	pb, _ := cfg.Get("B")
	pc, _ := cfg.Get("C")
	assert.InDelta(t, 3.0, geovec.Distance(pa, pb), 1e-6)
	assert.InDelta(t, 4.0, geovec.Distance(pb, pc), 1e-6)
	assert.InDelta(t, 5.0, geovec.Distance(pa, pc), 1e-6)
}

func TestTriangleMerge_InequalityViolation(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	ab := cluster.NewRigid(1, []string{"A", "B"})
	bc := cluster.NewRigid(2, []string{"B", "C"})
	ac := cluster.NewRigid(3, []string{"A", "C"})
	s.Add(ab)
	s.Add(bc)
	s.Add(ac)
	s.Set(ab, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "B": geovec.New(1, 0),
	})})
	s.Set(bc, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(0, 0), "C": geovec.New(1, 0),
	})})
	s.Set(ac, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "C": geovec.New(10, 0),
	})})

	var triangle *cluster.Cluster
	for _, r := range s.Rigids() {
		if len(r.Vars()) == 3 {
			triangle = r
		}
	}
	require.NotNil(t, triangle)
	configs, ok := s.Get(triangle)
	require.True(t, ok)
	assert.Empty(t, configs, "distances violating the triangle inequality admit no configuration")
}

func TestHedgehogMerge(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	hh := cluster.NewHedgehog(1, "B", []string{"A", "C"})
	ab := cluster.NewRigid(2, []string{"A", "B"})
	bc := cluster.NewRigid(3, []string{"B", "C"})
	s.Add(hh)
	s.Add(ab)
	s.Add(bc)

	theta := math.Pi / 2
	s.Set(hh, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(0, 0),
		"A": geovec.New(1, 0),
		"C": geovec.New(math.Cos(theta), math.Sin(theta)),
	})})
	s.Set(ab, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "B": geovec.New(2, 0),
	})})
	s.Set(bc, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(0, 0), "C": geovec.New(3, 0),
	})})

	var merged *cluster.Cluster
	for _, r := range s.Rigids() {
		if len(r.Vars()) == 3 {
			merged = r
		}
	}
	require.NotNil(t, merged)
	configs, ok := s.Get(merged)
	require.True(t, ok)
	require.Len(t, configs, 1)

	cfg := configs[0]
	pa, _ := cfg.Get("A")
	pb, _ := cfg.Get("B")
	pc, _ := cfg.Get("C")
	assert.InDelta(t, 2.0, geovec.Distance(pa, pb), 1e-6)
	assert.InDelta(t, 3.0, geovec.Distance(pb, pc), 1e-6)
	measured, ok := geovec.AngleAt(pa, pb, pc)
	require.True(t, ok)
	assert.InDelta(t, theta, math.Abs(measured), 1e-6)
}

func TestGenericAlignment(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	// left and right overlap in two variables (B, C) — enough shared points
	// in 2D to determine a unique rigid transform between their frames.
	left := cluster.NewRigid(1, []string{"A", "B", "C"})
	right := cluster.NewRigid(2, []string{"B", "C", "D"})
	s.Add(left)
	s.Add(right)

	s.Set(left, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "B": geovec.New(4, 0), "C": geovec.New(0, 3),
	})})
	// right's own frame: B and C are the same real points, 5 apart, just
	// expressed in an unrelated frame; D is 3 from B and √34 from C in that
	// frame, and the merge must preserve those distances exactly.
	s.Set(right, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(10, 10), "C": geovec.New(10, 15), "D": geovec.New(13, 10),
	})})

	var merged *cluster.Cluster
	for _, r := range s.Rigids() {
		if len(r.Vars()) == 4 {
			merged = r
		}
	}
	require.NotNil(t, merged)
	configs, ok := s.Get(merged)
	require.True(t, ok)
	require.Len(t, configs, 1)

	cfg := configs[0]
	pa, _ := cfg.Get("A")
	pb, _ := cfg.Get("B")
	pc, _ := cfg.Get("C")
	pd, _ := cfg.Get("D")
	assert.InDelta(t, 0.0, pa[0], 1e-9)
	assert.InDelta(t, 0.0, pa[1], 1e-9)
	assert.InDelta(t, 4.0, pb[0], 1e-9)
	assert.InDelta(t, 0.0, pb[1], 1e-9)
	assert.InDelta(t, 0.0, pc[0], 1e-9)
	assert.InDelta(t, 3.0, pc[1], 1e-9)
	assert.InDelta(t, 3.0, geovec.Distance(pb, pd), 1e-6)
	assert.InDelta(t, math.Sqrt(34), geovec.Distance(pc, pd), 1e-6)
}

func TestGenericAlignment3D(t *testing.T) {
	s, err := clustersolver.NewSolver(3)
	require.NoError(t, err)

	// left holds the "world" frame directly; right holds the same real
	// points B, C, D expressed through an independent rotation+translation
	// (R: (x,y,z) -> (-y,x,z), t=(5,5,5)). B, C, D are non-collinear, which
	// is exactly enough shared points in 3D to pin down the rigid transform
	// via Gram-Schmidt, recovering E's world position from its right-frame
	// coordinates alone.
	left := cluster.NewRigid(1, []string{"A", "B", "C", "D"})
	right := cluster.NewRigid(2, []string{"B", "C", "D", "E"})
	s.Add(left)
	s.Add(right)

	s.Set(left, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0, 0),
		"B": geovec.New(1, 0, 0),
		"C": geovec.New(0, 1, 0),
		"D": geovec.New(0, 0, 1),
	})})
	s.Set(right, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(5, 6, 5),
		"C": geovec.New(4, 5, 5),
		"D": geovec.New(5, 5, 6),
		"E": geovec.New(2, 7, 9),
	})})

	var merged *cluster.Cluster
	for _, r := range s.Rigids() {
		if len(r.Vars()) == 5 {
			merged = r
		}
	}
	require.NotNil(t, merged)
	configs, ok := s.Get(merged)
	require.True(t, ok)
	require.Len(t, configs, 1)

	cfg := configs[0]
	pa, _ := cfg.Get("A")
	pb, _ := cfg.Get("B")
	pc, _ := cfg.Get("C")
	pd, _ := cfg.Get("D")
	pe, _ := cfg.Get("E")
	assert.InDelta(t, 0.0, pa[0], 1e-6)
	assert.InDelta(t, 0.0, pa[1], 1e-6)
	assert.InDelta(t, 0.0, pa[2], 1e-6)
	assert.InDelta(t, 1.0, pb[0], 1e-6)
	assert.InDelta(t, 0.0, pb[1], 1e-6)
	assert.InDelta(t, 0.0, pb[2], 1e-6)
	assert.InDelta(t, 0.0, pc[0], 1e-6)
	assert.InDelta(t, 1.0, pc[1], 1e-6)
	assert.InDelta(t, 0.0, pc[2], 1e-6)
	assert.InDelta(t, 0.0, pd[0], 1e-6)
	assert.InDelta(t, 0.0, pd[1], 1e-6)
	assert.InDelta(t, 1.0, pd[2], 1e-6)
	assert.InDelta(t, 2.0, pe[0], 1e-6, "E's world position must be recovered from right's frame alone")
	assert.InDelta(t, 3.0, pe[1], 1e-6)
	assert.InDelta(t, 4.0, pe[2], 1e-6)
}

func TestPrototypeSelection_PicksClosestMirror(t *testing.T) {
	prototypes := map[string]geovec.Vector{
		"A": geovec.New(0, 0),
		"B": geovec.New(3, 0),
		"C": geovec.New(0, -4),
	}
	s, err := clustersolver.NewSolver(2, clustersolver.WithPrototypeProvider(func(v string) (geovec.Vector, bool) {
		p, ok := prototypes[v]
		return p, ok
	}))
	require.NoError(t, err)

	ab := cluster.NewRigid(1, []string{"A", "B"})
	bc := cluster.NewRigid(2, []string{"B", "C"})
	ac := cluster.NewRigid(3, []string{"A", "C"})
	s.Add(ab)
	s.Add(bc)
	s.Add(ac)
	s.Set(ab, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "B": geovec.New(3, 0),
	})})
	s.Set(bc, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"B": geovec.New(0, 0), "C": geovec.New(4, 0),
	})})
	s.Set(ac, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "C": geovec.New(5, 0),
	})})

	var merged *cluster.Cluster
	for _, r := range s.Rigids() {
		if len(r.Vars()) == 3 {
			merged = r
		}
	}
	require.NotNil(t, merged)
	configs, ok := s.Get(merged)
	require.True(t, ok)
	require.Len(t, configs, 1, "prototype selection should collapse the mirror ambiguity")

	// The merged triangle lives in its own local frame, so "below the A-B
	// axis" is read as C lying clockwise of A→B, as it does in the prototype.
	pa, _ := configs[0].Get("A")
	pb, _ := configs[0].Get("B")
	pc, _ := configs[0].Get("C")
	assert.Less(t, geovec.Cross2(pb.Sub(pa), pc.Sub(pa)), 0.0, "the mirror nearest the registered prototype has C below the A-B axis")

	var sawPrototypeMethod bool
	for _, m := range s.Methods() {
		if _, ok := m.(*clustersolver.PrototypeMethod); ok {
			sawPrototypeMethod = true
		}
	}
	assert.True(t, sawPrototypeMethod)
}

func TestSelectionForwarding(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	s.NotifySelection(true, []string{"A", "B"})
	s.NotifySelection(false, []string{"A", "B"})

	events := s.Selections()
	require.Len(t, events, 2)
	assert.True(t, events[0].Added)
	assert.False(t, events[1].Added)
	assert.Equal(t, []string{"A", "B"}, events[0].Vars)
}

func TestRemove_DropsLeaf(t *testing.T) {
	s, err := clustersolver.NewSolver(2)
	require.NoError(t, err)

	ab := cluster.NewRigid(1, []string{"A", "B"})
	s.Add(ab)
	s.Set(ab, []cluster.Configuration{cluster.NewConfiguration(map[string]geovec.Vector{
		"A": geovec.New(0, 0), "B": geovec.New(1, 0),
	})})
	_, ok := s.Get(ab)
	require.True(t, ok)

	s.Remove(ab)
	_, ok = s.Get(ab)
	assert.False(t, ok)
}

func TestUnsupportedDimension(t *testing.T) {
	_, err := clustersolver.NewSolver(4)
	assert.ErrorIs(t, err, clustersolver.ErrUnsupportedDimension)
}
