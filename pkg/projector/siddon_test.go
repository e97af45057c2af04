package projector

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/internal/models"
	"tomoproj/pkg/geometry"
)

func mkLOR(xs, ys, zs, xd, yd, zd float64) models.LOR {
	return models.LOR{
		Source:   r3.Vec{X: xs, Y: ys, Z: zs},
		Detector: r3.Vec{X: xd, Y: yd, Z: zd},
	}
}

func testGrid(t testing.TB, n int) *geometry.VoxelGrid {
	t.Helper()
	g, err := geometry.NewVoxelGrid(n, n, n, 1, 1, 1, 0, 0, 0)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	return g
}

func trace(s *Stepper, lor models.LOR) ([]Segment, bool) {
	return s.Trace(lor, geometry.Classify(lor, geometry.Epsilon), nil)
}

func totalLength(segs []Segment) float64 {
	var sum float64
	for _, s := range segs {
		sum += s.Length
	}
	return sum
}

// TestTraceAxisAligned verifies the row y=2, z=2 crossing of a 4x4x4 grid
func TestTraceAxisAligned(t *testing.T) {
	g := testGrid(t, 4)
	s := NewStepper(g)

	segs, ok := trace(s, mkLOR(-1, 2, 2, 5, 2, 2))
	if !ok {
		t.Fatalf("Expected LOR to intersect the grid")
	}
	if len(segs) != 4 {
		t.Fatalf("Expected 4 voxels, got %d", len(segs))
	}
	for i, seg := range segs {
		want := g.Index(i, 2, 2)
		if seg.Index != want {
			t.Errorf("Segment %d: expected voxel %d, got %d", i, want, seg.Index)
		}
		if math.Abs(seg.Length-1) > 1e-12 {
			t.Errorf("Segment %d: expected weight 1, got %f", i, seg.Length)
		}
	}
	if total := totalLength(segs); math.Abs(total-4) > 1e-12 {
		t.Errorf("Expected total weight 4, got %f", total)
	}
}

// TestTraceOutside verifies that LORs missing the grid visit nothing
func TestTraceOutside(t *testing.T) {
	s := NewStepper(testGrid(t, 4))

	testCases := []models.LOR{
		mkLOR(10, 10, 10, 20, 20, 20),
		mkLOR(-5, 6, 2, 10, 6, 2),       // along x, row outside
		mkLOR(2, -5, 7, 2, 10, 7),       // along y, slice outside
		mkLOR(-3, -3, 1, -1, 9, 1),      // planar, passes beside the grid
		mkLOR(5, 5, 5, 9, 8, 7),         // starts beyond the upper corner
		mkLOR(0.5, 0.5, 1, 0.5, 0.5, 1), // degenerate
	}
	for _, lor := range testCases {
		dst := make([]Segment, 0, 4)
		segs, ok := s.Trace(lor, geometry.Classify(lor, geometry.Epsilon), dst)
		if ok || len(segs) != 0 {
			t.Errorf("LOR %v: expected no voxels, got %d", lor, len(segs))
		}
	}
}

// TestLengthConservation verifies that LORs inside the grid deposit their
// full length
func TestLengthConservation(t *testing.T) {
	s := NewStepper(testGrid(t, 8))

	testCases := []struct {
		name string
		lor  models.LOR
	}{
		{"along x", mkLOR(0.3, 4.2, 1.7, 7.6, 4.2, 1.7)},
		{"along y", mkLOR(2.5, 7.9, 3.3, 2.5, 0.1, 3.3)},
		{"planar xy", mkLOR(0.2, 0.9, 5.5, 7.3, 6.1, 5.5)},
		{"plane xz", mkLOR(0.2, 3.3, 0.4, 7.1, 3.3, 7.7)},
		{"plane yz", mkLOR(6.6, 7.5, 0.5, 6.6, 1.1, 4.5)},
		{"oblique", mkLOR(0.1, 0.2, 0.3, 7.9, 6.4, 5.2)},
		{"oblique reversed axes", mkLOR(7.7, 0.4, 6.9, 0.6, 7.2, 0.8)},
		{"within one voxel", mkLOR(3.1, 3.2, 3.3, 3.7, 3.8, 3.9)},
		{"through corners", mkLOR(1, 1, 1, 7, 7, 7)},
	}

	for _, tc := range testCases {
		segs, ok := trace(s, tc.lor)
		if !ok {
			t.Errorf("%s: expected LOR to intersect the grid", tc.name)
			continue
		}
		want := tc.lor.Length()
		if got := totalLength(segs); math.Abs(got-want) > 1e-9 {
			t.Errorf("%s: expected total length %f, got %f", tc.name, want, got)
		}
		for _, seg := range segs {
			if seg.Length <= 0 {
				t.Errorf("%s: non-positive segment %v", tc.name, seg)
			}
		}
	}
}

// TestTraceChord verifies that LORs starting outside the grid deposit the
// chord length only
func TestTraceChord(t *testing.T) {
	s := NewStepper(testGrid(t, 4))

	segs, ok := trace(s, mkLOR(-1, -1, -1, 5, 5, 5))
	if !ok {
		t.Fatalf("Expected LOR to intersect the grid")
	}
	if got, want := totalLength(segs), 4*math.Sqrt(3); math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected chord length %f, got %f", want, got)
	}
	if len(segs) != 4 {
		t.Errorf("Expected the 4 diagonal voxels, got %d segments", len(segs))
	}

	segs, ok = trace(s, mkLOR(-2, 1.5, 0.5, 9, 1.5, 0.5))
	if !ok || math.Abs(totalLength(segs)-4) > 1e-12 {
		t.Errorf("Expected axis-aligned chord of length 4, got %f", totalLength(segs))
	}
}

// TestTraceOrder verifies that voxels are listed in travel order
func TestTraceOrder(t *testing.T) {
	g := testGrid(t, 4)
	s := NewStepper(g)

	segs, _ := trace(s, mkLOR(3.9, 0.5, 0.5, 0.1, 0.5, 0.5))
	for i, seg := range segs {
		if want := g.Index(3-i, 0, 0); seg.Index != want {
			t.Errorf("Segment %d: expected voxel %d, got %d", i, want, seg.Index)
		}
	}

	segs, _ = trace(s, mkLOR(0.5, 0.5, 0.5, 3.5, 2.5, 3.9))
	prev := -1.0
	for _, seg := range segs {
		c := g.Center(seg.Index%4, (seg.Index/4)%4, seg.Index/16)
		if c.Z < prev {
			t.Errorf("Voxel %d steps backwards along z", seg.Index)
		}
		prev = c.Z
	}
}

// TestTieBreak verifies that simultaneous crossings step z first, then y
func TestTieBreak(t *testing.T) {
	g := testGrid(t, 4)
	s := NewStepper(g)

	var st traversal
	lor := mkLOR(0.5, 0.5, 0.5, 3.5, 3.5, 3.5)
	if !s.setup(&st, lor, geometry.Classify(lor, geometry.Epsilon)) {
		t.Fatalf("Expected setup to succeed")
	}
	if a := st.next(); a != geometry.AxisZ {
		t.Errorf("Expected z to win a three-way tie, got %v", a)
	}
	st.t0[geometry.AxisZ] = math.Inf(1)
	if a := st.next(); a != geometry.AxisY {
		t.Errorf("Expected y to win an x/y tie, got %v", a)
	}
}

func voxelSet(segs []Segment) []int {
	idx := make([]int, len(segs))
	for i, s := range segs {
		idx[i] = s.Index
	}
	sort.Ints(idx)
	return idx
}

// TestReversalSymmetry verifies that swapping the detectors visits the same
// voxels with the same total weight
func TestReversalSymmetry(t *testing.T) {
	s := NewStepper(testGrid(t, 8))

	testCases := []models.LOR{
		mkLOR(-3, 2.2, 4.1, 11, 6.7, 4.1),
		mkLOR(-1.3, -2.1, -3.7, 9.2, 10.4, 11.9),
		mkLOR(0.37, -4.1, 1.13, 6.71, 12.3, 7.29),
		mkLOR(4.5, -1, 2.5, 4.5, 9, 2.5),
		mkLOR(0.1, 0.2, 0.3, 7.9, 6.4, 5.2),
	}
	for _, lor := range testCases {
		fwd, ok1 := trace(s, lor)
		rev, ok2 := trace(s, lor.Reversed())
		if ok1 != ok2 {
			t.Errorf("LOR %v: hit mismatch %v vs %v", lor, ok1, ok2)
			continue
		}
		a, b := voxelSet(fwd), voxelSet(rev)
		if len(a) != len(b) {
			t.Errorf("LOR %v: %d voxels forward, %d reversed", lor, len(a), len(b))
			continue
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("LOR %v: voxel sets differ at %d", lor, i)
				break
			}
		}
		if d := math.Abs(totalLength(fwd) - totalLength(rev)); d > 1e-9 {
			t.Errorf("LOR %v: total weight differs by %g", lor, d)
		}
	}
}

// TestReversalSymmetryCorners traces many LORs through grid nodes of an
// anisotropic grid, where rounding decides which of two crossings comes
// first, and checks both directions still agree
func TestReversalSymmetryCorners(t *testing.T) {
	g, err := geometry.NewCenteredGrid(9, 7, 5, 21.3, 15.1, 11.7)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	s := NewStepper(g)
	rng := rand.New(rand.NewSource(7))

	node := func() r3.Vec {
		var c [3]float64
		for _, a := range axes {
			c[a] = g.Lower(a) + float64(rng.Intn(g.Dim(a)+1))*g.Spacing(a)
		}
		return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}

	mismatches := 0
	for n := 0; n < 5000; n++ {
		p1, p2 := node(), node()
		if p1 == p2 {
			continue
		}
		d := r3.Sub(p2, p1)
		lor := models.LOR{
			Source:   r3.Sub(p1, r3.Scale(0.1+rng.Float64(), d)),
			Detector: r3.Add(p2, r3.Scale(0.1+rng.Float64(), d)),
		}
		fwd, ok1 := trace(s, lor)
		rev, ok2 := trace(s, lor.Reversed())
		if ok1 != ok2 {
			t.Errorf("LOR %v: hit mismatch %v vs %v", lor, ok1, ok2)
			mismatches++
			continue
		}
		for _, seg := range fwd {
			if !(seg.Length > 0) {
				t.Errorf("LOR %v: non-positive weight %g", lor, seg.Length)
			}
		}
		a, b := voxelSet(fwd), voxelSet(rev)
		same := len(a) == len(b)
		for i := 0; same && i < len(a); i++ {
			same = a[i] == b[i]
		}
		if !same {
			t.Errorf("LOR %v: forward visits %v, reversed visits %v", lor, a, b)
			mismatches++
		}
		if d := math.Abs(totalLength(fwd) - totalLength(rev)); d > 1e-9 {
			t.Errorf("LOR %v: total weight differs by %g", lor, d)
		}
		if mismatches > 10 {
			t.Fatal("Too many mismatches")
		}
	}
}

// TestTraceNearAxial verifies that a LOR running almost parallel to z is
// traced along its column instead of being dropped
func TestTraceNearAxial(t *testing.T) {
	s := NewStepper(testGrid(t, 8))
	lor := mkLOR(2.5, 5.5, -1, 2.5+1e-9, 5.5, 9)

	segs, ok := trace(s, lor)
	if !ok || len(segs) != 8 {
		t.Fatalf("Expected 8 segments, got %v (ok=%v)", segs, ok)
	}
	for k, seg := range segs {
		if want := k*64 + 5*8 + 2; seg.Index != want {
			t.Errorf("Segment %d: expected voxel %d, got %d", k, want, seg.Index)
		}
		if math.Abs(seg.Length-1) > 1e-9 {
			t.Errorf("Segment %d: expected length 1, got %f", k, seg.Length)
		}
	}

	if _, ok := trace(s, mkLOR(2.5, 5.5, -1, 2.5, 5.5, 9)); ok {
		t.Error("Expected an exactly axial LOR to be skipped")
	}
}

// TestTraceAppends verifies that Trace keeps existing buffer content
func TestTraceAppends(t *testing.T) {
	s := NewStepper(testGrid(t, 4))
	dst := []Segment{{Index: 99, Length: 1}}

	lor := mkLOR(-1, 2, 2, 5, 2, 2)
	dst, ok := s.Trace(lor, geometry.Classify(lor, geometry.Epsilon), dst)
	if !ok || len(dst) != 5 || dst[0].Index != 99 {
		t.Errorf("Expected 5 segments starting with the existing one, got %v", dst)
	}
	if s.MaxSegments() < 4 {
		t.Errorf("Expected MaxSegments to cover a full row, got %d", s.MaxSegments())
	}
}

func BenchmarkTraceOblique(b *testing.B) {
	g, err := geometry.NewCenteredGrid(128, 128, 63, 256, 256, 151.2)
	if err != nil {
		b.Fatalf("Failed to create grid: %v", err)
	}
	s := NewStepper(g)
	lor := mkLOR(-400, 37, 12, 395, -52, 140)
	class := geometry.Classify(lor, geometry.Epsilon)
	dst := make([]Segment, 0, s.MaxSegments())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst, _ = s.Trace(lor, class, dst[:0])
	}
}
