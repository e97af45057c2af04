package projector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/internal/models"
	"tomoproj/pkg/geometry"
)

// Segment is one voxel visited by a LOR and its weight. For the Siddon
// model the weight is the intersection length in mm.
type Segment struct {
	Index  int
	Length float64
}

// Stepper walks LORs through a voxel grid with Siddon's parametric
// algorithm. A Stepper holds no per-LOR state and is safe for concurrent
// use.
type Stepper struct {
	grid     *geometry.VoxelGrid
	maxSteps int
}

// NewStepper returns a stepper for the grid.
func NewStepper(grid *geometry.VoxelGrid) *Stepper {
	return &Stepper{
		grid:     grid,
		maxSteps: grid.Nx + grid.Ny + grid.Nz + 3,
	}
}

// MaxSegments returns an upper bound on the segments of one trace.
func (s *Stepper) MaxSegments() int {
	return s.maxSteps
}

// traversal is the state of one ray walk. Per-axis arrays are indexed by
// geometry.Axis. Axes the ray does not move along keep t0 = +Inf.
type traversal struct {
	idx  [3]int
	step [3]int

	// Parametric value of the next boundary crossing and the increment
	// between crossings
	t0 [3]float64
	tu [3]float64

	tc, tmax float64
	length   float64
	visited  int
}

func coords(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

var axes = [3]geometry.Axis{geometry.AxisX, geometry.AxisY, geometry.AxisZ}

// Trace appends the voxels visited by lor, in travel order from source to
// detector, to dst. Only the part of the LOR between its endpoints is
// traced. ok is false when the LOR does not intersect the grid, in which
// case dst is returned unchanged.
func (s *Stepper) Trace(lor models.LOR, class geometry.Classification, dst []Segment) ([]Segment, bool) {
	start := len(dst)
	switch class.Kind {
	case geometry.Degenerate:
		return dst, false
	case geometry.PerpendicularX, geometry.PerpendicularY:
		dst = s.perpendicular(lor, class, dst)
	default:
		var st traversal
		if !s.setup(&st, lor, class) {
			return dst, false
		}
		dst = s.walk(&st, dst)
	}
	return dst, len(dst) > start
}

// setup computes the entry voxel and parametric increments. It returns
// false when the ray misses the grid.
func (s *Stepper) setup(st *traversal, lor models.LOR, class geometry.Classification) bool {
	g := s.grid
	src := coords(lor.Source)
	d := coords(r3.Sub(lor.Detector, lor.Source))

	tmin, tmax := 0.0, 1.0
	for _, a := range axes {
		if class.Active(a) {
			ta := (g.Lower(a) - src[a]) / d[a]
			tb := (g.Upper(a) - src[a]) / d[a]
			if ta > tb {
				ta, tb = tb, ta
			}
			tmin = math.Max(tmin, ta)
			tmax = math.Min(tmax, tb)
			continue
		}

		var ok bool
		if a == geometry.AxisZ {
			st.idx[a], ok = g.SliceIndex(src[a])
		} else {
			st.idx[a], ok = g.AxisIndex(a, src[a])
		}
		if !ok {
			return false
		}
		st.t0[a] = math.Inf(1)
		st.tu[a] = math.Inf(1)
	}
	if !(tmin < tmax) {
		return false
	}

	for _, a := range axes {
		if !class.Active(a) {
			continue
		}
		lo, delta, n := g.Lower(a), g.Spacing(a), g.Dim(a)
		u := (src[a] + tmin*d[a] - lo) / delta

		var idx int
		if d[a] > 0 {
			idx = int(math.Floor(u))
			st.step[a] = 1
		} else {
			idx = int(math.Ceil(u)) - 1
			st.step[a] = -1
		}
		if idx < 0 {
			idx = 0
		} else if idx >= n {
			idx = n - 1
		}
		st.idx[a] = idx

		if d[a] > 0 {
			st.t0[a] = (lo + float64(idx+1)*delta - src[a]) / d[a]
		} else {
			st.t0[a] = (lo + float64(idx)*delta - src[a]) / d[a]
		}
		st.tu[a] = delta / math.Abs(d[a])
	}

	st.tc = tmin
	st.tmax = tmax
	st.length = lor.Length()
	return true
}

// next returns the axis whose boundary is crossed first. Ties go to z,
// then y, then x.
func (st *traversal) next() geometry.Axis {
	tx, ty, tz := st.t0[geometry.AxisX], st.t0[geometry.AxisY], st.t0[geometry.AxisZ]
	switch {
	case tz <= ty && tz <= tx:
		return geometry.AxisZ
	case ty <= tx:
		return geometry.AxisY
	}
	return geometry.AxisX
}

// minSegment is the parametric length below which a crossing is taken to
// pass through a grid corner. Such slivers are merged into a neighbouring
// segment so that a LOR and its reverse visit the same voxels.
const minSegment = 1e-12

func (s *Stepper) walk(st *traversal, dst []Segment) []Segment {
	g := s.grid
	start := len(dst)
	for n := 0; n < s.maxSteps; n++ {
		v := g.Index(st.idx[geometry.AxisX], st.idx[geometry.AxisY], st.idx[geometry.AxisZ])
		a := st.next()
		tNext := st.t0[a]

		if tNext >= st.tmax {
			dt := st.tmax - st.tc
			switch {
			case dt > minSegment:
				dst = append(dst, Segment{Index: v, Length: dt * st.length})
				st.visited++
			case dt > 0 && len(dst) > start:
				dst[len(dst)-1].Length += dt * st.length
			}
			break
		}
		if tNext-st.tc > minSegment {
			dst = append(dst, Segment{Index: v, Length: (tNext - st.tc) * st.length})
			st.visited++
			st.tc = tNext
		}

		st.idx[a] += st.step[a]
		st.t0[a] += st.tu[a]
		if st.idx[a] < 0 || st.idx[a] >= g.Dim(a) {
			break
		}
	}
	return dst
}

// perpendicular handles LORs running along a single grid axis within one
// row. Each column's weight is the overlap of the LOR extent with the
// column extent.
func (s *Stepper) perpendicular(lor models.LOR, class geometry.Classification, dst []Segment) []Segment {
	g := s.grid
	along, across := geometry.AxisX, geometry.AxisY
	edges := g.XX
	if class.Kind == geometry.PerpendicularX {
		along, across = geometry.AxisY, geometry.AxisX
		edges = g.YY
	}

	src, det := coords(lor.Source), coords(lor.Detector)
	c, ok := g.AxisIndex(across, src[across])
	if !ok {
		return dst
	}
	k, ok := g.SliceIndex(src[geometry.AxisZ])
	if !ok {
		return dst
	}

	lo, hi := math.Min(src[along], det[along]), math.Max(src[along], det[along])
	n := g.Dim(along)
	first, last, step := 0, n-1, 1
	if det[along] < src[along] {
		first, last, step = n-1, 0, -1
	}

	base := c*g.Stride(across) + k*g.Stride(geometry.AxisZ)
	stride := g.Stride(along)
	for i := first; ; i += step {
		if ov := math.Min(hi, edges[i+1]) - math.Max(lo, edges[i]); ov > 0 {
			dst = append(dst, Segment{Index: base + i*stride, Length: ov})
		}
		if i == last {
			break
		}
	}
	return dst
}
