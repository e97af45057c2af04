package projector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/internal/models"
	"tomoproj/pkg/geometry"
)

// WeightThreshold is the kernel value at or below which a voxel is left
// out of the orthogonal strip.
const WeightThreshold = 0.01

// OrthogonalProjector weights the voxels around a LOR by their perpendicular
// distance to it, w = 1 - d/width.
//
// With CrystalSizeZ == 0 distances are measured in the transaxial plane and
// the strip width is CrystalSizeXY; otherwise distances are measured in 3-D,
// the tube width is CrystalSizeZ and Dec neighbouring slices are scanned on
// each side of the centreline. Like Stepper it is safe for concurrent use;
// per-LOR buffers live in OrthoScratch.
type OrthogonalProjector struct {
	grid    *geometry.VoxelGrid
	stepper *Stepper

	width  float64
	threeD bool

	// Dec is the number of extra slices scanned around the centreline in
	// 3-D mode
	Dec int
}

// OrthoScratch holds reusable per-worker buffers.
type OrthoScratch struct {
	// Centerline is the Siddon path of the last traced LOR. Attenuation is
	// accumulated along it.
	Centerline []Segment

	nbr []neighbour
}

type neighbour struct {
	offset int
	weight float64
}

// NewOrthogonalProjector returns an orthogonal projector for the grid.
func NewOrthogonalProjector(grid *geometry.VoxelGrid, stepper *Stepper, opts Options) *OrthogonalProjector {
	o := &OrthogonalProjector{
		grid:    grid,
		stepper: stepper,
		width:   opts.CrystalSizeXY,
	}
	if opts.CrystalSizeZ > 0 {
		o.threeD = true
		o.width = opts.CrystalSizeZ
		slices := math.Ceil(opts.CrystalSizeZ / math.Sqrt(2*grid.Dz*grid.Dz))
		o.Dec = int(math.Ceil(slices * opts.DecayFactor))
	}
	return o
}

// kernel evaluates the distance weight of a point relative to one LOR.
type kernel struct {
	src    r3.Vec
	dir    r3.Vec
	norm   float64
	width  float64
	threeD bool
}

func (o *OrthogonalProjector) kernelFor(lor models.LOR) kernel {
	k := kernel{
		src:    lor.Source,
		dir:    r3.Sub(lor.Detector, lor.Source),
		width:  o.width,
		threeD: o.threeD,
	}
	if k.threeD {
		k.norm = r3.Norm(k.dir)
	} else {
		k.norm = math.Hypot(k.dir.X, k.dir.Y)
	}
	return k
}

func (k kernel) weight(p r3.Vec) float64 {
	var d float64
	if k.threeD {
		d = r3.Norm(r3.Cross(r3.Sub(p, k.src), k.dir)) / k.norm
	} else {
		d = math.Abs(k.dir.Y*(p.X-k.src.X)-k.dir.X*(p.Y-k.src.Y)) / k.norm
	}
	return 1 - d/k.width
}

// Trace appends the weighted voxels of lor to dst and leaves the centreline
// Siddon path in sc.Centerline. ok is false when the centreline misses the
// grid or no voxel is within the strip.
func (o *OrthogonalProjector) Trace(lor models.LOR, class geometry.Classification, sc *OrthoScratch, dst []Segment) ([]Segment, bool) {
	start := len(dst)
	var ok bool
	sc.Centerline, ok = o.stepper.Trace(lor, class, sc.Centerline[:0])
	if !ok {
		return dst, false
	}

	k := o.kernelFor(lor)
	switch class.Kind {
	case geometry.PerpendicularX, geometry.PerpendicularY:
		dst = o.perpendicular(k, class, sc, dst)
	default:
		dst = o.diagonal(k, lor, sc.Centerline, dst)
	}
	return dst, len(dst) > start
}

func (o *OrthogonalProjector) decode(v int) [3]int {
	g := o.grid
	return [3]int{v % g.Nx, (v / g.Nx) % g.Ny, v / g.Nyx()}
}

func (o *OrthogonalProjector) point(idx [3]int) r3.Vec {
	return o.grid.Center(idx[geometry.AxisX], idx[geometry.AxisY], idx[geometry.AxisZ])
}

func (o *OrthogonalProjector) sliceRange(kmin, kmax int) (int, int) {
	if !o.threeD {
		return kmin, kmax
	}
	return max(0, kmin-o.Dec), min(o.grid.Nz-1, kmax+o.Dec)
}

// perpendicular computes one weight set around the fixed row of an
// axis-aligned LOR and replicates it along every column the LOR covers.
func (o *OrthogonalProjector) perpendicular(k kernel, class geometry.Classification, sc *OrthoScratch, dst []Segment) []Segment {
	g := o.grid
	across := geometry.AxisY
	if class.Kind == geometry.PerpendicularX {
		across = geometry.AxisX
	}

	ref := o.decode(sc.Centerline[0].Index)
	refIndex := sc.Centerline[0].Index
	k0, k1 := o.sliceRange(ref[geometry.AxisZ], ref[geometry.AxisZ])

	sc.nbr = sc.nbr[:0]
	for kk := k0; kk <= k1; kk++ {
		p := ref
		p[geometry.AxisZ] = kk
		o.scanConvex(k, p, across, func(idx [3]int, w float64) {
			off := g.Index(idx[0], idx[1], idx[2]) - refIndex
			sc.nbr = append(sc.nbr, neighbour{offset: off, weight: w})
		})
	}

	for _, seg := range sc.Centerline {
		for _, nb := range sc.nbr {
			dst = append(dst, Segment{Index: seg.Index + nb.offset, Length: nb.weight})
		}
	}
	return dst
}

// diagonal walks the centreline and scans the perpendicular neighbourhood
// of every line of voxels it enters along the dominant transaxial axis.
func (o *OrthogonalProjector) diagonal(k kernel, lor models.LOR, centerline []Segment, dst []Segment) []Segment {
	dx, dy, _ := lor.Diff()
	dom, scan := geometry.AxisX, geometry.AxisY
	if math.Abs(dy) > math.Abs(dx) {
		dom, scan = geometry.AxisY, geometry.AxisX
	}

	emit := func(idx [3]int, w float64) {
		dst = append(dst, Segment{Index: o.grid.Index(idx[0], idx[1], idx[2]), Length: w})
	}

	// line is the dominant line currently being visited
	var line struct {
		idx        [3]int
		kmin, kmax int
		open       bool
	}
	flush := func() {
		if !line.open {
			return
		}
		k0, k1 := o.sliceRange(line.kmin, line.kmax)
		for kk := k0; kk <= k1; kk++ {
			p := line.idx
			p[geometry.AxisZ] = kk
			o.scanConvex(k, p, scan, emit)
		}
	}

	for _, seg := range centerline {
		idx := o.decode(seg.Index)
		kz := idx[geometry.AxisZ]
		same := line.open && idx[dom] == line.idx[dom]
		if !o.threeD {
			same = same && kz == line.idx[geometry.AxisZ]
		}
		if same {
			line.kmin = min(line.kmin, kz)
			line.kmax = max(line.kmax, kz)
			continue
		}
		flush()
		line.idx = idx
		line.kmin, line.kmax = kz, kz
		line.open = true
	}
	flush()
	return dst
}

// scanConvex visits the voxels along axis a through start whose weight is
// above WeightThreshold. The weight is unimodal along the axis, so the scan
// first climbs to the closest voxel and then expands in both directions.
func (o *OrthogonalProjector) scanConvex(k kernel, start [3]int, a geometry.Axis, emit func([3]int, float64)) {
	n := o.grid.Dim(a)
	at := func(i int) ([3]int, float64) {
		p := start
		p[a] = i
		return p, k.weight(o.point(p))
	}

	best := start[a]
	_, wb := at(best)
	for best+1 < n {
		_, w := at(best + 1)
		if w <= wb {
			break
		}
		best, wb = best+1, w
	}
	for best-1 >= 0 {
		_, w := at(best - 1)
		if w <= wb {
			break
		}
		best, wb = best-1, w
	}

	for i := best; i >= 0; i-- {
		p, w := at(i)
		if w <= WeightThreshold {
			break
		}
		emit(p, w)
	}
	for i := best + 1; i < n; i++ {
		p, w := at(i)
		if w <= WeightThreshold {
			break
		}
		emit(p, w)
	}
}
