package geometry

import (
	"fmt"
	"math"

	"tomoproj/internal/models"
)

// Epsilon is the coordinate difference below which two detector coordinates
// are treated as equal when classifying a LOR.
const Epsilon = 1e-8

// Kind is the traversal strategy selected for a LOR.
type Kind int

const (
	// Degenerate LORs (detectors coincident in x and y, or a non-finite
	// coordinate) contribute nothing and are skipped.
	Degenerate Kind = iota

	// PerpendicularY LORs are planar with no y extent: they run along x
	// through a single row (j, k).
	PerpendicularY

	// PerpendicularX LORs are planar with no x extent: they run along y
	// through a single column (i, k).
	PerpendicularX

	// Diagonal2D LORs change along exactly two axes; Plane names them.
	Diagonal2D

	// Diagonal3D LORs change along all three axes.
	Diagonal3D
)

func (k Kind) String() string {
	switch k {
	case Degenerate:
		return "degenerate"
	case PerpendicularY:
		return "perpendicular-y"
	case PerpendicularX:
		return "perpendicular-x"
	case Diagonal2D:
		return "diagonal-2d"
	case Diagonal3D:
		return "diagonal-3d"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Plane is the pair of axes a Diagonal2D LOR changes along.
type Plane int

const (
	PlaneNone Plane = iota
	PlaneXY
	PlaneXZ
	PlaneYZ
)

func (p Plane) String() string {
	switch p {
	case PlaneXY:
		return "xy"
	case PlaneXZ:
		return "xz"
	case PlaneYZ:
		return "yz"
	}
	return "none"
}

// Classification is the result of Classify.
type Classification struct {
	Kind  Kind
	Plane Plane
}

// Active reports whether the LOR changes along the axis.
func (c Classification) Active(a Axis) bool {
	switch c.Kind {
	case PerpendicularY:
		return a == AxisX
	case PerpendicularX:
		return a == AxisY
	case Diagonal2D:
		switch c.Plane {
		case PlaneXY:
			return a != AxisZ
		case PlaneXZ:
			return a != AxisY
		case PlaneYZ:
			return a != AxisX
		}
	case Diagonal3D:
		return true
	}
	return false
}

// Classify selects the traversal strategy for a LOR.
//
// Checks are made in priority order: degenerate, then planar (|dz| < eps)
// with the perpendicular sub-cases, then the oblique sub-cases. Only LORs
// whose detectors coincide in x and y are degenerate. When both |dx| and
// |dy| are below eps the LOR is still traced, along the larger of the two.
func Classify(lor models.LOR, eps float64) Classification {
	if !lor.IsFinite() {
		return Classification{Kind: Degenerate}
	}
	dx, dy, dz := lor.Diff()
	if dx == 0 && dy == 0 {
		return Classification{Kind: Degenerate}
	}
	adx, ady, adz := math.Abs(dx), math.Abs(dy), math.Abs(dz)
	flatY := ady < eps && (adx >= eps || ady <= adx)
	flatX := adx < eps && !flatY

	if adz < eps {
		switch {
		case flatY:
			return Classification{Kind: PerpendicularY}
		case flatX:
			return Classification{Kind: PerpendicularX}
		default:
			return Classification{Kind: Diagonal2D, Plane: PlaneXY}
		}
	}

	switch {
	case flatY:
		return Classification{Kind: Diagonal2D, Plane: PlaneXZ}
	case flatX:
		return Classification{Kind: Diagonal2D, Plane: PlaneYZ}
	}
	return Classification{Kind: Diagonal3D}
}
