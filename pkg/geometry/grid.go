// Package geometry describes the voxel grid a projection pass runs over and
// classifies lines of response by their alignment with the grid axes.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGrid is returned when grid dimensions, spacing or bounds are
// unusable or mutually inconsistent.
var ErrInvalidGrid = errors.New("invalid voxel grid")

// Axis names one of the three grid axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// VoxelGrid is the immutable per-run geometry of the reconstructed image.
//
// The grid spans [Bx, MaxX] x [By, MaxY] x [Bz, MaxZ] with N voxels of
// spacing D along each axis. XX, YY and ZZ hold the N+1 voxel boundary
// coordinates of each axis.
type VoxelGrid struct {
	Nx, Ny, Nz int

	// Voxel spacing in mm
	Dx, Dy, Dz float64

	// Lower bounds of the field of view
	Bx, By, Bz float64

	// Upper bounds of the field of view (lower + N*spacing)
	MaxX, MaxY, MaxZ float64

	// Boundary coordinates, length N+1 each
	XX, YY, ZZ []float64
}

// NewVoxelGrid creates a grid from dimensions, spacing and lower bounds.
// Upper bounds and boundary vectors are derived so that the grid is
// consistent by construction.
func NewVoxelGrid(nx, ny, nz int, dx, dy, dz, bx, by, bz float64) (*VoxelGrid, error) {
	g := &VoxelGrid{
		Nx: nx, Ny: ny, Nz: nz,
		Dx: dx, Dy: dy, Dz: dz,
		Bx: bx, By: by, Bz: bz,
	}
	g.MaxX = bx + float64(nx)*dx
	g.MaxY = by + float64(ny)*dy
	g.MaxZ = bz + float64(nz)*dz
	g.XX = boundaries(bx, dx, nx)
	g.YY = boundaries(by, dy, ny)
	g.ZZ = boundaries(bz, dz, nz)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewCenteredGrid creates a grid whose transaxial field of view is centred
// on the scanner axis and whose axial extent starts at z = 0.
func NewCenteredGrid(nx, ny, nz int, fovX, fovY, fovZ float64) (*VoxelGrid, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%dx%d must be positive", ErrInvalidGrid, nx, ny, nz)
	}
	return NewVoxelGrid(nx, ny, nz,
		fovX/float64(nx), fovY/float64(ny), fovZ/float64(nz),
		-fovX/2, -fovY/2, 0)
}

func boundaries(b, d float64, n int) []float64 {
	if n < 0 {
		return nil
	}
	out := make([]float64, n+1)
	for i := range out {
		out[i] = b + float64(i)*d
	}
	return out
}

// Validate checks that the grid is usable: positive dimensions and spacing,
// and bounds and boundary vectors consistent with upper = lower + N*spacing.
func (g *VoxelGrid) Validate() error {
	if g.Nx <= 0 || g.Ny <= 0 || g.Nz <= 0 {
		return fmt.Errorf("%w: dimensions %dx%dx%d must be positive", ErrInvalidGrid, g.Nx, g.Ny, g.Nz)
	}
	if !(g.Dx > 0) || !(g.Dy > 0) || !(g.Dz > 0) {
		return fmt.Errorf("%w: spacing (%g, %g, %g) must be positive", ErrInvalidGrid, g.Dx, g.Dy, g.Dz)
	}

	axes := []struct {
		name      string
		n         int
		d, lo, hi float64
		edges     []float64
	}{
		{"x", g.Nx, g.Dx, g.Bx, g.MaxX, g.XX},
		{"y", g.Ny, g.Dy, g.By, g.MaxY, g.YY},
		{"z", g.Nz, g.Dz, g.Bz, g.MaxZ, g.ZZ},
	}
	for _, a := range axes {
		want := a.lo + float64(a.n)*a.d
		if !closeTo(a.hi, want) {
			return fmt.Errorf("%w: %s upper bound %g, expected %g", ErrInvalidGrid, a.name, a.hi, want)
		}
		if len(a.edges) != a.n+1 {
			return fmt.Errorf("%w: %s has %d boundaries, expected %d", ErrInvalidGrid, a.name, len(a.edges), a.n+1)
		}
		if !closeTo(a.edges[0], a.lo) || !closeTo(a.edges[a.n], a.hi) {
			return fmt.Errorf("%w: %s boundaries do not span [%g, %g]", ErrInvalidGrid, a.name, a.lo, a.hi)
		}
	}
	return nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// Size returns the total number of voxels.
func (g *VoxelGrid) Size() int {
	return g.Nx * g.Ny * g.Nz
}

// Nyx returns the number of voxels in one transaxial slice.
func (g *VoxelGrid) Nyx() int {
	return g.Nx * g.Ny
}

// Index returns the linear voxel index of (i, j, k).
func (g *VoxelGrid) Index(i, j, k int) int {
	return k*g.Nx*g.Ny + j*g.Nx + i
}

// Dim returns the number of voxels along the axis.
func (g *VoxelGrid) Dim(a Axis) int {
	switch a {
	case AxisX:
		return g.Nx
	case AxisY:
		return g.Ny
	}
	return g.Nz
}

// Spacing returns the voxel size along the axis.
func (g *VoxelGrid) Spacing(a Axis) float64 {
	switch a {
	case AxisX:
		return g.Dx
	case AxisY:
		return g.Dy
	}
	return g.Dz
}

// Lower returns the lower bound along the axis.
func (g *VoxelGrid) Lower(a Axis) float64 {
	switch a {
	case AxisX:
		return g.Bx
	case AxisY:
		return g.By
	}
	return g.Bz
}

// Upper returns the upper bound along the axis.
func (g *VoxelGrid) Upper(a Axis) float64 {
	switch a {
	case AxisX:
		return g.MaxX
	case AxisY:
		return g.MaxY
	}
	return g.MaxZ
}

// Stride returns the linear index step for a unit step along the axis.
func (g *VoxelGrid) Stride(a Axis) int {
	switch a {
	case AxisX:
		return 1
	case AxisY:
		return g.Nx
	}
	return g.Nx * g.Ny
}

// CenterCoord returns the centre coordinate of voxel idx along the axis.
func (g *VoxelGrid) CenterCoord(a Axis, idx int) float64 {
	return g.Lower(a) + (float64(idx)+0.5)*g.Spacing(a)
}

// Center returns the centre of voxel (i, j, k).
func (g *VoxelGrid) Center(i, j, k int) r3.Vec {
	return r3.Vec{
		X: g.CenterCoord(AxisX, i),
		Y: g.CenterCoord(AxisY, j),
		Z: g.CenterCoord(AxisZ, k),
	}
}

// AxisIndex returns the index of the voxel containing coord along the axis.
// A coordinate exactly on the upper bound belongs to the last voxel.
// ok is false when coord lies outside the grid.
func (g *VoxelGrid) AxisIndex(a Axis, coord float64) (idx int, ok bool) {
	lo, hi := g.Lower(a), g.Upper(a)
	if math.IsNaN(coord) || coord < lo || coord > hi {
		return 0, false
	}
	n := g.Dim(a)
	idx = int(math.Floor((coord - lo) / g.Spacing(a)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx, true
}

// sliceTolerance absorbs rounding when a ring position falls on a slice
// boundary, e.g. z = r*pitch with dz = pitch/2.
const sliceTolerance = 1e-9

// SliceIndex maps an axial coordinate to the slice whose centre is nearest
// to it. Planar LORs are assigned to this slice. A coordinate on a slice
// boundary belongs to the upper slice.
func (g *VoxelGrid) SliceIndex(z float64) (int, bool) {
	if math.IsNaN(z) || z < g.Bz || z > g.MaxZ {
		return 0, false
	}
	k := int(math.Floor((z-g.Bz)/g.Dz + sliceTolerance))
	if k >= g.Nz {
		k = g.Nz - 1
	}
	if k < 0 {
		k = 0
	}
	return k, true
}
