package models

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Volume represents a dense voxel array in x-fastest order
// (index = k*Nx*Ny + j*Nx + i), the layout used for the image estimate,
// the attenuation map and the Summ/rhs accumulators.
type Volume struct {
	// Data is the voxel data as a 1D array
	Data []float64

	// Nx, Ny, Nz are the dimensions of the volume in voxels
	Nx, Ny, Nz int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume of the given dimensions.
func NewVolume(nx, ny, nz int, dx, dy, dz float64) *Volume {
	v := &Volume{
		Data: make([]float64, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = dx, dy, dz
	return v
}

// WrapVolume wraps existing voxel data without copying it.
func WrapVolume(data []float64, nx, ny, nz int, dx, dy, dz float64) (*Volume, error) {
	if len(data) != nx*ny*nz {
		return nil, fmt.Errorf("volume data has %d voxels, expected %dx%dx%d=%d", len(data), nx, ny, nz, nx*ny*nz)
	}
	v := &Volume{Data: data, Nx: nx, Ny: ny, Nz: nz}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = dx, dy, dz
	return v, nil
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return v.Nx * v.Ny * v.Nz
}

// At returns the voxel value at (i, j, k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[k*v.Nx*v.Ny+j*v.Nx+i]
}

// Max returns the largest voxel value, or 0 for an empty volume.
func (v *Volume) Max() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	return floats.Max(v.Data)
}
