// Package visualization exports slices of reconstruction volumes, such as
// the sensitivity image and the backprojected ratio, as grayscale images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"tomoproj/internal/models"
)

// Viewer renders slices of a volume scaled so that the volume maximum maps
// to full white. Negative values render black.
type Viewer struct {
	vol   *models.Volume
	scale float64
}

// NewViewer creates a viewer over vol. An all-zero volume renders black.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{vol: vol}
	if m := vol.Max(); m > 0 {
		v.scale = 1 / m
	}
	return v
}

func (v *Viewer) gray(i, j, k int) color.Gray16 {
	value := math.Max(0, math.Min(65535, v.vol.At(i, j, k)*v.scale*65535))
	return color.Gray16{Y: uint16(math.Round(value))}
}

// SliceCount returns the number of slices along axis.
func (v *Viewer) SliceCount(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.vol.Nx, nil
	case "y", "Y":
		return v.vol.Ny, nil
	case "z", "Z":
		return v.vol.Nz, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// X slices are laid out z by y, Y slices x by z and Z slices x by y.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	n, err := v.SliceCount(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	vol := v.vol
	var img *image.Gray16
	switch axis {
	case "x", "X":
		img = image.NewGray16(image.Rect(0, 0, vol.Nz, vol.Ny))
		for j := 0; j < vol.Ny; j++ {
			for k := 0; k < vol.Nz; k++ {
				img.SetGray16(k, j, v.gray(position, j, k))
			}
		}
	case "y", "Y":
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Nz))
		for k := 0; k < vol.Nz; k++ {
			for i := 0; i < vol.Nx; i++ {
				img.SetGray16(i, k, v.gray(i, position, k))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Ny))
		for j := 0; j < vol.Ny; j++ {
			for i := 0; i < vol.Nx; i++ {
				img.SetGray16(i, j, v.gray(i, j, position))
			}
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along axis as
// outputDir/<prefix>_<axis>_NNN.jpg and returns the number written.
func (v *Viewer) SaveSliceSequence(axis, prefix, outputDir string) (int, error) {
	n, err := v.SliceCount(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.jpg", prefix, axis, pos))
		if err := SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return n, nil
}
