package models

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestVolume(t *testing.T) {
	vol := NewVolume(3, 2, 2, 1, 2, 3)
	if vol.Len() != 12 || len(vol.Data) != 12 {
		t.Errorf("Expected 12 voxels, got %d (%d values)", vol.Len(), len(vol.Data))
	}
	if vol.VoxelSize.Z != 3 {
		t.Errorf("Expected voxel depth 3, got %f", vol.VoxelSize.Z)
	}
	if vol.Max() != 0 {
		t.Errorf("Expected max 0 for a new volume, got %f", vol.Max())
	}

	vol.Data[1*3*2+1*3+2] = 5
	if got := vol.At(2, 1, 1); got != 5 {
		t.Errorf("Expected At(2,1,1) = 5, got %f", got)
	}
	if vol.Max() != 5 {
		t.Errorf("Expected max 5, got %f", vol.Max())
	}

	if _, err := WrapVolume(make([]float64, 11), 3, 2, 2, 1, 1, 1); err == nil {
		t.Error("Expected error for mismatched data length, got nil")
	}
	data := make([]float64, 12)
	wrapped, err := WrapVolume(data, 3, 2, 2, 1, 1, 1)
	if err != nil {
		t.Fatalf("Failed to wrap volume: %v", err)
	}
	data[0] = 7
	if wrapped.At(0, 0, 0) != 7 {
		t.Error("Expected wrapped volume to share its data")
	}
}

func TestLOR(t *testing.T) {
	lor := LOR{Source: r3.Vec{X: 1, Y: 2, Z: 3}, Detector: r3.Vec{X: 4, Y: 6, Z: 3}}

	dx, dy, dz := lor.Diff()
	if dx != 3 || dy != 4 || dz != 0 {
		t.Errorf("Expected diff (3,4,0), got (%f,%f,%f)", dx, dy, dz)
	}
	if lor.Length() != 5 {
		t.Errorf("Expected length 5, got %f", lor.Length())
	}

	rev := lor.Reversed()
	if rev.Source != lor.Detector || rev.Detector != lor.Source {
		t.Errorf("Expected swapped endpoints, got %v", rev)
	}

	if !lor.IsFinite() {
		t.Error("Expected finite LOR")
	}
	lor.Detector.X = math.NaN()
	if lor.IsFinite() {
		t.Error("Expected NaN endpoint to be reported")
	}
}
