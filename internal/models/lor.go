package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// LOR is a line of response: the line between the two detector elements
// that registered a coincidence. Source and Detector are in mm, in the same
// coordinate frame as the voxel grid.
type LOR struct {
	Source   r3.Vec
	Detector r3.Vec
}

// Diff returns the detector minus source coordinate differences.
func (l LOR) Diff() (dx, dy, dz float64) {
	return l.Detector.X - l.Source.X, l.Detector.Y - l.Source.Y, l.Detector.Z - l.Source.Z
}

// Length returns the Euclidean length of the LOR.
func (l LOR) Length() float64 {
	return r3.Norm(r3.Sub(l.Detector, l.Source))
}

// Reversed swaps the two endpoints.
func (l LOR) Reversed() LOR {
	return LOR{Source: l.Detector, Detector: l.Source}
}

// IsFinite reports whether all coordinates are finite numbers.
func (l LOR) IsFinite() bool {
	for _, c := range [...]float64{l.Source.X, l.Source.Y, l.Source.Z, l.Detector.X, l.Detector.Y, l.Detector.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
