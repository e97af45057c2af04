// Package scanner maps LOR indices to physical detector coordinates.
//
// Two index sources are supported: sinogram bins, where each LOR carries a
// transaxial (angle, radial) index and an axial (ring pair) index into
// precomputed coordinate tables, and raw list-mode detector pairs, where
// each LOR carries two 1-based detector numbers. Invalid indices are a
// caller precondition; Validate checks table consistency once before a
// projection pass so that Resolve can stay branch-free.
package scanner

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/internal/models"
)

// ErrInconsistentTables is returned by Validate when lookup tables do not
// match each other.
var ErrInconsistentTables = errors.New("inconsistent detector tables")

// Resolver maps a LOR index in [0, Len()) to its detector coordinates.
type Resolver interface {
	Len() int
	Resolve(lo int) models.LOR
}

// SinogramResolver resolves sinogram bins.
//
// X and Y hold 2*SizeX transaxial coordinates: entry xy is the first
// detector of transaxial bin xy and entry xy+SizeX the second. Z holds
// 2*TotSinos axial coordinates laid out the same way per axial bin.
type SinogramResolver struct {
	X, Y []float64
	Z    []float64

	// Per-LOR transaxial and axial bin indices
	XYIndex []uint32
	ZIndex  []uint16

	SizeX    int
	TotSinos int
}

// Len returns the number of LORs.
func (r *SinogramResolver) Len() int {
	return len(r.XYIndex)
}

// Resolve returns the detector pair of LOR lo.
func (r *SinogramResolver) Resolve(lo int) models.LOR {
	xy := int(r.XYIndex[lo])
	zi := int(r.ZIndex[lo])
	return models.LOR{
		Source:   r3.Vec{X: r.X[xy], Y: r.Y[xy], Z: r.Z[zi]},
		Detector: r3.Vec{X: r.X[xy+r.SizeX], Y: r.Y[xy+r.SizeX], Z: r.Z[zi+r.TotSinos]},
	}
}

// Validate checks table lengths and that every per-LOR index is in range.
func (r *SinogramResolver) Validate() error {
	if r.SizeX <= 0 || r.TotSinos <= 0 {
		return fmt.Errorf("%w: SizeX %d and TotSinos %d must be positive", ErrInconsistentTables, r.SizeX, r.TotSinos)
	}
	if len(r.X) != 2*r.SizeX || len(r.Y) != 2*r.SizeX {
		return fmt.Errorf("%w: x/y tables have %d/%d entries, expected %d", ErrInconsistentTables, len(r.X), len(r.Y), 2*r.SizeX)
	}
	if len(r.Z) != 2*r.TotSinos {
		return fmt.Errorf("%w: z table has %d entries, expected %d", ErrInconsistentTables, len(r.Z), 2*r.TotSinos)
	}
	if len(r.XYIndex) != len(r.ZIndex) {
		return fmt.Errorf("%w: %d transaxial and %d axial indices", ErrInconsistentTables, len(r.XYIndex), len(r.ZIndex))
	}
	for lo, xy := range r.XYIndex {
		if int(xy) >= r.SizeX {
			return fmt.Errorf("%w: LOR %d has transaxial index %d >= %d", ErrInconsistentTables, lo, xy, r.SizeX)
		}
		if int(r.ZIndex[lo]) >= r.TotSinos {
			return fmt.Errorf("%w: LOR %d has axial index %d >= %d", ErrInconsistentTables, lo, r.ZIndex[lo], r.TotSinos)
		}
	}
	return nil
}

// ListModeResolver resolves raw detector pairs.
//
// X and Y hold one transaxial coordinate per crystal of a ring; Z holds one
// axial coordinate per ring slot, including pseudo-ring gap slots. Pairs
// holds two 1-based detector numbers per LOR, numbered ring by ring.
// Pseudos lists the Z slots occupied by pseudo rings in ascending order.
type ListModeResolver struct {
	X, Y []float64
	Z    []float64

	Pairs   []uint16
	Pseudos []uint32

	DetPerRing int
}

// Len returns the number of LORs.
func (r *ListModeResolver) Len() int {
	return len(r.Pairs) / 2
}

// Resolve returns the detector pair of LOR lo.
func (r *ListModeResolver) Resolve(lo int) models.LOR {
	return models.LOR{
		Source:   r.detector(int(r.Pairs[2*lo])),
		Detector: r.detector(int(r.Pairs[2*lo+1])),
	}
}

func (r *ListModeResolver) detector(det int) r3.Vec {
	det--
	ring := det / r.DetPerRing
	crystal := det % r.DetPerRing
	return r3.Vec{X: r.X[crystal], Y: r.Y[crystal], Z: r.Z[r.slot(ring)]}
}

// slot returns the Z table index of a physical ring, skipping pseudo rings.
func (r *ListModeResolver) slot(ring int) int {
	zi := ring
	for _, p := range r.Pseudos {
		if int(p) <= zi {
			zi++
		}
	}
	return zi
}

// Validate checks table lengths and that every detector number is in range.
func (r *ListModeResolver) Validate() error {
	if r.DetPerRing <= 0 {
		return fmt.Errorf("%w: detectors per ring %d must be positive", ErrInconsistentTables, r.DetPerRing)
	}
	if len(r.X) != r.DetPerRing || len(r.Y) != r.DetPerRing {
		return fmt.Errorf("%w: x/y tables have %d/%d entries, expected %d", ErrInconsistentTables, len(r.X), len(r.Y), r.DetPerRing)
	}
	if len(r.Pairs)%2 != 0 {
		return fmt.Errorf("%w: odd number of detector numbers %d", ErrInconsistentTables, len(r.Pairs))
	}
	rings := len(r.Z) - len(r.Pseudos)
	maxDet := rings * r.DetPerRing
	for i, det := range r.Pairs {
		if det == 0 || int(det) > maxDet {
			return fmt.Errorf("%w: detector number %d at position %d outside [1, %d]", ErrInconsistentTables, det, i, maxDet)
		}
	}
	for i := 1; i < len(r.Pseudos); i++ {
		if r.Pseudos[i] <= r.Pseudos[i-1] {
			return fmt.Errorf("%w: pseudo ring slots are not ascending", ErrInconsistentTables)
		}
	}
	return nil
}
