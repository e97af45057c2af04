package scanner

import (
	"fmt"
	"math"
)

// Ring describes a cylindrical scanner made of identical detector rings.
type Ring struct {
	// DetPerRing is the number of crystals in one ring
	DetPerRing int

	// Rings is the number of physical rings
	Rings int

	// Radius is the ring radius in mm
	Radius float64

	// RingPitch is the axial distance between consecutive ring slots in mm
	RingPitch float64

	// PseudoEvery inserts one pseudo-ring gap slot after every PseudoEvery
	// physical rings. Zero disables pseudo rings.
	PseudoEvery int
}

// Validate checks the ring parameters.
func (r Ring) Validate() error {
	if r.DetPerRing <= 0 || r.DetPerRing%2 != 0 {
		return fmt.Errorf("detectors per ring must be a positive even number, got %d", r.DetPerRing)
	}
	if r.Rings <= 0 {
		return fmt.Errorf("number of rings must be positive, got %d", r.Rings)
	}
	if !(r.Radius > 0) || !(r.RingPitch > 0) {
		return fmt.Errorf("radius %g and ring pitch %g must be positive", r.Radius, r.RingPitch)
	}
	if r.PseudoEvery < 0 {
		return fmt.Errorf("pseudo ring interval must not be negative, got %d", r.PseudoEvery)
	}
	if r.Rings*r.DetPerRing > math.MaxUint16 {
		return fmt.Errorf("%d detectors do not fit 16-bit detector numbers", r.Rings*r.DetPerRing)
	}
	return nil
}

// Slots returns the number of axial slots, physical plus pseudo rings.
func (r Ring) Slots() int {
	return r.Rings + len(r.pseudoSlots())
}

// AxialLength returns the distance between the first and last ring slot.
func (r Ring) AxialLength() float64 {
	return float64(r.Slots()-1) * r.RingPitch
}

func (r Ring) pseudoSlots() []uint32 {
	if r.PseudoEvery <= 0 {
		return nil
	}
	var slots []uint32
	for n := 1; n*r.PseudoEvery < r.Rings; n++ {
		// Each earlier pseudo ring shifts the later slots by one
		slots = append(slots, uint32(n*r.PseudoEvery+n-1))
	}
	return slots
}

// DetectorCoordinates returns the transaxial crystal coordinates of one ring,
// the axial coordinate of every ring slot and the pseudo-ring slot list.
// Crystals are evenly spaced counter-clockwise starting on the +x axis;
// slot s lies at z = s*RingPitch.
func (r Ring) DetectorCoordinates() (x, y, z []float64, pseudos []uint32) {
	x = make([]float64, r.DetPerRing)
	y = make([]float64, r.DetPerRing)
	for c := 0; c < r.DetPerRing; c++ {
		theta := 2 * math.Pi * float64(c) / float64(r.DetPerRing)
		x[c] = r.Radius * math.Cos(theta)
		y[c] = r.Radius * math.Sin(theta)
	}

	pseudos = r.pseudoSlots()
	z = make([]float64, r.Rings+len(pseudos))
	for s := range z {
		z[s] = float64(s) * r.RingPitch
	}
	return x, y, z, pseudos
}

// ListMode builds a resolver for raw 1-based detector pairs.
func (r Ring) ListMode(pairs []uint16) *ListModeResolver {
	x, y, z, pseudos := r.DetectorCoordinates()
	return &ListModeResolver{
		X:          x,
		Y:          y,
		Z:          z,
		Pairs:      pairs,
		Pseudos:    pseudos,
		DetPerRing: r.DetPerRing,
	}
}

// BuildSinogram builds a sinogram resolver with nAngles projection angles
// and nRadial radial bins per angle, covering every ordered ring pair
// (span 1, no axial compression). LOR lo belongs to axial bin
// lo / (nAngles*nRadial) and transaxial bin lo % (nAngles*nRadial).
//
// For angle a and centred radial offset s' = s - nRadial/2 the crystal pair
// is d1 = a + floor(s'/2) and d2 = a - (s' - floor(s'/2)) + N/2, modulo N.
func BuildSinogram(r Ring, nAngles, nRadial int) (*SinogramResolver, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if nAngles <= 0 || nRadial <= 0 {
		return nil, fmt.Errorf("sinogram dimensions %dx%d must be positive", nAngles, nRadial)
	}
	totSinos := r.Rings * r.Rings
	if totSinos > math.MaxUint16+1 {
		return nil, fmt.Errorf("%d ring pairs do not fit 16-bit axial indices", totSinos)
	}

	x, y, z, pseudos := r.DetectorCoordinates()
	lm := &ListModeResolver{Z: z, Pseudos: pseudos, DetPerRing: r.DetPerRing}

	n := r.DetPerRing
	sizeX := nAngles * nRadial
	res := &SinogramResolver{
		X:        make([]float64, 2*sizeX),
		Y:        make([]float64, 2*sizeX),
		Z:        make([]float64, 2*totSinos),
		SizeX:    sizeX,
		TotSinos: totSinos,
	}

	for a := 0; a < nAngles; a++ {
		for s := 0; s < nRadial; s++ {
			sc := s - nRadial/2
			half := floorDiv(sc, 2)
			d1 := mod(a+half, n)
			d2 := mod(a-(sc-half)+n/2, n)

			xy := a*nRadial + s
			res.X[xy], res.Y[xy] = x[d1], y[d1]
			res.X[xy+sizeX], res.Y[xy+sizeX] = x[d2], y[d2]
		}
	}

	for r1 := 0; r1 < r.Rings; r1++ {
		for r2 := 0; r2 < r.Rings; r2++ {
			zi := r1*r.Rings + r2
			res.Z[zi] = z[lm.slot(r1)]
			res.Z[zi+totSinos] = z[lm.slot(r2)]
		}
	}

	res.XYIndex = make([]uint32, sizeX*totSinos)
	res.ZIndex = make([]uint16, sizeX*totSinos)
	for zi := 0; zi < totSinos; zi++ {
		for xy := 0; xy < sizeX; xy++ {
			lo := zi*sizeX + xy
			res.XYIndex[lo] = uint32(xy)
			res.ZIndex[lo] = uint16(zi)
		}
	}
	return res, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
