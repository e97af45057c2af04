package projector

import (
	"errors"
	"fmt"
	"runtime"

	"tomoproj/pkg/accumulate"
)

var (
	// ErrUnknownModel is returned for an unrecognised projector model name.
	ErrUnknownModel = errors.New("unknown projector model")

	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("invalid projector options")

	// ErrInputLength is returned when a pass input does not match the grid
	// or the number of LORs.
	ErrInputLength = errors.New("input length mismatch")
)

// Model selects how voxel weights are computed along a LOR.
type Model int

const (
	// Siddon weights voxels by their exact intersection length.
	Siddon Model = iota

	// Orthogonal weights voxels by their perpendicular distance to the LOR.
	Orthogonal
)

func (m Model) String() string {
	switch m {
	case Siddon:
		return "siddon"
	case Orthogonal:
		return "orthogonal"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel parses a model name as used in configuration files.
func ParseModel(s string) (Model, error) {
	switch s {
	case "siddon", "improved-siddon":
		return Siddon, nil
	case "orthogonal":
		return Orthogonal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Options configures a projection pass.
type Options struct {
	Model Model

	// RaysPerLOR is the number of sub-rays cast per LOR: 1, 3 or 5.
	// Values above one require the Siddon model.
	RaysPerLOR int

	// Correction switches
	UseAttenuation   bool
	UseNormalization bool
	UseRandoms       bool

	// NoNormalization skips the sensitivity image for this pass. LORs with a
	// zero measurement are then skipped entirely.
	NoNormalization bool

	// Epsilon replaces a zero forward projection of a LOR with a nonzero
	// measurement.
	Epsilon float64

	// CrystalSizeXY is the transaxial crystal size in mm. It sets the strip
	// width of the orthogonal model.
	CrystalSizeXY float64

	// CrystalSizeZ is the axial crystal size in mm. A positive value selects
	// the 3-D tube mode of the orthogonal model and sets the axial sub-ray
	// offset.
	CrystalSizeZ float64

	// DecayFactor scales the number of neighbouring slices scanned by the
	// 3-D orthogonal model.
	DecayFactor float64

	// Workers is the number of concurrent workers; zero uses all CPUs.
	Workers int

	// Accumulation selects atomic adds or per-worker partial buffers.
	Accumulation accumulate.Mode
}

// DefaultOptions returns single-ray Siddon options without corrections.
func DefaultOptions() Options {
	return Options{
		Model:         Siddon,
		RaysPerLOR:    1,
		Epsilon:       1e-8,
		CrystalSizeXY: 2.0,
		CrystalSizeZ:  0,
		DecayFactor:   1,
		Workers:       runtime.NumCPU(),
		Accumulation:  accumulate.Atomic,
	}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	switch o.Model {
	case Siddon, Orthogonal:
	default:
		return fmt.Errorf("%w: %v", ErrUnknownModel, o.Model)
	}
	switch o.RaysPerLOR {
	case 1, 3, 5:
	default:
		return fmt.Errorf("%w: rays per LOR must be 1, 3 or 5, got %d", ErrInvalidOptions, o.RaysPerLOR)
	}
	if o.RaysPerLOR > 1 && o.Model != Siddon {
		return fmt.Errorf("%w: multiple rays per LOR require the siddon model", ErrInvalidOptions)
	}
	if !(o.Epsilon > 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidOptions, o.Epsilon)
	}
	if o.CrystalSizeXY < 0 || o.CrystalSizeZ < 0 {
		return fmt.Errorf("%w: crystal sizes must not be negative", ErrInvalidOptions)
	}
	if o.Model == Orthogonal {
		if o.CrystalSizeZ == 0 && !(o.CrystalSizeXY > 0) {
			return fmt.Errorf("%w: orthogonal model needs a positive transaxial crystal size", ErrInvalidOptions)
		}
		if o.CrystalSizeZ > 0 && !(o.DecayFactor > 0) {
			return fmt.Errorf("%w: decay factor must be positive, got %g", ErrInvalidOptions, o.DecayFactor)
		}
	}
	if o.RaysPerLOR >= 3 && !(o.CrystalSizeZ > 0) {
		return fmt.Errorf("%w: multiple rays per LOR need a positive axial crystal size", ErrInvalidOptions)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidOptions, o.Workers)
	}
	if _, err := accumulate.ParseMode(o.Accumulation.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}
