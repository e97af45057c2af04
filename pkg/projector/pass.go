// Package projector computes system-matrix-free forward and back projections
// for PET and SPECT reconstruction.
//
// For every LOR of a Resolver the projector finds the voxels the LOR
// intersects and their weights, using either Siddon's exact path lengths or
// an orthogonal distance kernel, forward projects the current image along
// those weights and scatters the corrected weights into the sensitivity
// image (Summ) and the weighted backprojection (rhs). Each LOR is handled in
// two passes over a path buffered once per sub-ray: the first pass collects
// the normalisation, attenuation and forward projection, the second writes
// the accumulators.
//
// Degenerate LORs and LORs missing the field of view are skipped silently.
package projector

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tomoproj/pkg/accumulate"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/scanner"
)

// PassInput holds the read-only inputs of a projection pass. Measured,
// Normalization and Randoms have one value per LOR; Image and Attenuation
// one value per voxel. Correction arrays are only read when enabled in
// Options.
type PassInput struct {
	Measured      []float64
	Image         []float64
	Attenuation   []float64
	Normalization []float64
	Randoms       []float64
}

// Outcome is what happened to one LOR.
type Outcome int

const (
	Projected Outcome = iota
	SkippedDegenerate
	SkippedOutside
	SkippedZeroMeasurement
)

func (o Outcome) String() string {
	switch o {
	case Projected:
		return "projected"
	case SkippedDegenerate:
		return "degenerate"
	case SkippedOutside:
		return "outside_fov"
	case SkippedZeroMeasurement:
		return "zero_measurement"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Summary describes a finished projection pass.
type Summary struct {
	// LOR counts by outcome
	LORs            int
	Projected       int
	Degenerate      int
	OutsideFOV      int
	ZeroMeasurement int

	// Statistics of the accumulators after the pass. They include whatever
	// the buffers held before it.
	VoxelsTouched int
	SummMean      float64
	SummStd       float64
	SummMax       float64
	RHSTotal      float64

	Duration time.Duration
}

func (s *Summary) add(o Outcome) {
	s.LORs++
	switch o {
	case Projected:
		s.Projected++
	case SkippedDegenerate:
		s.Degenerate++
	case SkippedOutside:
		s.OutsideFOV++
	case SkippedZeroMeasurement:
		s.ZeroMeasurement++
	}
}

func (s *Summary) merge(o Summary) {
	s.LORs += o.LORs
	s.Projected += o.Projected
	s.Degenerate += o.Degenerate
	s.OutsideFOV += o.OutsideFOV
	s.ZeroMeasurement += o.ZeroMeasurement
}

// Projector runs projection passes over the LORs of a resolver.
type Projector struct {
	grid     *geometry.VoxelGrid
	resolver scanner.Resolver
	opts     Options

	stepper *Stepper
	ortho   *OrthogonalProjector

	// Axial sub-ray offset
	dcZ float64
}

// New creates a projector. The grid and options are validated here so that
// the per-LOR code can rely on them.
func New(grid *geometry.VoxelGrid, resolver scanner.Resolver, opts Options) (*Projector, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &Projector{
		grid:     grid,
		resolver: resolver,
		opts:     opts,
		stepper:  NewStepper(grid),
		dcZ:      opts.CrystalSizeZ / 3,
	}
	if opts.Model == Orthogonal {
		p.ortho = NewOrthogonalProjector(grid, p.stepper, opts)
	}
	return p, nil
}

// Options returns the options the projector was created with.
func (p *Projector) Options() Options {
	return p.opts
}

// CheckInput verifies that the pass input and accumulators match the grid
// and the number of LORs.
func (p *Projector) CheckInput(in PassInput, buf *accumulate.Buffers) error {
	nLOR, nVox := p.resolver.Len(), p.grid.Size()

	check := func(name string, got, want int) error {
		if got != want {
			return fmt.Errorf("%w: %s has %d values, expected %d", ErrInputLength, name, got, want)
		}
		return nil
	}
	if err := check("measured", len(in.Measured), nLOR); err != nil {
		return err
	}
	if err := check("image", len(in.Image), nVox); err != nil {
		return err
	}
	if p.opts.UseAttenuation {
		if err := check("attenuation", len(in.Attenuation), nVox); err != nil {
			return err
		}
	}
	if p.opts.UseNormalization {
		if err := check("normalization", len(in.Normalization), nLOR); err != nil {
			return err
		}
	}
	if p.opts.UseRandoms {
		if err := check("randoms", len(in.Randoms), nLOR); err != nil {
			return err
		}
	}
	if err := buf.Validate(nVox); err != nil {
		return fmt.Errorf("%w: %v", ErrInputLength, err)
	}
	return nil
}

// worker owns the scratch buffers of one goroutine.
type worker struct {
	p *Projector

	paths  [MaxRays][]Segment
	passed [MaxRays]bool
	ortho  OrthoScratch

	summary Summary
}

func (p *Projector) newWorker() *worker {
	w := &worker{p: p}
	for r := 0; r < p.opts.RaysPerLOR; r++ {
		w.paths[r] = make([]Segment, 0, p.stepper.MaxSegments())
	}
	w.ortho.Centerline = make([]Segment, 0, p.stepper.MaxSegments())
	return w
}

// project runs both passes for LOR lo.
func (w *worker) project(lo int, in *PassInput, sink accumulate.Sink) Outcome {
	p := w.p
	measured := in.Measured[lo]
	if p.opts.NoNormalization && measured == 0 {
		return SkippedZeroMeasurement
	}

	lor := p.resolver.Resolve(lo)
	class := geometry.Classify(lor, geometry.Epsilon)
	if class.Kind == geometry.Degenerate {
		return SkippedDegenerate
	}

	var st lorState
	w.castRays(lor, class, in, &st)
	if st.passed == 0 {
		return SkippedOutside
	}

	temp, yax := p.correct(&st, lo, measured, in)
	for r := 0; r < p.opts.RaysPerLOR; r++ {
		if w.passed[r] {
			scatter(w.paths[r], temp, yax, !p.opts.NoNormalization, measured != 0, sink)
		}
	}
	return Projected
}

// ProjectLOR projects a single LOR into sink. The input is not checked;
// use CheckInput first.
func (p *Projector) ProjectLOR(lo int, in PassInput, sink accumulate.Sink) Outcome {
	return p.newWorker().project(lo, &in, sink)
}

// Run projects every LOR of the resolver and adds the results to buf.
// LORs are split into contiguous chunks, one per worker.
func (p *Projector) Run(in PassInput, buf *accumulate.Buffers) (Summary, error) {
	start := time.Now()
	if err := p.CheckInput(in, buf); err != nil {
		return Summary{}, err
	}

	n := p.resolver.Len()
	nw := min(p.opts.workers(), max(n, 1))
	chunk := (n + nw - 1) / nw

	var (
		g       errgroup.Group
		mu      sync.Mutex
		workers []*worker
	)
	g.SetLimit(nw)
	for from := 0; from < n; from += chunk {
		to := min(from+chunk, n)
		w := p.newWorker()
		workers = append(workers, w)

		g.Go(func() error {
			var sink accumulate.Sink
			var partial *accumulate.PartialSink
			if p.opts.Accumulation == accumulate.Partial {
				partial = accumulate.NewPartialSink(buf.Len())
				sink = partial
			} else {
				sink = accumulate.NewAtomicSink(buf)
			}

			for lo := from; lo < to; lo++ {
				w.summary.add(w.project(lo, &in, sink))
			}

			if partial != nil {
				mu.Lock()
				partial.Merge(buf)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, w := range workers {
		summary.merge(w.summary)
	}
	summarizeBuffers(&summary, buf)
	summary.Duration = time.Since(start)
	return summary, nil
}

func summarizeBuffers(s *Summary, buf *accumulate.Buffers) {
	if buf.Len() == 0 {
		return
	}
	for v := range buf.Summ {
		if buf.Summ[v] != 0 || buf.RHS[v] != 0 {
			s.VoxelsTouched++
		}
	}
	s.SummMean, s.SummStd = stat.MeanStdDev(buf.Summ, nil)
	s.SummMax = floats.Max(buf.Summ)
	s.RHSTotal = floats.Sum(buf.RHS)
}
