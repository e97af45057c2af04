// Package reconstruction runs one projection pass end to end: it builds the
// voxel grid and the LOR geometry, loads the pass inputs, projects every LOR
// into the sensitivity and ratio accumulators, and writes the results.
package reconstruction

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"tomoproj/internal/models"
	"tomoproj/pkg/accumulate"
	"tomoproj/pkg/config"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/metrics"
	"tomoproj/pkg/projector"
	"tomoproj/pkg/rawio"
	"tomoproj/pkg/scanner"
	"tomoproj/pkg/visualization"
)

// Output file names inside the output directory.
const (
	SummFile    = "summ.bin"
	RHSFile     = "rhs.bin"
	MetricsFile = "metrics.prom"
	ConfigFile  = "tomoproj.yaml"
	SlicesDir   = "slices"
)

// Runner handles one projection pass:
// 1. Building the voxel grid
// 2. Building the LOR geometry from coordinate tables, detector pairs or a generated sinogram
// 3. Loading the measurement, image and correction inputs
// 4. Running the pass into fresh accumulators
// 5. Writing the accumulators, the metrics and the effective configuration
// 6. Optionally exporting slices of the accumulators as JPEG images
type Runner struct {
	cfg *config.Config

	grid     *geometry.VoxelGrid
	resolver scanner.Resolver
	input    projector.PassInput
	buf      *accumulate.Buffers

	registry  *prometheus.Registry
	collector *metrics.Collector

	summary projector.Summary
	written []string
}

// NewRunner validates cfg and creates a runner with its own metrics registry.
func NewRunner(cfg *config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return &Runner{cfg: cfg, registry: registry, collector: collector}, nil
}

// Process runs the complete pipeline.
func (r *Runner) Process() error {
	tlog := logging.NewTimeLog()

	logging.Infof("Step 1: Building voxel grid...")
	grid, err := r.cfg.VoxelGrid()
	if err != nil {
		return fmt.Errorf("failed to build grid: %w", err)
	}
	r.grid = grid
	logging.Infof("Grid %dx%dx%d voxels of %.3gx%.3gx%.3g mm", grid.Nx, grid.Ny, grid.Nz, grid.Dx, grid.Dy, grid.Dz)

	logging.Infof("Step 2: Building LOR geometry...")
	if err := r.buildResolver(); err != nil {
		return fmt.Errorf("failed to build LOR geometry: %w", err)
	}
	logging.Infof("%s LORs", humanize.Comma(int64(r.resolver.Len())))

	logging.Infof("Step 3: Loading inputs...")
	if err := r.loadInputs(); err != nil {
		return fmt.Errorf("failed to load inputs: %w", err)
	}

	logging.Infof("Step 4: Projecting...")
	if err := r.project(); err != nil {
		return fmt.Errorf("projection failed: %w", err)
	}

	logging.Infof("Step 5: Writing outputs to %s...", r.cfg.Output.Dir)
	if err := r.writeOutputs(); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}

	if r.cfg.Output.ExtractSlices {
		logging.Infof("Step 6: Extracting slices...")
		if err := r.extractSlices(); err != nil {
			return fmt.Errorf("failed to extract slices: %w", err)
		}
	}

	tlog.Infof("Pass finished")
	return nil
}

func (r *Runner) buildResolver() error {
	in := r.cfg.Input
	switch {
	case r.cfg.SinogramTables():
		res := &scanner.SinogramResolver{}
		var err error
		if res.X, err = rawio.Read[float64](in.X, -1); err != nil {
			return err
		}
		if res.Y, err = rawio.Read[float64](in.Y, len(res.X)); err != nil {
			return err
		}
		if res.Z, err = rawio.Read[float64](in.Z, -1); err != nil {
			return err
		}
		if res.XYIndex, err = rawio.Read[uint32](in.XYIndex, -1); err != nil {
			return err
		}
		if res.ZIndex, err = rawio.Read[uint16](in.ZIndex, len(res.XYIndex)); err != nil {
			return err
		}
		res.SizeX = len(res.X) / 2
		res.TotSinos = len(res.Z) / 2
		if err := res.Validate(); err != nil {
			return err
		}
		logging.Infof("Sinogram tables: %d transaxial and %d axial bins", res.SizeX, res.TotSinos)
		r.resolver = res

	case r.cfg.ListMode():
		pairs, err := rawio.Read[uint16](in.DetectorPairs, -1)
		if err != nil {
			return err
		}
		res := r.cfg.Ring().ListMode(pairs)
		if err := res.Validate(); err != nil {
			return err
		}
		logging.Infof("List-mode input with %d pseudo rings", len(res.Pseudos))
		r.resolver = res

	default:
		s := r.cfg.Scanner
		res, err := scanner.BuildSinogram(r.cfg.Ring(), s.Angles, s.RadialBins)
		if err != nil {
			return err
		}
		logging.Infof("Generated sinogram: %d angles, %d radial bins, %d axial bins over %.1f mm",
			s.Angles, s.RadialBins, res.TotSinos, r.cfg.Ring().AxialLength())
		r.resolver = res
	}
	return nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (r *Runner) loadInputs() error {
	in := r.cfg.Input
	nLOR, nVox := r.resolver.Len(), r.grid.Size()

	var err error
	if r.input.Measured, err = rawio.ReadOptional[float64](in.Measured, nLOR); err != nil {
		return err
	}
	if r.input.Measured == nil {
		logging.Debugf("No measurement file, using a uniform measurement")
		r.input.Measured = ones(nLOR)
	}
	if r.input.Image, err = rawio.ReadOptional[float64](in.Image, nVox); err != nil {
		return err
	}
	if r.input.Image == nil {
		logging.Debugf("No image file, using a uniform image")
		r.input.Image = ones(nVox)
	}

	if r.cfg.Corrections.Attenuation {
		if r.input.Attenuation, err = rawio.Read[float64](in.Attenuation, nVox); err != nil {
			return err
		}
	}
	if r.cfg.Corrections.Normalization {
		if r.input.Normalization, err = rawio.Read[float64](in.Normalization, nLOR); err != nil {
			return err
		}
	}
	if r.cfg.Corrections.Randoms {
		if r.input.Randoms, err = rawio.Read[float64](in.Randoms, nLOR); err != nil {
			return err
		}
	}

	r.buf = accumulate.NewBuffers(nVox)
	logging.Infof("Measurement %s, accumulators %s",
		humanize.Bytes(uint64(8*nLOR)), humanize.Bytes(uint64(16*nVox)))
	return nil
}

func (r *Runner) project() error {
	opts, err := r.cfg.ProjectorOptions()
	if err != nil {
		return err
	}
	p, err := projector.New(r.grid, r.resolver, opts)
	if err != nil {
		return err
	}
	logging.Infof("Model %s, %d rays per LOR, %s accumulation", opts.Model, opts.RaysPerLOR, opts.Accumulation)

	summary, err := p.Run(r.input, r.buf)
	if err != nil {
		return err
	}
	r.summary = summary
	r.collector.ObservePass(summary)

	logging.Infof("Projected %s of %s LORs in %s", humanize.Comma(int64(summary.Projected)),
		humanize.Comma(int64(summary.LORs)), summary.Duration)
	if skipped := summary.LORs - summary.Projected; skipped > 0 {
		logging.Infof("Skipped %d degenerate, %d outside the field of view, %d with zero measurement",
			summary.Degenerate, summary.OutsideFOV, summary.ZeroMeasurement)
	}
	return nil
}

func (r *Runner) outputPath(name string) string {
	if r.cfg.Output.Compress && filepath.Ext(name) == ".bin" {
		name += ".zst"
	}
	return filepath.Join(r.cfg.Output.Dir, name)
}

func (r *Runner) writeOutputs() error {
	for _, out := range []struct {
		name string
		data []float64
	}{
		{SummFile, r.buf.Summ},
		{RHSFile, r.buf.RHS},
	} {
		path := r.outputPath(out.name)
		if err := rawio.Write(path, out.data); err != nil {
			return err
		}
		r.written = append(r.written, path)
		logging.Debugf("Wrote %s", path)
	}

	path := r.outputPath(ConfigFile)
	if err := config.SaveConfig(r.cfg, path); err != nil {
		return err
	}
	r.written = append(r.written, path)

	if r.cfg.Output.Metrics {
		path := r.outputPath(MetricsFile)
		if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
			return fmt.Errorf("error writing metrics: %w", err)
		}
		r.written = append(r.written, path)
	}
	return nil
}

func (r *Runner) extractSlices() error {
	g := r.grid
	for _, out := range []struct {
		name string
		data []float64
	}{
		{"summ", r.buf.Summ},
		{"rhs", r.buf.RHS},
	} {
		vol, err := models.WrapVolume(out.data, g.Nx, g.Ny, g.Nz, g.Dx, g.Dy, g.Dz)
		if err != nil {
			return err
		}
		viewer := visualization.NewViewer(vol)
		for _, axis := range []string{"x", "y", "z"} {
			dir := filepath.Join(r.cfg.Output.Dir, SlicesDir, out.name, axis)
			n, err := viewer.SaveSliceSequence(axis, out.name, dir)
			if err != nil {
				logging.Warningf("Failed to save %s-axis slices of %s: %v", axis, out.name, err)
				continue
			}
			logging.Debugf("Saved %d %s-axis slices to %s", n, axis, dir)
		}
	}
	return nil
}

// Summary returns the statistics of the last pass.
func (r *Runner) Summary() projector.Summary {
	return r.summary
}

// Buffers returns the accumulators of the last pass.
func (r *Runner) Buffers() *accumulate.Buffers {
	return r.buf
}

// Grid returns the voxel grid built by Process.
func (r *Runner) Grid() *geometry.VoxelGrid {
	return r.grid
}

// Written returns the paths of the files written by Process.
func (r *Runner) Written() []string {
	return r.written
}
