package reconstruction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomoproj/pkg/config"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/rawio"
	"tomoproj/pkg/scanner"
)

func init() {
	logging.SetLogMode(logging.WarningMode)
}

// smallConfig describes a 32 crystal, 4 ring scanner around a 16x16x4 grid.
func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Nz = 16, 16, 4
	cfg.Grid.FOVX, cfg.Grid.FOVY, cfg.Grid.FOVZ = 24, 24, 14
	cfg.Scanner.DetPerRing = 32
	cfg.Scanner.Rings = 4
	cfg.Scanner.Radius = 20
	cfg.Scanner.RingPitch = 3
	cfg.Scanner.Angles = 16
	cfg.Scanner.RadialBins = 8
	cfg.Projection.NumCores = 2
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Verbose = false
	return cfg
}

func run(t *testing.T, cfg *config.Config) *Runner {
	t.Helper()
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Process())
	return r
}

func TestProcessGeneratedSinogram(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Output.Metrics = true
	r := run(t, cfg)

	s := r.Summary()
	assert.Equal(t, 16*8*16, s.LORs)
	assert.Positive(t, s.Projected)
	assert.Equal(t, s.LORs, s.Projected+s.Degenerate+s.OutsideFOV+s.ZeroMeasurement)

	// A uniform image and measurement make every ratio one.
	buf := r.Buffers()
	assert.InDeltaSlice(t, buf.Summ, buf.RHS, 1e-9)

	summ, err := rawio.Read[float64](filepath.Join(cfg.Output.Dir, SummFile), r.Grid().Size())
	require.NoError(t, err)
	assert.Equal(t, buf.Summ, summ)

	for _, name := range []string{RHSFile, MetricsFile, ConfigFile} {
		_, err := os.Stat(filepath.Join(cfg.Output.Dir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, r.Written(), 4)

	saved, err := config.LoadConfig(filepath.Join(cfg.Output.Dir, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, cfg.Grid, saved.Grid)
}

func TestProcessSinogramTables(t *testing.T) {
	ref := run(t, smallConfig(t))

	cfg := smallConfig(t)
	res, err := scanner.BuildSinogram(cfg.Ring(), cfg.Scanner.Angles, cfg.Scanner.RadialBins)
	require.NoError(t, err)

	dir := t.TempDir()
	write := func(name string, data interface{}) string {
		path := filepath.Join(dir, name)
		switch d := data.(type) {
		case []float64:
			require.NoError(t, rawio.Write(path, d))
		case []uint32:
			require.NoError(t, rawio.Write(path, d))
		case []uint16:
			require.NoError(t, rawio.Write(path, d))
		}
		return path
	}
	cfg.Input.X = write("x.bin", res.X)
	cfg.Input.Y = write("y.bin", res.Y)
	cfg.Input.Z = write("z.bin.zst", res.Z)
	cfg.Input.XYIndex = write("xy.bin", res.XYIndex)
	cfg.Input.ZIndex = write("zi.bin", res.ZIndex)
	cfg.Projection.Accumulation = "partial"
	cfg.Output.Compress = true

	r := run(t, cfg)
	assert.Equal(t, ref.Summary().Projected, r.Summary().Projected)
	assert.InDeltaSlice(t, ref.Buffers().Summ, r.Buffers().Summ, 1e-9)

	rhs, err := rawio.Read[float64](filepath.Join(cfg.Output.Dir, RHSFile+".zst"), -1)
	require.NoError(t, err)
	assert.Equal(t, r.Buffers().RHS, rhs)
}

func TestProcessListMode(t *testing.T) {
	cfg := smallConfig(t)
	pairs := []uint16{
		1, 17,      // opposite crystals of ring 0
		1, 32 + 17, // ring 0 to ring 1
		5, 5,       // same detector
	}
	cfg.Input.DetectorPairs = filepath.Join(t.TempDir(), "pairs.bin")
	require.NoError(t, rawio.Write(cfg.Input.DetectorPairs, pairs))

	measured := []float64{2, 0, 1}
	cfg.Input.Measured = filepath.Join(t.TempDir(), "measured.bin")
	require.NoError(t, rawio.Write(cfg.Input.Measured, measured))

	r := run(t, cfg)
	s := r.Summary()
	assert.Equal(t, 3, s.LORs)
	assert.Equal(t, 2, s.Projected)
	assert.Equal(t, 1, s.Degenerate)
	assert.Positive(t, s.RHSTotal)
}

func TestProcessExtractSlices(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Output.ExtractSlices = true
	run(t, cfg)

	for _, name := range []string{"summ", "rhs"} {
		path := filepath.Join(cfg.Output.Dir, SlicesDir, name, "z", name+"_z_000.jpg")
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestProcessErrors(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Projection.RaysPerLOR = 4
	_, err := NewRunner(cfg)
	assert.Error(t, err)

	cfg = smallConfig(t)
	cfg.Input.Measured = filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, rawio.Write(cfg.Input.Measured, []float64{1, 2, 3}))
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	assert.Error(t, r.Process())

	cfg = smallConfig(t)
	cfg.Input.DetectorPairs = filepath.Join(t.TempDir(), "pairs.bin")
	require.NoError(t, rawio.Write(cfg.Input.DetectorPairs, []uint16{1, 999}))
	r, err = NewRunner(cfg)
	require.NoError(t, err)
	assert.Error(t, r.Process())
}
