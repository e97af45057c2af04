package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomoproj/pkg/projector"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestObservePass(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	summary := projector.Summary{
		LORs:          10,
		Projected:     6,
		Degenerate:    1,
		OutsideFOV:    3,
		VoxelsTouched: 42,
		SummMax:       0.5,
		Duration:      250 * time.Millisecond,
	}
	c.ObservePass(summary)
	c.ObservePass(summary)

	families := gather(t, reg)

	lors := families["tomoproj_lors_total"]
	require.NotNil(t, lors)
	byOutcome := map[string]float64{}
	for _, m := range lors.GetMetric() {
		byOutcome[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 12.0, byOutcome["projected"])
	assert.Equal(t, 2.0, byOutcome["degenerate"])
	assert.Equal(t, 6.0, byOutcome["outside_fov"])
	assert.Equal(t, 0.0, byOutcome["zero_measurement"])

	assert.Equal(t, 2.0, families["tomoproj_passes_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, uint64(2), families["tomoproj_pass_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 42.0, families["tomoproj_voxels_touched"].GetMetric()[0].GetGauge().GetValue())
}

func TestNewCollectorDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}
