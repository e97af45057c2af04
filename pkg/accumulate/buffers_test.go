package accumulate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFloat64Concurrent(t *testing.T) {
	buf := NewBuffers(4)
	sink := NewAtomicSink(buf)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				sink.AddSumm(i%4, 0.5)
				sink.AddRHS(1, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []float64{1000, 1000, 1000, 1000}, buf.Summ)
	assert.Equal(t, 8000.0, buf.RHS[1])
	assert.Zero(t, buf.RHS[0])
}

func TestPartialSinkMerge(t *testing.T) {
	shared := NewBuffers(3)
	shared.Summ[0] = 1

	a := NewPartialSink(3)
	b := NewPartialSink(3)
	a.AddSumm(0, 2)
	a.AddRHS(2, 3)
	b.AddSumm(0, 4)
	b.AddSumm(1, 5)

	a.Merge(shared)
	b.Merge(shared)

	assert.Equal(t, []float64{7, 5, 0}, shared.Summ)
	assert.Equal(t, []float64{0, 0, 3}, shared.RHS)
}

func TestBuffersValidate(t *testing.T) {
	buf := NewBuffers(8)
	require.NoError(t, buf.Validate(8))
	assert.Error(t, buf.Validate(9))
	assert.Equal(t, 8, buf.Len())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("partial")
	require.NoError(t, err)
	assert.Equal(t, Partial, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Atomic, m)

	_, err = ParseMode("locked")
	assert.Error(t, err)
	assert.Equal(t, "atomic", Atomic.String())
}

func BenchmarkAtomicSink(b *testing.B) {
	buf := NewBuffers(1024)
	sink := NewAtomicSink(buf)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			sink.AddSumm(i&1023, 1)
			i++
		}
	})
}
