// Package accumulate holds the Summ and rhs accumulators of a projection
// pass and the race-free ways of adding into them from many workers.
package accumulate

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"gonum.org/v1/gonum/floats"
)

// Buffers are the two dense voxel accumulators written by a projection pass.
// Summ is the sensitivity image and RHS the weighted backprojection. They
// are owned by the caller and never reset by a pass.
type Buffers struct {
	Summ []float64
	RHS  []float64
}

// NewBuffers allocates zeroed accumulators for n voxels.
func NewBuffers(n int) *Buffers {
	return &Buffers{
		Summ: make([]float64, n),
		RHS:  make([]float64, n),
	}
}

// Len returns the number of voxels.
func (b *Buffers) Len() int {
	return len(b.Summ)
}

// Validate checks that both accumulators cover n voxels.
func (b *Buffers) Validate(n int) error {
	if len(b.Summ) != n || len(b.RHS) != n {
		return fmt.Errorf("accumulators have %d/%d voxels, expected %d", len(b.Summ), len(b.RHS), n)
	}
	return nil
}

// Sink receives the per-voxel contributions of one worker.
type Sink interface {
	AddSumm(v int, x float64)
	AddRHS(v int, x float64)
}

// Mode selects how workers add into shared buffers.
type Mode int

const (
	// Atomic adds directly into the shared buffers with compare-and-swap.
	Atomic Mode = iota

	// Partial gives every worker private buffers that are merged into the
	// shared ones when the worker finishes.
	Partial
)

func (m Mode) String() string {
	switch m {
	case Atomic:
		return "atomic"
	case Partial:
		return "partial"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "atomic" or "partial".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "atomic", "":
		return Atomic, nil
	case "partial":
		return Partial, nil
	}
	return 0, fmt.Errorf("unknown accumulation mode %q", s)
}

// AtomicSink adds into shared buffers with lock-free float64 adds.
type AtomicSink struct {
	buf *Buffers
}

// NewAtomicSink returns a sink writing straight into buf. It is safe for
// concurrent use.
func NewAtomicSink(buf *Buffers) *AtomicSink {
	return &AtomicSink{buf: buf}
}

func (s *AtomicSink) AddSumm(v int, x float64) { AddFloat64(&s.buf.Summ[v], x) }
func (s *AtomicSink) AddRHS(v int, x float64)  { AddFloat64(&s.buf.RHS[v], x) }

// AddFloat64 atomically adds delta to *addr.
func AddFloat64(addr *float64, delta float64) {
	p := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(p)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(p, old, next) {
			return
		}
	}
}

// PartialSink accumulates into private buffers. It must only be used by a
// single goroutine; Merge folds it into the shared buffers.
type PartialSink struct {
	local *Buffers
}

// NewPartialSink allocates private buffers for n voxels.
func NewPartialSink(n int) *PartialSink {
	return &PartialSink{local: NewBuffers(n)}
}

func (s *PartialSink) AddSumm(v int, x float64) { s.local.Summ[v] += x }
func (s *PartialSink) AddRHS(v int, x float64)  { s.local.RHS[v] += x }

// Merge adds the private buffers into dst. Calls on the same dst must be
// serialised by the caller.
func (s *PartialSink) Merge(dst *Buffers) {
	floats.Add(dst.Summ, s.local.Summ)
	floats.Add(dst.RHS, s.local.RHS)
}
