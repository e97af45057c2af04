package projector

import (
	"math"

	"tomoproj/pkg/accumulate"
)

// lorState collects the first-pass sums of one LOR over all of its
// sub-rays.
type lorState struct {
	// Sum of raw weights, inverted by correct
	temp float64

	// Forward projection of the image estimate
	ax float64

	// Attenuation exponent, sum of -mu*length
	jelppi float64

	// Number of sub-rays that intersected the grid
	passed int
}

func (st *lorState) forward(path []Segment, image []float64) {
	for _, seg := range path {
		st.temp += seg.Length
		st.ax += seg.Length * image[seg.Index]
	}
}

func (st *lorState) attenuate(path []Segment, mu []float64) {
	for _, seg := range path {
		st.jelppi += seg.Length * -mu[seg.Index]
	}
}

// correct turns the first-pass sums into the per-LOR scale temp applied to
// every weight, and the measurement ratio yax used for rhs.
func (p *Projector) correct(st *lorState, lo int, measured float64, in *PassInput) (temp, yax float64) {
	temp = 1 / st.temp
	if p.opts.UseAttenuation {
		temp *= math.Exp(st.jelppi / float64(st.passed))
	}
	if p.opts.UseNormalization {
		temp *= in.Normalization[lo]
	}

	if measured != 0 {
		ax := st.ax
		if ax == 0 {
			ax = p.opts.Epsilon
		} else {
			ax *= temp
		}
		if p.opts.UseRandoms {
			ax += in.Randoms[lo]
		}
		yax = measured / ax
	}
	return temp, yax
}

// scatter replays a path into the accumulators.
func scatter(path []Segment, temp, yax float64, summ, rhs bool, sink accumulate.Sink) {
	for _, seg := range path {
		w := seg.Length * temp
		if summ {
			sink.AddSumm(seg.Index, w)
		}
		if rhs {
			sink.AddRHS(seg.Index, w*yax)
		}
	}
}
