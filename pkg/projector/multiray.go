package projector

import (
	"tomoproj/internal/models"
	"tomoproj/pkg/geometry"
)

// MaxRays is the largest supported number of sub-rays per LOR.
const MaxRays = 5

// RayShift returns the axial shifts applied to the source and detector
// of sub-ray r. Every shift is +-CrystalSizeZ/3.
//
// Ray 0 is the LOR itself. Rays 1 and 2 move both detectors up and down.
// Rays 3 and 4 cross the crystal face, moving the source and the detector
// in opposite directions.
func (p *Projector) RayShift(r int) (src, det float64) {
	switch r {
	case 1:
		return p.dcZ, p.dcZ
	case 2:
		return -p.dcZ, -p.dcZ
	case 3:
		return p.dcZ, -p.dcZ
	case 4:
		return -p.dcZ, p.dcZ
	}
	return 0, 0
}

// SubRay returns sub-ray r of lor.
func (p *Projector) SubRay(lor models.LOR, r int) models.LOR {
	src, det := p.RayShift(r)
	sub := lor
	sub.Source.Z += src
	sub.Detector.Z += det
	return sub
}

// castRays traces every sub-ray of lor into the worker's path buffers and
// accumulates the first-pass sums. Crossed sub-rays of a planar LOR are
// oblique, so each sub-ray is classified on its own. Sub-rays missing the
// grid are marked and take no further part.
func (w *worker) castRays(lor models.LOR, class geometry.Classification, in *PassInput, st *lorState) {
	p := w.p
	for r := 0; r < p.opts.RaysPerLOR; r++ {
		sub, subClass := lor, class
		if r > 0 {
			sub = p.SubRay(lor, r)
			subClass = geometry.Classify(sub, geometry.Epsilon)
		}

		path, center, ok := w.trace(r, sub, subClass)
		w.passed[r] = ok
		if !ok {
			continue
		}
		st.passed++
		st.forward(path, in.Image)
		if p.opts.UseAttenuation {
			st.attenuate(center, in.Attenuation)
		}
	}
}

// trace fills the path buffer of sub-ray r and returns it with the
// centreline used for attenuation.
func (w *worker) trace(r int, lor models.LOR, class geometry.Classification) (path, center []Segment, ok bool) {
	if w.p.ortho != nil {
		w.paths[r], ok = w.p.ortho.Trace(lor, class, &w.ortho, w.paths[r][:0])
		return w.paths[r], w.ortho.Centerline, ok
	}
	w.paths[r], ok = w.p.stepper.Trace(lor, class, w.paths[r][:0])
	return w.paths[r], w.paths[r], ok
}
