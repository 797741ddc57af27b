package dsp

import (
	"fmt"
	"math"
)

// biquad is one direct-form-II-transposed second-order section with
// normalized a0. State is zeroed per Apply call so overlapping windows are
// filtered independently, matching how calibration windows are processed.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (f biquad) apply(dst, src []float64) {
	var z1, z2 float64
	for i, x := range src {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		dst[i] = y
	}
}

// newNotch designs a narrow band-stop section at freq with the given Q.
func newNotch(fs, freq, q float64) biquad {
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	return biquad{
		b0: 1 / a0,
		b1: -2 * cosw / a0,
		b2: 1 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// newHighpass designs a second-order Butterworth high-pass section.
func newHighpass(fs, freq float64) biquad {
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * math.Sqrt2 / 2)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// newLowpass designs a second-order Butterworth low-pass section.
func newLowpass(fs, freq float64) biquad {
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * math.Sqrt2 / 2)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// Preprocessor is the fixed per-channel conditioning chain: mains notch
// followed by a band-pass built from cascaded Butterworth sections.
type Preprocessor struct {
	stages []biquad
}

// NewPreprocessor builds the conditioning chain for one sample rate.
func NewPreprocessor(fs, notch, bandLo, bandHi float64) (*Preprocessor, error) {
	nyquist := fs / 2
	if !(fs > 0) {
		return nil, fmt.Errorf("dsp: sample rate must be positive, got %v", fs)
	}
	if !(bandLo > 0) || !(bandHi > bandLo) || bandHi >= nyquist {
		return nil, fmt.Errorf("dsp: bandpass [%g, %g] must satisfy 0 < lo < hi < %g", bandLo, bandHi, nyquist)
	}
	if !(notch > 0) || notch >= nyquist {
		return nil, fmt.Errorf("dsp: notch %g must be within (0, %g)", notch, nyquist)
	}
	return &Preprocessor{
		stages: []biquad{
			newNotch(fs, notch, 30),
			newHighpass(fs, bandLo),
			newLowpass(fs, bandHi),
		},
	}, nil
}

// Apply filters a window and returns a new slice; the input is untouched and
// filter state never carries across calls.
func (p *Preprocessor) Apply(sig []float64) []float64 {
	cur := make([]float64, len(sig))
	copy(cur, sig)
	tmp := make([]float64, len(sig))
	for _, st := range p.stages {
		st.apply(tmp, cur)
		cur, tmp = tmp, cur
	}
	return cur
}
