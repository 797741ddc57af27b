// Package dsp holds the numeric signal path: causal IIR preprocessing and
// Welch band-power estimation. Calibration and streaming run the identical
// code so reference and live powers stay comparable.
package dsp

// Band is a frequency interval in Hz.
type Band struct {
	Lo float64
	Hi float64
}

// Contains reports whether f falls inside the band (inclusive).
func (b Band) Contains(f float64) bool { return f >= b.Lo && f <= b.Hi }

// Canonical EEG bands used by the mapper.
var (
	Mu    = Band{Lo: 8, Hi: 12}
	Beta  = Band{Lo: 13, Hi: 30}
	Alpha = Band{Lo: 8, Hi: 12}
)
