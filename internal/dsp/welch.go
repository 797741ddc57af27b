package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum is a one-sided power spectral density estimate.
type Spectrum struct {
	Freqs []float64 // Hz, ascending
	PSD   []float64 // power per Hz
}

// BinWidth returns the frequency resolution in Hz.
func (s Spectrum) BinWidth() float64 {
	if len(s.Freqs) < 2 {
		return 0
	}
	return s.Freqs[1] - s.Freqs[0]
}

// BandPower integrates the PSD over the band.
func (s Spectrum) BandPower(b Band) float64 {
	df := s.BinWidth()
	var p float64
	for i, f := range s.Freqs {
		if b.Contains(f) {
			p += s.PSD[i] * df
		}
	}
	return p
}

// PowerAt returns the PSD integrated over a narrow interval of +-halfWidth
// around freq, used for SSVEP bin scoring. The interval is widened to half
// a bin when needed so the nearest bin is always included, even when freq
// falls between bins.
func (s Spectrum) PowerAt(freq, halfWidth float64) float64 {
	if hw := s.BinWidth() / 2; halfWidth < hw {
		halfWidth = hw
	}
	return s.BandPower(Band{Lo: freq - halfWidth, Hi: freq + halfWidth})
}

// Welch estimates the PSD of sig by averaging Hann-windowed periodograms
// over segments of segLen samples advanced by segLen-overlap. Segments
// longer than the signal degrade to a single full-length periodogram. The
// same parameters must be used for calibration and streaming.
func Welch(sig []float64, fs float64, segLen, overlap int) Spectrum {
	if segLen <= 0 || segLen > len(sig) {
		segLen = len(sig)
	}
	if overlap < 0 || overlap >= segLen {
		overlap = segLen / 2
	}
	step := segLen - overlap

	win := hann(segLen)
	var winPower float64
	for _, w := range win {
		winPower += w * w
	}

	fft := fourier.NewFFT(segLen)
	nBins := segLen/2 + 1
	psd := make([]float64, nBins)
	buf := make([]float64, segLen)
	coeffs := make([]complex128, nBins)

	segments := 0
	for start := 0; start+segLen <= len(sig); start += step {
		for i := 0; i < segLen; i++ {
			buf[i] = sig[start+i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for i, c := range coeffs {
			p := real(c)*real(c) + imag(c)*imag(c)
			// One-sided estimate: interior bins carry both halves.
			if i != 0 && i != nBins-1 {
				p *= 2
			}
			psd[i] += p
		}
		segments++
	}

	scale := 1 / (fs * winPower * float64(max(segments, 1)))
	for i := range psd {
		psd[i] *= scale
	}

	freqs := make([]float64, nBins)
	for i := range freqs {
		freqs[i] = float64(i) * fs / float64(segLen)
	}
	return Spectrum{Freqs: freqs, PSD: psd}
}

func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
