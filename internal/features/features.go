// Package features turns analysis windows into per-channel band powers and
// the four derived control scores. Scores are dimensionless and unbounded;
// dead-banding, gain and clamping belong to the axis mapper.
package features

import (
	"fmt"
	"time"

	"github.com/bci-flystick/flystick/internal/config"
	"github.com/bci-flystick/flystick/internal/dsp"
	"github.com/bci-flystick/flystick/internal/window"
)

// epsilon guards ratio denominators against silent baselines.
const epsilon = 1e-9

// ssvepHalfWidthHz is the half-width of the stimulation frequency bin.
const ssvepHalfWidthHz = 0.5

// ChannelPowers holds the band powers of one channel for one window.
type ChannelPowers struct {
	Mu    float64
	Beta  float64
	Alpha float64
	// SSVEP is the power concentrated around the stimulation frequency;
	// zero unless SSVEP mode is configured.
	SSVEP float64
}

// MuBeta is the combined sensorimotor power used for ERD scoring.
func (p ChannelPowers) MuBeta() float64 { return p.Mu + p.Beta }

// Vector is the feature set of one window: a pure function of the window
// and the static filter configuration.
type Vector struct {
	Powers map[string]ChannelPowers // keyed by channel name (C3, C4, Cz, Oz)
	Start  time.Time
	End    time.Time
}

// Baseline holds the per-channel reference powers frozen by calibration.
type Baseline struct {
	Powers map[string]ChannelPowers `json:"powers"`
}

// Scores are the four derived control quantities before polarity, dead-band,
// gain and smoothing are applied.
type Scores struct {
	Lateralization float64 // yaw: C3/C4 ERD imbalance
	ERD            float64 // altitude: Cz desynchronization depth
	MuBetaBalance  float64 // pitch: mu vs beta ERD on Cz
	Attention      float64 // throttle: alpha suppression or SSVEP response on Oz
}

// Extractor computes feature vectors with a fixed preprocessing and spectral
// configuration. The identical extractor instance serves calibration and
// streaming.
type Extractor struct {
	pre      *dsp.Preprocessor
	fs       float64
	segLen   int
	overlap  int
	channels map[string]int
	ssvepHz  float64
}

// NewExtractor builds the extractor for a validated configuration.
func NewExtractor(cfg *config.Config) (*Extractor, error) {
	pre, err := dsp.NewPreprocessor(cfg.SampleRate, cfg.Notch, cfg.BandpassLow, cfg.BandpassHigh)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	channels := make(map[string]int, len(cfg.Channels))
	for name, idx := range cfg.Channels {
		channels[name] = idx
	}
	return &Extractor{
		pre: pre,
		fs:  cfg.SampleRate,
		// Welch segmentation: half-rate segments with quarter-rate overlap.
		segLen:   int(cfg.SampleRate / 2),
		overlap:  int(cfg.SampleRate / 4),
		channels: channels,
		ssvepHz:  cfg.SSVEPHz,
	}, nil
}

// Extract computes band powers for every mapped channel of one window.
func (e *Extractor) Extract(w window.Window) Vector {
	v := Vector{
		Powers: make(map[string]ChannelPowers, len(e.channels)),
		Start:  w.Start,
		End:    w.End,
	}
	for name, idx := range e.channels {
		sig := e.pre.Apply(w.Channel(idx))
		spec := dsp.Welch(sig, e.fs, e.segLen, e.overlap)
		p := ChannelPowers{
			Mu:    spec.BandPower(dsp.Mu),
			Beta:  spec.BandPower(dsp.Beta),
			Alpha: spec.BandPower(dsp.Alpha),
		}
		if e.ssvepHz > 0 {
			p.SSVEP = spec.PowerAt(e.ssvepHz, ssvepHalfWidthHz)
		}
		v.Powers[name] = p
	}
	return v
}

// SSVEPMode reports whether the extractor scores attention from the
// stimulation frequency bin rather than alpha suppression.
func (e *Extractor) SSVEPMode() bool { return e.ssvepHz > 0 }

// erd is the event-related desynchronization ratio: below 1 means the
// current power dropped under the baseline.
func erd(current, baseline float64) float64 {
	return current / (baseline + epsilon)
}

// Derive computes the four control scores from a feature vector and a
// frozen baseline. ssvep selects the throttle scoring mode and must match
// the extractor configuration.
func Derive(v Vector, b Baseline, ssvep bool) Scores {
	cur := func(name string) ChannelPowers { return v.Powers[name] }
	ref := func(name string) ChannelPowers { return b.Powers[name] }

	erdL := erd(cur("C3").MuBeta(), ref("C3").MuBeta())
	erdR := erd(cur("C4").MuBeta(), ref("C4").MuBeta())
	lat := (erdR - erdL) / (erdR + erdL + epsilon)

	erdCz := erd(cur("Cz").MuBeta(), ref("Cz").MuBeta())

	erdMu := erd(cur("Cz").Mu, ref("Cz").Mu)
	erdBeta := erd(cur("Cz").Beta, ref("Cz").Beta)
	balance := (erdBeta - erdMu) / (erdBeta + erdMu + epsilon)

	var attention float64
	if ssvep {
		attention = erd(cur("Oz").SSVEP, ref("Oz").SSVEP) - 1
	} else {
		refA := ref("Oz").Alpha
		attention = (refA - cur("Oz").Alpha) / (refA + epsilon)
	}

	return Scores{
		Lateralization: lat,
		ERD:            1 - erdCz,
		MuBetaBalance:  balance,
		Attention:      attention,
	}
}
