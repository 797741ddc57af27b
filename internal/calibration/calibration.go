// Package calibration establishes the per-session baseline: reference band
// powers captured during a quiet period, plus the per-axis polarity table.
// The calibrator is an explicit IDLE -> RECORDING -> COMPLETE state machine;
// a profile can only be obtained from a completed run, so mapping against an
// unfinished baseline is unrepresentable.
package calibration

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/features"
)

// State is the calibrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// CalibrationError reports degraded calibration output. It is a warning
// grade: the session continues with defaulted values rather than aborting.
type CalibrationError struct {
	Reason string
}

func (e *CalibrationError) Error() string { return "calibration: " + e.Reason }

// ErrNotComplete is returned when a profile is requested before COMPLETE.
var ErrNotComplete = errors.New("calibration not complete")

// minCoverage is the fraction of expected windows that must be observed for
// the baseline to count as fully covered.
const minCoverage = 0.5

// Profile is the frozen output of a completed calibration: read-only
// afterwards, invalidated by re-running calibration.
type Profile struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Baseline  features.Baseline `json:"baseline"`
	Polarity  axis.Polarity     `json:"polarity"`
}

// Calibrator accumulates feature vectors during the recording period and
// freezes their per-channel per-band medians.
type Calibrator struct {
	state    State
	duration time.Duration
	hop      time.Duration

	start   time.Time
	powers  map[string][]features.ChannelPowers
	profile *Profile
}

// New creates an idle calibrator recording for the given duration with
// windows arriving every hop.
func New(duration, hop time.Duration) *Calibrator {
	return &Calibrator{
		state:    StateIdle,
		duration: duration,
		hop:      hop,
		powers:   make(map[string][]features.ChannelPowers),
	}
}

// State returns the current lifecycle state.
func (c *Calibrator) State() State { return c.state }

// Begin transitions IDLE -> RECORDING.
func (c *Calibrator) Begin(now time.Time) error {
	if c.state != StateIdle {
		return fmt.Errorf("calibration: cannot begin from state %s", c.state)
	}
	c.state = StateRecording
	c.start = now
	return nil
}

// Observe feeds one feature vector while recording. It reports true once
// the recording period has elapsed and the calibrator moved to COMPLETE.
func (c *Calibrator) Observe(v features.Vector) (bool, error) {
	if c.state != StateRecording {
		return false, fmt.Errorf("calibration: observe in state %s", c.state)
	}
	for name, p := range v.Powers {
		c.powers[name] = append(c.powers[name], p)
	}
	if v.End.Sub(c.start) >= c.duration {
		c.freeze()
		return true, nil
	}
	return false, nil
}

// freeze fixes the baseline medians and moves to COMPLETE.
func (c *Calibrator) freeze() {
	baseline := features.Baseline{Powers: make(map[string]features.ChannelPowers, len(c.powers))}
	for name, list := range c.powers {
		baseline.Powers[name] = features.ChannelPowers{
			Mu:    medianOf(list, func(p features.ChannelPowers) float64 { return p.Mu }),
			Beta:  medianOf(list, func(p features.ChannelPowers) float64 { return p.Beta }),
			Alpha: medianOf(list, func(p features.ChannelPowers) float64 { return p.Alpha }),
			SSVEP: medianOf(list, func(p features.ChannelPowers) float64 { return p.SSVEP }),
		}
	}
	c.profile = &Profile{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Baseline:  baseline,
		Polarity:  axis.DefaultPolarity(1),
	}
	c.state = StateComplete
}

// Profile returns the frozen profile. Before COMPLETE it fails with
// ErrNotComplete. A completed run with too little window coverage still
// returns a usable profile together with a CalibrationError so the caller
// can warn and continue degraded.
func (c *Calibrator) Profile() (*Profile, error) {
	if c.state != StateComplete {
		return nil, ErrNotComplete
	}
	if err := c.coverageError(); err != nil {
		return c.profile, err
	}
	return c.profile, nil
}

func (c *Calibrator) coverageError() error {
	if c.hop <= 0 {
		return nil
	}
	expected := int(c.duration / c.hop)
	if expected == 0 {
		return nil
	}
	observed := 0
	for _, list := range c.powers {
		if len(list) > observed {
			observed = len(list)
		}
	}
	if float64(observed) < minCoverage*float64(expected) {
		return &CalibrationError{
			Reason: fmt.Sprintf("insufficient coverage: %d of %d expected windows", observed, expected),
		}
	}
	return nil
}

// medianOf extracts one band from each power sample and returns the median.
// An empty slice yields 1 so downstream ratios stay finite, matching the
// defaulted baseline behaviour of a skipped calibration.
func medianOf(list []features.ChannelPowers, pick func(features.ChannelPowers) float64) float64 {
	if len(list) == 0 {
		return 1
	}
	vals := make([]float64, len(list))
	for i, p := range list {
		vals[i] = pick(p)
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}
