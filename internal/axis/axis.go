// Package axis owns the control-axis state: the per-hop transformation from
// raw derived scores to smoothed, bounded axis commands.
package axis

import (
	"math"
	"time"
)

// Axis indexes the four control axes.
type Axis int

const (
	Yaw Axis = iota
	Altitude
	Pitch
	Throttle

	// Count is the number of control axes.
	Count = 4
)

// Names lists the axes in wire order.
var Names = [Count]string{"yaw", "altitude", "pitch", "throttle"}

func (a Axis) String() string {
	if a < 0 || a >= Count {
		return "invalid"
	}
	return Names[a]
}

// Polarity is the per-axis sign convention mapping a raw score to a
// physically meaningful direction. Values are +1 or -1.
type Polarity [Count]float64

// DefaultPolarity returns a uniform polarity with the given fallback sign.
func DefaultPolarity(sign float64) Polarity {
	if sign < 0 {
		sign = -1
	} else {
		sign = 1
	}
	var p Polarity
	for i := range p {
		p[i] = sign
	}
	return p
}

// Command is an immutable snapshot of the axis state: the unit sent on the
// wire, one per hop. Neutral marks an explicit reset command.
type Command struct {
	Seq       uint32
	Timestamp time.Time
	Neutral   bool
	Axes      [Count]float32
}

// Value returns one axis value as float64.
func (c Command) Value(a Axis) float64 { return float64(c.Axes[a]) }

// Mapper applies polarity, dead-band, gain, clamping and exponential
// smoothing to raw scores. It is owned by the single cadenced loop; no
// other writer touches the state.
type Mapper struct {
	gains    [Count]float64
	deadBand float64
	alpha    float64
	polarity Polarity

	state [Count]float64
	seq   uint32
}

// NewMapper creates a mapper. Configuration invariants (alpha in [0,1],
// non-negative dead band and gains) are the caller's responsibility, checked
// at config validation.
func NewMapper(gains [Count]float64, deadBand, alpha float64, polarity Polarity) *Mapper {
	return &Mapper{
		gains:    gains,
		deadBand: deadBand,
		alpha:    alpha,
		polarity: polarity,
	}
}

// Step maps one hop's raw scores to a fresh command. A command is emitted
// every hop even when nothing changed, so consumers can tell "commanded to
// neutral" apart from "no data". Non-finite inputs degrade to zero: the
// output can never leave [-1, 1] or carry NaN.
func (m *Mapper) Step(raw [Count]float64, ts time.Time) Command {
	for i := 0; i < Count; i++ {
		x := raw[i]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}
		x *= m.polarity[i]
		if math.Abs(x) < m.deadBand {
			x = 0
		}
		x *= m.gains[i]
		x = clamp(x)
		m.state[i] = m.alpha*x + (1-m.alpha)*m.state[i]
	}
	return m.snapshot(ts, false)
}

// Reset bypasses smoothing and forces every axis to zero immediately.
func (m *Mapper) Reset(ts time.Time) Command {
	m.state = [Count]float64{}
	return m.snapshot(ts, true)
}

func (m *Mapper) snapshot(ts time.Time, neutral bool) Command {
	m.seq++
	cmd := Command{Seq: m.seq, Timestamp: ts, Neutral: neutral}
	for i, v := range m.state {
		cmd.Axes[i] = float32(clamp(v))
	}
	return cmd
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
