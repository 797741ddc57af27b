package calibration

import (
	"context"
	"math"
	"time"

	"github.com/bci-flystick/flystick/internal/axis"
)

// Action is one directed polarity-capture attempt presented to the user.
type Action struct {
	Axis        axis.Axis
	Name        string
	Instruction string
	Direction   float64 // intended sign of the derived score, +1 or -1
}

// PolarityActions lists the recognized attempts in prompt order: one pair
// per axis.
var PolarityActions = []Action{
	{Axis: axis.Throttle, Name: "accelerate", Instruction: "Focus to accelerate", Direction: 1},
	{Axis: axis.Throttle, Name: "decelerate", Instruction: "Relax to decelerate", Direction: -1},
	{Axis: axis.Yaw, Name: "yaw_left", Instruction: "Imagine moving your left hand", Direction: -1},
	{Axis: axis.Yaw, Name: "yaw_right", Instruction: "Imagine moving your right hand", Direction: 1},
	{Axis: axis.Altitude, Name: "climb", Instruction: "Imagine moving your feet", Direction: 1},
	{Axis: axis.Altitude, Name: "descend", Instruction: "Let your body settle", Direction: -1},
	{Axis: axis.Pitch, Name: "pitch_up", Instruction: "Tense focus forward", Direction: 1},
	{Axis: axis.Pitch, Name: "pitch_down", Instruction: "Release focus", Direction: -1},
}

// Prompter presents an attempt to the user before sampling begins.
type Prompter interface {
	Prompt(action Action)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(action Action)

func (f PrompterFunc) Prompt(action Action) { f(action) }

// ScoreSampler returns a representative derived score for one axis observed
// over the attempt duration (typically the median across hops).
type ScoreSampler func(ctx context.Context, a axis.Axis, d time.Duration) (float64, error)

// ambiguityThreshold is the minimum attempt-pair separation for a polarity
// sign to count as unambiguous.
const ambiguityThreshold = 0.02

// CapturePolarity runs the directed attempts and infers the sign per axis.
// An ambiguous axis falls back to the provided default sign and contributes
// a CalibrationError to the returned warnings; capture never hard-fails on
// ambiguity since mapping still functions degraded.
func CapturePolarity(ctx context.Context, prompter Prompter, sample ScoreSampler, attempt time.Duration, fallback float64) (axis.Polarity, []error) {
	polarity := axis.DefaultPolarity(fallback)
	var warnings []error

	// score accumulated per axis: positive-direction attempt minus
	// negative-direction attempt
	var spread [axis.Count]float64
	var sampled [axis.Count]bool

	for _, action := range PolarityActions {
		if ctx.Err() != nil {
			warnings = append(warnings, ctx.Err())
			return polarity, warnings
		}
		if prompter != nil {
			prompter.Prompt(action)
		}
		score, err := sample(ctx, action.Axis, attempt)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		spread[action.Axis] += action.Direction * score
		sampled[action.Axis] = true
	}

	for i := 0; i < axis.Count; i++ {
		if !sampled[i] {
			continue
		}
		if math.Abs(spread[i]) < ambiguityThreshold {
			warnings = append(warnings, &CalibrationError{
				Reason: "ambiguous polarity for axis " + axis.Axis(i).String() + ", using fallback",
			})
			continue
		}
		if spread[i] >= 0 {
			polarity[i] = 1
		} else {
			polarity[i] = -1
		}
	}
	return polarity, warnings
}
