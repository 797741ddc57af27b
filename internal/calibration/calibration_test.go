package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bci-flystick/flystick/internal/features"
)

func vectorAt(end time.Time, mu float64) features.Vector {
	p := features.ChannelPowers{Mu: mu, Beta: mu / 2, Alpha: mu, SSVEP: 0}
	return features.Vector{
		Powers: map[string]features.ChannelPowers{
			"C3": p, "C4": p, "Cz": p, "Oz": p,
		},
		Start: end.Add(-2 * time.Second),
		End:   end,
	}
}

func TestStateMachine(t *testing.T) {
	t.Parallel()
	c := New(2*time.Second, 500*time.Millisecond)
	assert.Equal(t, StateIdle, c.State())

	// Observing before Begin is rejected.
	_, err := c.Observe(vectorAt(time.Unix(1, 0), 4))
	require.Error(t, err)

	// A profile is unobtainable until COMPLETE.
	_, err = c.Profile()
	assert.ErrorIs(t, err, ErrNotComplete)

	start := time.Unix(100, 0)
	require.NoError(t, c.Begin(start))
	assert.Equal(t, StateRecording, c.State())

	// Begin twice is rejected.
	require.Error(t, c.Begin(start))

	done, err := c.Observe(vectorAt(start.Add(500*time.Millisecond), 4))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, StateRecording, c.State())

	done, err = c.Observe(vectorAt(start.Add(2*time.Second), 4))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, StateComplete, c.State())

	// Observing after COMPLETE is rejected.
	_, err = c.Observe(vectorAt(start.Add(3*time.Second), 4))
	require.Error(t, err)
}

func TestBaselineMedians(t *testing.T) {
	t.Parallel()
	c := New(2500*time.Millisecond, 500*time.Millisecond)
	start := time.Unix(0, 0)
	require.NoError(t, c.Begin(start))

	// Median mu is 3. The outlier in the last window does not drag the baseline.
	for i, mu := range []float64{1, 2, 3, 4, 100} {
		end := start.Add(time.Duration(i+1) * 500 * time.Millisecond)
		_, err := c.Observe(vectorAt(end, mu))
		require.NoError(t, err)
	}
	require.Equal(t, StateComplete, c.State())

	p, err := c.Profile()
	require.NoError(t, err)
	assert.InDelta(t, 3, p.Baseline.Powers["Cz"].Mu, 1e-9)
	assert.InDelta(t, 1.5, p.Baseline.Powers["Cz"].Beta, 1e-9)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1.0, p.Polarity[0])
}

func TestCoverageWarning(t *testing.T) {
	t.Parallel()
	// 10s at 0.5s hops expects 20 windows; one window is far below half.
	c := New(10*time.Second, 500*time.Millisecond)
	start := time.Unix(0, 0)
	require.NoError(t, c.Begin(start))

	done, err := c.Observe(vectorAt(start.Add(10*time.Second), 4))
	require.NoError(t, err)
	require.True(t, done)

	p, err := c.Profile()
	var cerr *CalibrationError
	require.ErrorAs(t, err, &cerr)
	// Degraded, not fatal: the profile is still usable.
	require.NotNil(t, p)
	assert.InDelta(t, 4, p.Baseline.Powers["C3"].Mu, 1e-9)
}

func TestEmptyChannelDefaultsToUnitBaseline(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, medianOf(nil, func(p features.ChannelPowers) float64 { return p.Mu }))
}
