package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bci-flystick/flystick/internal/eeg"
)

func pushN(t *testing.T, e *Engine, start time.Time, dt time.Duration, n int) []Window {
	t.Helper()
	var out []Window
	for i := 0; i < n; i++ {
		s := eeg.Sample{
			Seq:       uint64(i),
			Timestamp: start.Add(time.Duration(i) * dt),
			Values:    []float64{float64(i)},
		}
		if w, ok := e.Push(s); ok {
			out = append(out, w)
		}
	}
	return out
}

func TestNewEngineRejectsBadSizes(t *testing.T) {
	t.Parallel()
	_, err := NewEngine(0, 1, 250, 0)
	assert.Error(t, err)
	_, err = NewEngine(10, 0, 250, 0)
	assert.Error(t, err)
	_, err = NewEngine(10, 11, 250, 0)
	assert.Error(t, err)
	_, err = NewEngine(10, 5, 0, 0)
	assert.Error(t, err)
}

func TestEmissionCount(t *testing.T) {
	t.Parallel()

	// Streaming L samples through window W, hop H yields
	// floor((L-W)/H)+1 windows once L >= W.
	cases := []struct {
		name    string
		window  int
		hop     int
		samples int
		want    int
	}{
		{"no partial windows before fill", 500, 125, 499, 0},
		{"first window exactly at fill", 500, 125, 500, 1},
		{"one hop past fill", 500, 125, 625, 2},
		{"two seconds of overlap", 500, 125, 1000, 5},
		{"hop equals window", 100, 100, 350, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, err := NewEngine(tc.window, tc.hop, 250, 0)
			require.NoError(t, err)
			got := pushN(t, e, time.Unix(0, 0), 4*time.Millisecond, tc.samples)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestWindowContents(t *testing.T) {
	t.Parallel()
	e, err := NewEngine(4, 2, 250, 0)
	require.NoError(t, err)

	windows := pushN(t, e, time.Unix(0, 0), 4*time.Millisecond, 8)
	require.Len(t, windows, 3)

	// Oldest-first ordering, advancing by the hop each emission.
	assert.Equal(t, []float64{0, 1, 2, 3}, windows[0].Channel(0))
	assert.Equal(t, []float64{2, 3, 4, 5}, windows[1].Channel(0))
	assert.Equal(t, []float64{4, 5, 6, 7}, windows[2].Channel(0))

	assert.Equal(t, windows[1].Samples[0].Timestamp, windows[1].Start)
	assert.Equal(t, windows[1].Samples[3].Timestamp, windows[1].End)
}

func TestSnapshotOwnsItsSamples(t *testing.T) {
	t.Parallel()
	e, err := NewEngine(2, 2, 250, 0)
	require.NoError(t, err)

	windows := pushN(t, e, time.Unix(0, 0), 4*time.Millisecond, 4)
	require.Len(t, windows, 2)
	// The first emission must not be disturbed by later pushes.
	assert.Equal(t, []float64{0, 1}, windows[0].Channel(0))
}

func TestRateMismatchCounting(t *testing.T) {
	t.Parallel()

	t.Run("nominal spacing counts nothing", func(t *testing.T) {
		t.Parallel()
		e, err := NewEngine(10, 5, 250, 0.25)
		require.NoError(t, err)
		pushN(t, e, time.Unix(0, 0), 4*time.Millisecond, 20)
		assert.Zero(t, e.RateMismatches())
	})

	t.Run("gaps beyond tolerance are counted", func(t *testing.T) {
		t.Parallel()
		e, err := NewEngine(10, 5, 250, 0.25)
		require.NoError(t, err)

		ts := time.Unix(0, 0)
		for i := 0; i < 5; i++ {
			e.Push(eeg.Sample{Timestamp: ts, Values: []float64{0}})
			ts = ts.Add(4 * time.Millisecond)
		}
		// One sample lands a whole interval late.
		ts = ts.Add(4 * time.Millisecond)
		e.Push(eeg.Sample{Timestamp: ts, Values: []float64{0}})
		assert.Equal(t, uint64(1), e.RateMismatches())

		// Recovery: nominal spacing again adds nothing.
		for i := 0; i < 5; i++ {
			ts = ts.Add(4 * time.Millisecond)
			e.Push(eeg.Sample{Timestamp: ts, Values: []float64{0}})
		}
		assert.Equal(t, uint64(1), e.RateMismatches())
	})

	t.Run("zero tolerance disables tracking", func(t *testing.T) {
		t.Parallel()
		e, err := NewEngine(10, 5, 250, 0)
		require.NoError(t, err)
		pushN(t, e, time.Unix(0, 0), 40*time.Millisecond, 10)
		assert.Zero(t, e.RateMismatches())
	})
}
