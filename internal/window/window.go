// Package window assembles the continuous sample stream into overlapping
// fixed-length analysis windows, one emission per hop interval.
package window

import (
	"fmt"
	"math"
	"time"

	"github.com/bci-flystick/flystick/internal/eeg"
)

// Window is one fixed-length slice of consecutive samples, handed to the
// feature extractor by value. Samples are ordered oldest first.
type Window struct {
	Samples []eeg.Sample
	Start   time.Time
	End     time.Time
}

// Channel extracts one channel's series from the window.
func (w Window) Channel(idx int) []float64 {
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s.Values[idx]
	}
	return out
}

// Engine buffers samples in a ring sized to the window length and emits the
// most recent window once per hop's worth of new samples. The first window
// is only emitted when the ring is full; partial windows never leave the
// engine. The engine is owned by the single cadenced loop and is not safe
// for concurrent use.
type Engine struct {
	size int
	hop  int

	ring  []eeg.Sample
	head  int // next write position
	count int // filled entries, up to size

	sinceEmit int

	// rate drift tracking
	nominalDt time.Duration
	tolerance float64
	lastTS    time.Time
	drift     uint64
}

// NewEngine creates an engine for the given window/hop sizes in samples.
// tolerance is the acceptable fractional deviation of inter-sample spacing
// before a sample counts toward the rate-mismatch condition.
func NewEngine(windowSamples, hopSamples int, sampleRate, tolerance float64) (*Engine, error) {
	if windowSamples <= 0 || hopSamples <= 0 || hopSamples > windowSamples {
		return nil, fmt.Errorf("window: requires 0 < hop (%d) <= window (%d)", hopSamples, windowSamples)
	}
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("window: sample rate must be positive, got %v", sampleRate)
	}
	return &Engine{
		size:      windowSamples,
		hop:       hopSamples,
		ring:      make([]eeg.Sample, windowSamples),
		nominalDt: time.Duration(float64(time.Second) / sampleRate),
		tolerance: tolerance,
	}, nil
}

// Push appends a sample. When a hop boundary is reached and the buffer is
// full it returns the current window and true; the returned window owns its
// own backing array.
func (e *Engine) Push(s eeg.Sample) (Window, bool) {
	e.checkSpacing(s.Timestamp)

	e.ring[e.head] = s
	e.head = (e.head + 1) % e.size
	if e.count < e.size {
		e.count++
	}
	e.sinceEmit++

	if e.count < e.size || e.sinceEmit < e.hop {
		return Window{}, false
	}
	e.sinceEmit = 0
	return e.snapshot(), true
}

// snapshot copies the ring out in chronological order.
func (e *Engine) snapshot() Window {
	out := make([]eeg.Sample, e.size)
	// head points at the oldest entry once the ring is full
	n := copy(out, e.ring[e.head:])
	copy(out[n:], e.ring[:e.head])
	return Window{
		Samples: out,
		Start:   out[0].Timestamp,
		End:     out[len(out)-1].Timestamp,
	}
}

func (e *Engine) checkSpacing(ts time.Time) {
	if !e.lastTS.IsZero() && e.tolerance > 0 {
		dt := ts.Sub(e.lastTS)
		dev := math.Abs(float64(dt-e.nominalDt)) / float64(e.nominalDt)
		if dev > e.tolerance {
			e.drift++
		}
	}
	e.lastTS = ts
}

// RateMismatches reports how many samples arrived with spacing outside the
// configured tolerance. Non-zero is a degraded-timing condition, never an
// error: windows keep flowing from whatever samples exist.
func (e *Engine) RateMismatches() uint64 { return e.drift }
