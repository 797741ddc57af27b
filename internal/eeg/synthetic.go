package eeg

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("source closed")

// Tone is one sinusoidal component of a synthetic channel.
type Tone struct {
	Freq  float64 // Hz
	Amp   float64 // microvolts
	Phase float64 // radians
}

// Episode scales the amplitude of tones within [FreqLow, FreqHigh] on one
// channel over [Start, End), interpolating linearly between FromScale and
// ToScale. Scales apply to amplitude; band power scales with the square.
type Episode struct {
	Channel   int
	FreqLow   float64
	FreqHigh  float64
	Start     time.Duration
	End       time.Duration
	FromScale float64
	ToScale   float64
}

// SyntheticSource generates deterministic multi-channel samples for offline
// and test runs. Two sources constructed with the same parameters and seed
// produce identical streams. When Realtime is set, Next paces emission to
// the nominal sample interval; otherwise samples are produced as fast as
// the consumer pulls them.
type SyntheticSource struct {
	rate     float64
	tones    [][]Tone // per channel
	episodes []Episode
	noiseAmp float64
	realtime bool

	mu     sync.Mutex
	rng    *rand.Rand
	seq    uint64
	base   time.Time
	closed bool
}

// SyntheticOption adjusts a SyntheticSource at construction.
type SyntheticOption func(*SyntheticSource)

// WithRealtime enables wall-clock pacing of the sample stream.
func WithRealtime() SyntheticOption {
	return func(s *SyntheticSource) { s.realtime = true }
}

// WithEpisodes installs scripted band-amplitude episodes (event markers).
func WithEpisodes(eps ...Episode) SyntheticOption {
	return func(s *SyntheticSource) { s.episodes = append(s.episodes, eps...) }
}

// WithNoise sets the gaussian noise amplitude added to every channel.
func WithNoise(amp float64) SyntheticOption {
	return func(s *SyntheticSource) { s.noiseAmp = amp }
}

// WithTones replaces the default per-channel tone sets.
func WithTones(tones [][]Tone) SyntheticOption {
	return func(s *SyntheticSource) { s.tones = tones }
}

// DefaultTones returns a plausible resting mixture: every channel carries a
// 10 Hz (mu/alpha) and a 20 Hz (beta) component over low-frequency drift.
func DefaultTones(channels int) [][]Tone {
	tones := make([][]Tone, channels)
	for ch := range tones {
		tones[ch] = []Tone{
			{Freq: 10, Amp: 6, Phase: float64(ch) * 0.7},
			{Freq: 20, Amp: 3, Phase: float64(ch) * 1.3},
			{Freq: 0.3, Amp: 8, Phase: float64(ch) * 2.1},
		}
	}
	return tones
}

// NewSyntheticSource creates a generator for the given channel count.
func NewSyntheticSource(rate float64, channels int, seed int64, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{
		rate:     rate,
		tones:    DefaultTones(channels),
		noiseAmp: 0.5,
		rng:      rand.New(rand.NewSource(seed)),
		base:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SyntheticSource) SampleRate() float64 { return s.rate }
func (s *SyntheticSource) Channels() int       { return len(s.tones) }

// Next produces the next sample. Timestamps advance by exactly one nominal
// sample interval per call so the stream is drift-free by construction.
func (s *SyntheticSource) Next(ctx context.Context) (Sample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Sample{}, &AcquisitionError{Op: "next", Err: ErrClosed}
	}
	seq := s.seq
	s.seq++
	t := float64(seq) / s.rate
	elapsed := time.Duration(t * float64(time.Second))
	ts := s.base.Add(elapsed)

	values := make([]float64, len(s.tones))
	for ch, tones := range s.tones {
		var v float64
		for _, tone := range tones {
			v += tone.Amp * s.episodeScale(ch, tone.Freq, elapsed) *
				math.Sin(2*math.Pi*tone.Freq*t+tone.Phase)
		}
		if s.noiseAmp > 0 {
			v += s.noiseAmp * s.rng.NormFloat64()
		}
		values[ch] = v
	}
	realtime := s.realtime
	s.mu.Unlock()

	if realtime {
		deadline := s.base.Add(elapsed)
		if wait := time.Until(deadline); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return Sample{}, ctx.Err()
			case <-timer.C:
			}
		}
	} else if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	return Sample{Seq: seq, Timestamp: ts, Values: values}, nil
}

func (s *SyntheticSource) episodeScale(channel int, freq float64, at time.Duration) float64 {
	scale := 1.0
	for _, ep := range s.episodes {
		if ep.Channel != channel || freq < ep.FreqLow || freq > ep.FreqHigh {
			continue
		}
		if at < ep.Start || at >= ep.End {
			continue
		}
		span := ep.End - ep.Start
		frac := 0.0
		if span > 0 {
			frac = float64(at-ep.Start) / float64(span)
		}
		scale *= ep.FromScale + (ep.ToScale-ep.FromScale)*frac
	}
	return scale
}

// Close stops the source; subsequent Next calls fail with AcquisitionError.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
