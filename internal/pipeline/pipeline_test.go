package pipeline

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/calibration"
	"github.com/bci-flystick/flystick/internal/config"
	"github.com/bci-flystick/flystick/internal/eeg"
	"github.com/bci-flystick/flystick/internal/features"
)

// capturePub collects published commands and cancels the run once enough
// have arrived.
type capturePub struct {
	mu        sync.Mutex
	cmds      []axis.Command
	stopAfter int
	cancel    context.CancelFunc
}

func (p *capturePub) Publish(cmd axis.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cmds = append(p.cmds, cmd)
	if len(p.cmds) >= p.stopAfter && p.cancel != nil {
		p.cancel()
	}
	return nil
}

func (p *capturePub) commands() []axis.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]axis.Command{}, p.cmds...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CalibrationSec = 4
	return cfg
}

func TestRunProducesBoundedYawTrend(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	// C3 mu/beta amplitude drops to a fifth well after calibration ends:
	// sustained left-hemisphere desynchronization.
	episode := eeg.Episode{
		Channel: cfg.Channels["C3"], FreqLow: 8, FreqHigh: 30,
		Start: 8 * time.Second, End: 120 * time.Second,
		FromScale: 0.2, ToScale: 0.2,
	}
	src := eeg.NewSyntheticSource(cfg.SampleRate, cfg.ChannelCount(), 1, eeg.WithEpisodes(episode))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pub := &capturePub{stopAfter: 24, cancel: cancel}

	p, err := New(cfg, src, pub)
	require.NoError(t, err)

	err = p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, p.Profile())

	cmds := pub.commands()
	require.GreaterOrEqual(t, len(cmds), 24)

	var lastSeq uint32
	for _, cmd := range cmds {
		assert.Greater(t, cmd.Seq, lastSeq)
		lastSeq = cmd.Seq
		for a := axis.Axis(0); a < axis.Count; a++ {
			v := cmd.Value(a)
			assert.False(t, math.IsNaN(v))
			assert.LessOrEqual(t, math.Abs(v), 1.0)
		}
	}

	// Early commands still carry pre-episode windows; the tail reflects the
	// sustained ERD and must show a clearly positive smoothed yaw.
	tail := cmds[len(cmds)-4:]
	for _, cmd := range tail {
		assert.Greater(t, cmd.Value(axis.Yaw), 0.2)
	}
}

func TestRunSkipsCalibrationWithStoredProfile(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	src := eeg.NewSyntheticSource(cfg.SampleRate, cfg.ChannelCount(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pub := &capturePub{stopAfter: 4, cancel: cancel}

	profile := &calibration.Profile{
		ID:        "stored",
		CreatedAt: time.Now(),
		Baseline: features.Baseline{Powers: map[string]features.ChannelPowers{
			"C3": {Mu: 1, Beta: 1, Alpha: 1},
			"C4": {Mu: 1, Beta: 1, Alpha: 1},
			"Cz": {Mu: 1, Beta: 1, Alpha: 1},
			"Oz": {Mu: 1, Beta: 1, Alpha: 1},
		}},
		Polarity: axis.DefaultPolarity(1),
	}

	p, err := New(cfg, src, pub, WithProfile(profile))
	require.NoError(t, err)

	err = p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Same(t, profile, p.Profile())
	assert.GreaterOrEqual(t, len(pub.commands()), 4)
}

func TestRequestResetEmitsNeutral(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	src := eeg.NewSyntheticSource(cfg.SampleRate, cfg.ChannelCount(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pub := &capturePub{stopAfter: 6, cancel: cancel}
	p, err := New(cfg, src, pub)
	require.NoError(t, err)
	p.RequestReset()

	err = p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	cmds := pub.commands()
	require.NotEmpty(t, cmds)
	first := cmds[0]
	assert.True(t, first.Neutral)
	for a := axis.Axis(0); a < axis.Count; a++ {
		assert.Zero(t, first.Value(a))
	}
	// Streaming resumes normally after the reset.
	assert.False(t, cmds[1].Neutral)
}

func TestRunSurfacesSourceFailure(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	src := eeg.NewSyntheticSource(cfg.SampleRate, cfg.ChannelCount(), 1)
	require.NoError(t, src.Close())

	p, err := New(cfg, src, &capturePub{stopAfter: 1})
	require.NoError(t, err)

	err = p.Run(context.Background())
	var aerr *eeg.AcquisitionError
	require.ErrorAs(t, err, &aerr)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.HopSec = 10 // longer than the window
	_, err := New(cfg, nil, nil)
	require.Error(t, err)
	var cerr *config.ConfigError
	assert.ErrorAs(t, err, &cerr)
}
