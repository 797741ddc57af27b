// Package pipeline composes the sample source, windowing engine, feature
// extractor, calibrator, axis mapper and transport into the single cadenced
// control loop. One loop owns all mutable state; there are no concurrent
// writers anywhere in the numeric path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/calibration"
	"github.com/bci-flystick/flystick/internal/config"
	"github.com/bci-flystick/flystick/internal/eeg"
	"github.com/bci-flystick/flystick/internal/features"
	"github.com/bci-flystick/flystick/internal/store"
	"github.com/bci-flystick/flystick/internal/telemetry"
	"github.com/bci-flystick/flystick/internal/transport"
	"github.com/bci-flystick/flystick/internal/window"
)

// Publisher is the transport surface the pipeline needs; satisfied by
// *transport.Publisher.
type Publisher interface {
	Publish(cmd axis.Command) error
}

// Pipeline drives samples from a Source to axis commands on the wire.
type Pipeline struct {
	cfg       *config.Config
	src       eeg.Source
	engine    *window.Engine
	extractor *features.Extractor
	pub       Publisher

	st       *store.Store
	mirror   *telemetry.Mirror
	profile  *calibration.Profile
	prompter calibration.Prompter

	session      store.Session
	resetPending atomic.Bool
	driftLogged  uint64
}

// Option adjusts optional pipeline collaborators.
type Option func(*Pipeline)

// WithStore enables session and command persistence.
func WithStore(st *store.Store) Option {
	return func(p *Pipeline) { p.st = st }
}

// WithTelemetry enables the MQTT command mirror.
func WithTelemetry(m *telemetry.Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithProfile supplies a previously persisted calibration profile, skipping
// the calibration phase entirely.
func WithProfile(profile *calibration.Profile) Option {
	return func(p *Pipeline) { p.profile = profile }
}

// WithPrompter overrides how polarity-capture attempts are presented.
func WithPrompter(pr calibration.Prompter) Option {
	return func(p *Pipeline) { p.prompter = pr }
}

// New wires a pipeline from a validated configuration. The source and
// publisher are owned by the caller.
func New(cfg *config.Config, src eeg.Source, pub Publisher, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := window.NewEngine(cfg.WindowSamples(), cfg.HopSamples(), cfg.SampleRate, cfg.GetRateTolerance())
	if err != nil {
		return nil, err
	}
	extractor, err := features.NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		src:       src,
		engine:    engine,
		extractor: extractor,
		pub:       pub,
		prompter: calibration.PrompterFunc(func(a calibration.Action) {
			log.Printf("calibration: %s: %s", a.Name, a.Instruction)
		}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Profile returns the active calibration profile; nil before calibration.
func (p *Pipeline) Profile() *calibration.Profile { return p.profile }

// RateMismatches reports samples seen outside the timing tolerance.
func (p *Pipeline) RateMismatches() uint64 { return p.engine.RateMismatches() }

// RequestReset asks the loop to force all axes to neutral on the next hop,
// bypassing smoothing. Safe to call from any goroutine.
func (p *Pipeline) RequestReset() { p.resetPending.Store(true) }

// Run calibrates (unless a stored profile was supplied) and then streams
// until ctx is cancelled or the source fails terminally.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.st != nil {
		sess, err := p.st.CreateSession(string(p.cfg.Mode))
		if err != nil {
			return err
		}
		p.session = sess
		log.Printf("pipeline: recording session %s", sess.ID)
	}

	if p.profile == nil {
		if err := p.calibrate(ctx); err != nil {
			return err
		}
	} else {
		log.Printf("pipeline: using stored calibration profile %s", p.profile.ID)
	}

	if p.st != nil {
		if err := p.st.SaveProfile(p.session.ID, p.profile); err != nil {
			log.Printf("pipeline: failed to persist profile: %v", err)
		}
	}

	return p.stream(ctx)
}

// nextWindow pulls samples until the engine emits a window. Cancellation
// and terminal acquisition failures propagate to the caller.
func (p *Pipeline) nextWindow(ctx context.Context) (window.Window, error) {
	for {
		s, err := p.src.Next(ctx)
		if err != nil {
			return window.Window{}, err
		}
		if win, ok := p.engine.Push(s); ok {
			p.logDrift()
			return win, nil
		}
	}
}

func (p *Pipeline) logDrift() {
	if drift := p.engine.RateMismatches(); drift > p.driftLogged {
		log.Printf("pipeline: rate mismatch: %d samples outside timing tolerance, timing degraded", drift)
		p.driftLogged = drift
	}
}

// calibrate runs the baseline recording phase and, when configured, the
// directed polarity capture. Degraded output (poor coverage, ambiguous
// polarity) is logged and the session continues.
func (p *Pipeline) calibrate(ctx context.Context) error {
	hop := time.Duration(p.cfg.HopSec * float64(time.Second))
	dur := time.Duration(p.cfg.CalibrationSec * float64(time.Second))
	cal := calibration.New(dur, hop)

	log.Printf("pipeline: calibrating baseline for %.0fs, stay relaxed", p.cfg.CalibrationSec)

	first := true
	for cal.State() != calibration.StateComplete {
		win, err := p.nextWindow(ctx)
		if err != nil {
			return err
		}
		if first {
			if err := cal.Begin(win.End); err != nil {
				return err
			}
			first = false
		}
		if _, err := cal.Observe(p.extractor.Extract(win)); err != nil {
			return err
		}
	}

	profile, err := cal.Profile()
	if err != nil {
		var calErr *calibration.CalibrationError
		if !errors.As(err, &calErr) {
			return err
		}
		log.Printf("pipeline: %v, continuing degraded", err)
	}

	profile.Polarity = axis.DefaultPolarity(p.cfg.GetPolarityFallback())
	if p.cfg.CapturePolarity {
		pol, warnings := calibration.CapturePolarity(
			ctx, p.prompter, p.sampleScore(profile), 3*time.Second, p.cfg.GetPolarityFallback())
		for _, w := range warnings {
			log.Printf("pipeline: polarity capture: %v", w)
		}
		profile.Polarity = pol
	}

	p.profile = profile
	log.Printf("pipeline: calibration complete, profile %s", profile.ID)
	return nil
}

// sampleScore returns a ScoreSampler that streams windows for the attempt
// duration and reports the median derived score for one axis.
func (p *Pipeline) sampleScore(profile *calibration.Profile) calibration.ScoreSampler {
	return func(ctx context.Context, a axis.Axis, d time.Duration) (float64, error) {
		var scores []float64
		var start time.Time
		for {
			win, err := p.nextWindow(ctx)
			if err != nil {
				return 0, err
			}
			derived := features.Derive(p.extractor.Extract(win), profile.Baseline, p.extractor.SSVEPMode())
			scores = append(scores, rawScores(derived)[a])
			if start.IsZero() {
				start = win.End
			}
			if win.End.Sub(start) >= d {
				break
			}
		}
		sort.Float64s(scores)
		return scores[len(scores)/2], nil
	}
}

// stream is the steady-state loop: one command per hop, heartbeat included.
func (p *Pipeline) stream(ctx context.Context) error {
	gains, err := gainTable(p.cfg)
	if err != nil {
		return err
	}
	mapper := axis.NewMapper(gains, p.cfg.DeadBand, p.cfg.EwmaAlpha, p.profile.Polarity)

	log.Printf("pipeline: streaming commands to %s every %.0fms", p.cfg.UDPHost, p.cfg.HopSec*1000)

	for {
		win, err := p.nextWindow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var cmd axis.Command
		if p.resetPending.Swap(false) {
			cmd = mapper.Reset(win.End)
		} else {
			scores := features.Derive(p.extractor.Extract(win), p.profile.Baseline, p.extractor.SSVEPMode())
			cmd = mapper.Step(rawScores(scores), win.End)
		}

		if err := p.pub.Publish(cmd); err != nil {
			// Fire-and-forget: report and keep computing.
			log.Printf("pipeline: %v", err)
		}
		if p.mirror != nil {
			p.mirror.Publish(cmd)
		}
		if p.st != nil {
			if err := p.st.RecordCommand(p.session.ID, cmd); err != nil {
				log.Printf("pipeline: %v", err)
			}
		}
	}
}

// rawScores orders the derived scores by axis index.
func rawScores(s features.Scores) [axis.Count]float64 {
	return [axis.Count]float64{
		axis.Yaw:      s.Lateralization,
		axis.Altitude: s.ERD,
		axis.Pitch:    s.MuBetaBalance,
		axis.Throttle: s.Attention,
	}
}

// gainTable orders the configured gains by axis index.
func gainTable(cfg *config.Config) ([axis.Count]float64, error) {
	var gains [axis.Count]float64
	for i, name := range axis.Names {
		g, ok := cfg.Gains[name]
		if !ok {
			return gains, fmt.Errorf("pipeline: missing gain for axis %q", name)
		}
		gains[i] = g
	}
	return gains, nil
}

// Ensure transport.Publisher satisfies the Publisher surface.
var _ Publisher = (*transport.Publisher)(nil)
