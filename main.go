// Command flystick converts multi-channel EEG samples into four normalized
// control axes (yaw, altitude, pitch, throttle) and publishes them as
// fixed-schema UDP packets for the joystick bridge and dashboards.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bci-flystick/flystick/internal/config"
	"github.com/bci-flystick/flystick/internal/eeg"
	"github.com/bci-flystick/flystick/internal/pipeline"
	"github.com/bci-flystick/flystick/internal/store"
	"github.com/bci-flystick/flystick/internal/telemetry"
	"github.com/bci-flystick/flystick/internal/transport"
	"github.com/bci-flystick/flystick/internal/version"
)

var (
	profilePath   = flag.String("config", "", "Path to a profile JSON created by the setup wizard")
	forceMock     = flag.Bool("mock", false, "Force the synthetic EEG generator, regardless of the profile")
	forceHardware = flag.Bool("hardware", false, "Force real acquisition hardware, even if the profile enables mock mode")
	migrationsDir = flag.String("migrations", "migrations", "Path to the sqlite migration files")
	reuseBaseline = flag.Bool("reuse-baseline", false, "Load the most recent stored calibration profile instead of re-calibrating")
)

func main() {
	flag.Parse()
	log.Printf("flystick %s", version.String())

	if err := run(); err != nil {
		log.Fatalf("flystick: %v", err)
	}
}

func run() error {
	var cfg *config.Config
	var err error
	if *profilePath != "" {
		cfg, err = config.Load(*profilePath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
		log.Print("no profile specified, using synthetic defaults")
	}

	if *forceMock {
		cfg.Mode = config.ModeSynthetic
	}
	if *forceHardware {
		cfg.Mode = config.ModeHardware
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	// The publisher claim guarantees a single producer per destination;
	// a held claim means another controller or the mock emitter owns it.
	pub, err := transport.NewPublisher(cfg.UDPHost, cfg.UDPPort)
	if err != nil {
		return err
	}
	defer pub.Close()

	var opts []pipeline.Option

	var st *store.Store
	if cfg.StorePath != "" {
		st, err = store.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.MigrateUp(*migrationsDir); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithStore(st))

		if *reuseBaseline {
			profile, err := st.LatestProfile()
			switch {
			case errors.Is(err, sql.ErrNoRows):
				log.Print("no stored baseline found, calibrating fresh")
			case err != nil:
				return err
			default:
				opts = append(opts, pipeline.WithProfile(profile))
			}
		}
	} else if *reuseBaseline {
		return fmt.Errorf("-reuse-baseline requires store_path in the profile")
	}

	if cfg.MQTTBroker != "" {
		mirror, err := telemetry.NewMirror(cfg.MQTTBroker, fmt.Sprintf("flystick-%d", os.Getpid()), cfg.GetMQTTTopic())
		if err != nil {
			// The mirror is best-effort; the control link does not depend on it.
			log.Printf("telemetry disabled: %v", err)
		} else {
			defer mirror.Close()
			opts = append(opts, pipeline.WithTelemetry(mirror))
		}
	}

	p, err := pipeline.New(cfg, src, pub, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 forces all axes to neutral on the next hop.
	resetCh := make(chan os.Signal, 1)
	signal.Notify(resetCh, syscall.SIGUSR1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-resetCh:
				log.Print("neutral reset requested")
				p.RequestReset()
			}
		}
	}()

	err = p.Run(ctx)
	stop()
	wg.Wait()

	sent, failed := pub.Stats()
	log.Printf("shutdown: %d packets sent, %d send failures, %d rate mismatches",
		sent, failed, p.RateMismatches())

	if err != nil && !errors.Is(err, context.Canceled) {
		var acqErr *eeg.AcquisitionError
		if errors.As(err, &acqErr) {
			return fmt.Errorf("acquisition failed, restart required: %w", err)
		}
		return err
	}
	return nil
}

// newSource selects the sample producer at construction time; the pipeline
// never branches on which implementation it holds.
func newSource(cfg *config.Config) (eeg.Source, error) {
	switch cfg.Mode {
	case config.ModeHardware:
		log.Printf("connecting to acquisition board on %s", cfg.SerialPort)
		return eeg.OpenBoardSource(cfg.SerialPort, cfg.SampleRate, cfg.ChannelCount())
	case config.ModeSynthetic:
		log.Print("using synthetic EEG generator")
		return eeg.NewSyntheticSource(cfg.SampleRate, cfg.ChannelCount(), 1, eeg.WithRealtime()), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}
