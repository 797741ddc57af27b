// Command mock-emitter publishes synthetic axis commands over the control
// link: smooth sinusoids with a little noise, plus periodic neutral resets.
// It claims the destination like any producer, so starting it while the
// controller is publishing fails fast instead of interleaving packets.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/transport"
)

var (
	host       = flag.String("host", "127.0.0.1", "UDP host to publish to")
	port       = flag.Int("port", 5005, "UDP port to publish to")
	rate       = flag.Float64("rate", 20, "Commands per second")
	seed       = flag.Int64("seed", 1, "PRNG seed for the noise component")
	resetEvery = flag.Duration("reset-every", 0, "Force a neutral reset at this interval (0 disables)")
)

func main() {
	flag.Parse()

	pub, err := transport.NewPublisher(*host, *port)
	if err != nil {
		var conflict *transport.PortConflictError
		if errors.As(err, &conflict) {
			log.Fatalf("another producer is already publishing to this destination: %v", err)
		}
		log.Fatal(err)
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(*seed))
	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("emitting synthetic commands to %s at %.0f Hz", pub.Destination(), *rate)

	var seq uint32
	var lastReset time.Time
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			sent, failed := pub.Stats()
			log.Printf("stopped: %d packets sent, %d failures", sent, failed)
			return
		case now := <-ticker.C:
			seq++
			cmd := axis.Command{Seq: seq, Timestamp: now}

			if *resetEvery > 0 && now.Sub(lastReset) >= *resetEvery {
				lastReset = now
				cmd.Neutral = true
			} else {
				t := now.Sub(start).Seconds()
				cmd.Axes = [axis.Count]float32{
					axis.Yaw:      jittered(rng, 0.8*math.Sin(2*math.Pi*0.20*t)),
					axis.Altitude: jittered(rng, 0.6*math.Sin(2*math.Pi*0.13*t+1.1)),
					axis.Pitch:    jittered(rng, 0.4*math.Sin(2*math.Pi*0.17*t+2.4)),
					axis.Throttle: jittered(rng, 0.9*math.Sin(2*math.Pi*0.10*t+2.2)),
				}
			}

			if err := pub.Publish(cmd); err != nil {
				log.Printf("send failed: %v", err)
			}
		}
	}
}

// jittered adds uniform noise and clamps to the command range.
func jittered(rng *rand.Rand, v float64) float32 {
	v += rng.Float64()*0.1 - 0.05
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return float32(v)
}
