// Command dashboard renders incoming axis commands as a live terminal view:
// one bar per axis, plus sequence/staleness info so a stalled producer is
// obvious at a glance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/wire"
)

var (
	port      = flag.Int("port", 5005, "UDP port to listen on")
	staleWarn = flag.Duration("stale", 2*time.Second, "Warn when no packet has arrived for this long")
)

const barWidth = 25

func main() {
	flag.Parse()

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	var last axis.Command
	var lastRecv time.Time
	var received, decodeErrs uint64

	go func() {
		buf := make([]byte, 256)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("read: %v", err)
				continue
			}
			cmd, err := wire.Decode(buf[:n])
			mu.Lock()
			if err != nil {
				decodeErrs++
			} else {
				last = cmd
				lastRecv = time.Now()
				received++
			}
			mu.Unlock()
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("listening on :%d\n\n", *port)
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			fmt.Println()
			return
		case <-ticker.C:
			mu.Lock()
			cmd, recvAt, n, bad := last, lastRecv, received, decodeErrs
			mu.Unlock()
			render(cmd, recvAt, n, bad)
		}
	}
}

var drawn bool

func render(cmd axis.Command, recvAt time.Time, received, decodeErrs uint64) {
	var b strings.Builder
	// Move the cursor up over the previous frame and redraw in place.
	if drawn {
		fmt.Fprintf(&b, "\033[%dA", axis.Count+2)
	}
	drawn = true
	for a := axis.Axis(0); a < axis.Count; a++ {
		fmt.Fprintf(&b, "%-9s %s %+.3f\033[K\n", a, bar(cmd.Value(a)), cmd.Value(a))
	}
	state := "active"
	if cmd.Neutral {
		state = "NEUTRAL"
	}
	fmt.Fprintf(&b, "seq %-8d %-8s packets %-8d bad %d\033[K\n", cmd.Seq, state, received, decodeErrs)
	if recvAt.IsZero() {
		fmt.Fprintf(&b, "waiting for first packet\033[K\n")
	} else if age := time.Since(recvAt); age > *staleWarn {
		fmt.Fprintf(&b, "STALE: last packet %s ago\033[K\n", age.Round(100*time.Millisecond))
	} else {
		fmt.Fprintf(&b, "last packet %s ago\033[K\n", time.Since(recvAt).Round(10*time.Millisecond))
	}
	os.Stdout.WriteString(b.String())
}

// bar renders v in [-1,1] as a bipolar bar centered on zero.
func bar(v float64) string {
	cells := make([]rune, 2*barWidth+1)
	for i := range cells {
		cells[i] = ' '
	}
	cells[barWidth] = '|'
	n := int(v * barWidth)
	if n > 0 {
		for i := 1; i <= n && barWidth+i < len(cells); i++ {
			cells[barWidth+i] = '#'
		}
	} else if n < 0 {
		for i := 1; i <= -n && barWidth-i >= 0; i++ {
			cells[barWidth-i] = '#'
		}
	}
	return "[" + string(cells) + "]"
}
