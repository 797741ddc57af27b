// Package transport publishes command packets over UDP and arbitrates the
// single-producer rule: exactly one process may publish to a given
// destination at a time, enforced by an exclusive local claim socket.
package transport

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/wire"
)

// claimPortOffset derives the producer claim port from the destination
// port. Every producer for a destination binds 127.0.0.1:(port+offset)
// exclusively; the second binder fails fast instead of racing packets onto
// the same consumer port.
const claimPortOffset = 1

// PortConflictError reports that another producer already claims the
// destination.
type PortConflictError struct {
	Destination string
	ClaimAddr   string
	Err         error
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("transport: destination %s already claimed (claim socket %s): %v",
		e.Destination, e.ClaimAddr, e.Err)
}

func (e *PortConflictError) Unwrap() error { return e.Err }

// TransportError reports a failed send. Sends are fire-and-forget; the
// error is surfaced for counting and logging but the producer keeps going.
type TransportError struct {
	Destination string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: send to %s: %v", e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Publisher owns the producer side of one destination: the exclusive claim
// plus the UDP socket. Publish never blocks on delivery and never retries;
// staleness is worse than loss for a real-time control signal.
type Publisher struct {
	dest     *net.UDPAddr
	destName string
	conn     *net.UDPConn
	claim    net.PacketConn

	sent     atomic.Uint64
	sendErrs atomic.Uint64

	buf [wire.PacketLen]byte
}

// NewPublisher resolves the destination, acquires the producer claim and
// opens the send socket. A held claim surfaces as *PortConflictError.
func NewPublisher(host string, port int) (*Publisher, error) {
	destName := net.JoinHostPort(host, fmt.Sprint(port))
	dest, err := net.ResolveUDPAddr("udp", destName)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", destName, err)
	}

	claimAddr := fmt.Sprintf("127.0.0.1:%d", port+claimPortOffset)
	claim, err := net.ListenPacket("udp", claimAddr)
	if err != nil {
		return nil, &PortConflictError{Destination: destName, ClaimAddr: claimAddr, Err: err}
	}

	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		claim.Close()
		return nil, fmt.Errorf("transport: dial %s: %w", destName, err)
	}

	log.Printf("transport: publishing to %s (claim %s)", destName, claimAddr)
	return &Publisher{dest: dest, destName: destName, conn: conn, claim: claim}, nil
}

// Publish encodes and sends one command. Failures return a *TransportError
// and increment the error counter; the next hop still attempts delivery.
func (p *Publisher) Publish(cmd axis.Command) error {
	pkt := wire.Append(p.buf[:0], cmd)
	if _, err := p.conn.Write(pkt); err != nil {
		p.sendErrs.Add(1)
		return &TransportError{Destination: p.destName, Err: err}
	}
	p.sent.Add(1)
	return nil
}

// Stats returns the packets sent and the send failures so far.
func (p *Publisher) Stats() (sent, failed uint64) {
	return p.sent.Load(), p.sendErrs.Load()
}

// Destination returns the resolved target address string.
func (p *Publisher) Destination() string { return p.destName }

// Close releases the socket and the producer claim.
func (p *Publisher) Close() error {
	err := p.conn.Close()
	if cerr := p.claim.Close(); err == nil {
		err = cerr
	}
	return err
}
