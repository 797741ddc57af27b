package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/wire"
)

// listener binds an ephemeral consumer socket and returns it with its port.
func listener(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func TestPublishDeliversDecodablePackets(t *testing.T) {
	t.Parallel()
	conn, port := listener(t)

	pub, err := NewPublisher("127.0.0.1", port)
	require.NoError(t, err)
	defer pub.Close()

	want := axis.Command{
		Seq:       9,
		Timestamp: time.Unix(1700000000, 500),
		Axes:      [axis.Count]float32{0.25, -0.5, 0.75, -1},
	}
	require.NoError(t, pub.Publish(want))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, wire.PacketLen, n)

	got, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, want.Seq, got.Seq)
	assert.Equal(t, want.Axes, got.Axes)
	assert.True(t, got.Timestamp.Equal(want.Timestamp))

	sent, failed := pub.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, failed)
}

func TestSecondProducerConflicts(t *testing.T) {
	t.Parallel()
	_, port := listener(t)

	first, err := NewPublisher("127.0.0.1", port)
	require.NoError(t, err)
	defer first.Close()

	_, err = NewPublisher("127.0.0.1", port)
	require.Error(t, err)
	var conflict *PortConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Destination, "127.0.0.1")
}

func TestClaimReleasedOnClose(t *testing.T) {
	t.Parallel()
	_, port := listener(t)

	first, err := NewPublisher("127.0.0.1", port)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A fresh producer can claim the freed destination.
	second, err := NewPublisher("127.0.0.1", port)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestDestination(t *testing.T) {
	t.Parallel()
	_, port := listener(t)
	pub, err := NewPublisher("127.0.0.1", port)
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), pub.Destination())
}
