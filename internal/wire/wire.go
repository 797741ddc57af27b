// Package wire defines the fixed-schema command packet shared by every
// producer and consumer on the control link. The format is versioned so the
// schema can evolve without breaking older dashboards.
//
// Packet layout (big-endian, 32 bytes):
//
//	offset  size  field
//	0       2     magic 0xBC 0x1F
//	2       1     version (currently 1)
//	3       1     flags (bit 0: neutral/reset command)
//	4       4     sequence number
//	8       8     timestamp, unix nanoseconds
//	16      4     yaw      float32 [-1, 1]
//	20      4     altitude float32 [-1, 1]
//	24      4     pitch    float32 [-1, 1]
//	28      4     throttle float32 [-1, 1]
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bci-flystick/flystick/internal/axis"
)

// PacketLen is the fixed encoded size in bytes.
const PacketLen = 32

// Version is the current schema version.
const Version = 1

var magic = [2]byte{0xBC, 0x1F}

const flagNeutral = 0x01

var (
	ErrShortPacket    = errors.New("wire: short packet")
	ErrBadMagic       = errors.New("wire: bad magic")
	ErrUnknownVersion = errors.New("wire: unknown version")
)

// Encode serializes a command into dst, which must hold PacketLen bytes.
// It returns the number of bytes written.
func Encode(dst []byte, cmd axis.Command) (int, error) {
	if len(dst) < PacketLen {
		return 0, fmt.Errorf("%w: buffer %d, need %d", ErrShortPacket, len(dst), PacketLen)
	}
	dst[0] = magic[0]
	dst[1] = magic[1]
	dst[2] = Version
	var flags byte
	if cmd.Neutral {
		flags |= flagNeutral
	}
	dst[3] = flags
	binary.BigEndian.PutUint32(dst[4:8], cmd.Seq)
	binary.BigEndian.PutUint64(dst[8:16], uint64(cmd.Timestamp.UnixNano()))
	for i := 0; i < axis.Count; i++ {
		binary.BigEndian.PutUint32(dst[16+i*4:], math.Float32bits(cmd.Axes[i]))
	}
	return PacketLen, nil
}

// Append encodes cmd and appends the packet to buf.
func Append(buf []byte, cmd axis.Command) []byte {
	var pkt [PacketLen]byte
	_, _ = Encode(pkt[:], cmd)
	return append(buf, pkt[:]...)
}

// Decode parses one packet. Sequence, timestamp and axis values round-trip
// exactly; trailing bytes beyond PacketLen are ignored.
func Decode(src []byte) (axis.Command, error) {
	var cmd axis.Command
	if len(src) < PacketLen {
		return cmd, fmt.Errorf("%w: %d bytes, need %d", ErrShortPacket, len(src), PacketLen)
	}
	if src[0] != magic[0] || src[1] != magic[1] {
		return cmd, fmt.Errorf("%w: 0x%02X%02X", ErrBadMagic, src[0], src[1])
	}
	if src[2] != Version {
		return cmd, fmt.Errorf("%w: %d", ErrUnknownVersion, src[2])
	}
	cmd.Neutral = src[3]&flagNeutral != 0
	cmd.Seq = binary.BigEndian.Uint32(src[4:8])
	cmd.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(src[8:16])))
	for i := 0; i < axis.Count; i++ {
		cmd.Axes[i] = math.Float32frombits(binary.BigEndian.Uint32(src[16+i*4:]))
	}
	return cmd, nil
}
