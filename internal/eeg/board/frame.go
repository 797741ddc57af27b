// Package board implements the binary sample framing spoken by Cyton-style
// acquisition boards over serial. One frame carries one sample for all eight
// channels as 24-bit big-endian two's complement counts.
package board

import (
	"errors"
	"fmt"
)

const (
	// FrameLen is the fixed on-wire frame size in bytes.
	FrameLen = 33
	// Header marks the start of every frame.
	Header = 0xA0
	// footer bytes range 0xC0-0xC6 depending on the aux payload layout
	footerMin = 0xC0
	footerMax = 0xC6

	// NumChannels is the channel count of the board.
	NumChannels = 8

	// countToMicrovolts converts a 24-bit ADC count to microvolts at the
	// default gain of 24 with a 4.5 V reference.
	countToMicrovolts = 4.5 / 24 / ((1 << 23) - 1) * 1e6
)

// ErrBadFrame reports a frame that failed header or footer validation.
var ErrBadFrame = errors.New("bad frame")

// Frame is one decoded board frame.
type Frame struct {
	Counter  uint8                // wraps at 256
	Channels [NumChannels]float64 // microvolts
}

// ParseFrame decodes a single 33-byte frame.
func ParseFrame(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) != FrameLen {
		return f, fmt.Errorf("%w: length %d, want %d", ErrBadFrame, len(buf), FrameLen)
	}
	if buf[0] != Header {
		return f, fmt.Errorf("%w: header 0x%02X", ErrBadFrame, buf[0])
	}
	if stop := buf[FrameLen-1]; stop < footerMin || stop > footerMax {
		return f, fmt.Errorf("%w: footer 0x%02X", ErrBadFrame, stop)
	}

	f.Counter = buf[1]
	for ch := 0; ch < NumChannels; ch++ {
		off := 2 + ch*3
		f.Channels[ch] = float64(int24(buf[off], buf[off+1], buf[off+2])) * countToMicrovolts
	}
	return f, nil
}

// int24 sign-extends a 24-bit big-endian two's complement value.
func int24(b0, b1, b2 byte) int32 {
	v := int32(b0)<<16 | int32(b1)<<8 | int32(b2)
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// Sync scans buf for the first plausible frame boundary: a header byte with
// a valid footer FrameLen-1 bytes later. It returns the offset or -1.
func Sync(buf []byte) int {
	for i := 0; i+FrameLen <= len(buf); i++ {
		if buf[i] != Header {
			continue
		}
		if stop := buf[i+FrameLen-1]; stop >= footerMin && stop <= footerMax {
			return i
		}
	}
	return -1
}
