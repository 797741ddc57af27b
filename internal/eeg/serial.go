package eeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/bci-flystick/flystick/internal/eeg/board"
)

// Porter is the minimal serial surface the board source needs. The
// abstraction keeps unit tests free of real hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// board stream control commands
const (
	cmdStartStream = "b"
	cmdStopStream  = "s"
)

// BoardSource reads framed samples from a Cyton-style board over serial.
type BoardSource struct {
	port     Porter
	reader   *bufio.Reader
	rate     float64
	channels int

	seq         uint64
	lastCounter int // -1 until the first frame
	started     bool

	closeOnce sync.Once
	closeErr  error
}

// OpenBoardSource opens the serial device and starts streaming.
func OpenBoardSource(path string, rate float64, channels int) (*BoardSource, error) {
	mode := &serial.Mode{BaudRate: 115200}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &AcquisitionError{Op: "open " + path, Err: err}
	}
	return NewBoardSource(port, rate, channels)
}

// NewBoardSource wraps an already-open port and starts streaming.
func NewBoardSource(port Porter, rate float64, channels int) (*BoardSource, error) {
	if channels <= 0 || channels > board.NumChannels {
		return nil, fmt.Errorf("board source supports 1-%d channels, got %d", board.NumChannels, channels)
	}
	s := &BoardSource{
		port:        port,
		reader:      bufio.NewReaderSize(port, 4*board.FrameLen),
		rate:        rate,
		channels:    channels,
		lastCounter: -1,
	}
	if _, err := port.Write([]byte(cmdStartStream)); err != nil {
		port.Close()
		return nil, &AcquisitionError{Op: "start stream", Err: err}
	}
	s.started = true
	return s, nil
}

func (s *BoardSource) SampleRate() float64 { return s.rate }
func (s *BoardSource) Channels() int       { return s.channels }

// Next blocks until a complete frame arrives. Frame-counter gaps are
// tolerated (the sequence number jumps so downstream timing checks see the
// loss); read failures are terminal AcquisitionErrors. Cancelling ctx
// closes the port, which unblocks a read on a board that went silent
// without dropping the link.
func (s *BoardSource) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	stop := context.AfterFunc(ctx, s.closePort)
	defer stop()

	frame, err := s.readFrame()
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Sample{}, cerr
		}
		return Sample{}, &AcquisitionError{Op: "read frame", Err: err}
	}

	ts := time.Now()
	if s.lastCounter >= 0 {
		gap := int(frame.Counter) - s.lastCounter
		if gap <= 0 {
			gap += 256
		}
		s.seq += uint64(gap)
	}
	s.lastCounter = int(frame.Counter)

	values := make([]float64, s.channels)
	copy(values, frame.Channels[:s.channels])
	return Sample{Seq: s.seq, Timestamp: ts, Values: values}, nil
}

// readFrame consumes bytes until one aligned frame is buffered, skipping
// line noise and corrupt frames by rescanning for the next plausible
// boundary.
func (s *BoardSource) readFrame() (board.Frame, error) {
	for {
		window, err := s.reader.Peek(board.FrameLen)
		if err != nil {
			return board.Frame{}, err
		}
		if board.Sync(window) < 0 {
			// No frame starts at the head of the buffer: drop up to the
			// next header candidate and rescan.
			skip := len(window)
			if i := bytes.IndexByte(window[1:], board.Header); i >= 0 {
				skip = 1 + i
			}
			if _, err := s.reader.Discard(skip); err != nil {
				return board.Frame{}, err
			}
			continue
		}

		buf := make([]byte, board.FrameLen)
		if _, err := io.ReadFull(s.reader, buf); err != nil {
			return board.Frame{}, err
		}
		return board.ParseFrame(buf)
	}
}

// closePort closes the underlying port exactly once. Cancellation and
// Close may both reach for it.
func (s *BoardSource) closePort() {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
}

// Close stops the stream and closes the port.
func (s *BoardSource) Close() error {
	if s.started {
		_, _ = s.port.Write([]byte(cmdStopStream))
		s.started = false
	}
	s.closePort()
	return s.closeErr
}
