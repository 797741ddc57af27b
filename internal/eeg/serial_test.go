package eeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bci-flystick/flystick/internal/eeg/board"
)

// fakePort replays a canned byte stream and records writes.
type fakePort struct {
	stream *bytes.Reader
	writes []byte
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.stream.Len() == 0 {
		return 0, io.EOF
	}
	return p.stream.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func frameBytes(counter uint8, counts [board.NumChannels]int32) []byte {
	buf := make([]byte, board.FrameLen)
	buf[0] = board.Header
	buf[1] = counter
	for ch, c := range counts {
		off := 2 + ch*3
		buf[off] = byte(c >> 16)
		buf[off+1] = byte(c >> 8)
		buf[off+2] = byte(c)
	}
	buf[board.FrameLen-1] = 0xC0
	return buf
}

func portWith(frames ...[]byte) *fakePort {
	var stream []byte
	for _, f := range frames {
		stream = append(stream, f...)
	}
	return &fakePort{stream: bytes.NewReader(stream)}
}

func TestNewBoardSourceStartsStream(t *testing.T) {
	t.Parallel()
	port := portWith()
	src, err := NewBoardSource(port, 250, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), port.writes)
	assert.Equal(t, 250.0, src.SampleRate())
	assert.Equal(t, 4, src.Channels())

	require.NoError(t, src.Close())
	assert.Equal(t, []byte("bs"), port.writes)
	assert.True(t, port.closed)
}

func TestNewBoardSourceRejectsBadChannelCount(t *testing.T) {
	t.Parallel()
	_, err := NewBoardSource(portWith(), 250, 0)
	assert.Error(t, err)
	_, err = NewBoardSource(portWith(), 250, board.NumChannels+1)
	assert.Error(t, err)
}

func TestBoardSourceReadsFrames(t *testing.T) {
	t.Parallel()
	port := portWith(
		frameBytes(10, [board.NumChannels]int32{100, 200, 300, 400}),
		frameBytes(11, [board.NumChannels]int32{101, 201, 301, 401}),
	)
	src, err := NewBoardSource(port, 250, 4)
	require.NoError(t, err)

	s1, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s1.Seq)
	assert.Len(t, s1.Values, 4)
	assert.Positive(t, s1.Values[0])

	s2, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s2.Seq)
}

func TestBoardSourceCounterGapJumpsSequence(t *testing.T) {
	t.Parallel()
	port := portWith(
		frameBytes(10, [board.NumChannels]int32{}),
		// three frames lost on the wire
		frameBytes(14, [board.NumChannels]int32{}),
		// counter wraps 255 -> 1: two frames lost across the wrap
		frameBytes(255, [board.NumChannels]int32{}),
		frameBytes(1, [board.NumChannels]int32{}),
	)
	src, err := NewBoardSource(port, 250, 4)
	require.NoError(t, err)

	seqs := make([]uint64, 0, 4)
	for i := 0; i < 4; i++ {
		s, err := src.Next(context.Background())
		require.NoError(t, err)
		seqs = append(seqs, s.Seq)
	}
	assert.Equal(t, []uint64{0, 4, 245, 247}, seqs)
}

func TestBoardSourceResyncsAfterGarbage(t *testing.T) {
	t.Parallel()
	valid := frameBytes(5, [board.NumChannels]int32{7, 7, 7, 7})

	corrupt := append([]byte{}, valid...)
	corrupt[board.FrameLen-1] = 0xFF // bad footer

	port := portWith(
		[]byte{0x00, 0x13, 0x37}, // line noise
		corrupt,
		valid,
	)
	src, err := NewBoardSource(port, 250, 4)
	require.NoError(t, err)

	s, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Values, 4)
	assert.Positive(t, s.Values[0])
}

func TestBoardSourceEOFIsAcquisitionError(t *testing.T) {
	t.Parallel()
	src, err := NewBoardSource(portWith(), 250, 4)
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	var aerr *AcquisitionError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, io.EOF)
}

// stalledPort models a board that stops producing frames without dropping
// the link: Read blocks until the port is closed, like a real serial read.
type stalledPort struct {
	unblock  chan struct{}
	closeOne sync.Once
}

func (p *stalledPort) Read(b []byte) (int, error) {
	<-p.unblock
	return 0, errors.New("read on closed port")
}

func (p *stalledPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *stalledPort) Close() error {
	p.closeOne.Do(func() { close(p.unblock) })
	return nil
}

func TestBoardSourceCancelUnblocksStalledRead(t *testing.T) {
	t.Parallel()
	src, err := NewBoardSource(&stalledPort{unblock: make(chan struct{})}, 250, 4)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next still blocked after cancellation")
	}

	require.NoError(t, src.Close())
}

func TestBoardSourceHonorsContext(t *testing.T) {
	t.Parallel()
	src, err := NewBoardSource(portWith(), 250, 4)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
