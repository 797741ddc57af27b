// Package eeg defines the sample stream boundary between the acquisition
// hardware and the signal pipeline. The pipeline holds a Source and never
// knows whether samples come from a board or a generator.
package eeg

import (
	"context"
	"fmt"
	"time"
)

// Sample is one multi-channel reading. Values holds one voltage per board
// channel in configured order. Samples are immutable once produced.
type Sample struct {
	Seq       uint64
	Timestamp time.Time
	Values    []float64
}

// Source produces timestamped samples at the device's native rate.
// Next blocks until a sample is available or ctx is cancelled; a device
// failure surfaces as an *AcquisitionError and is terminal for the source.
type Source interface {
	Next(ctx context.Context) (Sample, error)
	SampleRate() float64
	Channels() int
	Close() error
}

// AcquisitionError reports a device disconnect or protocol failure. It is
// fatal to the owning loop; restart policy belongs to the supervisor.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition: %s: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
