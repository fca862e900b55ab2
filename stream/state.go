// SPDX-License-Identifier: EPL-2.0

package stream

import "fmt"

// State is the run state of a stream.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status flags are passed to the callback and describe what happened since
// the previous period.
type Status uint32

const (
	Good            Status = 0
	InputOverflow   Status = 1 << 0
	OutputUnderflow Status = 1 << 1
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case InputOverflow:
		return "input overflow"
	case OutputUnderflow:
		return "output underflow"
	case InputOverflow | OutputUnderflow:
		return "input overflow|output underflow"
	default:
		return fmt.Sprintf("Status(%d)", uint32(s))
	}
}

// Result tells the stream what to do after a callback returns.
type Result int32

const (
	// Continue keeps the stream running.
	Continue Result = 0
	// Complete plays out the current period and drains, then stops.
	Complete Result = 1
	// Abort stops as soon as possible. The current period is silent.
	Abort Result = 2
)

func (r Result) String() string {
	switch r {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Result(%d)", int32(r))
	}
}

// Callback produces output and consumes input for one period. out and in
// hold frames frames in the user format and layout; either is nil when its
// direction has no channels. It runs on the driver's real-time goroutine and
// must not block.
type Callback func(out, in []byte, frames int, streamTime float64, status Status, userData any) Result

// DrainThreshold is the drain counter value past which a draining stream is
// considered quiet and is stopped.
const DrainThreshold = 3

// Drain counter values.
const (
	drainNone     = 0
	drainInternal = 1
	drainStopping = 2
)

// Stats are diagnostic counters of a stream.
type Stats struct {
	Callbacks          uint64
	XRuns              uint64
	Drains             uint64
	ProtocolViolations uint64
	CallbackPanics     uint64
	ConversionErrors   uint64
	StopTasks          uint64
}
