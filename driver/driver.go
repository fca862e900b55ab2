// SPDX-License-Identifier: EPL-2.0

package driver

import "github.com/ik5/audstream/format"

// Granularity values with special meaning in BufferSizes.
const (
	// GranularityPowerOfTwo means only powers of two between Min and Max are accepted.
	GranularityPowerOfTwo = -1
	// GranularityFixed means only Preferred is accepted.
	GranularityFixed = 0
)

// BufferSizes is the period size range a driver accepts, in frames.
type BufferSizes struct {
	Min         int
	Max         int
	Preferred   int
	Granularity int
}

// SampleType describes the native sample layout of a driver's buffers.
type SampleType struct {
	Format       format.SampleFormat
	LittleEndian bool
	Interleaved  bool
}

// Handler receives notifications from a driver's real-time goroutine.
// Implementations must not block or allocate.
type Handler interface {
	// BufferSwitch is called once per period after the buffers of slot are
	// ready: input holds fresh samples and output awaits the next period.
	BufferSwitch(slot int)
	// XRun reports an input overrun or output underrun since the previous period.
	XRun()
	// Fault reports an unrecoverable driver error, such as a removed device.
	Fault(err error)
}

// Driver is the contract a hardware or software backend fulfils for a stream.
// A Driver value is owned by exactly one stream at a time.
type Driver interface {
	Name() string

	// Initialize performs the one-time handshake with the backend.
	Initialize(verbose bool) error

	ChannelCounts() (in, out int, err error)
	BufferSizeRange() (BufferSizes, error)
	SampleRate() (uint, error)
	SetSampleRate(rate uint) error
	CanSampleRate(rate uint) bool
	SampleType() (SampleType, error)

	// CreateBuffers allocates the device buffers for in and out channels of
	// frames frames each and registers h for period notifications.
	CreateBuffers(in, out, frames int, h Handler) error
	// Buffers returns the device buffers of slot. Either may be nil when the
	// direction has no channels. Only valid after CreateBuffers.
	Buffers(slot int) (in, out []byte)
	// Latencies reports input and output latency in frames.
	// Only valid after CreateBuffers.
	Latencies() (in, out int, err error)

	// NeedsOutputReady reports whether OutputReady must be called once the
	// output buffer of a period has been filled.
	NeedsOutputReady() bool
	OutputReady() error

	Start() error
	Stop() error
	DisposeBuffers() error
	Shutdown()
}
