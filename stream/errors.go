// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"errors"

	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/driver"
)

var (
	// ErrDriver matches every error returned by a driver call.
	ErrDriver = driver.ErrDriver
	// ErrConfig is returned when the request does not fit the device.
	ErrConfig = errors.New("invalid stream configuration")
	// ErrAllocation is returned when stream buffers cannot be allocated.
	ErrAllocation = errors.New("stream buffer allocation failed")
	// ErrUnsupportedConversion is returned for a format pair the engine lacks.
	ErrUnsupportedConversion = convert.ErrUnsupportedConversion
	// ErrProtocolViolation is returned when stop is requested twice concurrently.
	ErrProtocolViolation = errors.New("stream protocol violation")

	ErrClosed       = errors.New("stream closed")
	ErrNotStopped   = errors.New("stream is still stopping")
	ErrDrainTimeout = errors.New("timed out waiting for the stream to drain")
)
