// SPDX-License-Identifier: EPL-2.0

package driver

import (
	"errors"
	"fmt"
)

var (
	ErrDriver         = errors.New("driver error")
	ErrNotInitialized = errors.New("driver not initialized")
	ErrNoBuffers      = errors.New("driver buffers not created")
	ErrUnsupported    = errors.New("operation not supported by driver")
)

// Code classifies a driver failure.
type Code int

const (
	Unknown Code = iota
	NotPresent
	HardwareMalfunction
	InvalidParameter
	InvalidMode
	NoClock
	NoMemory
)

func (c Code) String() string {
	switch c {
	case NotPresent:
		return "not present"
	case HardwareMalfunction:
		return "hardware malfunction"
	case InvalidParameter:
		return "invalid parameter"
	case InvalidMode:
		return "invalid mode"
	case NoClock:
		return "no clock"
	case NoMemory:
		return "no memory"
	default:
		return "unknown"
	}
}

// Error is returned by drivers when a backend call fails.
type Error struct {
	Op   string
	Code Code
	Err  error
}

// NewError builds an *Error for op. err may be nil.
func NewError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("driver: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrDriver.
func (e *Error) Is(target error) bool {
	return target == ErrDriver
}

// CodeOf extracts the Code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return Unknown
}
