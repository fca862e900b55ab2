// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")
	ErrUnknownFormat  = errors.New("no decoder registered for format")
	ErrChannels       = errors.New("invalid channel count")
	ErrSampleRate     = errors.New("invalid sample rate")
)
