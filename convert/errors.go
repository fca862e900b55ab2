// SPDX-License-Identifier: EPL-2.0

package convert

import "errors"

var (
	ErrUnsupportedConversion = errors.New("unsupported sample conversion")
	ErrShortBuffer           = errors.New("buffer too short for conversion")
)
