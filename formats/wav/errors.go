// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile          = errors.New("not a WAV file")
	ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")
	ErrPartialFrame        = errors.New("buffer does not hold whole frames")
	ErrWriterClosed        = errors.New("wav writer closed")
)
