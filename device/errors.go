// SPDX-License-Identifier: EPL-2.0

package device

import "errors"

var (
	ErrNoSampleRates = errors.New("device supports no sample rate")
)
