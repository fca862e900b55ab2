// SPDX-License-Identifier: EPL-2.0

package audstream

import "errors"

var (
	// ErrNoOutput is returned by Play for devices without usable outputs.
	ErrNoOutput = errors.New("device has no output channels")
)
