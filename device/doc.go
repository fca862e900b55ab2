// SPDX-License-Identifier: EPL-2.0

// Package device describes what an audio endpoint can do.
//
// Probe queries a driver once and returns an Info snapshot. The compatibility
// methods are pure queries over that snapshot and express incompatibility as
// false; callers decide whether it is fatal.
//
//	info, err := device.Probe(drv, false)
//	if err != nil {
//	    return err
//	}
//	if !info.IsCompatibleChannelRange(device.Duplex, 2, 0) {
//	    // fall back to output only
//	}
package device
