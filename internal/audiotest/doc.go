// SPDX-License-Identifier: EPL-2.0

// Package audiotest holds test doubles shared across packages: a scripted
// driver whose periods are fired by hand and deterministic sample sources.
package audiotest
