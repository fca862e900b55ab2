// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/internal/audiotest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func open(t *testing.T, drv *audiotest.Driver, opts Options, cb Callback) *Stream {
	t.Helper()

	info, err := device.Probe(drv, false)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if opts.Logger == nil {
		opts.Logger = discard
	}

	s, err := Open(drv, info, opts, cb)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitStopped(t *testing.T, s *Stream) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.WaitStopped(ctx); err != nil {
		t.Fatalf("WaitStopped() error = %v", err)
	}
}

func silent(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
	clear(out)
	return Continue
}

func fillF32(buf []byte, v float32) {
	for i := 0; i+4 <= len(buf); i += 4 {
		binary.NativeEndian.PutUint32(buf[i:], math.Float32bits(v))
	}
}

func f32(buf []byte, i int) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(buf[i*4:]))
}

func i32(buf []byte, i int) int32 {
	return int32(binary.NativeEndian.Uint32(buf[i*4:]))
}

func putI32(buf []byte, i int, v int32) {
	binary.NativeEndian.PutUint32(buf[i*4:], uint32(v))
}

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func fillBytes(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

func mustProbe(tb testing.TB, drv *audiotest.Driver) device.Info {
	tb.Helper()

	info, err := device.Probe(drv, false)
	if err != nil {
		tb.Fatalf("Probe() error = %v", err)
	}
	return info
}
