// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelindar/event"
	"golang.org/x/sync/errgroup"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/internal/logging"
	"github.com/ik5/audstream/stream"
)

// PlayOptions tune Play. The zero value plays the source at its own rate
// and channel count where the device allows it.
type PlayOptions struct {
	Name string

	// SampleRate requested from the device; 0 asks for the source rate.
	SampleRate uint
	// Channels played; 0 uses the source channels, capped by the device.
	Channels     int
	FirstChannel int
	BufferFrames int
	// Format of the stream's user buffers. Defaults to Float32.
	Format format.SampleFormat
	// RingFrames sizes the feeder ring; 0 selects audio.DefaultRingFrames.
	RingFrames int

	// StopTimeout bounds the drain when ctx is cancelled. Zero aborts at
	// once.
	StopTimeout time.Duration

	Logger *slog.Logger
	Events *event.Dispatcher
}

// Report describes a finished playback.
type Report struct {
	StreamID     string
	Device       string
	SampleRate   uint
	Channels     int
	BufferFrames int
	Frames       uint64
	Underflows   uint64
	Stats        stream.Stats
}

// Play probes drv, opens an output stream, adapts src to the negotiated
// rate and channel count, and plays it until the source ends, the driver
// faults or ctx is cancelled. The driver is shut down on return; src is not
// closed.
func Play(ctx context.Context, drv driver.Driver, src audio.Source, opts PlayOptions) (rep Report, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("audstream")
	}
	f := opts.Format
	if f == 0 {
		f = format.Float32
	}

	info, err := device.Probe(drv, false)
	if err != nil {
		return rep, fmt.Errorf("probe %s: %w", drv.Name(), err)
	}

	channels := opts.Channels
	if channels == 0 {
		channels = min(src.Channels(), info.OutputChannels-opts.FirstChannel)
	}
	if channels <= 0 {
		drv.Shutdown()
		return rep, fmt.Errorf("%w: %s", ErrNoOutput, info.Name)
	}
	rate := opts.SampleRate
	if rate == 0 {
		rate = uint(src.SampleRate())
	}

	// feed is set before Start, so the callback never sees it nil.
	var feed *audio.Feeder
	s, err := stream.Open(drv, info, stream.Options{
		Name:               opts.Name,
		OutputChannels:     channels,
		FirstOutputChannel: opts.FirstChannel,
		BufferFrames:       opts.BufferFrames,
		SampleRate:         rate,
		Format:             f,
		Logger:             logger,
		Events:             opts.Events,
	}, func(out, in []byte, frames int, t float64, st stream.Status, ud any) stream.Result {
		return feed.Callback(out, in, frames, t, st, ud)
	})
	if err != nil {
		drv.Shutdown()
		return rep, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close stream: %w", cerr)
		}
	}()

	rep = Report{
		StreamID:     s.ID(),
		Device:       info.Name,
		SampleRate:   s.SampleRate(),
		Channels:     channels,
		BufferFrames: s.BufferFrames(),
	}

	pipe, err := Adapt(src, int(s.SampleRate()), channels)
	if err != nil {
		return rep, err
	}
	feed, err = audio.NewFeeder(pipe, f, opts.RingFrames)
	if err != nil {
		return rep, err
	}

	logger.Info("playing",
		"stream", s.Name(),
		"device", info.Name,
		"source_rate", src.SampleRate(),
		"rate", s.SampleRate(),
		"channels", channels,
		"frames", s.BufferFrames())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return feed.Run(gctx) })

	defer func() {
		rep.Frames = feed.Played()
		rep.Underflows = feed.Underflows()
		rep.Stats = s.Stats()
	}()

	select {
	case <-feed.Ready():
	case <-ctx.Done():
		cancel()
		_ = g.Wait()
		return rep, ctx.Err()
	}

	if err := s.Start(); err != nil {
		cancel()
		_ = g.Wait()
		return rep, err
	}

	waitErr := s.WaitStopped(ctx)
	if ctx.Err() != nil {
		stopErr := stopOnCancel(ctx, s, opts.StopTimeout)
		cancel()
		_ = g.Wait()
		return rep, errors.Join(ctx.Err(), stopErr)
	}

	// The stream stopped on its own: the source ended or the driver
	// faulted. Either way the feeder has nothing left to do.
	cancel()
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if waitErr != nil {
		return rep, waitErr
	}
	return rep, runErr
}

func stopOnCancel(ctx context.Context, s *stream.Stream, timeout time.Duration) error {
	if timeout <= 0 {
		return s.Abort()
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := s.StopContext(stopCtx)
	if errors.Is(err, stream.ErrDrainTimeout) {
		return nil
	}
	return err
}
