// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audstream"
	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/formats/wav"
)

func (a *app) probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print what the configured driver can do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, _, err := a.newDriver("")
			if err != nil {
				return err
			}
			defer drv.Shutdown()

			info, err := device.Probe(drv, true)
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), &info)
			return nil
		},
	}
}

func printInfo(w io.Writer, info *device.Info) {
	order := "big-endian"
	if info.LittleEndian {
		order = "little-endian"
	}
	layout := "planar"
	if info.Interleaved {
		layout = "interleaved"
	}

	fmt.Fprintf(w, "name:       %s\n", info.Name)
	fmt.Fprintf(w, "id:         %s\n", info.ID)
	fmt.Fprintf(w, "channels:   %d in, %d out, %d duplex\n", info.InputChannels, info.OutputChannels, info.DuplexChannels)
	fmt.Fprintf(w, "format:     %s %s %s\n", info.NativeFormat, order, layout)
	fmt.Fprintf(w, "rates:      %v (preferred %d)\n", info.SampleRates, info.PreferredSampleRate)

	sizes := info.BufferSizes
	step := fmt.Sprintf("step %d", sizes.Granularity)
	switch sizes.Granularity {
	case driver.GranularityPowerOfTwo:
		step = "powers of two"
	case driver.GranularityFixed:
		step = "fixed"
	}
	fmt.Fprintf(w, "buffers:    %d..%d frames, preferred %d, %s\n", sizes.Min, sizes.Max, sizes.Preferred, step)
}

func (a *app) toneCmd() *cobra.Command {
	var (
		freq      float64
		amplitude float64
		duration  time.Duration
		capture   string
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine tone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate := a.opts.StreamSampleRate
			if rate == 0 {
				rate = a.opts.DriverSampleRate
			}
			if rate <= 0 {
				return fmt.Errorf("%w: %d", audio.ErrSampleRate, rate)
			}
			channels := max(a.opts.StreamOutputChannels, 1)
			src := newTone(rate, channels, freq, amplitude, duration)
			return a.play(cmd, src, capture)
		},
	}

	cmd.Flags().Float64Var(&freq, "freq", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.5, "Peak amplitude between 0 and 1")
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "Tone length")
	cmd.Flags().StringVar(&capture, "capture", "", "Record the loopback output to this WAV file")
	return cmd
}

func (a *app) playCmd() *cobra.Command {
	var capture string

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Decode a wav, mp3, ogg or aiff file and play it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			src, err := audstream.DefaultRegistry().Open(args[0], f)
			if err != nil {
				return err
			}
			defer src.Close()

			return a.play(cmd, src, capture)
		},
	}

	cmd.Flags().StringVar(&capture, "capture", "", "Record the loopback output to this WAV file")
	return cmd
}

func (a *app) play(cmd *cobra.Command, src audio.Source, capture string) error {
	drv, finish, err := a.newDriver(capture)
	if err != nil {
		return err
	}
	opts, err := a.playOptions()
	if err != nil {
		drv.Shutdown()
		return errors.Join(err, finish())
	}

	rep, err := audstream.Play(cmd.Context(), drv, src, opts)
	if ferr := finish(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("capture: %w", ferr))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "played %d frames at %d Hz x %d on %s (%d underflows)\n",
		rep.Frames, rep.SampleRate, rep.Channels, rep.Device, rep.Underflows)
	return nil
}

func (a *app) convertCmd() *cobra.Command {
	var (
		rate     int
		channels int
		sample   string
	)

	cmd := &cobra.Command{
		Use:   "convert <input> <output.wav>",
		Short: "Resample and remix an audio file into a PCM WAV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := format.Parse(sample)
			if err != nil {
				return err
			}

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			src, err := audstream.DefaultRegistry().Open(args[0], in)
			if err != nil {
				return err
			}
			defer src.Close()

			pipe, err := audstream.Adapt(src, rate, channels)
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			frames, err := wav.Encode(out, pipe, f)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames (%d Hz x %d, %s) to %s\n", frames, rate, channels, f, args[1])
			return nil
		},
	}

	cmd.Flags().IntVar(&rate, "rate", 8000, "Output sample rate")
	cmd.Flags().IntVar(&channels, "channels", 1, "Output channels")
	cmd.Flags().StringVar(&sample, "format", "int16", "Output sample format")
	return cmd
}

// tone is a fixed-length sine on every channel.
type tone struct {
	rate, channels int
	frames, pos    int
	step, amp      float64
}

func newTone(rate, channels int, hz, amplitude float64, d time.Duration) *tone {
	return &tone{
		rate:     rate,
		channels: channels,
		frames:   int(d.Seconds() * float64(rate)),
		step:     2 * math.Pi * hz / float64(rate),
		amp:      min(max(amplitude, 0), 1),
	}
}

func (t *tone) SampleRate() int { return t.rate }
func (t *tone) Channels() int   { return t.channels }
func (t *tone) Close() error    { return nil }

func (t *tone) ReadSamples(dst []float32) (int, error) {
	if len(dst)%t.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}
	if t.pos >= t.frames {
		return 0, io.EOF
	}

	n := min(len(dst)/t.channels, t.frames-t.pos)
	for i := range n {
		v := float32(t.amp * math.Sin(t.step*float64(t.pos+i)))
		for c := range t.channels {
			dst[i*t.channels+c] = v
		}
	}
	t.pos += n
	return n * t.channels, nil
}
