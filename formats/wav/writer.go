// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/format"
)

// Writer records interleaved sample buffers into a PCM WAV file. Integer
// formats keep their width; float formats are stored as 32-bit PCM.
type Writer struct {
	enc        *gowav.Encoder
	format     format.SampleFormat
	file       format.SampleFormat
	channels   int
	frameBytes int

	toFile    convert.Info
	fromFloat convert.Info

	buf    goaudio.IntBuffer
	stage  []byte
	floats []byte
	frames int
	closed bool
}

// NewWriter starts a WAV file on w for buffers in sample format f, host
// byte order. The header is finished by Close.
func NewWriter(w io.WriteSeeker, rate, channels int, f format.SampleFormat) (*Writer, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedEncoding, format.ErrUnknownFormat)
	}
	if channels <= 0 || rate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedEncoding, channels, rate)
	}

	file := f
	if f.IsFloat() {
		file = format.Int32
	}

	wr := &Writer{
		enc:        gowav.NewEncoder(w, rate, file.Bits(), channels, formatPCM),
		format:     f,
		file:       file,
		channels:   channels,
		frameBytes: f.BufferSize(1, channels),
	}
	wr.buf.Format = &goaudio.Format{NumChannels: channels, SampleRate: rate}

	layout := func(f format.SampleFormat) convert.Layout {
		return convert.Layout{Format: f, Channels: channels, Interleaved: true}
	}
	wr.toFile = convert.NewInfo(convert.Play, layout(f), layout(file), 0, 0)
	wr.fromFloat = convert.NewInfo(convert.Play, layout(format.Float32), layout(file), 0, 0)
	return wr, nil
}

// Write appends whole frames from p.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if len(p)%w.frameBytes != 0 {
		return 0, fmt.Errorf("%w: %d bytes, frame is %d", ErrPartialFrame, len(p), w.frameBytes)
	}

	frames := len(p) / w.frameBytes
	data := p
	if w.format != w.file {
		data = w.stageFor(frames)
		if err := convert.Convert(data, p, frames, &w.toFile); err != nil {
			return 0, fmt.Errorf("wav: %w", err)
		}
	}

	if err := w.encode(data, frames); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteSamples appends float32 samples in [-1, 1], whole frames only.
func (w *Writer) WriteSamples(s []float32) error {
	if w.closed {
		return ErrWriterClosed
	}
	if len(s)%w.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(s), w.channels)
	}

	frames := len(s) / w.channels
	need := format.Float32.BufferSize(frames, w.channels)
	if cap(w.floats) < need {
		w.floats = make([]byte, need)
	}
	floats := w.floats[:need]
	for i, v := range s {
		binary.NativeEndian.PutUint32(floats[i*4:], math.Float32bits(v))
	}

	data := w.stageFor(frames)
	if err := convert.Convert(data, floats, frames, &w.fromFloat); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return w.encode(data, frames)
}

func (w *Writer) stageFor(frames int) []byte {
	need := w.file.BufferSize(frames, w.channels)
	if cap(w.stage) < need {
		w.stage = make([]byte, need)
	}
	return w.stage[:need]
}

// encode hands frames of file-format samples to the encoder.
func (w *Writer) encode(data []byte, frames int) error {
	n := frames * w.channels
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]

	width := w.file.Width()
	for i := range n {
		b := data[i*width:]
		switch w.file {
		case format.Int16:
			w.buf.Data[i] = int(int16(binary.NativeEndian.Uint16(b)))
		case format.Int24:
			w.buf.Data[i] = int(int32(binary.NativeEndian.Uint32(b)<<8) >> 8)
		default:
			w.buf.Data[i] = int(int32(binary.NativeEndian.Uint32(b)))
		}
	}

	if err := w.enc.Write(&w.buf); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	w.frames += frames
	return nil
}

// Frames returns how many frames were written.
func (w *Writer) Frames() int { return w.frames }

// Close finishes the header. The underlying writer is left open.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.frames == 0 {
		w.buf.Data = w.buf.Data[:0]
		if err := w.enc.Write(&w.buf); err != nil {
			return fmt.Errorf("wav encode: %w", err)
		}
	}
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	return nil
}

// Encode writes all of src to w as a WAV file in sample format f.
func Encode(w io.WriteSeeker, src audio.Source, f format.SampleFormat) (int, error) {
	wr, err := NewWriter(w, src.SampleRate(), src.Channels(), f)
	if err != nil {
		return 0, err
	}

	buf := make([]float32, 1024*src.Channels())
	for {
		n, rerr := src.ReadSamples(buf)
		if n > 0 {
			if err := wr.WriteSamples(buf[:n]); err != nil {
				return wr.Frames(), err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return wr.Frames(), fmt.Errorf("read source: %w", rerr)
		}
	}

	if err := wr.Close(); err != nil {
		return wr.Frames(), err
	}
	return wr.Frames(), nil
}
