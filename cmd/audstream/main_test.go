// SPDX-License-Identifier: EPL-2.0

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/formats/wav"
)

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, logs bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(append(args, "--logging-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func decodeFile(t *testing.T, path string) (rate, channels, frames int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	src, err := wav.Decoder{}.Decode(f)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", path, err)
	}
	buf := make([]float32, 1024*src.Channels())
	for {
		n, err := src.ReadSamples(buf)
		frames += n / src.Channels()
		if errors.Is(err, io.EOF) {
			return src.SampleRate(), src.Channels(), frames
		}
		if err != nil {
			t.Fatalf("ReadSamples() error = %v", err)
		}
	}
}

func TestProbe(t *testing.T) {
	out, err := run(t, "probe", "--driver-sample-rates", "44100,48000")
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
	for _, want := range []string{"name:       loopback", "[44100 48000]", "int32", "powers of two"} {
		if !strings.Contains(out, want) {
			t.Errorf("probe output missing %q:\n%s", want, out)
		}
	}
}

func TestTone_Capture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	out, err := run(t, "tone", "--duration", "100ms", "--capture", path, "--driver-format", "int16")
	if err != nil {
		t.Fatalf("tone error = %v", err)
	}
	if !strings.Contains(out, "played 4800 frames at 48000 Hz x 2") {
		t.Errorf("unexpected output %q", out)
	}

	rate, channels, frames := decodeFile(t, path)
	if rate != 48000 || channels != 2 {
		t.Errorf("capture is %d Hz x %d, want 48000 Hz x 2", rate, channels)
	}
	if frames < 4800 {
		t.Errorf("capture holds %d frames, want at least 4800", frames)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")

	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	w, err := wav.NewWriter(f, 16000, 2, format.Int16)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSamples(make([]float32, 16000*2)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := run(t, "convert", in, outPath, "--rate", "8000", "--channels", "1")
	if err != nil {
		t.Fatalf("convert error = %v", err)
	}
	if !strings.Contains(out, "8000 Hz x 1, int16") {
		t.Errorf("unexpected output %q", out)
	}

	rate, channels, frames := decodeFile(t, outPath)
	if rate != 8000 || channels != 1 {
		t.Errorf("output is %d Hz x %d, want 8000 Hz x 1", rate, channels)
	}
	if frames < 7800 || frames > 8200 {
		t.Errorf("output holds %d frames, want about 8000", frames)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown driver", []string{"probe", "--driver-name", "jack"}},
		{"bad driver format", []string{"probe", "--driver-format", "int12"}},
		{"unknown file type", []string{"play", "song.flac"}},
		{"capture on oto", []string{"tone", "--driver-name", "oto", "--capture", "x.wav"}},
		{"convert arity", []string{"convert", "only-one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("%v succeeded", tt.args)
			}
		})
	}
}
