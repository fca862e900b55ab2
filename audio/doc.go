// SPDX-License-Identifier: EPL-2.0

// Package audio holds the sample sources that feed a stream.
//
// # Sources
//
// A Source yields interleaved float32 frames in [-1, 1]:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    Close() error
//	}
//
// Decoders in formats/... produce Sources; Resampler and Mixer wrap them to
// match the rate and channel count a stream negotiated:
//
//	src = audio.NewResampler(src, int(s.SampleRate()))
//	src, err = audio.Remix(src, s.OutputChannels())
//
// ReadSamples may return the last samples together with io.EOF.
//
// # Registry
//
// A Registry looks decoders up by name or file extension:
//
//	reg := audio.NewRegistry()
//	reg.Register("wav", wav.Decoder{}, ".wav", ".wave")
//	src, err := reg.Open("kick.wav", f)
//
// # Feeding a stream
//
// Feeder keeps decoding and I/O off the real-time goroutine. Run fills a ring
// buffer in the stream's user format; Callback, registered as the stream
// callback, copies one period out of the ring, pads any shortfall with
// silence, and returns stream.Complete after the source ended and the ring
// ran dry:
//
//	fd, _ := audio.NewFeeder(src, format.Float32, 0)
//	s, _ := stream.Open(drv, info, stream.Options{
//		OutputChannels: src.Channels(),
//		SampleRate:     uint(src.SampleRate()),
//		Format:         fd.Format(),
//	}, fd.Callback)
//	go fd.Run(ctx)
//	_ = s.Start()
package audio
