// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes PCM WAV files on top of github.com/go-audio/wav.
//
// # Decoding
//
// Decoder accepts integer PCM at 8, 16, 24 and 32 bits and any channel
// count. Samples come out as float32 scaled the same way the conversion
// engine scales integers, so a full-scale 16-bit sample decodes to exactly
// 1.0 or -1.0:
//
//	f, _ := os.Open("audio.wav")
//	src, err := wav.Decoder{}.Decode(f)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
// Readers that cannot seek are buffered in memory first.
//
// # Writing
//
// Writer records host-order sample buffers in any of the engine's sample
// formats. This makes it a capture sink for a stream callback or for the
// loopback driver:
//
//	w, _ := wav.NewWriter(f, 48000, 2, format.Float32)
//	defer w.Close()
//	w.Write(period)
//
// Integer formats keep their width. Float formats are stored as 32-bit
// integer PCM. Close patches the RIFF and data chunk sizes; the file itself
// stays open.
//
// Encode copies a whole audio.Source into a new file.
package wav
