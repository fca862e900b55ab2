// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MP3 files through github.com/hajimehoshi/go-mp3.
//
// The decoder always yields interleaved stereo regardless of the channel
// mode in the stream; mono files come out with both channels equal. Use
// audio.Remix to fold them back down.
//
//	src, err := mp3.Decoder{}.Decode(f)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
// Samples are scaled with the same integer mapping as the WAV and AIFF
// decoders, so a full-scale peak reads as exactly 1.0.
package mp3
