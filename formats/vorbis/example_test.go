// SPDX-License-Identifier: EPL-2.0

package vorbis_test

import (
	"fmt"
	"log"
	"os"

	"github.com/ik5/audstream/formats/vorbis"
)

// ExampleDecoder_Decode reads the first block of an Ogg Vorbis file.
func ExampleDecoder_Decode() {
	f, err := os.Open("ambience.ogg")
	if err != nil {
		log.Fatal(err)
	}

	src, err := vorbis.Decoder{}.Decode(f)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	buf := make([]float32, 4096)
	n, _ := src.ReadSamples(buf)
	fmt.Printf("%d Hz, %d channels, %d frames\n", src.SampleRate(), src.Channels(), n/src.Channels())
}
