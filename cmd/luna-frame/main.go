// Command luna-frame reads length-prefixed frames from stdin — the wire
// format luna.Convert expects — and reports how many it found, stopping
// cleanly at the first truncated frame rather than erroring.
//
// It exists to exercise the framing layer (framing.go) in isolation from
// decoding, the way the original acquisition front-end's own conversion
// step did by consuming its stdin frame-by-frame.
package main

import (
	"flag"
	"fmt"
	"os"

	luna "github.com/greatscottgadgets/luna-capture"
)

func main() {
	flag.Parse()

	fr := luna.NewFrameReader(os.Stdin)
	var count int
	var totalBytes int
	for {
		frame, ok := fr.Next()
		if !ok {
			break
		}
		count++
		totalBytes += len(frame.Data)
	}

	fmt.Printf("%d frames, %d bytes\n", count, totalBytes)
}
