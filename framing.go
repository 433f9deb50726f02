package luna

import (
	"encoding/binary"
	"io"
	"time"
)

// maxFrameSize is the largest on-wire packet a FrameReader will accept
// (spec §4.1: maximum packet size 65535 bytes).
const maxFrameSize = 1<<16 - 1

// Frame is one length-prefixed record read from the input stream: a
// monotonic ingestion timestamp paired with the raw on-wire packet bytes.
//
// Data aliases FrameReader's internal reusable buffer and is only valid
// until the next call to Next; callers that need to retain it (as the
// packet classifier does, via Append into a stream) must copy what they
// keep.
type Frame struct {
	TimestampNS uint64
	Data        []byte
}

// FrameReader pulls length-prefixed packet records from an input byte
// source: a big-endian u16 length followed by that many bytes. It is a
// lazy, finite, non-restartable sequence — it terminates cleanly, with
// no error, the moment either the length or the payload can't be read in
// full (spec §4.1, §6, §7: input truncation is not an error).
type FrameReader struct {
	r     io.Reader
	start time.Time
	buf   []byte
}

// NewFrameReader wraps r. The monotonic clock used for Frame.TimestampNS
// starts at this call (spec §9: a monotonic offset, not ns from epoch —
// the original source is ambiguous between the two and this implementation
// picks one and documents it, rather than silently mixing).
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, start: time.Now(), buf: make([]byte, maxFrameSize)}
}

// Next reads one frame. ok is false at clean end of stream (EOF or a
// short read of either the length prefix or the payload); no error is
// ever returned, matching the input-truncation handling of spec §7.
func (f *FrameReader) Next() (Frame, bool) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return Frame{}, false
	}

	// The timestamp is assigned the moment the length has been read, per
	// spec §4.1, before the (potentially short) payload read.
	ts := uint64(time.Since(f.start).Nanoseconds())

	n := binary.BigEndian.Uint16(lenBuf[:])
	if _, err := io.ReadFull(f.r, f.buf[:n]); err != nil {
		return Frame{}, false
	}

	return Frame{TimestampNS: ts, Data: f.buf[:n]}, true
}
