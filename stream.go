package luna

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkRecordAligned validates that a finalized stream's byte length is an
// exact multiple of its declared record size. A mismatch means a record was
// only partially written before the stream was finalized.
func checkRecordAligned(data []byte, recordSize int) error {
	if len(data)%recordSize != 0 {
		return fmt.Errorf("%w: %d bytes, record size %d", ErrShortRecord, len(data), recordSize)
	}
	return nil
}

// Mapping is a finalized stream's read-only view: either memory-mapped
// from an anonymous backing file, or a plain Go byte slice for the
// in-memory backend. Close releases the mapping, if any.
type Mapping struct {
	data  []byte
	unmap func() error
}

// Bytes returns the mapping's raw, read-only backing memory.
func (m Mapping) Bytes() []byte { return m.data }

// Close releases the mapping. It is safe to call on a zero Mapping.
func (m Mapping) Close() error {
	if m.unmap == nil {
		return nil
	}
	return m.unmap()
}

// Stream is an append-only sequence of fixed-size records. One stream
// backs each output array of spec §3: packets, transactions, endpoints,
// transfer_index, and, per discovered endpoint, transfers and
// transaction_ids. The data blob uses the same interface for
// variable-length payload bytes, appended verbatim.
type Stream interface {
	// Append writes one record (or, for the data stream, an arbitrary
	// run of payload bytes) to the end of the stream.
	Append(record []byte) error
	// Finalize flushes the stream and maps it read-only. The stream
	// must not be appended to afterward.
	Finalize() (Mapping, error)
}

// Backend selects how streams are backed. MemfdBackend is the reference
// implementation (spec §4.3: anonymous memory file, finalized via
// read-only mmap). InMemoryBackend keeps each stream as a plain growable
// byte buffer, which spec §9's design notes call "an equally valid
// implementation and preferable when no mapping-based zero-copy sharing
// is required" — useful on platforms without memfd_create, or in tests.
type Backend int

const (
	MemfdBackend Backend = iota
	InMemoryBackend
)

// newStream creates a stream named for diagnostics (kernel-visible via
// memfd on the Memfd backend) using the given backend.
func newStream(name string, backend Backend) (Stream, error) {
	switch backend {
	case InMemoryBackend:
		return &memStream{name: name}, nil
	default:
		return newMemfdStream(name)
	}
}

// memStream is the in-memory Stream backend: a growable buffer finalized
// by handing its contents out as a Go slice, with no mapping to release.
type memStream struct {
	name   string
	buf    []byte
	closed bool
}

func (s *memStream) Append(record []byte) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.buf = append(s.buf, record...)
	return nil
}

func (s *memStream) Finalize() (Mapping, error) {
	if s.closed {
		return Mapping{}, ErrStreamClosed
	}
	s.closed = true
	return Mapping{data: s.buf}, nil
}

// memfdStream is the anonymous-memory-file Stream backend: writes
// buffer into an unlinked, in-memory-only file descriptor created with
// memfd_create, then finalizes by mapping it read-only and shared.
type memfdStream struct {
	name   string
	fd     int
	size   int64
	closed bool
}

func newMemfdStream(name string) (*memfdStream, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create(%q): %v", ErrCreateFailed, name, err)
	}
	return &memfdStream{name: name, fd: fd}, nil
}

func (s *memfdStream) Append(record []byte) error {
	if s.closed {
		return ErrStreamClosed
	}
	for written := 0; written < len(record); {
		n, err := unix.Write(s.fd, record[written:])
		if err != nil {
			return fmt.Errorf("%w: write to %q: %v", ErrCreateFailed, s.name, err)
		}
		written += n
		s.size += int64(n)
	}
	return nil
}

func (s *memfdStream) Finalize() (Mapping, error) {
	if s.closed {
		return Mapping{}, ErrStreamClosed
	}
	s.closed = true

	if s.size == 0 {
		unix.Close(s.fd)
		return Mapping{}, nil
	}

	data, err := unix.Mmap(s.fd, 0, int(s.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(s.fd)
		return Mapping{}, fmt.Errorf("%w: mmap %q (%d bytes): %v", ErrMapFailed, s.name, s.size, err)
	}

	fd := s.fd
	return Mapping{
		data: data,
		unmap: func() error {
			err := unix.Munmap(data)
			unix.Close(fd)
			return err
		},
	}, nil
}
