package luna

import "errors"

// Errors returned by the decoder are limited to resource failures: no
// shape of protocol-invalid input ever produces one (spec §7). Malformed
// input is visible only as Complete == false records.
var (
	// ErrStreamClosed is returned by Append or Finalize on a stream that
	// has already been finalized or closed.
	ErrStreamClosed = errors.New("luna: stream already closed")

	// ErrCreateFailed is returned when the backing anonymous memory file
	// for a stream could not be created or written to.
	ErrCreateFailed = errors.New("luna: failed to create backing stream")

	// ErrMapFailed is returned when a finalized stream could not be
	// mapped read-only into address space.
	ErrMapFailed = errors.New("luna: failed to map stream")

	// ErrShortRecord is returned if a stream's finalized length is not an
	// exact multiple of its declared record size, indicating a partial
	// write was never completed.
	ErrShortRecord = errors.New("luna: stream length is not a multiple of its record size")
)
