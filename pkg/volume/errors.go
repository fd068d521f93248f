package volume

import "errors"

var (
	// ErrOutOfRange is returned when a global coordinate lies in no shard's
	// region of interest, or a shard is asked to read from outside its own.
	ErrOutOfRange = errors.New("volume: coordinates out of range")

	// ErrProtocolViolation is returned when a shard claims a coordinate but
	// supplies no voxels for it, or returns a line of the wrong length. It
	// indicates an inconsistent descriptor set or a faulty source.
	ErrProtocolViolation = errors.New("volume: protocol violation")

	// ErrInvalidDescriptor is returned at construction for descriptors whose
	// regions are inconsistent, or for reader sets whose ROIs overlap.
	ErrInvalidDescriptor = errors.New("volume: invalid descriptor")

	// ErrClosed is returned by operations on a closed reader or writer.
	ErrClosed = errors.New("volume: closed")
)
