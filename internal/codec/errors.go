package codec

import "errors"

var (
	ErrUnknownFormat      = errors.New("codec: unknown format")
	ErrUnknownVoxelType   = errors.New("codec: unknown voxel type")
	ErrReadOnly           = errors.New("codec: format is read-only")
	ErrWriteOnly          = errors.New("codec: shard is open for writing")
	ErrOutOfBounds        = errors.New("codec: coordinates outside shard")
	ErrNonSequentialWrite = errors.New("codec: writes must follow storage order")
	ErrIncomplete         = errors.New("codec: shard closed before every voxel was written")
	ErrSizeMismatch       = errors.New("codec: stored size does not match descriptor")
)
