package volume

import "context"

// Source is the capability a codec provides for one opened shard file.
// Coordinates are local to the shard. Lines run along the first axis.
type Source interface {
	// ReadLine returns up to count voxels starting at start.
	ReadLine(ctx context.Context, start Coord, count int) ([]byte, error)

	// WriteLine stores buf, a whole number of voxels, starting at start.
	WriteLine(ctx context.Context, start Coord, buf []byte) error

	// BytesPerVoxel is the size of one voxel in the buffers exchanged above.
	BytesPerVoxel() int

	Close() error
}

// Factory opens data sources for descriptors, selecting the codec.
type Factory interface {
	OpenRead(ctx context.Context, d Descriptor) (Source, error)
	OpenWrite(ctx context.Context, d Descriptor) (Source, error)
}

// LineReader is anything that can serve global lines, typically a *Reader.
type LineReader interface {
	ReadStream(ctx context.Context, start Coord, count int) ([]byte, error)
}
