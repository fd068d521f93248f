package codec

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"

	"github.com/ligustah/volsplit/pkg/volume"
)

// rawReader serves lines straight from an uncompressed object with one
// range read per line.
type rawReader struct {
	layout
	bucket *blob.Bucket
	key    string
}

func openRawReader(ctx context.Context, bucket *blob.Bucket, key string, l layout) (*rawReader, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if attrs.Size != l.size() {
		return nil, fmt.Errorf("%w: %s is %d bytes, expected %d", ErrSizeMismatch, key, attrs.Size, l.size())
	}
	return &rawReader{layout: l, bucket: bucket, key: key}, nil
}

func (r *rawReader) ReadLine(ctx context.Context, start volume.Coord, count int) ([]byte, error) {
	n, err := r.clampLine(start, count)
	if err != nil || n <= 0 {
		return nil, err
	}

	length := int64(n * r.bpv)
	rr, err := r.bucket.NewRangeReader(ctx, r.key, r.offset(start), length, nil)
	if err != nil {
		return nil, fmt.Errorf("open range of %s: %w", r.key, err)
	}
	defer rr.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(rr, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}
	r.order(buf)
	return buf, nil
}

func (r *rawReader) WriteLine(context.Context, volume.Coord, []byte) error {
	return ErrReadOnly
}

func (r *rawReader) BytesPerVoxel() int {
	return r.bpv
}

func (r *rawReader) Close() error {
	return nil
}
