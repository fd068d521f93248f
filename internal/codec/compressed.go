package codec

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"

	"github.com/ligustah/volsplit/pkg/volume"
)

// decoderFunc unwraps a compressed object stream.
type decoderFunc func(r io.Reader) (io.ReadCloser, error)

func zstdDecoder(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func zstdEncoder(level int) encoderFunc {
	return func(w io.Writer) (io.WriteCloser, error) {
		var opts []zstd.EOption
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	}
}

func gzipDecoder(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func gzipEncoder(level int) encoderFunc {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, level)
	}
}

// compressedReader decompresses the whole object on first use and serves
// lines from memory. A load cut short by its caller's context is retried on
// the next read; any other failure sticks.
type compressedReader struct {
	layout
	bucket *blob.Bucket
	key    string
	decode decoderFunc

	mu   sync.Mutex
	data []byte
	err  error
}

func (r *compressedReader) load(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data != nil || r.err != nil {
		return r.data, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := r.decodeAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.err = err
		}
		return nil, err
	}
	r.data = data
	return data, nil
}

func (r *compressedReader) decodeAll(ctx context.Context) ([]byte, error) {
	br, err := r.bucket.NewReader(ctx, r.key, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.key, err)
	}
	defer br.Close()

	dr, err := r.decode(br)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	defer dr.Close()

	want := r.size()
	data, err := io.ReadAll(io.LimitReader(dr, want+1))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	if int64(len(data)) != want {
		return nil, fmt.Errorf("%w: %s decodes to %d bytes, expected %d", ErrSizeMismatch, r.key, len(data), want)
	}
	r.order(data)
	return data, nil
}

func (r *compressedReader) ReadLine(ctx context.Context, start volume.Coord, count int) ([]byte, error) {
	n, err := r.clampLine(start, count)
	if err != nil || n <= 0 {
		return nil, err
	}
	data, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	off := r.offset(start)
	buf := make([]byte, n*r.bpv)
	copy(buf, data[off:])
	return buf, nil
}

func (r *compressedReader) WriteLine(context.Context, volume.Coord, []byte) error {
	return ErrReadOnly
}

func (r *compressedReader) BytesPerVoxel() int {
	return r.bpv
}

func (r *compressedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	return nil
}
