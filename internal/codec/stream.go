package codec

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"

	"github.com/ligustah/volsplit/pkg/volume"
)

// encoderFunc wraps the blob writer in a compressor. nil means raw.
type encoderFunc func(w io.Writer) (io.WriteCloser, error)

// streamWriter writes a shard image front to back into one object.
type streamWriter struct {
	layout
	key    string
	w      *blob.Writer
	cancel context.CancelFunc
	enc    io.WriteCloser
	out    io.Writer

	next    int64
	scratch []byte
	closed  bool
}

func newStreamWriter(ctx context.Context, bucket *blob.Bucket, key string, l layout, encode encoderFunc) (*streamWriter, error) {
	// The upload outlives the call that opened it; only Close or an
	// incomplete image ends it.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "application/octet-stream"})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create writer for %s: %w", key, err)
	}

	s := &streamWriter{layout: l, key: key, w: w, cancel: cancel, out: w}
	if encode != nil {
		enc, err := encode(w)
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("create encoder for %s: %w", key, err)
		}
		s.enc, s.out = enc, enc
	}
	return s, nil
}

func (s *streamWriter) ReadLine(context.Context, volume.Coord, int) ([]byte, error) {
	return nil, ErrWriteOnly
}

func (s *streamWriter) WriteLine(_ context.Context, start volume.Coord, buf []byte) error {
	if s.closed {
		return errors.New("codec: write to closed shard")
	}
	if len(buf)%s.bpv != 0 {
		return fmt.Errorf("codec: %d bytes is not a whole number of %d-byte voxels", len(buf), s.bpv)
	}
	n := len(buf) / s.bpv
	fit, err := s.clampLine(start, n)
	if err != nil {
		return err
	}
	if fit < n {
		return fmt.Errorf("%w: %d voxels at %s overrun row of %d", ErrOutOfBounds, n, start, s.extent[0])
	}
	if off := s.offset(start); off != s.next {
		return fmt.Errorf("%w: %s starts at byte %d, next is %d", ErrNonSequentialWrite, start, off, s.next)
	}

	if s.swap {
		s.scratch = append(s.scratch[:0], buf...)
		s.order(s.scratch)
		buf = s.scratch
	}
	if _, err := s.out.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	s.next += int64(len(buf))
	return nil
}

func (s *streamWriter) BytesPerVoxel() int {
	return s.bpv
}

// Close commits the object if the image is complete and discards it otherwise.
func (s *streamWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.next != s.size() {
		s.abort()
		return fmt.Errorf("%w: %s has %d of %d bytes", ErrIncomplete, s.key, s.next, s.size())
	}
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			s.enc = nil
			s.abort()
			return fmt.Errorf("flush encoder for %s: %w", s.key, err)
		}
	}
	defer s.cancel()
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", s.key, err)
	}
	return nil
}

// abort cancels the upload so nothing is committed.
func (s *streamWriter) abort() {
	s.cancel()
	if s.enc != nil {
		s.enc.Close()
	}
	s.w.Close()
}
