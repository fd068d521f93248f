package volume

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Writer fills a set of output shards from a LineReader. Each shard is written
// over its full coverage, overlap included, so codecs that need a complete
// local image always receive one.
type Writer struct {
	shards []*Shard
	opts   Options
	closed bool
}

// NewWriter opens a combined writer over descs, ordered by Index.
func NewWriter(descs []Descriptor, f Factory, options ...Option) (*Writer, error) {
	opts := buildOptions(options)

	shards, err := openShards(descs, f.OpenWrite, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Writer{shards: shards, opts: opts}, nil
}

// Len returns the number of output shards.
func (w *Writer) Len() int {
	return len(w.shards)
}

// Descriptor returns the descriptor of the i'th shard in index order.
func (w *Writer) Descriptor(i int) Descriptor {
	return w.shards[i].desc
}

// WriteFrom writes every output shard in index order.
func (w *Writer) WriteFrom(ctx context.Context, src LineReader) error {
	for i := range w.shards {
		if err := w.WriteShard(ctx, i, src); err != nil {
			return err
		}
	}
	return nil
}

// WriteShard writes the i'th shard's coverage: k outermost, then j, with each
// i-line read from src in one call. Different shards of one Writer may be
// written concurrently; a single shard may not.
func (w *Writer) WriteShard(ctx context.Context, i int, src LineReader) error {
	if w.closed {
		return ErrClosed
	}
	if i < 0 || i >= len(w.shards) {
		return fmt.Errorf("volume: shard position %d out of range [0, %d)", i, len(w.shards))
	}

	s := w.shards[i]
	cov := s.desc.Coverage
	length := cov.Len(0)

	bpv, err := s.BytesPerVoxel(ctx)
	if err != nil {
		return err
	}

	w.opts.Logger.Debug("writing shard",
		zap.Int("index", s.desc.Index),
		zap.String("file", s.desc.Filename),
		zap.Stringer("coverage", cov))

	for k := cov.Start[2]; k <= cov.End[2]; k++ {
		for j := cov.Start[1]; j <= cov.End[1]; j++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := Coord{cov.Start[0], j, k}
			line, err := src.ReadStream(ctx, start, length)
			if err != nil {
				return fmt.Errorf("volume: fill shard %d: %w", s.desc.Index, err)
			}
			if len(line) != length*bpv {
				return fmt.Errorf("%w: line at %s has %d bytes, shard %d expects %d",
					ErrProtocolViolation, start, len(line), s.desc.Index, length*bpv)
			}
			if err := s.WriteLine(ctx, start, line); err != nil {
				return err
			}
			if w.opts.LineHook != nil {
				w.opts.LineHook(s.desc, length)
			}
		}
	}
	return nil
}

// Close closes every shard, continuing past failures.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return closeShards(w.shards)
}
