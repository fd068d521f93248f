package volume

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Reader is a read-only virtual volume assembled from shards. Every global
// voxel is served by the single shard whose ROI contains it.
//
// A Reader is not safe for concurrent use: it keeps the last shard it read
// from as a lookup hint. Give each goroutine its own Reader.
type Reader struct {
	shards []*Shard
	log    *zap.Logger

	// last is a locality hint, never authoritative.
	last   *Shard
	bpv    int
	closed bool
}

// NewReader opens a combined reader over descs. Every descriptor must be valid
// and no two ROIs may overlap. Gaps between ROIs are not checked here; reading
// from one fails with ErrOutOfRange.
func NewReader(descs []Descriptor, f Factory, options ...Option) (*Reader, error) {
	opts := buildOptions(options)

	shards, err := openShards(descs, f.OpenRead, opts.Logger)
	if err != nil {
		return nil, err
	}
	sorted := make([]Descriptor, len(shards))
	for i, s := range shards {
		sorted[i] = s.desc
	}
	if err := checkDisjointROIs(sorted); err != nil {
		return nil, err
	}

	return &Reader{shards: shards, log: opts.Logger}, nil
}

// ReadStream reads count voxels starting at start along the first axis,
// stitching together lines from as many shards as the run crosses.
func (r *Reader) ReadStream(ctx context.Context, start Coord, count int) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if count <= 0 {
		return []byte{}, nil
	}

	var out []byte
	cursor := start
	remaining := count

	for remaining > 0 {
		shard, err := r.find(cursor)
		if err != nil {
			return nil, err
		}

		buf, err := shard.ReadLine(ctx, cursor, remaining)
		if err != nil {
			return nil, err
		}
		n, err := r.voxelCount(ctx, shard, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: shard %d returned no voxels at %s", ErrProtocolViolation, shard.desc.Index, cursor)
		}
		if n > remaining {
			return nil, fmt.Errorf("%w: shard %d returned %d voxels, asked for %d", ErrProtocolViolation, shard.desc.Index, n, remaining)
		}

		// Single-shard reads hand the source buffer straight back.
		if out == nil && n == count {
			return buf, nil
		}
		if out == nil {
			// count is caller-supplied; never size past what the shards can hold.
			out = make([]byte, 0, min(count, r.span(start))*r.bpv)
		}
		out = append(out, buf...)

		cursor[0] += n
		remaining -= n
	}

	return out, nil
}

// Bounds returns the bounding box of every ROI in the set.
func (r *Reader) Bounds() Region {
	if len(r.shards) == 0 {
		return Region{End: Coord{-1, -1, -1}}
	}
	b := r.shards[0].desc.ROI
	for _, s := range r.shards[1:] {
		for a := 0; a < 3; a++ {
			b.Start[a] = min(b.Start[a], s.desc.ROI.Start[a])
			b.End[a] = max(b.End[a], s.desc.ROI.End[a])
		}
	}
	return b
}

// span is the most voxels a run starting at c can cover along i.
func (r *Reader) span(c Coord) int {
	return max(r.Bounds().End[0]-c[0]+1, 0)
}

// Close closes every shard, continuing past failures. All failures are
// returned together.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.last = nil
	return closeShards(r.shards)
}

// find returns the shard whose ROI contains c, trying the last hit first.
func (r *Reader) find(c Coord) (*Shard, error) {
	if r.last != nil && r.last.ContainsVoxel(c, true) {
		return r.last, nil
	}
	for _, s := range r.shards {
		if s.ContainsVoxel(c, true) {
			r.last = s
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no shard contains %s", ErrOutOfRange, c)
}

// voxelCount converts a returned buffer to voxels, checking that every shard
// agrees on the voxel size.
func (r *Reader) voxelCount(ctx context.Context, s *Shard, buf []byte) (int, error) {
	bpv, err := s.BytesPerVoxel(ctx)
	if err != nil {
		return 0, err
	}
	if bpv <= 0 {
		return 0, fmt.Errorf("%w: shard %d reports %d bytes per voxel", ErrProtocolViolation, s.desc.Index, bpv)
	}
	if r.bpv == 0 {
		r.bpv = bpv
	} else if r.bpv != bpv {
		return 0, fmt.Errorf("%w: shard %d has %d bytes per voxel, volume has %d", ErrProtocolViolation, s.desc.Index, bpv, r.bpv)
	}
	if len(buf)%bpv != 0 {
		return 0, fmt.Errorf("%w: shard %d returned %d bytes, not a multiple of %d", ErrProtocolViolation, s.desc.Index, len(buf), bpv)
	}
	return len(buf) / bpv, nil
}

func closeShards(shards []*Shard) error {
	var err error
	for _, s := range shards {
		err = multierr.Append(err, s.Close())
	}
	return err
}
