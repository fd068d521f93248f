package volume

import (
	"context"
	"fmt"
)

// OpenFunc opens the data source behind a shard.
type OpenFunc func(ctx context.Context, d Descriptor) (Source, error)

// Shard binds a Descriptor to its data source and translates between global
// and local coordinates. The source is opened on first use and closed once.
//
// A Shard is not safe for concurrent use.
type Shard struct {
	desc Descriptor
	open OpenFunc

	src    Source
	closed bool

	// probes counts containment tests.
	probes int
}

// NewShard returns a shard for d. The source is not opened until needed.
func NewShard(d Descriptor, open OpenFunc) (*Shard, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Shard{desc: d, open: open}, nil
}

// Descriptor returns the shard's placement.
func (s *Shard) Descriptor() Descriptor {
	return s.desc
}

// ContainsVoxel tests c against the ROI when authoritative is set, otherwise
// against the full coverage.
func (s *Shard) ContainsVoxel(c Coord, authoritative bool) bool {
	s.probes++
	if authoritative {
		return s.desc.ROI.Contains(c)
	}
	return s.desc.Coverage.Contains(c)
}

// ReadLine reads up to count voxels from start along the first axis. The read
// is clamped at the ROI boundary, so fewer voxels than requested is normal.
// start itself must lie in the ROI.
func (s *Shard) ReadLine(ctx context.Context, start Coord, count int) ([]byte, error) {
	if !s.ContainsVoxel(start, true) {
		return nil, fmt.Errorf("%w: %s not in roi %s of shard %d", ErrOutOfRange, start, s.desc.ROI, s.desc.Index)
	}
	if limit := s.desc.ROI.End[0] - start[0] + 1; count > limit {
		count = limit
	}
	if count <= 0 {
		return nil, nil
	}

	src, err := s.source(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := src.ReadLine(ctx, s.toLocal(start), count)
	if err != nil {
		return nil, fmt.Errorf("volume: read shard %d at %s: %w", s.desc.Index, start, err)
	}
	return buf, nil
}

// WriteLine writes buf at start. It does not clamp: the caller must supply a
// line that fits the shard's local extent.
func (s *Shard) WriteLine(ctx context.Context, start Coord, buf []byte) error {
	src, err := s.source(ctx)
	if err != nil {
		return err
	}
	if err := src.WriteLine(ctx, s.toLocal(start), buf); err != nil {
		return fmt.Errorf("volume: write shard %d at %s: %w", s.desc.Index, start, err)
	}
	return nil
}

// BytesPerVoxel proxies the data source, opening it if necessary.
func (s *Shard) BytesPerVoxel(ctx context.Context) (int, error) {
	src, err := s.source(ctx)
	if err != nil {
		return 0, err
	}
	return src.BytesPerVoxel(), nil
}

// Close releases the data source. Closing a shard whose source was never
// opened, or closing twice, does nothing.
func (s *Shard) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.src == nil {
		return nil
	}
	if err := s.src.Close(); err != nil {
		return fmt.Errorf("volume: close shard %d: %w", s.desc.Index, err)
	}
	return nil
}

func (s *Shard) source(ctx context.Context) (Source, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.src != nil {
		return s.src, nil
	}
	src, err := s.open(ctx, s.desc)
	if err != nil {
		return nil, fmt.Errorf("volume: open shard %d (%s): %w", s.desc.Index, s.desc.Filename, err)
	}
	s.src = src
	return src, nil
}

func (s *Shard) toLocal(c Coord) Coord {
	return c.Sub(s.desc.Origin())
}
