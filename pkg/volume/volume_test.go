package volume

import (
	"context"
	"errors"
	"fmt"
)

// memFile is a dense in-memory shard image, i fastest.
type memFile struct {
	extent Coord
	bpv    int
	data   []byte
}

func newMemFile(extent Coord, bpv int) *memFile {
	return &memFile{extent: extent, bpv: bpv, data: make([]byte, extent.Voxels()*int64(bpv))}
}

func (f *memFile) offset(c Coord) int {
	return ((c[2]*f.extent[1]+c[1])*f.extent[0] + c[0]) * f.bpv
}

// memFactory serves memSources keyed by descriptor filename.
type memFactory struct {
	files    map[string]*memFile
	opens    int
	closeErr map[string]error
	sources  []*memSource
}

func newMemFactory() *memFactory {
	return &memFactory{files: make(map[string]*memFile), closeErr: make(map[string]error)}
}

func (m *memFactory) OpenRead(_ context.Context, d Descriptor) (Source, error) {
	f, ok := m.files[d.Filename]
	if !ok {
		return nil, fmt.Errorf("no such file %q", d.Filename)
	}
	m.opens++
	s := &memSource{file: f, closeErr: m.closeErr[d.Filename]}
	m.sources = append(m.sources, s)
	return s, nil
}

func (m *memFactory) OpenWrite(_ context.Context, d Descriptor) (Source, error) {
	f := newMemFile(d.LocalExtent, d.Codec.VoxelType.Size())
	m.files[d.Filename] = f
	m.opens++
	s := &memSource{file: f, closeErr: m.closeErr[d.Filename]}
	m.sources = append(m.sources, s)
	return s, nil
}

type memSource struct {
	file     *memFile
	reads    int
	writes   int
	closes   int
	closeErr error
}

func (s *memSource) ReadLine(_ context.Context, start Coord, count int) ([]byte, error) {
	s.reads++
	if !(Region{End: s.file.extent.Sub(Coord{1, 1, 1})}).Contains(start) {
		return nil, errors.New("read outside local extent")
	}
	n := min(count, s.file.extent[0]-start[0])
	off := s.file.offset(start)
	out := make([]byte, n*s.file.bpv)
	copy(out, s.file.data[off:])
	return out, nil
}

func (s *memSource) WriteLine(_ context.Context, start Coord, buf []byte) error {
	s.writes++
	off := s.file.offset(start)
	if start[0]+len(buf)/s.file.bpv > s.file.extent[0] {
		return errors.New("write past end of line")
	}
	copy(s.file.data[off:], buf)
	return nil
}

func (s *memSource) BytesPerVoxel() int { return s.file.bpv }

func (s *memSource) Close() error {
	s.closes++
	return s.closeErr
}

// line1D builds a one-row descriptor along i.
func line1D(index int, name string, covStart, covEnd, roiStart, roiEnd int) Descriptor {
	return Descriptor{
		Index:       index,
		Filename:    name,
		LocalExtent: Coord{covEnd - covStart + 1, 1, 1},
		Coverage:    Region{Start: Coord{covStart, 0, 0}, End: Coord{covEnd, 0, 0}},
		ROI:         Region{Start: Coord{roiStart, 0, 0}, End: Coord{roiEnd, 0, 0}},
		Codec:       CodecParams{Format: "mem", VoxelType: Uint8},
	}
}

// fillPattern stores a deterministic volume under name and returns its bytes.
func fillPattern(m *memFactory, name string, extent Coord, bpv int) []byte {
	f := newMemFile(extent, bpv)
	for i := range f.data {
		f.data[i] = byte((i*7 + i/251) % 256)
	}
	m.files[name] = f
	return f.data
}
