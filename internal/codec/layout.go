package codec

import (
	"fmt"

	"github.com/ligustah/volsplit/pkg/volume"
)

// layout maps local coordinates of a dense shard image to byte offsets.
type layout struct {
	extent volume.Coord
	bpv    int
	word   int
	swap   bool
}

func newLayout(d volume.Descriptor) (layout, error) {
	bpv := d.Codec.VoxelType.Size()
	if bpv == 0 {
		return layout{}, fmt.Errorf("%w: %q", ErrUnknownVoxelType, d.Codec.VoxelType)
	}
	switch d.Codec.ByteOrder {
	case "", volume.LittleEndian, volume.BigEndian:
	default:
		return layout{}, fmt.Errorf("codec: unknown byte order %q", d.Codec.ByteOrder)
	}
	return layout{
		extent: d.LocalExtent,
		bpv:    bpv,
		word:   d.Codec.VoxelType.WordSize(),
		swap:   d.Codec.ByteOrder == volume.BigEndian,
	}, nil
}

// size is the number of bytes in the whole image.
func (l layout) size() int64 {
	return l.extent.Voxels() * int64(l.bpv)
}

func (l layout) offset(c volume.Coord) int64 {
	return ((int64(c[2])*int64(l.extent[1])+int64(c[1]))*int64(l.extent[0]) + int64(c[0])) * int64(l.bpv)
}

// clampLine checks that start lies in the image and returns how many of count
// voxels fit before the end of its row.
func (l layout) clampLine(start volume.Coord, count int) (int, error) {
	for a := 0; a < 3; a++ {
		if start[a] < 0 || start[a] >= l.extent[a] {
			return 0, fmt.Errorf("%w: %s outside local extent %s", ErrOutOfBounds, start, l.extent)
		}
	}
	return min(count, l.extent[0]-start[0]), nil
}

// order converts between file byte order and the little-endian order the
// volume package works in. It swaps in place.
func (l layout) order(buf []byte) {
	if !l.swap || l.word <= 1 {
		return
	}
	for w := 0; w+l.word <= len(buf); w += l.word {
		for a, b := w, w+l.word-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}
