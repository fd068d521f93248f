package volume

import (
	"errors"
	"fmt"
)

// Grid describes how to split a volume into shards.
type Grid struct {
	// Extent is the size of the whole volume.
	Extent Coord

	// Block is the largest ROI size along each axis. Zero means unsplit.
	Block Coord

	// Overlap is how far each shard's coverage extends past its ROI on
	// every side, clamped to the volume.
	Overlap Coord

	Codec CodecParams

	// Name returns the filename for the shard with the given index.
	// Defaults to ShardObject.
	Name func(index int) string
}

// ShardObject is the default shard file name for an index.
func ShardObject(index int) string {
	return fmt.Sprintf("shard-%06d", index)
}

// Plan partitions g.Extent into descriptors whose ROIs tile it exactly.
// Indices run with i fastest, then j, then k.
func Plan(g Grid) ([]Descriptor, error) {
	for a := 0; a < 3; a++ {
		if g.Extent[a] <= 0 {
			return nil, fmt.Errorf("volume: plan: extent %s must be positive", g.Extent)
		}
		if g.Block[a] < 0 || g.Overlap[a] < 0 {
			return nil, errors.New("volume: plan: block and overlap must not be negative")
		}
	}
	name := g.Name
	if name == nil {
		name = ShardObject
	}

	var counts Coord
	block := g.Block
	for a := 0; a < 3; a++ {
		if block[a] == 0 || block[a] > g.Extent[a] {
			block[a] = g.Extent[a]
		}
		counts[a] = (g.Extent[a] + block[a] - 1) / block[a]
	}

	whole := Region{End: g.Extent.Sub(Coord{1, 1, 1})}
	descs := make([]Descriptor, 0, counts[0]*counts[1]*counts[2])
	for bk := 0; bk < counts[2]; bk++ {
		for bj := 0; bj < counts[1]; bj++ {
			for bi := 0; bi < counts[0]; bi++ {
				var roi, cov Region
				pos := Coord{bi, bj, bk}
				for a := 0; a < 3; a++ {
					roi.Start[a] = pos[a] * block[a]
					roi.End[a] = min(roi.Start[a]+block[a], g.Extent[a]) - 1
					cov.Start[a] = roi.Start[a] - g.Overlap[a]
					cov.End[a] = roi.End[a] + g.Overlap[a]
				}
				cov = cov.Intersect(whole)

				idx := len(descs)
				descs = append(descs, Descriptor{
					Index:       idx,
					Filename:    name(idx),
					LocalExtent: cov.Size(),
					Coverage:    cov,
					ROI:         roi,
					Codec:       g.Codec,
				})
			}
		}
	}
	return descs, nil
}

// BlockForSize returns the largest block, obtained by repeatedly halving the
// longest axis of extent, whose voxels fit in maxBytes at bytesPerVoxel.
// Overlap is not counted.
func BlockForSize(extent Coord, bytesPerVoxel int, maxBytes int64) (Coord, error) {
	if bytesPerVoxel <= 0 || maxBytes < int64(bytesPerVoxel) {
		return Coord{}, fmt.Errorf("volume: shard size %d cannot hold a %d-byte voxel", maxBytes, bytesPerVoxel)
	}
	block := extent
	for block.Voxels()*int64(bytesPerVoxel) > maxBytes {
		axis := 0
		for a := 1; a < 3; a++ {
			if block[a] > block[axis] {
				axis = a
			}
		}
		block[axis] = (block[axis] + 1) / 2
	}
	return block, nil
}

// Whole returns the descriptor set for an unsplit volume stored in one file.
func Whole(extent Coord, filename string, codec CodecParams) []Descriptor {
	r := Region{End: extent.Sub(Coord{1, 1, 1})}
	return []Descriptor{{
		Filename:    filename,
		LocalExtent: extent,
		Coverage:    r,
		ROI:         r,
		Codec:       codec,
	}}
}
