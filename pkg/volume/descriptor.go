package volume

import (
	"fmt"
	"slices"
	"strings"
)

// VoxelType names the in-memory representation of one voxel.
type VoxelType string

const (
	Uint8   VoxelType = "uint8"
	Int8    VoxelType = "int8"
	Uint16  VoxelType = "uint16"
	Int16   VoxelType = "int16"
	Uint32  VoxelType = "uint32"
	Int32   VoxelType = "int32"
	Uint64  VoxelType = "uint64"
	Int64   VoxelType = "int64"
	Float32 VoxelType = "float32"
	Float64 VoxelType = "float64"
	RGB24   VoxelType = "rgb24"
)

// Size returns the number of bytes per voxel, or 0 for an unknown type.
func (t VoxelType) Size() int {
	switch VoxelType(strings.ToLower(string(t))) {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case RGB24:
		return 3
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// WordSize returns the size of one scalar component, which is what byte order
// applies to. It differs from Size only for multi-component types.
func (t VoxelType) WordSize() int {
	if VoxelType(strings.ToLower(string(t))) == RGB24 {
		return 1
	}
	return t.Size()
}

// ByteOrder of multi-byte voxels in a shard file.
type ByteOrder string

const (
	LittleEndian ByteOrder = "little"
	BigEndian    ByteOrder = "big"
)

// CodecParams is passed through to the Factory untouched. The core only reads
// VoxelType, to size line buffers.
type CodecParams struct {
	Format      string    `json:"format" yaml:"format"`
	VoxelType   VoxelType `json:"voxel_type" yaml:"voxel_type"`
	ByteOrder   ByteOrder `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	Compression int       `json:"compression,omitempty" yaml:"compression,omitempty"`
}

// Descriptor places one shard inside the global volume.
type Descriptor struct {
	// Index orders shards within a set. Ties keep their input order.
	Index int `json:"index" yaml:"index"`

	// Filename identifies the shard to the Factory: an object key or a URL.
	Filename string `json:"filename" yaml:"filename"`

	// LocalExtent is the size of the shard's own coordinate space.
	LocalExtent Coord `json:"local_extent" yaml:"local_extent"`

	// Coverage is every global voxel the shard stores, overlap included.
	Coverage Region `json:"coverage" yaml:"coverage"`

	// ROI is the part of Coverage the shard is authoritative for.
	ROI Region `json:"roi" yaml:"roi"`

	Codec CodecParams `json:"codec" yaml:"codec"`
}

// Origin is the global coordinate of local (0, 0, 0).
func (d Descriptor) Origin() Coord {
	return d.Coverage.Start
}

// Validate checks coverageStart <= roiStart <= roiEnd <= coverageEnd and that
// the local extent matches the coverage size.
func (d Descriptor) Validate() error {
	if d.Coverage.Empty() {
		return fmt.Errorf("%w: shard %d: empty coverage %s", ErrInvalidDescriptor, d.Index, d.Coverage)
	}
	if d.ROI.Empty() {
		return fmt.Errorf("%w: shard %d: empty roi %s", ErrInvalidDescriptor, d.Index, d.ROI)
	}
	if !d.ROI.Within(d.Coverage) {
		return fmt.Errorf("%w: shard %d: roi %s outside coverage %s", ErrInvalidDescriptor, d.Index, d.ROI, d.Coverage)
	}
	if d.LocalExtent != d.Coverage.Size() {
		return fmt.Errorf("%w: shard %d: local extent %s does not match coverage size %s",
			ErrInvalidDescriptor, d.Index, d.LocalExtent, d.Coverage.Size())
	}
	return nil
}

// sortDescriptors returns a copy of descs ordered by Index.
func sortDescriptors(descs []Descriptor) []Descriptor {
	sorted := slices.Clone(descs)
	slices.SortStableFunc(sorted, func(a, b Descriptor) int {
		return a.Index - b.Index
	})
	return sorted
}

// checkDisjointROIs returns ErrInvalidDescriptor for the first pair of
// descriptors whose ROIs overlap.
func checkDisjointROIs(descs []Descriptor) error {
	for a := 0; a < len(descs); a++ {
		for b := a + 1; b < len(descs); b++ {
			if overlap := descs[a].ROI.Intersect(descs[b].ROI); !overlap.Empty() {
				return fmt.Errorf("%w: shards %d and %d have overlapping roi %s",
					ErrInvalidDescriptor, descs[a].Index, descs[b].Index, overlap)
			}
		}
	}
	return nil
}
