// Package volume presents a set of overlapping shard files as one addressable
// three-dimensional voxel volume, and splits a volume back into such shards.
//
// Each shard is described by a [Descriptor]. Its coverage region is every
// global voxel the shard physically stores, including overlap with its
// neighbours. Its region of interest (ROI) is the subset for which the shard
// is the single authoritative source. ROIs of a shard set never overlap.
//
// # Reading
//
// [NewReader] opens a combined reader over a descriptor set. [Reader.ReadStream]
// reads a contiguous run of voxels along the first axis, crossing shard
// boundaries transparently:
//
//	r, err := volume.NewReader(descs, factory)
//	line, err := r.ReadStream(ctx, volume.Coord{0, 4, 7}, 512)
//
// # Writing
//
// [NewWriter] opens a combined writer. [Writer.WriteFrom] regenerates every voxel
// each output shard stores (its whole coverage, not just its ROI) by pulling
// lines from a source reader.
//
// [Copy] composes both: it reads one descriptor set and writes another.
//
// # Data sources
//
// The package never touches a file format. A [Factory] turns a descriptor into
// a [Source] that reads and writes lines in the shard's local coordinates.
// See internal/codec for the concrete formats.
//
// # Manifests
//
// A descriptor set is persisted next to its shards in a gocloud bucket:
//
//	{bucket}/{name}.manifest.json
//	{bucket}/{name}.shards/shard-000000.raw
//	{bucket}/{name}.shards/shard-000001.raw
package volume
