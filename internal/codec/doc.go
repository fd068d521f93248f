// Package codec implements the shard file formats behind volume.Source and the
// factory that picks one from a descriptor's codec parameters.
//
// Formats:
//   - raw:  uncompressed voxels, i fastest, then j, then k. No header.
//   - zstd: the raw layout as a single zstd stream.
//   - gzip: the raw layout as a single gzip stream.
//   - http: raw layout served over HTTP; read-only, one range request per line.
//
// Shards live in a gocloud.dev/blob bucket, so the same formats work for local
// directories (file://), memory (mem://), S3 (s3://) and GCS (gs://).
//
// Write sources stream: lines must arrive in storage order, which is the order
// volume.Writer produces. A write source closed before every voxel was written
// discards what it has rather than committing a truncated object.
package codec
