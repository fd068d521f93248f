// Package progress reports the progress of a volume copy.
//
// The reporter writes human-readable lines to stderr: percentage of voxel
// bytes written, throughput, ETA and shard counts.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize:   totalBytes,
//	    TotalShards: len(shards),
//	    Output:      os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.ShardStarted()
//	reporter.BytesWritten(lineBytes)
//	reporter.ShardCompleted()
//
// # Output Format
//
//	[volsplit] Copying: scan.manifest.json -> scan-split.manifest.json
//	[volsplit] Total size: 2.0 GiB | Shards: 64 | Workers: 8
//	[volsplit] Progress: 45.2% | 925 MiB / 2.0 GiB | Speed: 310 MiB/s | ETA: 3s
//	[volsplit] Shards: 28 completed | 8 in-progress | 28 pending
package progress
