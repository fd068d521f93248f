// Package pipeline copies a sharded volume into a new shard layout using a
// pool of workers.
//
// # Usage
//
//	err := pipeline.Run(ctx, in, out, pipeline.Options{
//	    Workers:  8,
//	    Factory:  codec.NewFactory(bucket),
//	    Progress: reporter,
//	    Logger:   log,
//	})
//
// # Worker Pool
//
// Output shards are handed to workers through a channel in index order. Each
// worker owns a volume.Reader over the input, so the reader's locality cache
// follows that worker's shard. The output volume.Writer is shared: distinct
// shards may be written concurrently.
//
// The first failing shard cancels the others. Every reader and the writer are
// closed before Run returns, and an output shard that was not written in full
// is discarded by its codec rather than committed.
package pipeline
