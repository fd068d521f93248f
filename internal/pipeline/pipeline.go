package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/volsplit/internal/progress"
	"github.com/ligustah/volsplit/pkg/volume"
)

// Options configures a pipeline run.
type Options struct {
	// Workers is the number of output shards written at once. Each worker
	// opens its own input reader, so a compressed input is decoded into
	// memory once per worker: peak memory is roughly Workers times the
	// decoded size of the largest compressed input shard.
	// Default: 1
	Workers int

	// Factory opens the input and output shards.
	Factory volume.Factory

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// ShardError records which output shard failed.
type ShardError struct {
	Index    int
	Filename string
	Err      error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %d (%s): %v", e.Index, e.Filename, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }

// TotalBytes is the number of voxel bytes written when filling out, overlap
// included.
func TotalBytes(out []volume.Descriptor) int64 {
	var n int64
	for _, d := range out {
		n += d.Coverage.Voxels() * int64(d.Codec.VoxelType.Size())
	}
	return n
}

// Run reads the volume described by in and writes it as the shards described
// by out. With one worker the result and the order of writes are those of
// volume.Copy.
func Run(ctx context.Context, in, out []volume.Descriptor, opts Options) (err error) {
	if opts.Factory == nil {
		return errors.New("pipeline: no factory")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	writerOpts := []volume.Option{volume.WithLogger(log)}
	if rep := opts.Progress; rep != nil {
		writerOpts = append(writerOpts, volume.WithLineHook(func(d volume.Descriptor, voxels int) {
			rep.BytesWritten(int64(voxels * d.Codec.VoxelType.Size()))
		}))
	}

	w, err := volume.NewWriter(out, opts.Factory, writerOpts...)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() { err = multierr.Append(err, w.Close()) }()

	readers := make([]*volume.Reader, min(opts.Workers, w.Len()))
	defer func() {
		for _, r := range readers {
			if r != nil {
				err = multierr.Append(err, r.Close())
			}
		}
	}()
	for i := range readers {
		r, err := volume.NewReader(in, opts.Factory, volume.WithLogger(log))
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		readers[i] = r
	}

	log.Info("copying volume",
		zap.Int("input_shards", len(in)),
		zap.Int("output_shards", w.Len()),
		zap.Int("workers", len(readers)))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < w.Len(); i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, r := range readers {
		r := r
		g.Go(func() error {
			for i := range jobs {
				if err := copyShard(gctx, w, i, r, opts.Progress, log); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// copyShard fills one output shard from r.
func copyShard(ctx context.Context, w *volume.Writer, i int, r *volume.Reader, reporter *progress.Reporter, log *zap.Logger) error {
	d := w.Descriptor(i)
	if reporter != nil {
		reporter.ShardStarted()
	}

	if err := w.WriteShard(ctx, i, r); err != nil {
		if reporter != nil {
			reporter.ShardFailed()
		}
		if ctx.Err() == nil {
			log.Error("shard failed", zap.Int("index", d.Index), zap.String("file", d.Filename), zap.Error(err))
		}
		return &ShardError{Index: d.Index, Filename: d.Filename, Err: err}
	}

	if reporter != nil {
		reporter.ShardCompleted()
	}
	log.Debug("shard written", zap.Int("index", d.Index), zap.String("file", d.Filename))
	return nil
}
