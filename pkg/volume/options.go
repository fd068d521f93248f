package volume

import (
	"context"

	"go.uber.org/zap"
)

// Options configures combined readers and writers.
type Options struct {
	Logger *zap.Logger

	// LineHook, if set, is called after each line a Writer stores.
	LineHook func(d Descriptor, voxels int)
}

// Option is a functional option for NewReader, NewWriter and Copy.
type Option func(*Options)

// WithLogger sets the logger used for shard lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithLineHook registers a callback invoked after every written line.
func WithLineHook(fn func(d Descriptor, voxels int)) Option {
	return func(o *Options) {
		o.LineHook = fn
	}
}

func buildOptions(options []Option) Options {
	opts := Options{Logger: zap.NewNop()}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

// openShards sorts descs by index and wraps each in a Shard using open.
func openShards(descs []Descriptor, open OpenFunc, log *zap.Logger) ([]*Shard, error) {
	sorted := sortDescriptors(descs)
	shards := make([]*Shard, 0, len(sorted))
	for _, d := range sorted {
		s, err := NewShard(d, loggedOpen(open, log))
		if err != nil {
			return nil, err
		}
		shards = append(shards, s)
	}
	return shards, nil
}

func loggedOpen(open OpenFunc, log *zap.Logger) OpenFunc {
	return func(ctx context.Context, d Descriptor) (Source, error) {
		src, err := open(ctx, d)
		if err != nil {
			log.Warn("open shard failed", zap.Int("index", d.Index), zap.String("file", d.Filename), zap.Error(err))
			return nil, err
		}
		log.Debug("opened shard", zap.Int("index", d.Index), zap.String("file", d.Filename),
			zap.Stringer("coverage", d.Coverage), zap.Stringer("roi", d.ROI))
		return src, nil
	}
}
