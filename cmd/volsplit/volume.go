package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gocloud.dev/blob"

	"github.com/ligustah/volsplit/internal/codec"
	"github.com/ligustah/volsplit/internal/pipeline"
	"github.com/ligustah/volsplit/internal/progress"
	"github.com/ligustah/volsplit/pkg/volume"
)

func (c *cli) importCommand() *cobra.Command {
	var name, object, extent, voxelType, byteOrder, format string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Register an existing single-file volume",
		Long: `Write a manifest for a volume stored as one file, so it can be used as the
input of split, combine and copy. The object is not copied; deleting the
imported volume deletes it.

For --format http, --object is the URL of the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			size, err := volume.ParseCoord(extent)
			if err != nil {
				return exitf(ExitInvalidArgs, "--extent: %w", err)
			}
			vt := volume.VoxelType(voxelType)
			if vt.Size() == 0 {
				return exitf(ExitInvalidArgs, "unknown voxel type %q", voxelType)
			}

			bkt, err := c.openBucket(ctx)
			if err != nil {
				return err
			}
			defer bkt.Close()

			if err := c.checkOutput(ctx, bkt, name); err != nil {
				return err
			}

			params := volume.CodecParams{Format: format, VoxelType: vt, ByteOrder: volume.ByteOrder(byteOrder)}
			m := volume.NewManifest(name, size, vt, volume.Whole(size, object, params))
			m.PartsPrefix = ""
			m.Metadata = map[string]string{"source": object}

			// Open the file once so a missing object or wrong extent fails here.
			src, err := c.factory(bkt).OpenRead(ctx, m.Descriptors()[0])
			if err != nil {
				return err
			}
			src.Close()

			if err := volume.SaveManifest(ctx, bkt, name, m); err != nil {
				return exitf(ExitStorageError, "%w", err)
			}
			fmt.Fprintf(c.stderr, "[volsplit] Imported: %s (%s %s)\n", volume.ManifestPath(name), size, vt)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Name of the new volume (required)")
	f.StringVar(&object, "object", "", "Object key or URL of the volume file (required)")
	f.StringVar(&extent, "extent", "", "Volume size as IxJxK (required)")
	f.StringVar(&voxelType, "voxel-type", "", "Voxel type, e.g. uint8, uint16, float32 (required)")
	f.StringVar(&byteOrder, "byte-order", "", "Byte order of the file: little or big")
	f.StringVar(&format, "format", codec.FormatRaw, "File format: raw, zstd, gzip or http")
	for _, req := range []string{"name", "object", "extent", "voxel-type"} {
		cmd.MarkFlagRequired(req)
	}
	return cmd
}

// layoutFlags are the shard layout settings a command may override.
type layoutFlags struct {
	block, overlap, maxSize, format, byteOrder string
	compression                                int
}

func (l *layoutFlags) register(cmd *cobra.Command, grid bool) {
	f := cmd.Flags()
	if grid {
		f.StringVar(&l.block, "block", "", "Largest shard ROI as IxJxK")
		f.StringVar(&l.overlap, "overlap", "", "Overlap added on each side of a shard as IxJxK")
		f.StringVar(&l.maxSize, "max-shard-size", "", "Largest shard ROI in bytes when --block is unset, e.g. 256MiB")
	}
	f.StringVar(&l.format, "format", "", "Shard format: raw, zstd or gzip")
	f.StringVar(&l.byteOrder, "byte-order", "", "Shard byte order: little or big")
	f.IntVar(&l.compression, "compression", 0, "Compression level for zstd and gzip")
}

// apply overrides the configured shard settings with the flags that were set.
func (l *layoutFlags) apply(c *cli, cmd *cobra.Command) error {
	f := cmd.Flags()
	s := &c.cfg.Shards
	if f.Changed("block") {
		b, err := volume.ParseCoord(l.block)
		if err != nil {
			return exitf(ExitInvalidArgs, "--block: %w", err)
		}
		s.Block = b
	}
	if f.Changed("overlap") {
		o, err := volume.ParseCoord(l.overlap)
		if err != nil {
			return exitf(ExitInvalidArgs, "--overlap: %w", err)
		}
		s.Overlap = o
	}
	if f.Changed("max-shard-size") {
		n, err := progress.ParseBytes(l.maxSize)
		if err != nil {
			return exitf(ExitInvalidArgs, "--max-shard-size: %w", err)
		}
		s.MaxSize = n
	}
	if f.Changed("format") {
		s.Format = l.format
	}
	if f.Changed("byte-order") {
		s.ByteOrder = l.byteOrder
	}
	if f.Changed("compression") {
		s.Compression = l.compression
	}
	if s.Format == codec.FormatHTTP {
		return exitf(ExitInvalidArgs, "format %q is read-only", s.Format)
	}
	if err := c.cfg.Validate(); err != nil {
		return exitf(ExitInvalidArgs, "%w", err)
	}
	return nil
}

func (c *cli) splitCommand() *cobra.Command {
	var in, out string
	var layout layoutFlags

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a volume into a grid of overlapping shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := layout.apply(c, cmd); err != nil {
				return err
			}
			return c.convert(cmd.Context(), in, out, func(m *volume.Manifest) ([]volume.Descriptor, error) {
				s := c.cfg.Shards
				block := s.Block
				if block == (volume.Coord{}) {
					var err error
					block, err = volume.BlockForSize(m.Extent, m.VoxelType.Size(), s.MaxSize)
					if err != nil {
						return nil, exitf(ExitInvalidArgs, "%w", err)
					}
				}
				ext := codec.Extension(s.Format)
				return volume.Plan(volume.Grid{
					Extent:  m.Extent,
					Block:   block,
					Overlap: s.Overlap,
					Codec:   c.cfg.Codec(m.VoxelType),
					Name:    func(i int) string { return volume.ShardObject(i) + "." + ext },
				})
			})
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Name of the volume to split (required)")
	cmd.Flags().StringVar(&out, "output", "", "Name of the new volume (required)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	layout.register(cmd, true)
	return cmd
}

func (c *cli) combineCommand() *cobra.Command {
	var in, out string
	var layout layoutFlags

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Combine a sharded volume into a single file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := layout.apply(c, cmd); err != nil {
				return err
			}
			return c.convert(cmd.Context(), in, out, func(m *volume.Manifest) ([]volume.Descriptor, error) {
				name := "volume." + codec.Extension(c.cfg.Shards.Format)
				return volume.Whole(m.Extent, name, c.cfg.Codec(m.VoxelType)), nil
			})
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Name of the sharded volume (required)")
	cmd.Flags().StringVar(&out, "output", "", "Name of the new volume (required)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	layout.register(cmd, false)
	return cmd
}

func (c *cli) copyCommand() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Fill the shards of an existing volume layout from another volume",
		Long: `Read --input and write every shard listed in the manifest of --output.
Both volumes must have the same extent. The output manifest is left as is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if in == out {
				return exitf(ExitInvalidArgs, "input and output are the same volume")
			}

			bkt, err := c.openBucket(ctx)
			if err != nil {
				return err
			}
			defer bkt.Close()

			src, err := c.loadManifest(ctx, bkt, in)
			if err != nil {
				return err
			}
			dst, err := c.loadManifest(ctx, bkt, out)
			if err != nil {
				return err
			}
			if src.Extent != dst.Extent {
				return exitf(ExitInvalidArgs, "extent %s of %q does not match extent %s of %q", src.Extent, in, dst.Extent, out)
			}
			return c.copyVolume(ctx, bkt, in, src, out, dst, false)
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Name of the source volume (required)")
	cmd.Flags().StringVar(&out, "output", "", "Name of the destination volume (required)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

// convert writes the volume in into a new volume out whose shards are laid
// out by plan.
func (c *cli) convert(ctx context.Context, in, out string, plan func(*volume.Manifest) ([]volume.Descriptor, error)) error {
	if in == out {
		return exitf(ExitInvalidArgs, "input and output are the same volume")
	}

	bkt, err := c.openBucket(ctx)
	if err != nil {
		return err
	}
	defer bkt.Close()

	src, err := c.loadManifest(ctx, bkt, in)
	if err != nil {
		return err
	}
	if err := c.checkOutput(ctx, bkt, out); err != nil {
		return err
	}

	shards, err := plan(src)
	if err != nil {
		return err
	}
	dst := volume.NewManifest(out, src.Extent, src.VoxelType, shards)
	dst.Metadata = map[string]string{"source": in}

	return c.copyVolume(ctx, bkt, in, src, out, dst, true)
}

// copyVolume runs the pipeline from src to dst and, if save is set, writes the
// destination manifest once every shard is stored.
func (c *cli) copyVolume(ctx context.Context, bkt *blob.Bucket, in string, src *volume.Manifest, out string, dst *volume.Manifest, save bool) error {
	inShards, outShards := src.Descriptors(), dst.Descriptors()

	var reporter *progress.Reporter
	if c.cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize:      pipeline.TotalBytes(outShards),
			TotalShards:    len(outShards),
			Workers:        c.cfg.Workers,
			Output:         c.stderr,
			UpdateInterval: time.Second,
			Source:         volume.ManifestPath(in),
			Destination:    volume.ManifestPath(out),
		})
		reporter.Start()
		defer reporter.Stop()
	}

	err := pipeline.Run(ctx, inShards, outShards, pipeline.Options{
		Workers:  c.cfg.Workers,
		Factory:  c.factory(bkt),
		Progress: reporter,
		Logger:   c.log,
	})
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		if ctx.Err() != nil {
			return exitf(ExitGeneralError, "interrupted: %w", err)
		}
		return err
	}

	if save {
		if err := volume.SaveManifest(ctx, bkt, out, dst); err != nil {
			return exitf(ExitStorageError, "%w", err)
		}
	}
	fmt.Fprintf(c.stderr, "[volsplit] Wrote %d shards: %s\n", len(outShards), volume.ManifestPath(out))
	return nil
}

// checkOutput refuses to replace an existing volume unless forced.
func (c *cli) checkOutput(ctx context.Context, bkt *blob.Bucket, name string) error {
	exists, err := bkt.Exists(ctx, volume.ManifestPath(name))
	if err != nil {
		return exitf(ExitStorageError, "check output: %w", err)
	}
	if exists && !c.cfg.Force {
		return exitf(ExitOutputExists, "volume %q already exists (use --force to overwrite)", name)
	}
	return nil
}
