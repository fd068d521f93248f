package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gocloud.dev/blob"

	"github.com/ligustah/volsplit/internal/codec"
	"github.com/ligustah/volsplit/internal/pipeline"
	"github.com/ligustah/volsplit/internal/progress"
	"github.com/ligustah/volsplit/pkg/volume"
)

// validateCommand checks that a volume's shards tile it and that every shard
// object exists with the expected size. With --read it also decodes every
// voxel.
func (c *cli) validateCommand() *cobra.Command {
	var name string
	var read bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Verify that a volume's shards tile it and exist in storage",
		Long: `Verify that the authoritative regions of a volume's shards cover it exactly
once and that every shard object exists with the size its extent implies.
Sizes of compressed shards are only checked with --read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			bkt, err := c.openBucket(ctx)
			if err != nil {
				return err
			}
			defer bkt.Close()

			m, err := c.loadManifest(ctx, bkt, name)
			if err != nil {
				return err
			}

			tiling := volume.CheckTiling(m.Shards, m.Extent)
			objects, err := volume.CheckObjects(ctx, bkt, m, codec.ExpectedSize)
			if err != nil {
				return exitf(ExitStorageError, "%w", err)
			}

			out := c.stdout
			fmt.Fprintf(out, "Volume: %s\n", name)
			fmt.Fprintf(out, "Extent: %s %s (%s)\n", m.Extent, m.VoxelType,
				progress.FormatBytes(m.Extent.Voxels()*int64(m.VoxelType.Size())))
			fmt.Fprintf(out, "Shards: %d (%s stored)\n", len(m.Shards), progress.FormatBytes(pipeline.TotalBytes(m.Shards)))

			errs := append(tiling.Errors, objects.Errors...)
			if tiling.Valid && objects.Valid && read {
				if err := c.readVolume(ctx, bkt, m); err != nil {
					errs = append(errs, err.Error())
				}
			}

			if len(errs) == 0 {
				fmt.Fprintln(out, "Status: VALID")
				return nil
			}

			fmt.Fprintln(out, "Status: INVALID")
			fmt.Fprintf(out, "Covered voxels: %d of %d\n", tiling.Covered, tiling.Voxels)
			fmt.Fprintf(out, "Overlapping shards: %d\n", tiling.Overlaps)
			fmt.Fprintf(out, "Missing shards: %d\n", objects.MissingShards)
			fmt.Fprintf(out, "Size mismatches: %d\n", objects.SizeMismatches)
			fmt.Fprintln(out, "\nErrors:")
			for _, e := range errs {
				fmt.Fprintf(out, "  - %s\n", e)
			}
			return exitf(ExitValidationFailed, "volume %q is invalid", name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the volume (required)")
	cmd.Flags().BoolVar(&read, "read", false, "Also read and decode every voxel")
	cmd.MarkFlagRequired("name")
	return cmd
}

// readVolume streams the whole volume through a Reader.
func (c *cli) readVolume(ctx context.Context, bkt *blob.Bucket, m *volume.Manifest) (err error) {
	r, err := volume.NewReader(m.Descriptors(), c.factory(bkt))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	for k := 0; k < m.Extent[2]; k++ {
		for j := 0; j < m.Extent[1]; j++ {
			if _, err := r.ReadStream(ctx, volume.Coord{0, j, k}, m.Extent[0]); err != nil {
				return err
			}
		}
	}
	return nil
}
