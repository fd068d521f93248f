package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligustah/volsplit/pkg/volume"
)

// deleteCommand removes a volume and all its shards from object storage.
// It prompts for confirmation unless --force is set.
func (c *cli) deleteCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a volume and all its shards from storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if !c.cfg.Force {
				fmt.Fprintf(c.stdout, "Delete volume %s from %s? [y/N]: ", name, c.cfg.Bucket)
				response, _ := bufio.NewReader(c.stdin).ReadString('\n')
				response = strings.TrimSpace(strings.ToLower(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(c.stderr, "Cancelled")
					return nil
				}
			}

			bkt, err := c.openBucket(ctx)
			if err != nil {
				return err
			}
			defer bkt.Close()

			if _, err := c.loadManifest(ctx, bkt, name); err != nil {
				return err
			}
			if err := volume.Delete(ctx, bkt, name); err != nil {
				return exitf(ExitStorageError, "%w", err)
			}

			fmt.Fprintf(c.stderr, "[volsplit] Deleted: %s\n", volume.ManifestPath(name))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the volume (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}
