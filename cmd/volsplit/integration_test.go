//go:build integration

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/volsplit/internal/codec"
	"github.com/ligustah/volsplit/internal/testutils"
	"github.com/ligustah/volsplit/pkg/volume"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	extent := volume.Coord{64, 48, 20}
	data := testutils.GenerateVolume(t, extent, 2)

	t.Log("Starting HTTP test server...")
	server := testutils.StartTestHTTPServer(t, []testutils.VolumeFile{{Name: "scan.raw", Data: data}})
	defer server.Close()

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	bkt, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bkt.Close()

	cli := func(t *testing.T, want int, args ...string) result {
		t.Helper()
		res := runCLI(t, "", append(args, "--bucket", minio.BucketURL)...)
		if res.code != want {
			t.Fatalf("%s exited %d, want %d\nstdout: %s\nstderr: %s", args[0], res.code, want, res.stdout, res.stderr)
		}
		return res
	}

	t.Run("import_http", func(t *testing.T) {
		cli(t, ExitSuccess, "import", "--name", "remote",
			"--object", server.URL+"/scan.raw", "--format", "http",
			"--extent", "64x48x20", "--voxel-type", "uint16")
	})

	t.Run("split", func(t *testing.T) {
		cli(t, ExitSuccess, "split", "--input", "remote", "--output", "tiles",
			"--block", "32x16x8", "--overlap", "2x2x1",
			"--format", "zstd", "--workers", "4", "--progress")
	})

	t.Run("validate", func(t *testing.T) {
		res := cli(t, ExitSuccess, "validate", "--name", "tiles", "--read")
		if !strings.Contains(res.stdout, "Status: VALID") {
			t.Fatalf("expected valid volume:\n%s", res.stdout)
		}
	})

	t.Run("combine", func(t *testing.T) {
		cli(t, ExitSuccess, "combine", "--input", "tiles", "--output", "merged", "--byte-order", "big")
		compare(t, ctx, bkt, "merged", extent, data)
	})

	t.Run("split_by_size", func(t *testing.T) {
		cli(t, ExitSuccess, "split", "--input", "merged", "--output", "bricks",
			"--max-shard-size", "16KiB", "--format", "gzip", "--workers", "3")

		m, err := volume.LoadManifest(ctx, bkt, "bricks")
		if err != nil {
			t.Fatalf("load manifest: %v", err)
		}
		for _, d := range m.Shards {
			if size := d.ROI.Voxels() * 2; size > 16*1024 {
				t.Errorf("shard %d roi is %d bytes", d.Index, size)
			}
		}
		compare(t, ctx, bkt, "bricks", extent, data)
	})

	t.Run("delete", func(t *testing.T) {
		for _, name := range []string{"tiles", "merged", "bricks", "remote"} {
			cli(t, ExitSuccess, "delete", "--name", name, "--force")
		}
		cli(t, ExitSourceNotAccess, "validate", "--name", "tiles")
	})
}

func compare(t *testing.T, ctx context.Context, bkt *blob.Bucket, name string, extent volume.Coord, data []byte) {
	t.Helper()

	m, err := volume.LoadManifest(ctx, bkt, name)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	r, err := volume.NewReader(m.Descriptors(), codec.NewFactory(bkt))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	defer r.Close()

	testutils.CompareVolume(t, ctx, r, extent, data)
}
