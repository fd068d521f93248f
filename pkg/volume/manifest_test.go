package volume

import (
	"context"
	"testing"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func openMemBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := openMemBucket(t)

	descs, err := Plan(Grid{
		Extent: Coord{8, 8, 8},
		Block:  Coord{4, 8, 8},
		Codec:  CodecParams{Format: "raw", VoxelType: Uint8},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	descs = append(descs, Descriptor{
		Index:       2,
		Filename:    "https://example.com/extra.raw",
		LocalExtent: Coord{1, 1, 1},
		Coverage:    Region{Start: Coord{8, 0, 0}, End: Coord{8, 0, 0}},
		ROI:         Region{Start: Coord{8, 0, 0}, End: Coord{8, 0, 0}},
	})

	m := NewManifest("vol/brain", Coord{8, 8, 8}, Uint8, descs)
	m.Metadata = map[string]string{"source": "scanner-3"}
	if err := SaveManifest(ctx, bucket, "vol/brain", m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, err := LoadManifest(ctx, bucket, "vol/brain")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.Extent != (Coord{8, 8, 8}) || got.VoxelType != Uint8 {
		t.Fatalf("unexpected manifest header: %+v", got)
	}
	if got.Metadata["source"] != "scanner-3" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}

	resolved := got.Descriptors()
	if resolved[0].Filename != "vol/brain.shards/shard-000000" {
		t.Errorf("unexpected resolved filename %q", resolved[0].Filename)
	}
	if resolved[2].Filename != "https://example.com/extra.raw" {
		t.Errorf("url filename rewritten to %q", resolved[2].Filename)
	}
	if got.Shards[0].Filename != "shard-000000" {
		t.Errorf("Descriptors modified the manifest: %q", got.Shards[0].Filename)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := LoadManifest(context.Background(), openMemBucket(t), "nope"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestDeleteAndCheckObjects(t *testing.T) {
	ctx := context.Background()
	bucket := openMemBucket(t)

	descs, err := Plan(Grid{Extent: Coord{4, 2, 1}, Block: Coord{2, 0, 0}, Codec: CodecParams{VoxelType: Uint8}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	m := NewManifest("v", Coord{4, 2, 1}, Uint8, descs)
	if err := SaveManifest(ctx, bucket, "v", m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	resolved := m.Descriptors()
	if err := bucket.WriteAll(ctx, resolved[0].Filename, make([]byte, 4), nil); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	if err := bucket.WriteAll(ctx, resolved[1].Filename, make([]byte, 3), nil); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	size := func(d Descriptor) (int64, bool) { return d.LocalExtent.Voxels(), true }
	rep, err := CheckObjects(ctx, bucket, m, size)
	if err != nil {
		t.Fatalf("CheckObjects: %v", err)
	}
	if rep.Valid || rep.SizeMismatches != 1 || rep.MissingShards != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	if err := Delete(ctx, bucket, "v"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, key := range []string{resolved[0].Filename, resolved[1].Filename, ManifestPath("v")} {
		if ok, _ := bucket.Exists(ctx, key); ok {
			t.Errorf("%s still exists", key)
		}
	}

	rep, err = CheckObjects(ctx, bucket, m, nil)
	if err != nil {
		t.Fatalf("CheckObjects: %v", err)
	}
	if rep.Valid || rep.MissingShards != 2 {
		t.Fatalf("unexpected report after delete: %+v", rep)
	}
}
