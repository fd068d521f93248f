package volume

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Manifest is a persisted descriptor set for one volume.
type Manifest struct {
	Extent      Coord             `json:"extent"`
	VoxelType   VoxelType         `json:"voxel_type"`
	PartsPrefix string            `json:"parts_prefix"`
	Shards      []Descriptor      `json:"shards"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ManifestPath returns the object key of a volume's manifest.
func ManifestPath(name string) string {
	return name + ".manifest.json"
}

// PartsPrefix returns the key prefix under which a volume's shards live.
func PartsPrefix(name string) string {
	return name + ".shards/"
}

// NewManifest builds a manifest for shards stored under name. Shard filenames
// are kept relative to the parts prefix.
func NewManifest(name string, extent Coord, voxelType VoxelType, shards []Descriptor) *Manifest {
	return &Manifest{
		Extent:      extent,
		VoxelType:   voxelType,
		PartsPrefix: PartsPrefix(name),
		Shards:      shards,
		CreatedAt:   time.Now().UTC(),
	}
}

// Descriptors returns the shard descriptors with filenames resolved to full
// object keys. Filenames that are URLs are left alone.
func (m *Manifest) Descriptors() []Descriptor {
	out := make([]Descriptor, len(m.Shards))
	for i, d := range m.Shards {
		if !strings.Contains(d.Filename, "://") {
			d.Filename = m.PartsPrefix + d.Filename
		}
		out[i] = d
	}
	return out
}

// LoadManifest reads the manifest of the named volume.
func LoadManifest(ctx context.Context, bucket *blob.Bucket, name string) (*Manifest, error) {
	data, err := bucket.ReadAll(ctx, ManifestPath(name))
	if err != nil {
		return nil, fmt.Errorf("volume: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("volume: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// SaveManifest writes m as the manifest of the named volume.
func SaveManifest(ctx context.Context, bucket *blob.Bucket, name string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("volume: marshal manifest: %w", err)
	}
	if err := bucket.WriteAll(ctx, ManifestPath(name), data, nil); err != nil {
		return fmt.Errorf("volume: write manifest: %w", err)
	}
	return nil
}

// Delete removes the named volume's shards and then its manifest. Missing
// shards are ignored. A failed shard deletion does not stop the others, but
// the manifest is kept if any shard could not be removed.
func Delete(ctx context.Context, bucket *blob.Bucket, name string) error {
	m, err := LoadManifest(ctx, bucket, name)
	if err != nil {
		return err
	}

	var errs error
	for _, d := range m.Descriptors() {
		if strings.Contains(d.Filename, "://") {
			continue
		}
		if err := bucket.Delete(ctx, d.Filename); err != nil && !isNotExist(err) {
			errs = multierr.Append(errs, fmt.Errorf("volume: delete shard %s: %w", d.Filename, err))
		}
	}
	if errs != nil {
		return errs
	}

	if err := bucket.Delete(ctx, ManifestPath(name)); err != nil {
		return fmt.Errorf("volume: delete manifest: %w", err)
	}
	return nil
}

// ObjectReport is the result of checking a manifest's shard objects.
type ObjectReport struct {
	Valid          bool
	MissingShards  int
	SizeMismatches int
	Errors         []string
}

// CheckObjects verifies that every bucket-resident shard of m exists. If
// expectedSize knows the stored size of a shard, the size is checked too.
func CheckObjects(ctx context.Context, bucket *blob.Bucket, m *Manifest, expectedSize func(Descriptor) (int64, bool)) (*ObjectReport, error) {
	rep := &ObjectReport{Valid: true, Errors: make([]string, 0)}

	for _, d := range m.Descriptors() {
		if strings.Contains(d.Filename, "://") {
			continue
		}
		attrs, err := bucket.Attributes(ctx, d.Filename)
		if err != nil {
			if isNotExist(err) {
				rep.Valid = false
				rep.MissingShards++
				rep.Errors = append(rep.Errors, fmt.Sprintf("shard %d missing: %s", d.Index, d.Filename))
				continue
			}
			return nil, fmt.Errorf("volume: check shard %d: %w", d.Index, err)
		}

		if expectedSize == nil {
			continue
		}
		if want, ok := expectedSize(d); ok && attrs.Size != want {
			rep.Valid = false
			rep.SizeMismatches++
			rep.Errors = append(rep.Errors,
				fmt.Sprintf("shard %d size mismatch: expected %d, got %d", d.Index, want, attrs.Size))
		}
	}
	return rep, nil
}

func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
