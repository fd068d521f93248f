package volume

import "fmt"

// TilingReport describes how well a descriptor set's ROIs tile a volume.
type TilingReport struct {
	Valid      bool     // true if ROIs cover the volume exactly once
	Shards     int      // number of descriptors
	Voxels     int64    // voxels in the volume
	Covered    int64    // sum of ROI voxels inside the volume
	Overlaps   int      // pairs of shards with intersecting ROIs
	OutOfRange int      // shards whose ROI leaves the volume
	Invalid    int      // descriptors failing Validate
	Errors     []string // detailed messages
}

// CheckTiling reports whether the ROIs of descs tile the volume of the given
// extent with no gaps and no overlaps. Readers and writers never call it:
// it is an explicit check for tools that want one.
func CheckTiling(descs []Descriptor, extent Coord) TilingReport {
	whole := Region{End: extent.Sub(Coord{1, 1, 1})}
	rep := TilingReport{
		Valid:  true,
		Shards: len(descs),
		Voxels: whole.Voxels(),
		Errors: make([]string, 0),
	}

	for _, d := range descs {
		if err := d.Validate(); err != nil {
			rep.Invalid++
			rep.Errors = append(rep.Errors, err.Error())
		}
		if !d.ROI.Within(whole) {
			rep.OutOfRange++
			rep.Errors = append(rep.Errors, fmt.Sprintf("shard %d roi %s leaves volume %s", d.Index, d.ROI, whole))
		}
		rep.Covered += d.ROI.Intersect(whole).Voxels()
	}

	for a := 0; a < len(descs); a++ {
		for b := a + 1; b < len(descs); b++ {
			o := descs[a].ROI.Intersect(descs[b].ROI).Intersect(whole)
			if o.Empty() {
				continue
			}
			rep.Overlaps++
			rep.Errors = append(rep.Errors,
				fmt.Sprintf("shards %d and %d overlap at %s", descs[a].Index, descs[b].Index, o))
		}
	}

	// With pairwise-disjoint ROIs inside the volume, the volume is tiled
	// exactly when the claimed voxel counts add up.
	if rep.Overlaps == 0 && rep.Covered != rep.Voxels {
		rep.Errors = append(rep.Errors,
			fmt.Sprintf("rois cover %d of %d voxels", rep.Covered, rep.Voxels))
	}
	rep.Valid = rep.Invalid == 0 && rep.OutOfRange == 0 && rep.Overlaps == 0 && rep.Covered == rep.Voxels
	return rep
}
