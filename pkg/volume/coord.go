package volume

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord addresses a voxel as (i, j, k). The first axis, i, is the streaming axis.
type Coord [3]int

// Add returns c + o component-wise.
func (c Coord) Add(o Coord) Coord {
	return Coord{c[0] + o[0], c[1] + o[1], c[2] + o[2]}
}

// Sub returns c - o component-wise.
func (c Coord) Sub(o Coord) Coord {
	return Coord{c[0] - o[0], c[1] - o[1], c[2] - o[2]}
}

// LessEq reports whether every component of c is <= the matching component of o.
func (c Coord) LessEq(o Coord) bool {
	return c[0] <= o[0] && c[1] <= o[1] && c[2] <= o[2]
}

// Voxels returns the number of voxels in an extent of this size.
func (c Coord) Voxels() int64 {
	return int64(c[0]) * int64(c[1]) * int64(c[2])
}

func (c Coord) String() string {
	return fmt.Sprintf("[%d,%d,%d]", c[0], c[1], c[2])
}

// ParseCoord parses "IxJxK", e.g. "256x256x64". A single number applies to
// every axis.
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) == 1 {
		parts = []string{parts[0], parts[0], parts[0]}
	}
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("volume: coordinate %q: want IxJxK", s)
	}
	var c Coord
	for a, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Coord{}, fmt.Errorf("volume: coordinate %q: %w", s, err)
		}
		c[a] = n
	}
	return c, nil
}

// Region is an inclusive box of global coordinates.
type Region struct {
	Start Coord `json:"start" yaml:"start"`
	End   Coord `json:"end" yaml:"end"`
}

// Contains reports whether c lies inside r.
func (r Region) Contains(c Coord) bool {
	return r.Start.LessEq(c) && c.LessEq(r.End)
}

// Empty reports whether r contains no voxel.
func (r Region) Empty() bool {
	return !r.Start.LessEq(r.End)
}

// Len returns the number of voxels along one axis.
func (r Region) Len(axis int) int {
	return r.End[axis] - r.Start[axis] + 1
}

// Size returns the extent of r.
func (r Region) Size() Coord {
	return Coord{r.Len(0), r.Len(1), r.Len(2)}
}

// Voxels returns the number of voxels in r.
func (r Region) Voxels() int64 {
	if r.Empty() {
		return 0
	}
	return r.Size().Voxels()
}

// Within reports whether r lies entirely inside outer.
func (r Region) Within(outer Region) bool {
	return outer.Start.LessEq(r.Start) && r.End.LessEq(outer.End)
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Region) Intersect(o Region) Region {
	var out Region
	for a := 0; a < 3; a++ {
		out.Start[a] = max(r.Start[a], o.Start[a])
		out.End[a] = min(r.End[a], o.End[a])
	}
	return out
}

func (r Region) String() string {
	return r.Start.String() + ".." + r.End.String()
}
