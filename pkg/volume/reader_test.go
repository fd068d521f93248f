package volume

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadStreamAcrossShards(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()

	m.files["a"] = &memFile{extent: Coord{10, 1, 1}, bpv: 1, data: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}
	m.files["b"] = &memFile{extent: Coord{10, 1, 1}, bpv: 1, data: []byte{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}}

	r, err := NewReader([]Descriptor{
		line1D(2, "b", 10, 19, 10, 19),
		line1D(1, "a", 0, 9, 0, 9),
	}, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	got, err := r.ReadStream(ctx, Coord{0, 0, 0}, 20)
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	want := append(bytes.Clone(m.files["a"].data), m.files["b"].data...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadStream mismatch (-want +got):\n%s", diff)
	}
}

func TestReadStreamOverlappingCoverage(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()

	// Global voxel g has value g. Each shard stores two voxels of overlap.
	a := &memFile{extent: Coord{12, 1, 1}, bpv: 1, data: make([]byte, 12)}
	for i := range a.data {
		a.data[i] = byte(i)
	}
	b := &memFile{extent: Coord{12, 1, 1}, bpv: 1, data: make([]byte, 12)}
	for i := range b.data {
		b.data[i] = byte(8 + i)
	}
	m.files["a"], m.files["b"] = a, b

	r, err := NewReader([]Descriptor{
		line1D(0, "a", 0, 11, 0, 9),
		line1D(1, "b", 8, 19, 10, 19),
	}, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	for start := 0; start < 20; start++ {
		got, err := r.ReadStream(ctx, Coord{start, 0, 0}, 20-start)
		if err != nil {
			t.Fatalf("ReadStream(%d): %v", start, err)
		}
		for i, v := range got {
			if int(v) != start+i {
				t.Fatalf("ReadStream(%d)[%d] = %d, want %d", start, i, v, start+i)
			}
		}
	}
}

func TestReadLineClampsAtROI(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()
	m.files["a"] = &memFile{extent: Coord{20, 1, 1}, bpv: 1, data: make([]byte, 20)}
	for i := range m.files["a"].data {
		m.files["a"].data[i] = byte(i)
	}

	s, err := NewShard(line1D(0, "a", 0, 19, 0, 9), m.OpenRead)
	if err != nil {
		t.Fatalf("NewShard: %v", err)
	}
	defer s.Close()

	got, err := s.ReadLine(ctx, Coord{5, 0, 0}, 100)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if diff := cmp.Diff([]byte{5, 6, 7, 8, 9}, got); diff != "" {
		t.Fatalf("ReadLine mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLineOutsideROI(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()
	fillPattern(m, "a", Coord{20, 1, 1}, 1)

	s, err := NewShard(line1D(0, "a", 0, 19, 0, 9), m.OpenRead)
	if err != nil {
		t.Fatalf("NewShard: %v", err)
	}
	defer s.Close()

	// Inside coverage but outside the ROI.
	if _, err := s.ReadLine(ctx, Coord{15, 0, 0}, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if m.opens != 0 {
		t.Fatalf("expected no source opened, got %d", m.opens)
	}
}

func TestReadStreamOutOfRange(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()
	fillPattern(m, "a", Coord{10, 1, 1}, 1)
	fillPattern(m, "b", Coord{10, 1, 1}, 1)

	r, err := NewReader([]Descriptor{
		line1D(0, "a", 0, 9, 0, 9),
		line1D(1, "b", 10, 19, 10, 19),
	}, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tests := []struct {
		name  string
		start Coord
		count int
	}{
		{"past end", Coord{20, 0, 0}, 1},
		{"negative", Coord{-1, 0, 0}, 5},
		{"other row", Coord{3, 1, 0}, 1},
		{"other slice", Coord{3, 0, 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.ReadStream(ctx, tt.start, tt.count); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
	if m.opens != 0 {
		t.Fatalf("out of range reads opened %d sources", m.opens)
	}

	// A run that starts inside but runs off the end also fails.
	if _, err := r.ReadStream(ctx, Coord{15, 0, 0}, 10); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for overrun, got %v", err)
	}

	// Counts far beyond the union fail the same way.
	for _, count := range []int{math.MaxInt32, math.MaxInt} {
		if _, err := r.ReadStream(ctx, Coord{0, 0, 0}, count); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("expected ErrOutOfRange for count %d, got %v", count, err)
		}
	}
}

func TestReaderLocalityHint(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()
	var descs []Descriptor
	for i := 0; i < 8; i++ {
		name := ShardObject(i)
		fillPattern(m, name, Coord{10, 1, 1}, 1)
		descs = append(descs, line1D(i, name, i*10, i*10+9, i*10, i*10+9))
	}

	r, err := NewReader(descs, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadStream(ctx, Coord{72, 0, 0}, 2); err != nil {
		t.Fatalf("ReadStream: %v", err)
	}

	resetProbes := func() {
		for _, s := range r.shards {
			s.probes = 0
		}
	}
	resetProbes()

	if _, err := r.ReadStream(ctx, Coord{75, 0, 0}, 3); err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	for _, s := range r.shards {
		want := 0
		if s.desc.Index == 7 {
			// One lookup plus the ReadLine precondition.
			want = 2
		}
		if s.probes != want {
			t.Errorf("shard %d probed %d times, want %d", s.desc.Index, s.probes, want)
		}
	}
}

type emptySource struct{ memSource }

func (emptySource) ReadLine(context.Context, Coord, int) ([]byte, error) { return nil, nil }

type emptyFactory struct{ *memFactory }

func (f emptyFactory) OpenRead(context.Context, Descriptor) (Source, error) {
	return &emptySource{memSource{file: &memFile{bpv: 1}}}, nil
}

func TestReadStreamZeroVoxels(t *testing.T) {
	r, err := NewReader([]Descriptor{line1D(0, "a", 0, 9, 0, 9)}, emptyFactory{newMemFactory()})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadStream(context.Background(), Coord{0, 0, 0}, 4); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestReadStreamMixedVoxelSizes(t *testing.T) {
	m := newMemFactory()
	fillPattern(m, "a", Coord{10, 1, 1}, 1)
	fillPattern(m, "b", Coord{10, 1, 1}, 2)

	r, err := NewReader([]Descriptor{
		line1D(0, "a", 0, 9, 0, 9),
		line1D(1, "b", 10, 19, 10, 19),
	}, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadStream(context.Background(), Coord{5, 0, 0}, 10); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestNewReaderRejectsInvalidSets(t *testing.T) {
	tests := []struct {
		name  string
		descs []Descriptor
	}{
		{
			name: "overlapping roi",
			descs: []Descriptor{
				line1D(0, "a", 0, 9, 0, 9),
				line1D(1, "b", 5, 14, 9, 14),
			},
		},
		{
			name:  "roi outside coverage",
			descs: []Descriptor{line1D(0, "a", 0, 9, 0, 10)},
		},
		{
			name: "local extent mismatch",
			descs: []Descriptor{func() Descriptor {
				d := line1D(0, "a", 0, 9, 0, 9)
				d.LocalExtent = Coord{9, 1, 1}
				return d
			}()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.descs, newMemFactory()); !errors.Is(err, ErrInvalidDescriptor) {
				t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
			}
		})
	}
}

func TestReaderCloseContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	m := newMemFactory()
	for _, name := range []string{"a", "b", "c"} {
		fillPattern(m, name, Coord{10, 1, 1}, 1)
	}
	errA := errors.New("close a")
	errC := errors.New("close c")
	m.closeErr["a"] = errA
	m.closeErr["c"] = errC

	r, err := NewReader([]Descriptor{
		line1D(0, "a", 0, 9, 0, 9),
		line1D(1, "b", 10, 19, 10, 19),
		line1D(2, "c", 20, 29, 20, 29),
	}, m)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.ReadStream(ctx, Coord{0, 0, 0}, 30); err != nil {
		t.Fatalf("ReadStream: %v", err)
	}

	err = r.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Fatalf("expected both close errors, got %v", err)
	}
	for i, s := range m.sources {
		if s.closes != 1 {
			t.Errorf("source %d closed %d times, want 1", i, s.closes)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := r.ReadStream(ctx, Coord{0, 0, 0}, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestContainsVoxelROIWithinCoverage(t *testing.T) {
	descs, err := Plan(Grid{Extent: Coord{9, 7, 5}, Block: Coord{4, 3, 2}, Overlap: Coord{2, 1, 1}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, d := range descs {
		s, err := NewShard(d, nil)
		if err != nil {
			t.Fatalf("NewShard: %v", err)
		}
		for k := -1; k <= 5; k++ {
			for j := -1; j <= 7; j++ {
				for i := -1; i <= 9; i++ {
					c := Coord{i, j, k}
					if s.ContainsVoxel(c, true) && !s.ContainsVoxel(c, false) {
						t.Fatalf("shard %d: %s in roi but not in coverage", d.Index, c)
					}
				}
			}
		}
	}
}
