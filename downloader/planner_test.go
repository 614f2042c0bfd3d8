package downloader

import (
	"testing"

	"swiftget/internal"
)

func segTuples(segs []internal.SegmentRange) [][2]int64 {
	out := make([][2]int64, len(segs))
	for i, s := range segs {
		out[i] = [2]int64{s.Start, s.End}
	}
	return out
}

func TestSplit_SpecExamples(t *testing.T) {
	tests := []struct {
		name     string
		length   int64
		n        int
		expected [][2]int64
	}{
		{
			name:     "split_1000_4",
			length:   1000,
			n:        4,
			expected: [][2]int64{{0, 249}, {250, 499}, {500, 749}, {750, 999}},
		},
		{
			name:     "split_1003_4",
			length:   1003,
			n:        4,
			expected: [][2]int64{{0, 250}, {251, 501}, {502, 752}, {753, 1002}},
		},
		{
			name:     "split_3_5_trailing_zero_length",
			length:   3,
			n:        5,
			expected: [][2]int64{{0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segTuples(Split(tt.length, tt.n))
			if len(got) != len(tt.expected) {
				t.Fatalf("got %d segments, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("segment %d = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSplit_CoverageInvariant(t *testing.T) {
	for _, tc := range []struct {
		length int64
		n      int
	}{
		{0, 1}, {1, 1}, {7, 3}, {1000, 4}, {1003, 4}, {3, 5}, {99999, 17}, {1, 32},
	} {
		segs := Split(tc.length, tc.n)
		if len(segs) != tc.n {
			t.Fatalf("Split(%d,%d): got %d segments, want %d", tc.length, tc.n, len(segs), tc.n)
		}
		var sum int64
		for i, s := range segs {
			sum += s.Size()
			if i > 0 {
				prevEnd := segs[i-1].End
				if s.Start != prevEnd+1 {
					t.Errorf("Split(%d,%d): gap/overlap between segment %d and %d", tc.length, tc.n, i-1, i)
				}
			}
		}
		if sum != tc.length {
			t.Errorf("Split(%d,%d): sizes sum to %d, want %d", tc.length, tc.n, sum, tc.length)
		}
		if segs[0].Start != 0 {
			t.Errorf("Split(%d,%d): first segment does not start at 0", tc.length, tc.n)
		}
		if tc.length > 0 && segs[len(segs)-1].End != tc.length-1 {
			t.Errorf("Split(%d,%d): last segment does not end at L-1", tc.length, tc.n)
		}
		// first (L mod N) segments have size ceil(L/N), rest floor(L/N)
		base := tc.length / int64(tc.n)
		rem := tc.length % int64(tc.n)
		for i, s := range segs {
			want := base
			if int64(i) < rem {
				want++
			}
			if s.Size() != want {
				t.Errorf("Split(%d,%d): segment %d size = %d, want %d", tc.length, tc.n, i, s.Size(), want)
			}
		}
	}
}

func TestRedistribute_RefusesBelowThreshold(t *testing.T) {
	p := NewSegmentPlanner()
	p.RedistributionSizeThreshold = 1024 * 1024

	failed := internal.SegmentRange{Index: 2, Start: 0, End: 1000, ParentIndex: 2}
	_, ok := p.Redistribute(failed, 999, []int{0, 1}, 0)
	if ok {
		t.Fatal("expected refusal when remaining bytes are below the threshold")
	}
}

func TestRedistribute_RefusesWithNoPeers(t *testing.T) {
	p := NewSegmentPlanner()
	failed := internal.SegmentRange{Index: 2, Start: 0, End: 10 * 1024 * 1024, ParentIndex: 2}
	_, ok := p.Redistribute(failed, 0, nil, 0)
	if ok {
		t.Fatal("expected refusal with zero active peers")
	}
}

func TestRedistribute_RefusesAtMaxRedistributions(t *testing.T) {
	p := NewSegmentPlanner()
	p.MaxRedistributions = 1
	failed := internal.SegmentRange{Index: 2, Start: 0, End: 10 * 1024 * 1024, ParentIndex: 2}
	_, ok := p.Redistribute(failed, 0, []int{0}, 1)
	if ok {
		t.Fatal("expected refusal once redistributions-used reaches the cap")
	}
}

func TestRedistribute_SplitsTailEvenlyAcrossPeers(t *testing.T) {
	p := NewSegmentPlanner()
	p.RedistributionSizeThreshold = 1024

	failed := internal.SegmentRange{Index: 3, Start: 0, End: 9999, ParentIndex: 3}
	resumeFrom := int64(4000) // 6000 bytes remain: [4000, 9999]

	out, ok := p.Redistribute(failed, resumeFrom, []int{10, 11, 12}, 0)
	if !ok {
		t.Fatal("expected redistribution to succeed")
	}
	if len(out) != 3 {
		t.Fatalf("got %d new segments, want 3", len(out))
	}

	var sum int64
	for i, s := range out {
		if !s.IsRedistributed() {
			t.Errorf("segment %d: index %d should be negative", i, s.Index)
		}
		if s.ParentIndex != 3 {
			t.Errorf("segment %d: parent index = %d, want 3", i, s.ParentIndex)
		}
		sum += s.Size()
	}
	if sum != 6000 {
		t.Errorf("redistributed sizes sum to %d, want 6000", sum)
	}
	if out[0].Start != resumeFrom {
		t.Errorf("first redistributed segment should start at %d, got %d", resumeFrom, out[0].Start)
	}
	if out[len(out)-1].End != failed.End {
		t.Errorf("last redistributed segment should end at %d, got %d", failed.End, out[len(out)-1].End)
	}
}

func TestDetermineConnections(t *testing.T) {
	if got := DetermineConnections(500*1024, 8); got != 1 {
		t.Errorf("small file: got %d connections, want 1", got)
	}
	if got := DetermineConnections(100*1024*1024, 8); got != 8 {
		t.Errorf("large file: got %d connections, want 8", got)
	}
	if got := DetermineConnections(100*1024*1024, 64); got != MaxConnections {
		t.Errorf("over-cap request: got %d connections, want %d", got, MaxConnections)
	}
	if got := DetermineConnections(100*1024*1024, 0); got != 1 {
		t.Errorf("zero request: got %d connections, want 1", got)
	}
}
