package downloader

import (
	"swiftget/internal"
)

const (
	// MinParallelSize is the smallest content length for which the
	// coordinator will attempt a parallel, multi-segment download (§4.8
	// step 4); below this a single-stream GET is used instead.
	MinParallelSize = 1024 * 1024
	// MaxConnections bounds the requested connection count (§6 --connections).
	MaxConnections = 32
	// DefaultRedistributionSizeThreshold is the minimum remaining-byte count
	// a failing segment must have before its tail is worth redistributing (§4.1).
	DefaultRedistributionSizeThreshold = 1024 * 1024
)

// SegmentPlanner implements the split/redistribute algorithms of §4.1 (C3).
type SegmentPlanner struct {
	RedistributionSizeThreshold int64
	MaxRedistributions          int
}

// NewSegmentPlanner returns a planner with the default preset thresholds.
func NewSegmentPlanner() *SegmentPlanner {
	return &SegmentPlanner{
		RedistributionSizeThreshold: DefaultRedistributionSizeThreshold,
		MaxRedistributions:          3,
	}
}

// Split divides [0, L) into N contiguous, non-overlapping ranges (§4.1,
// §8). base = L/N, remainder = L mod N; the first `remainder` segments get
// size base+1, the rest get size base. For N > L, trailing segments are
// zero-length (start > end) and are emitted but the coordinator skips them.
//
//	Split(1000, 4) = [(0,249),(250,499),(500,749),(750,999)]
//	Split(1003, 4) = [(0,250),(251,501),(502,752),(753,1002)]
//	Split(3, 5)    = [(0,0),(1,1),(2,2),(3,2),(4,3)]
func Split(contentLength int64, n int) []internal.SegmentRange {
	if n <= 0 {
		n = 1
	}
	ranges := make([]internal.SegmentRange, n)
	base := contentLength / int64(n)
	remainder := contentLength % int64(n)

	var start int64
	for i := 0; i < n; i++ {
		size := base
		if int64(i) < remainder {
			size++
		}
		end := start + size - 1
		ranges[i] = internal.SegmentRange{
			Index:       i,
			Start:       start,
			End:         end,
			ParentIndex: i,
		}
		start += size
	}
	return ranges
}

// Redistribute splits a failing segment's unfinished tail evenly among up
// to len(peerIndices) new negative-indexed segments (§4.1, §9). The
// encoding −1000 − origIndex·10 − k (k = 0..K−1) disambiguates redistributed pieces
// from original segments while keeping the parent reference recoverable.
// Refuses (returns nil, false) if the remaining span is smaller than
// RedistributionSizeThreshold, if peerIndices is empty, or if
// redistributionsUsed has reached MaxRedistributions.
func (p *SegmentPlanner) Redistribute(failed internal.SegmentRange, resumeFrom int64, peerIndices []int, redistributionsUsed int) ([]internal.SegmentRange, bool) {
	if redistributionsUsed >= p.MaxRedistributions {
		return nil, false
	}
	if len(peerIndices) == 0 {
		return nil, false
	}
	remaining := failed.End - resumeFrom + 1
	if remaining < p.RedistributionSizeThreshold {
		return nil, false
	}

	k := len(peerIndices)
	if int64(k) > remaining {
		k = int(remaining)
	}
	base := remaining / int64(k)
	rem := remaining % int64(k)

	out := make([]internal.SegmentRange, 0, k)
	start := resumeFrom
	for i := 0; i < k; i++ {
		size := base
		if int64(i) < rem {
			size++
		}
		end := start + size - 1
		out = append(out, internal.SegmentRange{
			Index:       -1000 - failed.Index*10 - i,
			Start:       start,
			End:         end,
			ParentIndex: failed.ParentIndex,
		})
		start += size
	}
	return out, true
}

// DetermineConnections clamps the user-requested connection count and
// refuses to create segments smaller than the minimum parallel size.
func DetermineConnections(contentLength int64, requested int) int {
	if requested <= 0 {
		requested = 1
	}
	if requested > MaxConnections {
		requested = MaxConnections
	}
	if contentLength <= 0 {
		return 1
	}
	maxByMinSize := int(contentLength / MinParallelSize)
	if maxByMinSize < 1 {
		maxByMinSize = 1
	}
	if requested > maxByMinSize {
		requested = maxByMinSize
	}
	return requested
}
