package internal

import "time"

// ChecksumAlgorithm identifies a supported digest algorithm.
type ChecksumAlgorithm string

const (
	ChecksumMD5    ChecksumAlgorithm = "md5"
	ChecksumSHA1   ChecksumAlgorithm = "sha1"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
)

// ChecksumSpec is the user-supplied expected digest, parsed from --checksum ALG:HEX.
type ChecksumSpec struct {
	Algorithm ChecksumAlgorithm
	HexDigest string
}

// Priority is the scheduling weight a download requests from the bandwidth
// manager. Heavier weights receive a larger fair share under contention.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Weight returns the priority-weighted fair-share multiplier used by the
// global bandwidth manager (§4.4): critical 8, high 4, normal 2, low 1.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 8
	case PriorityHigh:
		return 4
	case PriorityNormal:
		return 2
	default:
		return 1
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// DownloadType distinguishes how a download was initiated, carried on the
// bandwidth token purely for diagnostics/metadata (§3).
type DownloadType string

const (
	DownloadUserInitiated DownloadType = "userInitiated"
	DownloadBackground    DownloadType = "background"
	DownloadSystem        DownloadType = "system"
)

// URLTask is the unit of user intent: one URL fetched to one target path (§3).
// Created by the coordinator entry point and destroyed after success or
// terminal failure; never shared across coordinators.
type URLTask struct {
	SourceURL          string
	TargetPath         string
	Label              string
	Connections        int
	MaxBytesPerSec     int64
	Checksum           *ChecksumSpec
	Resume             bool
	Headers            map[string]string
	UserAgent          string
	Priority           Priority
	DownloadType       DownloadType
	NoCheckCertificate bool
	ProxyURL           string
}

// SegmentRange is a contiguous, inclusive-by-byte range of the remote
// resource (§3). Index is non-negative for an original planner segment;
// negative indices identify dynamically redistributed pieces and carry
// ParentIndex, the segment they were split from.
type SegmentRange struct {
	Index       int
	Start       int64
	End         int64 // inclusive; End < Start means a zero-length segment
	ParentIndex int   // equals Index for original segments
}

// Size returns the number of bytes covered by the range, 0 for a
// zero-length (skippable) segment.
func (r SegmentRange) Size() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// IsRedistributed reports whether this range was produced by redistribute()
// rather than the initial split().
func (r SegmentRange) IsRedistributed() bool {
	return r.Index < 0
}

// SegmentProgress is the mutable per-segment state tracked by the
// aggregator (§3, §4.5).
type SegmentProgress struct {
	SegmentIndex    int
	TotalBytes      int64
	BytesDownloaded int64
	StartedAt       time.Time
	LastUpdateAt    time.Time
	Complete        bool
}

// AvgSpeed returns bytesDownloaded / elapsed, 0 if no time has elapsed.
func (p SegmentProgress) AvgSpeed() float64 {
	elapsed := p.LastUpdateAt.Sub(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.BytesDownloaded) / elapsed
}

// ETA returns the estimated remaining duration, or 0 if speed is unknown.
func (p SegmentProgress) ETA() time.Duration {
	speed := p.AvgSpeed()
	if speed <= 0 {
		return 0
	}
	remaining := float64(p.TotalBytes - p.BytesDownloaded)
	return time.Duration(remaining/speed) * time.Second
}

// Percentage returns bytesDownloaded / totalBytes in [0, 1], 0 if totalBytes == 0.
func (p SegmentProgress) Percentage() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesDownloaded) / float64(p.TotalBytes)
}

// BackoffKind selects the delay-growth function used by the retry policy (§4.6).
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
	BackoffFixed       BackoffKind = "fixed"
	BackoffFibonacci   BackoffKind = "fibonacci"
	BackoffNone        BackoffKind = "none"
)

// JitterKind selects how delay jitter is applied (§4.6).
type JitterKind string

const (
	JitterNone         JitterKind = "none"
	JitterUniform      JitterKind = "uniform"
	JitterGaussian     JitterKind = "gaussian"
	JitterDecorrelated JitterKind = "decorrelated"
)

// RetryState is the per-segment retry bookkeeping (§3).
type RetryState struct {
	AttemptCount           int
	LastError              error
	LastClassifiedCategory ErrorCategory
	TotalBytesTransferred  int64
	BackoffMultiplier      float64
	IsRedistributed        bool
	RedistributionTargets  []int
}

// NewRetryState returns a RetryState with the initial backoff multiplier (1.0).
func NewRetryState() *RetryState {
	return &RetryState{BackoffMultiplier: 1.0}
}

// BumpBackoff applies the x1.5-per-failure growth capped at 8.0 (§3).
func (s *RetryState) BumpBackoff() {
	s.BackoffMultiplier *= 1.5
	if s.BackoffMultiplier > 8.0 {
		s.BackoffMultiplier = 8.0
	}
}

// BandwidthToken is an opaque allocation handle granting a worker a target
// bytes/sec on the shared budget (§3, §4.4). Equality and hashing are by ID
// only -- two tokens for the same download are distinct.
type BandwidthToken struct {
	ID                   string
	DownloadID           string
	AllocatedBytesPerSec int64
	Priority             Priority
	DownloadType         DownloadType
	CreatedAt            time.Time
	ExpirationTime       *time.Time
	LastReportedUsage    int64
	Metadata             map[string]string
}

// Expired reports whether the token has passed its expiration time.
func (t *BandwidthToken) Expired(now time.Time) bool {
	return t.ExpirationTime != nil && now.After(*t.ExpirationTime)
}

// UtilizationRatio returns lastReportedUsage / allocated, or 0 when
// AllocatedBytesPerSec <= 0.
func (t *BandwidthToken) UtilizationRatio() float64 {
	if t.AllocatedBytesPerSec <= 0 {
		return 0
	}
	return float64(t.LastReportedUsage) / float64(t.AllocatedBytesPerSec)
}

const (
	UnderUtilizedThreshold = 0.3
	OverUtilizedThreshold  = 1.1
)

// DownloadSummary is returned by the coordinator on completion, used by the
// CLI to print a final status line and by tests to assert outcomes.
type DownloadSummary struct {
	URL             string
	TargetPath      string
	TotalBytes      int64
	Elapsed         time.Duration
	AverageBps      float64
	PeakBps         float64
	UsedParallel    bool
	SegmentsUsed    int
	Retries         int
	Redistributions int
	ChecksumOK      *bool
}
