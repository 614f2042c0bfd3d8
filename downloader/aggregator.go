package downloader

import (
	"time"

	"github.com/VividCortex/ewma"

	"swiftget/internal"
)

// aggregatorTickInterval is the default reporter update-rate bound of §4.5
// / §6 ("default 100 ms") and also the sampling period for the currentSpeed
// EWMA.
const aggregatorTickInterval = 100 * time.Millisecond

// ewmaAge of 9 gives alpha = 2/(age+1) = 0.2, the value SPEC_FULL.md's Open
// Question decision settles on from spec.md's allowed range [0.1, 0.3]
// (see DESIGN.md).
const ewmaAge = 9

// Statistics is the aggregator's external view of download progress (§4.5).
type Statistics struct {
	TotalBytes        int64
	BytesDownloaded   int64
	Percentage        float64
	CurrentSpeed      float64 // EWMA, bytes/sec
	AverageSpeed      float64 // bytesDownloaded / elapsed, bytes/sec
	PeakSpeed         float64
	ActiveSegments    int
	CompletedSegments int
	IsComplete        bool
}

type aggReportMsg struct {
	index int
	delta int64
}

type aggCompleteSegMsg struct {
	index int
}

type aggStatsReqMsg struct {
	resp chan Statistics
}

type aggSegProgressReqMsg struct {
	resp chan map[int]internal.SegmentProgress
}

// Aggregator is the exclusive-access progress actor of §4.5 (C5): a single
// goroutine owns all mutable progress state, reached only through
// channels, per SPEC_FULL.md §5's channel-actor realization of the
// aggregator/supervisor/manager trio.
type Aggregator struct {
	reportCh       chan aggReportMsg
	completeSegCh  chan aggCompleteSegMsg
	statsCh        chan aggStatsReqMsg
	segProgressCh  chan aggSegProgressReqMsg
	completeCh     chan struct{}
	stopCh         chan struct{}
	done           chan struct{}
}

// NewAggregator starts the actor goroutine tracking segments keyed by
// index, each with its declared total byte size. reporter may be nil (no
// external progress display, e.g. --quiet).
func NewAggregator(totalBytes int64, segmentSizes map[int]int64, reporter internal.ProgressReporter) *Aggregator {
	a := &Aggregator{
		reportCh:      make(chan aggReportMsg, 64),
		completeSegCh: make(chan aggCompleteSegMsg, 16),
		statsCh:       make(chan aggStatsReqMsg),
		segProgressCh: make(chan aggSegProgressReqMsg),
		completeCh:    make(chan struct{}),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	go a.run(totalBytes, segmentSizes, reporter)
	return a
}

func (a *Aggregator) run(totalBytes int64, segmentSizes map[int]int64, reporter internal.ProgressReporter) {
	defer close(a.done)

	segments := make(map[int]*internal.SegmentProgress, len(segmentSizes))
	now := time.Now()
	for idx, size := range segmentSizes {
		segments[idx] = &internal.SegmentProgress{
			SegmentIndex: idx,
			TotalBytes:   size,
			StartedAt:    now,
			LastUpdateAt: now,
		}
	}

	startTime := now
	var bytesDownloaded int64
	var peakSpeed float64
	var lastTickBytes int64
	var lastTickTime = now
	speedEWMA := ewma.NewMovingAverage(ewmaAge)
	isComplete := totalBytes == 0

	ticker := time.NewTicker(aggregatorTickInterval)
	defer ticker.Stop()

	computeStats := func() Statistics {
		var active, completedCount int
		for _, sp := range segments {
			if sp.Complete {
				completedCount++
			} else if sp.BytesDownloaded > 0 {
				active++
			}
		}
		var percentage float64
		if totalBytes > 0 {
			percentage = float64(bytesDownloaded) / float64(totalBytes)
		}
		var avgSpeed float64
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			avgSpeed = float64(bytesDownloaded) / elapsed
		}
		// IsComplete per §4.5 is "all segments complete", not merely the
		// coordinator's explicit Complete() signal; track both so a caller
		// polling statistics mid-flight sees completion the moment the last
		// segment finishes, without waiting on the final Complete() call.
		allSegmentsDone := len(segments) > 0 && completedCount == len(segments)
		return Statistics{
			TotalBytes:        totalBytes,
			BytesDownloaded:   bytesDownloaded,
			Percentage:        percentage,
			CurrentSpeed:      speedEWMA.Value(),
			AverageSpeed:      avgSpeed,
			PeakSpeed:         peakSpeed,
			ActiveSegments:    active,
			CompletedSegments: completedCount,
			IsComplete:        isComplete || allSegmentsDone,
		}
	}

	for {
		select {
		case <-a.stopCh:
			return

		case msg := <-a.reportCh:
			sp, ok := segments[msg.index]
			if !ok {
				continue
			}
			sp.BytesDownloaded += msg.delta
			sp.LastUpdateAt = time.Now()
			bytesDownloaded += msg.delta
			if sp.TotalBytes > 0 && sp.BytesDownloaded >= sp.TotalBytes {
				sp.Complete = true
			}

		case msg := <-a.completeSegCh:
			if sp, ok := segments[msg.index]; ok {
				sp.Complete = true
				sp.LastUpdateAt = time.Now()
			}

		case <-ticker.C:
			elapsed := time.Since(lastTickTime).Seconds()
			if elapsed > 0 {
				rate := float64(bytesDownloaded-lastTickBytes) / elapsed
				speedEWMA.Add(rate)
				if v := speedEWMA.Value(); v > peakSpeed {
					peakSpeed = v
				}
			}
			lastTickBytes = bytesDownloaded
			lastTickTime = time.Now()
			if reporter != nil {
				reporter.Update(bytesDownloaded, totalBytes, speedEWMA.Value())
			}

		case req := <-a.statsCh:
			req.resp <- computeStats()

		case req := <-a.segProgressCh:
			out := make(map[int]internal.SegmentProgress, len(segments))
			for idx, sp := range segments {
				out[idx] = *sp
			}
			req.resp <- out

		case <-a.completeCh:
			isComplete = true
			if reporter != nil {
				reporter.Complete()
			}
		}
	}
}

// ReportSegmentProgress records Δbytes for segment i (§4.5).
func (a *Aggregator) ReportSegmentProgress(i int, delta int64) {
	select {
	case a.reportCh <- aggReportMsg{index: i, delta: delta}:
	case <-a.done:
	}
}

// MarkSegmentComplete flags segment i as finished regardless of its byte
// counter (used when a zero-length segment is skipped).
func (a *Aggregator) MarkSegmentComplete(i int) {
	select {
	case a.completeSegCh <- aggCompleteSegMsg{index: i}:
	case <-a.done:
	}
}

// GetDownloadStatistics returns the current aggregate statistics (§4.5).
func (a *Aggregator) GetDownloadStatistics() Statistics {
	resp := make(chan Statistics, 1)
	select {
	case a.statsCh <- aggStatsReqMsg{resp: resp}:
	case <-a.done:
		return Statistics{}
	}
	select {
	case s := <-resp:
		return s
	case <-a.done:
		return Statistics{}
	}
}

// GetSegmentProgress returns a snapshot of every segment's progress (§4.5).
func (a *Aggregator) GetSegmentProgress() map[int]internal.SegmentProgress {
	resp := make(chan map[int]internal.SegmentProgress, 1)
	select {
	case a.segProgressCh <- aggSegProgressReqMsg{resp: resp}:
	case <-a.done:
		return nil
	}
	select {
	case m := <-resp:
		return m
	case <-a.done:
		return nil
	}
}

// Complete marks the whole download finished and notifies the external
// reporter (§4.5).
func (a *Aggregator) Complete() {
	select {
	case a.completeCh <- struct{}{}:
	case <-a.done:
	}
}

// Close stops the actor goroutine. Safe to call once per aggregator.
func (a *Aggregator) Close() {
	close(a.stopCh)
	<-a.done
}
