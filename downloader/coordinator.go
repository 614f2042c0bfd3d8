package downloader

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"swiftget/internal"
	"swiftget/utils"
)

// CoordinatorOptions are the per-run knobs that are not part of the URL
// task itself (§4.8, §6).
type CoordinatorOptions struct {
	Quiet          bool
	Verbose        bool
	ShowProgress   bool
	MaxRetryTime   time.Duration // global per-URL wall-clock retry budget; 0 = unbounded
	EnableFallback bool
	Preset         SupervisorPreset
}

// DefaultCoordinatorOptions mirrors the "default" supervisor preset and a
// 10-minute retry budget.
func DefaultCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		ShowProgress:   true,
		MaxRetryTime:   10 * time.Minute,
		EnableFallback: true,
		Preset:         DefaultPreset(),
	}
}

// Coordinator drives one URLTask end to end (C8), owning the URL task, the
// output file handle, the planner output, the aggregator instance, and the
// recovery supervisor, per §3's ownership rules. The bandwidth manager is
// injected and shared across coordinators.
type Coordinator struct {
	Bandwidth *BandwidthManager
	Logger    internal.Logger
	Policy    *RetryPolicy
}

// NewCoordinator wires a coordinator against a shared bandwidth manager and
// logger; policy defaults to DefaultRetryPolicy when nil.
func NewCoordinator(bandwidth *BandwidthManager, logger internal.Logger, policy *RetryPolicy) *Coordinator {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Coordinator{Bandwidth: bandwidth, Logger: logger, Policy: policy}
}

// Download implements the §4.8 flow end to end for a single URL task.
func (c *Coordinator) Download(ctx context.Context, task *internal.URLTask, opts CoordinatorOptions) (*internal.DownloadSummary, error) {
	start := time.Now()

	// Step 1: validate URL; resolve target directory and filename.
	parsed, err := utils.ValidateDownloadURL(task.SourceURL)
	if err != nil {
		return nil, err
	}
	if task.Label == "" {
		task.Label = utils.Label(parsed)
	}
	if err := utils.EnsureDir(task.TargetPath); err != nil {
		return nil, internal.NewAppError(internal.ErrOutputPathInvalid, err.Error()).WithURL(task.SourceURL)
	}

	client, err := utils.NewHTTPClient(&utils.ClientConfig{
		Timeout:            30 * time.Second,
		ConnectTimeout:     10 * time.Second,
		ProxyURL:           task.ProxyURL,
		NoCheckCertificate: task.NoCheckCertificate,
		UserAgent:          task.UserAgent,
		Headers:            task.Headers,
	})
	if err != nil {
		return nil, internal.NewAppError(internal.ErrInvalidProxyURL, err.Error()).WithURL(task.SourceURL)
	}

	// Step 2: HEAD probe.
	head, err := client.Head(ctx, task.SourceURL, task.Headers)
	if err != nil {
		return nil, &internal.TransferError{Kind: Classify(err, internal.TransferContext{URL: task.SourceURL}), Op: "HEAD", URL: task.SourceURL, Underlying: err}
	}
	if head.Status >= 400 {
		return nil, &internal.TransferError{Kind: Classify(nil, internal.TransferContext{URL: task.SourceURL, HTTPStatus: head.Status}), Op: "HEAD", URL: task.SourceURL, HTTPStatus: head.Status}
	}
	contentLength := head.ContentLength
	if contentLength < 0 {
		contentLength = 0
	}

	partPath := utils.PartPath(task.TargetPath)

	// Step 3: resume detection. A successful resume forces single-stream
	// mode, matching §4.8 step 3's single "seek to size" offset; resuming a
	// download that was previously split across segments cannot be proven
	// byte-complete from file size alone (§5: cross-segment write order is
	// unspecified), so only a clean single-stream resume is trusted.
	var startingOffset int64
	forcedSingleStream := false
	if task.Resume && utils.FileExists(partPath) {
		if verr := utils.ValidatePartialFile(partPath, contentLength); verr == nil {
			size, _ := utils.FileSize(partPath)
			if head.AcceptRanges && size < contentLength {
				startingOffset = size
				forcedSingleStream = true
				c.logf("resuming %s from offset %d/%d", utils.RedactURL(task.SourceURL), size, contentLength)
			}
		}
	}

	// Step 4: decide parallelism.
	n := DetermineConnections(contentLength, task.Connections)
	parallel := !forcedSingleStream && n > 1 && head.AcceptRanges && contentLength >= MinParallelSize
	if !parallel {
		n = 1
	}

	if startingOffset == 0 {
		if err := utils.PreallocateSparse(partPath, contentLength); err != nil {
			return nil, internal.NewAppError(internal.ErrOutputPathInvalid, err.Error()).WithURL(task.SourceURL)
		}
	}

	file, err := os.OpenFile(partPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, internal.NewAppError(internal.ErrOutputPathInvalid, err.Error()).WithURL(task.SourceURL)
	}
	defer file.Close()

	preset := opts.Preset
	if preset == (SupervisorPreset{}) {
		preset = DefaultPreset()
	}
	planner := NewSegmentPlanner()
	downloadID := uuid.NewString()

	retries, redistributions, fallbackNeeded, runErr := c.runSplit(ctx, splitRunParams{
		client: client, file: file, task: task, opts: opts,
		startOffset: startingOffset, contentLength: contentLength, workerCount: n,
		planner: planner, preset: preset, downloadID: downloadID, start: start,
	})
	if runErr != nil {
		return nil, runErr
	}

	if fallbackNeeded {
		c.logf("falling back to single-stream for %s", utils.RedactURL(task.SourceURL))
		// A prefix written by the failed parallel attempt cannot be proven
		// byte-complete (§5), so the fallback restarts from byte 0.
		if err := utils.PreallocateSparse(partPath, contentLength); err != nil {
			return nil, internal.NewAppError(internal.ErrOutputPathInvalid, err.Error()).WithURL(task.SourceURL)
		}
		fbRetries, fbRedist, _, fbErr := c.runSplit(ctx, splitRunParams{
			client: client, file: file, task: task, opts: opts,
			startOffset: 0, contentLength: contentLength, workerCount: 1,
			planner: planner, preset: preset, downloadID: downloadID, start: start,
		})
		if fbErr != nil {
			return nil, fbErr
		}
		retries += fbRetries
		redistributions += fbRedist
		parallel = false
		n = 1
	}

	// Step 7: checksum verification.
	var checksumOK *bool
	if task.Checksum != nil {
		if verr := VerifyChecksum(partPath, task.Checksum); verr != nil {
			ok := false
			checksumOK = &ok
			return nil, verr
		}
		ok := true
		checksumOK = &ok
	}

	// Step 8: publish and summarize.
	if err := utils.AtomicRename(partPath, task.TargetPath); err != nil {
		return nil, internal.NewAppError(internal.ErrOutputPathInvalid, err.Error()).WithURL(task.SourceURL)
	}

	elapsed := time.Since(start)
	var avgBps float64
	if elapsed.Seconds() > 0 {
		avgBps = float64(contentLength) / elapsed.Seconds()
	}

	return &internal.DownloadSummary{
		URL:             task.SourceURL,
		TargetPath:      task.TargetPath,
		TotalBytes:      contentLength,
		Elapsed:         elapsed,
		AverageBps:      avgBps,
		UsedParallel:    parallel,
		SegmentsUsed:    n,
		Retries:         retries,
		Redistributions: redistributions,
		ChecksumOK:      checksumOK,
	}, nil
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(format, args...)
	}
}

type splitRunParams struct {
	client        *utils.HTTPClient
	file          *os.File
	task          *internal.URLTask
	opts          CoordinatorOptions
	startOffset   int64
	contentLength int64
	workerCount   int
	planner       *SegmentPlanner
	preset        SupervisorPreset
	downloadID    string
	start         time.Time
}

// runSplit builds one generation's ranges, aggregator, and supervisor, then
// drives the worker engine to completion (§4.8 steps 5-6, unified: N=1 is
// the single-stream path). The aggregator and supervisor are scoped to the
// split's lifetime, matching §3's ownership rule that the coordinator
// uniquely owns both.
func (c *Coordinator) runSplit(ctx context.Context, sp splitRunParams) (retries, redistributions int, fallback bool, err error) {
	effectiveLength := sp.contentLength - sp.startOffset
	ranges := Split(effectiveLength, sp.workerCount)
	for i := range ranges {
		ranges[i].Start += sp.startOffset
		ranges[i].End += sp.startOffset
	}

	segmentSizes := make(map[int]int64, len(ranges))
	for _, r := range ranges {
		segmentSizes[r.Index] = r.Size()
	}

	var reporter internal.ProgressReporter
	if sp.opts.ShowProgress && !sp.opts.Quiet {
		reporter = utils.NewPBProgressReporter(sp.contentLength, sp.task.Label, sp.opts.Quiet)
	}
	agg := NewAggregator(sp.contentLength, segmentSizes, reporter)
	defer agg.Close()
	if sp.startOffset > 0 {
		agg.ReportSegmentProgress(0, sp.startOffset)
	}

	supervisor := NewSupervisor(sp.preset, c.Policy, sp.planner, len(ranges), sp.opts.EnableFallback)
	defer supervisor.Close()

	retries, redistributions, fallback, err = c.runEngine(ctx, engineParams{
		client: sp.client, file: sp.file, url: sp.task.SourceURL, headers: sp.task.Headers,
		ranges: ranges, workerCount: sp.workerCount, maxBps: sp.task.MaxBytesPerSec,
		priority: sp.task.Priority, downloadID: sp.downloadID,
		aggregator: agg, supervisor: supervisor, maxRetry: sp.opts.MaxRetryTime, startTime: sp.start,
	})
	if err == nil && !fallback {
		agg.Complete()
	}
	return retries, redistributions, fallback, err
}

type engineParams struct {
	client      *utils.HTTPClient
	file        *os.File
	url         string
	headers     map[string]string
	ranges      []internal.SegmentRange
	workerCount int
	maxBps      int64
	priority    internal.Priority
	downloadID  string
	aggregator  *Aggregator
	supervisor  *Supervisor
	maxRetry    time.Duration
	startTime   time.Time
}

type segmentJob struct {
	segment internal.SegmentRange
	resume  int64
	attempt int
}

type jobResult struct {
	job       segmentJob
	newOffset int64
	fallback  bool
	err       error
}

// runEngine drives a worker pool over one split's ranges (§4.8 steps 5-6;
// §5's "work-stealing parallel executor" is realized here as a bounded
// worker pool pulling from a shared job queue, the same shape as the
// teacher's WorkerPool). It returns retry and redistribution counts,
// whether the caller must restart in single-stream mode (a non-first
// worker observed a 200 response to a ranged GET, or the supervisor chose
// fallback for a failed segment), and a fatal error if the
// download could not complete.
func (c *Coordinator) runEngine(ctx context.Context, ep engineParams) (retries, redistributions int, fallback bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var activeWorkers int32

	jobs := make(chan segmentJob, len(ep.ranges)*2+4)
	results := make(chan jobResult, len(ep.ranges)*2+4)

	send := func(j segmentJob) {
		select {
		case jobs <- j:
		case <-ctx.Done():
		}
	}

	pending := 0
	for _, r := range ep.ranges {
		ep.supervisor.RegisterSegment(r.Index)
		if r.Size() == 0 {
			ep.aggregator.MarkSegmentComplete(r.Index)
			continue
		}
		pending++
		send(segmentJob{segment: r, resume: r.Start, attempt: 1})
	}
	if pending == 0 {
		return 0, 0, false, nil
	}

	done := make(chan struct{})
	for i := 0; i < ep.workerCount; i++ {
		go c.runWorker(ctx, ep, jobs, results, &activeWorkers, done)
	}
	go func() {
		for i := 0; i < ep.workerCount; i++ {
			<-done
		}
		close(results)
	}()

	var fatalErr error
	for pending > 0 {
		res, ok := <-results
		if !ok {
			break
		}

		if res.fallback {
			fallback = true
			cancel()
			pending--
			continue
		}
		if res.err == nil {
			ep.supervisor.RecordSuccess()
			pending--
			continue
		}

		var peers []int
		if n := int(atomic.LoadInt32(&activeWorkers)) - 1; n > 0 {
			peers = make([]int, n)
		}

		var httpStatus int
		var rawErr error
		var retryAfter time.Duration
		if te, ok := res.err.(*internal.TransferError); ok {
			httpStatus = te.HTTPStatus
			rawErr = te.Underlying
			retryAfter = te.RetryAfter
		} else {
			rawErr = res.err
		}

		decision := ep.supervisor.HandleFailure(res.job.segment, res.newOffset, rawErr, httpStatus, RetryContext{
			Attempt:        res.job.attempt,
			TotalElapsed:   time.Since(ep.startTime),
			IsMultiConn:    ep.workerCount > 1,
			NetworkQuality: NetworkGood,
			GlobalMaxRetry: ep.maxRetry,
			RetryAfter:     retryAfter,
		}, peers)

		switch decision.Action {
		case ActionRetry:
			retries++
			go func(job segmentJob, delay time.Duration) {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				send(segmentJob{segment: job.segment, resume: job.resume, attempt: job.attempt + 1})
			}(segmentJob{segment: res.job.segment, resume: res.newOffset, attempt: res.job.attempt}, decision.RetryDelay)

		case ActionRedistribute:
			redistributions++
			pending--
			for _, nr := range decision.RedistributeRanges {
				pending++
				send(segmentJob{segment: nr, resume: nr.Start, attempt: 1})
			}

		case ActionFallback:
			fallback = true
			cancel()
			pending--

		default: // ActionAbort
			fatalErr = res.err
			cancel()
			pending--
		}

		if fatalErr != nil || fallback {
			break
		}
	}

	cancel()
	for ok := true; ok && pending > 0; pending-- {
		_, ok = <-results
	}

	if fatalErr != nil {
		return retries, redistributions, false, fatalErr
	}
	return retries, redistributions, fallback, nil
}

// runWorker pulls jobs until cancellation, running each segment to
// completion or failure and posting exactly one result per job (§5:
// workers never pinned to a thread, bound only to the pool).
func (c *Coordinator) runWorker(ctx context.Context, ep engineParams, jobs <-chan segmentJob, results chan<- jobResult, activeWorkers *int32, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		var job segmentJob
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			job = j
		case <-ctx.Done():
			return
		}

		atomicAdd(activeWorkers, 1)

		var tokenID string
		var limiter *TokenBucketLimiter
		if perWorkerBps := perWorkerTarget(ep); perWorkerBps > 0 {
			if c.Bandwidth != nil {
				if tok, ok := c.Bandwidth.Request(perWorkerBps, ep.priority, ep.downloadID); ok {
					tokenID = tok.ID
					limiter = NewTokenBucketLimiter(tok.AllocatedBytesPerSec)
				}
			}
			if limiter == nil {
				limiter = NewTokenBucketLimiter(perWorkerBps)
			}
		}

		newOffset, fb, runErr := RunSegment(ctx, SegmentWorkerParams{
			Client:     ep.client,
			File:       ep.file,
			URL:        ep.url,
			Headers:    ep.headers,
			Segment:    job.segment,
			ResumeFrom: job.resume,
			Limiter:    limiter,
			Aggregator: ep.aggregator,
			Attempt:    job.attempt,
			IsFirst:    job.segment.Index == 0,
		})

		if tokenID != "" && c.Bandwidth != nil {
			c.Bandwidth.Release(tokenID)
		}
		atomicAdd(activeWorkers, -1)

		select {
		case results <- jobResult{job: job, newOffset: newOffset, fallback: fb, err: runErr}:
		case <-ctx.Done():
		}
	}
}

func atomicAdd(addr *int32, delta int32) {
	atomic.AddInt32(addr, delta)
}

func perWorkerTarget(ep engineParams) int64 {
	if ep.maxBps <= 0 || ep.workerCount <= 0 {
		return 0
	}
	return (ep.maxBps + int64(ep.workerCount) - 1) / int64(ep.workerCount)
}
