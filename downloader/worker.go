package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"swiftget/internal"
	"swiftget/utils"
)

// chunkSize bounds a single read from the response body before the worker
// consults the limiter and reports progress again (§4.2: "chunks <= 64 KiB").
const chunkSize = 64 * 1024

// ErrServerIgnoresRange is returned by RunSegment when a non-first segment's
// server responded 200 OK to a ranged GET: the server does not honour
// byte-range requests at all, so every parallel worker beyond the first is
// reading the same full body and must abort (§4.2). The coordinator
// responds by cancelling all workers and restarting in single-stream mode.
var ErrServerIgnoresRange = fmt.Errorf("server ignored range request")

// SegmentWorkerParams are the per-attempt inputs to RunSegment (§4.2: range,
// output file handle, per-worker limiter, aggregator handle, HTTP client,
// cancellation token, retry state).
type SegmentWorkerParams struct {
	Client      *utils.HTTPClient
	File        *os.File
	URL         string
	Headers     map[string]string
	Segment     internal.SegmentRange
	ResumeFrom  int64 // absolute byte offset to resume the GET from; Segment.Start on a first attempt
	Limiter     *TokenBucketLimiter
	Aggregator  *Aggregator
	Attempt     int
	IsFirst     bool // true for the segment allowed to fall back to a 200 full-body response
}

// RunSegment performs one attempt at transferring [params.ResumeFrom,
// Segment.End] into the shared output file at its exclusive byte window
// (§4.2, §5). It returns the new confirmed-written offset (Segment.End+1 on
// full success), whether the caller must fall back to single-stream mode,
// and a *internal.TransferError describing any failure, except that a
// non-first worker receiving a 200 returns ErrServerIgnoresRange with
// fallback set.
//
// RunSegment never retries internally: the recovery supervisor decides
// whether and how to re-invoke it, per §4.7's ownership of retry policy.
func RunSegment(ctx context.Context, p SegmentWorkerParams) (newResumeFrom int64, fallback bool, err error) {
	seg := p.Segment
	if seg.Size() == 0 {
		return seg.Start, false, nil
	}
	if p.ResumeFrom < seg.Start {
		p.ResumeFrom = seg.Start
	}
	if p.ResumeFrom > seg.End {
		return p.ResumeFrom, false, nil
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", p.ResumeFrom, seg.End)
	resp, httpErr := p.Client.Get(ctx, p.URL, p.Headers, rangeHeader)
	if httpErr != nil {
		return p.ResumeFrom, false, p.classify(httpErr, 0, p.ResumeFrom-seg.Start)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// expected path; falls through to the copy loop below
	case http.StatusOK:
		if !p.IsFirst {
			return p.ResumeFrom, true, ErrServerIgnoresRange
		}
		// Server ignores ranges and this worker holds the first segment:
		// treat the body as starting at Segment.Start and rewrite from
		// there regardless of ResumeFrom (a partial prior attempt cannot
		// be trusted on a non-ranging server). The copy loop below stops
		// at Segment.End.
		p.ResumeFrom = seg.Start
	default:
		retryAfter, _ := utils.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return p.ResumeFrom, false, p.classifyWithRetryAfter(nil, resp.StatusCode, p.ResumeFrom-seg.Start, retryAfter)
	}

	offset := p.ResumeFrom
	buf := make([]byte, chunkSize)
	for offset <= seg.End {
		select {
		case <-ctx.Done():
			return offset, false, p.classify(ctx.Err(), 0, offset-seg.Start)
		default:
		}

		want := chunkSize
		if remaining := seg.End - offset + 1; remaining < int64(want) {
			want = int(remaining)
		}
		n, readErr := resp.Body.Read(buf[:want])
		if n > 0 {
			if p.Limiter != nil {
				if werr := p.Limiter.Wait(ctx, n); werr != nil {
					return offset, false, p.classify(werr, 0, offset-seg.Start)
				}
			}
			if _, werr := p.File.WriteAt(buf[:n], offset); werr != nil {
				return offset, false, p.classify(werr, 0, offset-seg.Start)
			}
			offset += int64(n)
			if p.Aggregator != nil {
				p.Aggregator.ReportSegmentProgress(seg.ParentIndex, int64(n))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return offset, false, p.classify(readErr, 0, offset-seg.Start)
		}
	}

	if offset <= seg.End {
		return offset, false, p.classify(io.ErrUnexpectedEOF, 0, offset-seg.Start)
	}
	return offset, false, nil
}

func (p SegmentWorkerParams) classify(rawErr error, httpStatus int, bytesTransferred int64) *internal.TransferError {
	return p.classifyWithRetryAfter(rawErr, httpStatus, bytesTransferred, 0)
}

func (p SegmentWorkerParams) classifyWithRetryAfter(rawErr error, httpStatus int, bytesTransferred int64, retryAfter time.Duration) *internal.TransferError {
	kind := Classify(rawErr, internal.TransferContext{URL: p.URL, HTTPStatus: httpStatus, BytesTransferred: bytesTransferred, RetryAfter: retryAfter})
	return &internal.TransferError{
		SegmentIndex:     p.Segment.Index,
		Kind:             kind,
		AttemptNumber:    p.Attempt,
		BytesTransferred: bytesTransferred,
		URL:              p.URL,
		Op:               "GET",
		HTTPStatus:       httpStatus,
		Underlying:       rawErr,
		RetryAfter:       retryAfter,
	}
}
