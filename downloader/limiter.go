package downloader

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter throttles one worker's egress to a target bytes/sec
// (C1, §4.3). It wraps golang.org/x/time/rate, the same primitive the
// retrieval pack's other per-peer bandwidth manager (GileBrowser) uses,
// adding the "null rate is a no-op" and "atomic rate reissue" contract
// spec.md requires that a bare rate.Limiter does not provide by itself.
type TokenBucketLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenBucketLimiter creates a limiter targeting bytesPerSec, or an
// unlimited (no-op) limiter if bytesPerSec <= 0.
func NewTokenBucketLimiter(bytesPerSec int64) *TokenBucketLimiter {
	t := &TokenBucketLimiter{}
	t.SetRate(bytesPerSec)
	return t
}

// Wait debits n tokens, suspending the caller until the bucket can afford
// them (§4.3's throttle(wrote n)). A null-rate limiter returns immediately.
func (t *TokenBucketLimiter) Wait(ctx context.Context, n int) error {
	l := t.limiter.Load()
	if l == nil {
		return nil
	}
	return l.WaitN(ctx, n)
}

// SetRate atomically reissues the target rate (§4.3: "target may be updated
// atomically"). bytesPerSec <= 0 disables limiting entirely.
func (t *TokenBucketLimiter) SetRate(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		t.limiter.Store(nil)
		return
	}
	burst := int(bytesPerSec)
	if burst < maxChunkSize {
		burst = maxChunkSize
	}
	t.limiter.Store(rate.NewLimiter(rate.Limit(bytesPerSec), burst))
}

// maxChunkSize is the largest single read the segment worker streams
// before reporting progress and consulting the limiter again (§4.2: "in
// chunks <= 64 KiB").
const maxChunkSize = 64 * 1024
