package downloader

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"swiftget/internal"
)

// Classify maps a raw transport error and its context to an ErrorKind
// (§4.6). ctx carries the HTTP status when the failure was a non-2xx/206
// response rather than a transport-level error.
func Classify(err error, ctx internal.TransferContext) internal.ErrorKind {
	if err == nil && ctx.HTTPStatus == 0 {
		return internal.ErrKindUnknown
	}

	if ctx.HTTPStatus != 0 {
		switch {
		case ctx.HTTPStatus == http.StatusTooManyRequests:
			return internal.ErrKindRateLimited
		case ctx.HTTPStatus >= 500:
			return internal.ErrKindServerError
		case ctx.HTTPStatus >= 400:
			return internal.ErrKindClientError
		case ctx.HTTPStatus == http.StatusPartialContent, ctx.HTTPStatus == http.StatusOK:
			// not an error status; caller shouldn't classify these
		}
	}

	if err == nil {
		return internal.ErrKindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return internal.ErrKindNetworkTimeout
	}
	if errors.Is(err, context.Canceled) {
		return internal.ErrKindConnectionLost
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return internal.ErrKindNetworkTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return internal.ErrKindConnectionFailed
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return internal.ErrKindNetworkTimeout
		}
		return Classify(urlErr.Err, ctx)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "certificate"), strings.Contains(errStr, "x509"), strings.Contains(errStr, "tls"):
		return internal.ErrKindSSLCertificate
	case strings.Contains(errStr, "no such host"), strings.Contains(errStr, "cannot find host"):
		return internal.ErrKindConnectionFailed
	case strings.Contains(errStr, "connection reset"), strings.Contains(errStr, "broken pipe"), strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "eof"):
		return internal.ErrKindConnectionLost
	}

	if errors.Is(err, os.ErrPermission) {
		return internal.ErrKindFilePermission
	}
	if isDiskFullError(err) {
		return internal.ErrKindDiskSpaceError
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return internal.ErrKindPartialContentError
	}

	return internal.ErrKindUnknown
}

func isDiskFullError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return strings.Contains(strings.ToLower(pathErr.Err.Error()), "no space")
	}
	return strings.Contains(strings.ToLower(err.Error()), "no space")
}

// RetryDecisionKind is the outcome of ShouldRetry (§4.6).
type RetryDecisionKind string

const (
	DecisionRetry              RetryDecisionKind = "retry"
	DecisionStop               RetryDecisionKind = "stop"
	DecisionCircuitBreakerOpen RetryDecisionKind = "circuitBreakerOpen"
)

// RetryContext is the input to ShouldRetry (§4.6).
type RetryContext struct {
	Attempt         int
	TotalElapsed    time.Duration
	IsMultiConn     bool
	NetworkQuality  NetworkQuality
	MemoryPressure  ResourcePressure
	CPUUsage        float64
	GlobalMaxRetry  time.Duration
	RespectSystem   bool
	ConsecutiveFail int
	CircuitOpen     bool
	RetryAfter      time.Duration
}

// NetworkQuality scales retry delay per §4.6.
type NetworkQuality string

const (
	NetworkExcellent NetworkQuality = "excellent"
	NetworkGood      NetworkQuality = "good"
	NetworkFair      NetworkQuality = "fair"
	NetworkPoor      NetworkQuality = "poor"
)

func (q NetworkQuality) scale() float64 {
	switch q {
	case NetworkExcellent:
		return 0.7
	case NetworkGood:
		return 1.0
	case NetworkFair:
		return 1.3
	case NetworkPoor:
		return 1.6
	default:
		return 1.0
	}
}

// ResourcePressure is a coarse system-load signal (§4.6).
type ResourcePressure string

const (
	PressureLow    ResourcePressure = "low"
	PressureMedium ResourcePressure = "medium"
	PressureHigh   ResourcePressure = "high"
)

// RetryRecommendation is the derived decision surface of §4.6.
type RetryRecommendation struct {
	Decision       RetryDecisionKind
	SuggestedDelay time.Duration
	Confidence     float64
	RetryPriority  int
	Reasoning      string
}

// RetryPolicy evaluates backoff and circuit-breaking per §4.6, with the
// default/conservative/aggressive presets of §4.7 supplying its ceilings.
type RetryPolicy struct {
	Backoff internal.BackoffKind
	Jitter  internal.JitterKind
	MinDelay time.Duration
	MaxDelay time.Duration

	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration
}

// DefaultRetryPolicy mirrors the "default" preset's backoff shape:
// exponential with uniform jitter, bounded [250ms, 30s]; a rate-limited
// error's Retry-After is a lower bound applied after that clamp, so it can
// raise the delay past 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Backoff:                 internal.BackoffExponential,
		Jitter:                  internal.JitterUniform,
		MinDelay:                250 * time.Millisecond,
		MaxDelay:                30 * time.Second,
		CircuitBreakerThreshold: 8,
		CircuitBreakerCooldown:  10 * time.Second,
	}
}

// ShouldRetry implements §4.6's shouldRetry(err, retryContext) decision
// tree.
func (p *RetryPolicy) ShouldRetry(kind internal.ErrorKind, retryState *internal.RetryState, rctx RetryContext) RetryRecommendation {
	info := kind.Info()

	if rctx.CircuitOpen {
		return RetryRecommendation{Decision: DecisionCircuitBreakerOpen, Reasoning: "circuit breaker open"}
	}
	if p.CircuitBreakerThreshold > 0 && rctx.ConsecutiveFail >= p.CircuitBreakerThreshold {
		return RetryRecommendation{Decision: DecisionCircuitBreakerOpen, Reasoning: "consecutive failure threshold reached"}
	}

	if !info.Retryable {
		return RetryRecommendation{Decision: DecisionStop, Reasoning: "error kind is not retryable: " + kind.String()}
	}
	if retryState.AttemptCount >= info.MaxAttempts {
		return RetryRecommendation{Decision: DecisionStop, Reasoning: "max attempts reached"}
	}
	if rctx.GlobalMaxRetry > 0 && rctx.TotalElapsed > rctx.GlobalMaxRetry {
		return RetryRecommendation{Decision: DecisionStop, Reasoning: "global retry time budget exceeded"}
	}
	if rctx.RespectSystem && (rctx.MemoryPressure == PressureHigh || rctx.CPUUsage > 0.9) {
		return RetryRecommendation{Decision: DecisionStop, Reasoning: "system resource pressure"}
	}

	delay := p.backoffDelay(info.BaseDelay, retryState.AttemptCount+1)
	delay = p.applyContextScaling(delay, rctx)
	delay = p.applyJitter(delay)

	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if kind == internal.ErrKindRateLimited && rctx.RetryAfter > delay {
		delay = rctx.RetryAfter
	}

	confidence := confidenceFor(info.Category, retryState.AttemptCount)

	return RetryRecommendation{
		Decision:       DecisionRetry,
		SuggestedDelay: delay,
		Confidence:     confidence,
		RetryPriority:  info.RetryPriority,
		Reasoning:      "retryable " + kind.String() + " within attempt/time budget",
	}
}

func (p *RetryPolicy) backoffDelay(base time.Duration, attempt int) time.Duration {
	switch p.Backoff {
	case internal.BackoffLinear:
		return base + time.Duration(attempt)*base
	case internal.BackoffFixed:
		return base
	case internal.BackoffFibonacci:
		a, b := 1, 1
		for i := 1; i < attempt; i++ {
			a, b = b, a+b
		}
		return base * time.Duration(a)
	case internal.BackoffNone:
		return 0
	default: // exponential
		mult := math.Pow(1.5, float64(attempt))
		if mult > 8 {
			mult = 8
		}
		return time.Duration(float64(base) * mult)
	}
}

func (p *RetryPolicy) applyContextScaling(delay time.Duration, rctx RetryContext) time.Duration {
	if rctx.IsMultiConn {
		delay = time.Duration(float64(delay) * 0.75)
	}
	delay = time.Duration(float64(delay) * rctx.NetworkQuality.scale())
	return delay
}

func (p *RetryPolicy) applyJitter(delay time.Duration) time.Duration {
	switch p.Jitter {
	case internal.JitterUniform:
		spread := float64(delay) * 0.2
		return delay + time.Duration(rand.Float64()*2*spread-spread)
	case internal.JitterGaussian:
		spread := float64(delay) * 0.15
		return delay + time.Duration(rand.NormFloat64()*spread)
	case internal.JitterDecorrelated:
		return time.Duration(float64(delay) * (1 + rand.Float64()))
	default:
		return delay
	}
}

func confidenceFor(category internal.ErrorCategory, attempt int) float64 {
	base := 0.5
	switch category {
	case internal.CategoryTransientNetwork:
		base = 0.85
	case internal.CategoryRateLimited:
		base = 0.75
	case internal.CategoryServerError:
		base = 0.6
	case internal.CategoryContentIntegrity:
		base = 0.4
	case internal.CategoryClientError, internal.CategoryConfiguration, internal.CategorySystemResource:
		base = 0.1
	}
	decay := 1.0 - float64(attempt)*0.1
	if decay < 0.1 {
		decay = 0.1
	}
	result := base * decay
	if result > 1 {
		result = 1
	}
	return result
}
