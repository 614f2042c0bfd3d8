package downloader

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"swiftget/internal"
)

func TestClassify_ByHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   internal.ErrorKind
	}{
		{"too_many_requests", 429, internal.ErrKindRateLimited},
		{"server_error", 503, internal.ErrKindServerError},
		{"client_error", 404, internal.ErrKindClientError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(nil, internal.TransferContext{HTTPStatus: tt.status})
			if got != tt.want {
				t.Errorf("Classify(status=%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassify_ByTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want internal.ErrorKind
	}{
		{"deadline_exceeded", context.DeadlineExceeded, internal.ErrKindNetworkTimeout},
		{"canceled", context.Canceled, internal.ErrKindConnectionLost},
		{"url_error_wrapping_timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutErr{}}, internal.ErrKindNetworkTimeout},
		{"tls_text", errors.New("x509: certificate signed by unknown authority"), internal.ErrKindSSLCertificate},
		{"connection_reset", errors.New("read: connection reset by peer"), internal.ErrKindConnectionLost},
		{"nil_error_no_status", nil, internal.ErrKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, internal.TransferContext{})
			if got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryPolicy_ShouldRetry_StopsWhenNotRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	state := internal.NewRetryState()
	rec := p.ShouldRetry(internal.ErrKindClientError, state, RetryContext{})
	if rec.Decision != DecisionStop {
		t.Errorf("client errors must not be retried, got %v", rec.Decision)
	}
}

func TestRetryPolicy_ShouldRetry_StopsAtMaxAttempts(t *testing.T) {
	p := DefaultRetryPolicy()
	state := &internal.RetryState{AttemptCount: 5}
	rec := p.ShouldRetry(internal.ErrKindNetworkTimeout, state, RetryContext{})
	if rec.Decision != DecisionStop {
		t.Errorf("expected stop once attempt count reaches the kind's MaxAttempts, got %v", rec.Decision)
	}
}

func TestRetryPolicy_ShouldRetry_OpensCircuitBreaker(t *testing.T) {
	p := DefaultRetryPolicy()
	state := internal.NewRetryState()
	rec := p.ShouldRetry(internal.ErrKindNetworkTimeout, state, RetryContext{ConsecutiveFail: p.CircuitBreakerThreshold})
	if rec.Decision != DecisionCircuitBreakerOpen {
		t.Errorf("expected circuit breaker to open, got %v", rec.Decision)
	}
}

func TestRetryPolicy_ShouldRetry_RecommendsDelayWithinBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	state := internal.NewRetryState()
	rec := p.ShouldRetry(internal.ErrKindServerError, state, RetryContext{})
	if rec.Decision != DecisionRetry {
		t.Fatalf("expected a retry decision, got %v", rec.Decision)
	}
	if rec.SuggestedDelay < p.MinDelay || rec.SuggestedDelay > p.MaxDelay {
		t.Errorf("suggested delay %v outside [%v, %v]", rec.SuggestedDelay, p.MinDelay, p.MaxDelay)
	}
}

func TestRetryPolicy_ShouldRetry_HonorsRetryAfter(t *testing.T) {
	p := DefaultRetryPolicy()
	state := internal.NewRetryState()
	longRetryAfter := 45 * time.Second
	rec := p.ShouldRetry(internal.ErrKindRateLimited, state, RetryContext{RetryAfter: longRetryAfter})
	if rec.Decision != DecisionRetry {
		t.Fatalf("expected a retry decision, got %v", rec.Decision)
	}
	if rec.SuggestedDelay != longRetryAfter {
		t.Errorf("Retry-After is a lower bound on the delay, even beyond MaxDelay; got %v, want %v", rec.SuggestedDelay, longRetryAfter)
	}
}
