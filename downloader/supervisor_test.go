package downloader

import (
	"errors"
	"testing"

	"swiftget/internal"
)

func newTestSupervisor(preset SupervisorPreset, totalSegments int, enableFallback bool) *Supervisor {
	return NewSupervisor(preset, DefaultRetryPolicy(), NewSegmentPlanner(), totalSegments, enableFallback)
}

func TestSupervisor_UnregisteredSegmentAborts(t *testing.T) {
	s := newTestSupervisor(DefaultPreset(), 4, false)
	defer s.Close()

	seg := internal.SegmentRange{Index: 0, Start: 0, End: 999, ParentIndex: 0}
	dec := s.HandleFailure(seg, 0, errors.New("boom"), 0, RetryContext{}, nil)
	if dec.Action != ActionAbort {
		t.Errorf("unregistered segment should abort, got %v", dec.Action)
	}
}

func TestSupervisor_RetriesTransientFailure(t *testing.T) {
	s := newTestSupervisor(DefaultPreset(), 4, false)
	defer s.Close()
	s.RegisterSegment(0)

	seg := internal.SegmentRange{Index: 0, Start: 0, End: 999, ParentIndex: 0}
	dec := s.HandleFailure(seg, 0, errors.New("connection reset by peer"), 0, RetryContext{}, nil)
	if dec.Action != ActionRetry {
		t.Errorf("a fresh transient failure should be retried, got %v: %s", dec.Action, dec.Reason)
	}
}

func TestSupervisor_RedistributesAfterRetriesExhausted(t *testing.T) {
	preset := SupervisorPreset{MaxTotalRetries: 0, MaxRedistributions: 3, FallbackThreshold: 0.9, RedistributionThreshold: 1024}
	s := newTestSupervisor(preset, 4, false)
	defer s.Close()
	s.RegisterSegment(0)

	seg := internal.SegmentRange{Index: 0, Start: 0, End: 1 << 20, ParentIndex: 0}
	dec := s.HandleFailure(seg, 0, errors.New("connection reset by peer"), 0, RetryContext{}, []int{1, 2})
	if dec.Action != ActionRedistribute {
		t.Fatalf("expected redistribution once the retry budget is zero, got %v: %s", dec.Action, dec.Reason)
	}
	if len(dec.RedistributeRanges) != 2 {
		t.Errorf("expected one new range per peer, got %d", len(dec.RedistributeRanges))
	}
}

func TestSupervisor_AbortsWhenNotRetryableAndNoPeers(t *testing.T) {
	preset := SupervisorPreset{MaxTotalRetries: 0, MaxRedistributions: 3, FallbackThreshold: 0.9, RedistributionThreshold: 1024}
	s := newTestSupervisor(preset, 4, false)
	defer s.Close()
	s.RegisterSegment(0)

	seg := internal.SegmentRange{Index: 0, Start: 0, End: 1 << 20, ParentIndex: 0}
	dec := s.HandleFailure(seg, 0, errors.New("404 not found"), 404, RetryContext{}, nil)
	if dec.Action != ActionAbort {
		t.Errorf("a client error with no peers to redistribute to should abort, got %v", dec.Action)
	}
}

func TestSupervisor_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	preset := SupervisorPreset{MaxTotalRetries: 999, MaxRedistributions: 0, FallbackThreshold: 0.99, RedistributionThreshold: 1 << 30}
	s := newTestSupervisor(preset, 16, false)
	defer s.Close()

	threshold := DefaultRetryPolicy().CircuitBreakerThreshold
	var last SupervisorDecision
	for i := 0; i < threshold; i++ {
		s.RegisterSegment(i)
		seg := internal.SegmentRange{Index: i, Start: 0, End: 999, ParentIndex: i}
		last = s.HandleFailure(seg, 0, errors.New("connection reset by peer"), 0, RetryContext{}, nil)
	}
	if last.Action != ActionAbort {
		t.Fatalf("expected the circuit breaker to force an abort on the %dth consecutive failure, got %v: %s", threshold, last.Action, last.Reason)
	}
}

func TestSupervisor_RecordSuccessResetsConsecutiveFailureStreak(t *testing.T) {
	preset := SupervisorPreset{MaxTotalRetries: 999, MaxRedistributions: 0, FallbackThreshold: 0.99, RedistributionThreshold: 1 << 30}
	s := newTestSupervisor(preset, 16, false)
	defer s.Close()

	threshold := DefaultRetryPolicy().CircuitBreakerThreshold
	for i := 0; i < threshold-1; i++ {
		s.RegisterSegment(i)
		seg := internal.SegmentRange{Index: i, Start: 0, End: 999, ParentIndex: i}
		s.HandleFailure(seg, 0, errors.New("connection reset by peer"), 0, RetryContext{}, nil)
	}

	s.RecordSuccess()

	s.RegisterSegment(threshold)
	seg := internal.SegmentRange{Index: threshold, Start: 0, End: 999, ParentIndex: threshold}
	dec := s.HandleFailure(seg, 0, errors.New("connection reset by peer"), 0, RetryContext{}, nil)
	if dec.Action != ActionRetry {
		t.Errorf("a success should reset the consecutive-failure streak, expected a retry but got %v: %s", dec.Action, dec.Reason)
	}
}

func TestSupervisor_FallsBackWhenFailureRatioExceedsThreshold(t *testing.T) {
	preset := SupervisorPreset{MaxTotalRetries: 0, MaxRedistributions: 0, FallbackThreshold: 0.4, RedistributionThreshold: 1024}
	s := newTestSupervisor(preset, 2, true)
	defer s.Close()
	s.RegisterSegment(0)

	seg := internal.SegmentRange{Index: 0, Start: 0, End: 999, ParentIndex: 0}
	dec := s.HandleFailure(seg, 0, errors.New("404 not found"), 404, RetryContext{}, nil)
	if dec.Action != ActionFallback {
		t.Errorf("failure ratio 1/2 >= 0.4 threshold should trigger fallback, got %v", dec.Action)
	}
}
