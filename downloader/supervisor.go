package downloader

import (
	"time"

	"swiftget/internal"
)

// SupervisorAction is the decision returned by the recovery supervisor on
// a segment failure (§4.7).
type SupervisorAction string

const (
	ActionRetry       SupervisorAction = "retry"
	ActionRedistribute SupervisorAction = "redistribute"
	ActionFallback    SupervisorAction = "fallback"
	ActionAbort       SupervisorAction = "abort"
)

// SupervisorPreset bundles the conservative/default/aggressive ceilings of
// §4.7.
type SupervisorPreset struct {
	MaxTotalRetries         int
	MaxRedistributions      int
	FallbackThreshold       float64
	RedistributionThreshold int64
}

func ConservativePreset() SupervisorPreset {
	return SupervisorPreset{MaxTotalRetries: 5, MaxRedistributions: 1, FallbackThreshold: 0.3, RedistributionThreshold: 1024 * 1024}
}

func DefaultPreset() SupervisorPreset {
	return SupervisorPreset{MaxTotalRetries: 15, MaxRedistributions: 3, FallbackThreshold: 0.5, RedistributionThreshold: 1024 * 1024}
}

func AggressivePreset() SupervisorPreset {
	return SupervisorPreset{MaxTotalRetries: 25, MaxRedistributions: 5, FallbackThreshold: 0.7, RedistributionThreshold: 1024 * 1024}
}

// SupervisorDecision is returned by HandleFailure, carrying enough to act
// on each SupervisorAction.
type SupervisorDecision struct {
	Action            SupervisorAction
	RetryDelay        time.Duration
	RedistributeRanges []internal.SegmentRange
	Reason            string
}

// Supervisor is the per-download recovery policy of §4.7 (C7): a
// channel-actor exclusively owning retry state and the retry/redistribute
// counters, satisfying §5's "exclusive-access actor" and §9's one-way
// worker-to-supervisor reference (workers never hold a pointer back to the
// supervisor; they receive decisions via return value).
type Supervisor struct {
	preset  SupervisorPreset
	policy  *RetryPolicy
	planner *SegmentPlanner

	retryStates map[int]*internal.RetryState

	totalRetries         int
	totalRedistributions int
	totalSegments        int
	failedSegments       int
	consecutiveFail      int

	enableFallback bool

	reqCh     chan supervisorReq
	regCh     chan int
	successCh chan struct{}
	done      chan struct{}
}

type supervisorReq struct {
	segment    internal.SegmentRange
	resumeFrom int64
	err        error
	httpStatus int
	rctx       RetryContext
	peers      []int
	resp       chan SupervisorDecision
}

// NewSupervisor starts the actor for one download with totalSegments known
// up front (original planner output count; redistributed segments do not
// change this denominator, matching §4.7's failureRatio definition).
func NewSupervisor(preset SupervisorPreset, policy *RetryPolicy, planner *SegmentPlanner, totalSegments int, enableFallback bool) *Supervisor {
	s := &Supervisor{
		preset:         preset,
		policy:         policy,
		planner:        planner,
		retryStates:    make(map[int]*internal.RetryState),
		totalSegments:  totalSegments,
		enableFallback: enableFallback,
		reqCh:          make(chan supervisorReq),
		regCh:          make(chan int),
		successCh:      make(chan struct{}),
		done:           make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Supervisor) run() {
	defer close(s.done)
	for {
		select {
		case req, ok := <-s.reqCh:
			if !ok {
				return
			}
			req.resp <- s.handleFailureLocked(req)
		case parentIndex, ok := <-s.regCh:
			if !ok {
				return
			}
			if _, exists := s.retryStates[parentIndex]; !exists {
				s.retryStates[parentIndex] = internal.NewRetryState()
			}
		case _, ok := <-s.successCh:
			if !ok {
				return
			}
			s.consecutiveFail = 0
		}
	}
}

// HandleFailure implements the §4.7 decision tree for a failed segment.
func (s *Supervisor) HandleFailure(segment internal.SegmentRange, resumeFrom int64, err error, httpStatus int, rctx RetryContext, activePeers []int) SupervisorDecision {
	resp := make(chan SupervisorDecision, 1)
	s.reqCh <- supervisorReq{
		segment:    segment,
		resumeFrom: resumeFrom,
		err:        err,
		httpStatus: httpStatus,
		rctx:       rctx,
		peers:      activePeers,
		resp:       resp,
	}
	return <-resp
}

// RecordSuccess resets the download-wide consecutive-failure streak that
// feeds the circuit breaker (§4.6), matching a segment completing cleanly.
func (s *Supervisor) RecordSuccess() {
	s.successCh <- struct{}{}
}

func (s *Supervisor) handleFailureLocked(req supervisorReq) SupervisorDecision {
	state, ok := s.retryStates[req.segment.ParentIndex]
	if !ok {
		// Unknown segment index: abort per §4.7's final rule.
		return SupervisorDecision{Action: ActionAbort, Reason: "unknown segment index"}
	}

	s.consecutiveFail++
	req.rctx.ConsecutiveFail = s.consecutiveFail

	kind := Classify(req.err, internal.TransferContext{HTTPStatus: req.httpStatus})
	state.LastError = req.err
	state.LastClassifiedCategory = kind.Info().Category
	state.AttemptCount++

	rec := s.policy.ShouldRetry(kind, state, req.rctx)

	if rec.Decision == DecisionRetry && s.totalRetries < s.preset.MaxTotalRetries {
		s.totalRetries++
		state.BumpBackoff()
		return SupervisorDecision{Action: ActionRetry, RetryDelay: rec.SuggestedDelay, Reason: rec.Reasoning}
	}

	remaining := req.segment.End - req.resumeFrom + 1
	if s.totalRedistributions < s.preset.MaxRedistributions &&
		remaining >= s.preset.RedistributionThreshold &&
		len(req.peers) > 0 {
		planner := s.planner
		if planner == nil {
			planner = NewSegmentPlanner()
		}
		planner.RedistributionSizeThreshold = s.preset.RedistributionThreshold
		newRanges, ok := planner.Redistribute(req.segment, req.resumeFrom, req.peers, s.totalRedistributions)
		if ok {
			s.totalRedistributions++
			state.IsRedistributed = true
			for _, r := range newRanges {
				state.RedistributionTargets = append(state.RedistributionTargets, r.Index)
			}
			return SupervisorDecision{Action: ActionRedistribute, RedistributeRanges: newRanges, Reason: "segment tail redistributed to active peers"}
		}
	}

	s.failedSegments++
	denom := s.totalSegments
	if denom < 1 {
		denom = 1
	}
	failureRatio := float64(s.failedSegments) / float64(denom)
	if s.enableFallback && failureRatio >= s.preset.FallbackThreshold {
		return SupervisorDecision{Action: ActionFallback, Reason: "failure ratio exceeds fallback threshold"}
	}

	return SupervisorDecision{Action: ActionAbort, Reason: rec.Reasoning}
}

// RegisterSegment initializes retry state for a segment before its first
// attempt; the supervisor only ever acts on segments it has registered.
func (s *Supervisor) RegisterSegment(parentIndex int) {
	s.regCh <- parentIndex
}

// Close stops the supervisor's actor goroutine.
func (s *Supervisor) Close() {
	close(s.reqCh)
	<-s.done
}
