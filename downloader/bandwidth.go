package downloader

import (
	"math"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/google/uuid"

	"swiftget/internal"
)

// rebalanceInterval is the periodic reallocation cadence of §4.4
// ("approximately every 2s").
const rebalanceInterval = 2 * time.Second

// floorBytesPerSec is the minimum allocation the manager will ever grant;
// a request that cannot clear this floor after reclamation is rejected.
const floorBytesPerSec = 16 * 1024

type allocation struct {
	token      internal.BandwidthToken
	usageEWMA  ewma.MovingAverage
	lastUpdate time.Time
}

// BandwidthManager is the process-wide, priority-weighted shared rate
// budget of §4.4 (C2). It is an exclusive-access actor: every public method
// takes the manager's single mutex, satisfying §5's "serialised as an
// actor" requirement via a mutex-guarded state machine (one of the two
// permitted implementation strategies per §9).
type BandwidthManager struct {
	mu          sync.Mutex
	totalLimit  int64
	allocations map[string]*allocation
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBandwidthManager creates a manager with the given total cap in bytes
// per second. totalLimit <= 0 means unlimited: request() always grants the
// full ask.
func NewBandwidthManager(totalLimit int64) *BandwidthManager {
	m := &BandwidthManager{
		totalLimit:  totalLimit,
		allocations: make(map[string]*allocation),
		stopCh:      make(chan struct{}),
	}
	go m.rebalanceLoop()
	return m
}

// Close stops the background rebalance loop. Safe to call more than once.
func (m *BandwidthManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *BandwidthManager) activeSum() int64 {
	var sum int64
	for _, a := range m.allocations {
		sum += a.token.AllocatedBytesPerSec
	}
	return sum
}

func (m *BandwidthManager) weightSum(excluding string) float64 {
	var sum float64
	for id, a := range m.allocations {
		if id == excluding {
			continue
		}
		sum += a.token.Priority.Weight()
	}
	return sum
}

// Request implements the §4.4 request(requestedBps, priority, downloadId)
// -> token? algorithm. Returns (nil, false) for "no token" on any of the
// total/non-throwing failure paths described in §4.4's failure model.
func (m *BandwidthManager) Request(requestedBps int64, priority internal.Priority, downloadID string) (*internal.BandwidthToken, bool) {
	if requestedBps <= 0 {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalLimit <= 0 {
		return m.mintLocked(requestedBps, priority, downloadID), true
	}

	availableImmediate := m.totalLimit - m.activeSum()
	if availableImmediate < 0 {
		availableImmediate = 0
	}
	if availableImmediate >= requestedBps {
		return m.mintLocked(requestedBps, priority, downloadID), true
	}

	// Priority-weighted fair share.
	wNew := priority.Weight()
	wActive := m.weightSum("")
	fairShare := m.totalLimit * int64(wNew) / int64(wNew+wActive)
	grant := requestedBps
	if fairShare < grant {
		grant = fairShare
	}
	if grant > availableImmediate {
		// Attempt reclamation from under-utilized peers of equal-or-lower
		// priority before giving up.
		m.reclaimLocked(priority, grant-availableImmediate)
		availableImmediate = m.totalLimit - m.activeSum()
		if availableImmediate < 0 {
			availableImmediate = 0
		}
		if grant > availableImmediate {
			grant = availableImmediate
		}
	}
	if grant < floorBytesPerSec {
		return nil, false
	}
	return m.mintLocked(grant, priority, downloadID), true
}

func (m *BandwidthManager) mintLocked(bps int64, priority internal.Priority, downloadID string) *internal.BandwidthToken {
	tok := internal.BandwidthToken{
		ID:                   uuid.NewString(),
		DownloadID:           downloadID,
		AllocatedBytesPerSec: bps,
		Priority:             priority,
		CreatedAt:            time.Now(),
	}
	m.allocations[tok.ID] = &allocation{
		token:      tok,
		usageEWMA:  ewma.NewMovingAverage(),
		lastUpdate: time.Now(),
	}
	return &tok
}

// reclaimLocked reduces allocations for under-utilized peers of priority <=
// the requester's, toward observed usage + 10% headroom, until `need`
// additional bytes/sec have been freed or no more can be reclaimed (§4.4).
func (m *BandwidthManager) reclaimLocked(requester internal.Priority, need int64) {
	if need <= 0 {
		return
	}
	var reclaimed int64
	for _, a := range m.allocations {
		if reclaimed >= need {
			return
		}
		if a.token.Priority > requester {
			continue // never reclaim from a strictly higher priority
		}
		ratio := a.token.UtilizationRatio()
		if a.token.AllocatedBytesPerSec <= 0 || ratio >= internal.UnderUtilizedThreshold {
			continue
		}
		target := int64(math.Ceil(float64(a.token.LastReportedUsage) * 1.1))
		if target < floorBytesPerSec {
			target = floorBytesPerSec
		}
		if target >= a.token.AllocatedBytesPerSec {
			continue
		}
		freed := a.token.AllocatedBytesPerSec - target
		a.token.AllocatedBytesPerSec = target
		reclaimed += freed
	}
}

// Release removes the allocation for tokenID (§4.4). A pending-waiter queue
// is not modeled explicitly: the next Request call simply observes more
// headroom, which is equivalent for a synchronous request() API.
func (m *BandwidthManager) Release(tokenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allocations, tokenID)
}

// UpdateUsage records an EWMA of observed bytes/sec for tokenID (§4.4).
func (m *BandwidthManager) UpdateUsage(tokenID string, observedBps int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocations[tokenID]
	if !ok {
		return
	}
	a.usageEWMA.Add(float64(observedBps))
	a.token.LastReportedUsage = int64(a.usageEWMA.Value())
	a.lastUpdate = time.Now()
}

// AdjustLimit resizes totalLimit; if it shrinks below the active sum,
// every allocation is scaled down by the same factor newTotal/activeSum
// (§4.4). Priority classes are not distinguished: no class is reduced
// before another. No allocation is reduced below floorBytesPerSec, so the
// new sum can exceed newTotal.
func (m *BandwidthManager) AdjustLimit(newTotal int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalLimit = newTotal
	if newTotal <= 0 {
		return
	}
	active := m.activeSum()
	if active <= newTotal {
		return
	}
	scale := float64(newTotal) / float64(active)
	for _, a := range m.allocations {
		scaled := int64(float64(a.token.AllocatedBytesPerSec) * scale)
		if scaled < floorBytesPerSec {
			scaled = floorBytesPerSec
		}
		a.token.AllocatedBytesPerSec = scaled
	}
}

// Snapshot returns a copy of the token currently recorded for tokenID, used
// by workers to read their latest allocated rate after a rebalance.
func (m *BandwidthManager) Snapshot(tokenID string) (internal.BandwidthToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocations[tokenID]
	if !ok {
		return internal.BandwidthToken{}, false
	}
	return a.token, true
}

func (m *BandwidthManager) rebalanceLoop() {
	ticker := time.NewTicker(rebalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.rebalanceOnce()
		}
	}
}

// rebalanceOnce reclaims from under-utilized tokens and redistributes to
// over-utilized ones in priority order (§4.4's periodic rebalance).
func (m *BandwidthManager) rebalanceOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalLimit <= 0 || len(m.allocations) == 0 {
		return
	}

	type entry struct {
		id  string
		a   *allocation
	}
	var overUtilized, underUtilized []entry
	for id, a := range m.allocations {
		ratio := a.token.UtilizationRatio()
		switch {
		case ratio > internal.OverUtilizedThreshold:
			overUtilized = append(overUtilized, entry{id, a})
		case ratio < internal.UnderUtilizedThreshold && a.token.AllocatedBytesPerSec > floorBytesPerSec:
			underUtilized = append(underUtilized, entry{id, a})
		}
	}
	if len(overUtilized) == 0 || len(underUtilized) == 0 {
		return
	}

	var pool int64
	for _, e := range underUtilized {
		target := int64(math.Ceil(float64(e.a.token.LastReportedUsage) * 1.1))
		if target < floorBytesPerSec {
			target = floorBytesPerSec
		}
		if target >= e.a.token.AllocatedBytesPerSec {
			continue
		}
		freed := e.a.token.AllocatedBytesPerSec - target
		e.a.token.AllocatedBytesPerSec = target
		pool += freed
	}
	if pool <= 0 {
		return
	}

	// Distribute the reclaimed pool to over-utilized tokens, highest
	// priority first.
	for pi := internal.PriorityCritical; pi >= internal.PriorityLow && pool > 0; pi-- {
		for _, e := range overUtilized {
			if pool <= 0 {
				break
			}
			if e.a.token.Priority != pi {
				continue
			}
			grant := pool / int64(len(overUtilized))
			if grant <= 0 {
				grant = pool
			}
			e.a.token.AllocatedBytesPerSec += grant
			pool -= grant
		}
	}
}
