package downloader

import (
	"testing"

	"swiftget/internal"
)

func TestBandwidthManager_UnlimitedGrantsFullAsk(t *testing.T) {
	m := NewBandwidthManager(0)
	defer m.Close()

	tok, ok := m.Request(10_000_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected a grant when totalLimit is unlimited")
	}
	if tok.AllocatedBytesPerSec != 10_000_000 {
		t.Errorf("AllocatedBytesPerSec = %d, want the full request", tok.AllocatedBytesPerSec)
	}
}

func TestBandwidthManager_ZeroOrNegativeRequestIsRejected(t *testing.T) {
	m := NewBandwidthManager(0)
	defer m.Close()

	if _, ok := m.Request(0, internal.PriorityNormal, "dl-1"); ok {
		t.Error("a zero-byte request should never be granted")
	}
	if _, ok := m.Request(-1, internal.PriorityNormal, "dl-1"); ok {
		t.Error("a negative request should never be granted")
	}
}

func TestBandwidthManager_GrantsWithinAvailableBudget(t *testing.T) {
	m := NewBandwidthManager(1_000_000)
	defer m.Close()

	tok, ok := m.Request(400_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected a grant within the total budget")
	}
	if tok.AllocatedBytesPerSec != 400_000 {
		t.Errorf("AllocatedBytesPerSec = %d, want 400000", tok.AllocatedBytesPerSec)
	}
}

func TestBandwidthManager_ExhaustedBudgetFallsBackToFairShare(t *testing.T) {
	m := NewBandwidthManager(1_000_000)
	defer m.Close()

	first, ok := m.Request(1_000_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected the first request to consume the entire budget")
	}

	second, ok := m.Request(1_000_000, internal.PriorityNormal, "dl-2")
	if !ok {
		t.Fatal("expected a fair-share grant once the budget is fully committed")
	}
	if second.AllocatedBytesPerSec <= 0 || second.AllocatedBytesPerSec >= first.AllocatedBytesPerSec {
		t.Errorf("expected a smaller, nonzero fair-share grant, got %d (first held %d)", second.AllocatedBytesPerSec, first.AllocatedBytesPerSec)
	}
}

func TestBandwidthManager_ReleaseFreesBudgetForNextRequest(t *testing.T) {
	m := NewBandwidthManager(1_000_000)
	defer m.Close()

	tok, ok := m.Request(1_000_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected the first request to succeed")
	}

	m.Release(tok.ID)

	if _, ok := m.Snapshot(tok.ID); ok {
		t.Error("released token should no longer be present in the manager")
	}

	tok2, ok := m.Request(1_000_000, internal.PriorityNormal, "dl-2")
	if !ok {
		t.Fatal("expected full budget to be available again after release")
	}
	if tok2.AllocatedBytesPerSec != 1_000_000 {
		t.Errorf("AllocatedBytesPerSec = %d, want 1000000 once the prior holder released", tok2.AllocatedBytesPerSec)
	}
}

func TestBandwidthManager_UpdateUsageFeedsUtilizationRatio(t *testing.T) {
	m := NewBandwidthManager(1_000_000)
	defer m.Close()

	tok, ok := m.Request(500_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected a grant")
	}

	m.UpdateUsage(tok.ID, 500_000)

	snap, ok := m.Snapshot(tok.ID)
	if !ok {
		t.Fatal("expected the token to still be tracked")
	}
	if snap.LastReportedUsage <= 0 {
		t.Error("expected UpdateUsage to record a nonzero reported usage")
	}
	if snap.UtilizationRatio() <= 0 {
		t.Error("expected a positive utilization ratio after reporting usage equal to the allocation")
	}
}

func TestBandwidthManager_AdjustLimitScalesDownActiveAllocations(t *testing.T) {
	m := NewBandwidthManager(1_000_000)
	defer m.Close()

	tok, ok := m.Request(1_000_000, internal.PriorityNormal, "dl-1")
	if !ok {
		t.Fatal("expected a grant of the full initial budget")
	}

	m.AdjustLimit(500_000)

	snap, ok := m.Snapshot(tok.ID)
	if !ok {
		t.Fatal("expected the token to still be tracked after AdjustLimit")
	}
	if snap.AllocatedBytesPerSec >= tok.AllocatedBytesPerSec {
		t.Errorf("expected AdjustLimit to scale the allocation down, got %d (was %d)", snap.AllocatedBytesPerSec, tok.AllocatedBytesPerSec)
	}
}

func TestBandwidthManager_SnapshotMissingTokenIsFalse(t *testing.T) {
	m := NewBandwidthManager(0)
	defer m.Close()

	if _, ok := m.Snapshot("does-not-exist"); ok {
		t.Error("Snapshot of an unknown token ID should report false")
	}
}
