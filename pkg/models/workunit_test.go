package models

import "testing"

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		phase Phase
		next  Phase
		more  bool
	}{
		{PhaseGoal, PhasePlan, true},
		{PhasePlan, PhaseImplement, true},
		{PhaseImplement, PhaseComplete, true},
		{PhaseComplete, PhaseComplete, false},
	}

	for _, tt := range tests {
		next, more := tt.phase.Next()
		if next != tt.next || more != tt.more {
			t.Errorf("%s.Next() = (%s, %v), want (%s, %v)", tt.phase, next, more, tt.next, tt.more)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusReady, StatusRunning, StatusBlocked, StatusNeedsAttention, StatusDone} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if Status("SLEEPING").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestWorkUnitBlockers(t *testing.T) {
	u := &WorkUnit{Chunk: "b", Status: StatusBlocked}

	u.AddBlocker("a")
	u.AddBlocker("a") // duplicate ignored
	u.AddBlocker("c")
	if len(u.BlockedBy) != 2 {
		t.Fatalf("expected 2 blockers, got %d", len(u.BlockedBy))
	}

	if empty := u.RemoveBlocker("a"); empty {
		t.Error("expected blockers to remain after removing a")
	}
	if u.IsBlockedBy("a") {
		t.Error("a should have been removed")
	}
	if empty := u.RemoveBlocker("c"); !empty {
		t.Error("expected empty blocked_by after removing c")
	}
	if u.BlockedBy != nil {
		t.Errorf("expected nil BlockedBy, got %v", u.BlockedBy)
	}
}

func TestWorkUnitCheckInvariants(t *testing.T) {
	blocked := &WorkUnit{Chunk: "x", Status: StatusBlocked}
	if err := blocked.CheckInvariants(); err == nil {
		t.Error("expected invariant violation for BLOCKED with no blockers")
	}

	attention := &WorkUnit{Chunk: "x", Status: StatusNeedsAttention}
	if err := attention.CheckInvariants(); err == nil {
		t.Error("expected invariant violation for NEEDS_ATTENTION without reason")
	}

	ok := &WorkUnit{Chunk: "x", Status: StatusReady}
	if err := ok.CheckInvariants(); err != nil {
		t.Errorf("unexpected invariant violation: %v", err)
	}
}
