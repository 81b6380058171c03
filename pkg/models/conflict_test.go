package models

import "testing"

func TestPairKey(t *testing.T) {
	a, b := PairKey("zeta", "alpha")
	if a != "alpha" || b != "zeta" {
		t.Errorf("PairKey(zeta, alpha) = (%s, %s), want (alpha, zeta)", a, b)
	}

	a, b = PairKey("alpha", "zeta")
	if a != "alpha" || b != "zeta" {
		t.Errorf("PairKey(alpha, zeta) = (%s, %s), want (alpha, zeta)", a, b)
	}
}

func TestStageForPhase(t *testing.T) {
	tests := []struct {
		phase Phase
		stage Stage
	}{
		{PhaseGoal, StageProposed},
		{PhasePlan, StageGoal},
		{PhaseImplement, StagePlan},
		{PhaseComplete, StageCompleted},
	}

	for _, tt := range tests {
		if got := StageForPhase(tt.phase); got != tt.stage {
			t.Errorf("StageForPhase(%s) = %s, want %s", tt.phase, got, tt.stage)
		}
	}
}

func TestCommonStage(t *testing.T) {
	// One unit implementing, one still defining its goal: only intents are
	// common evidence.
	if got := CommonStage(PhaseImplement, PhaseGoal); got != StageProposed {
		t.Errorf("CommonStage(IMPLEMENT, GOAL) = %s, want PROPOSED", got)
	}
	if got := CommonStage(PhasePlan, PhaseImplement); got != StageGoal {
		t.Errorf("CommonStage(PLAN, IMPLEMENT) = %s, want GOAL", got)
	}
	if got := CommonStage(PhaseComplete, PhaseComplete); got != StageCompleted {
		t.Errorf("CommonStage(COMPLETE, COMPLETE) = %s, want COMPLETED", got)
	}
}

func TestConflictAnalysisPeer(t *testing.T) {
	c := &ConflictAnalysis{ChunkA: "a", ChunkB: "b"}
	if c.Peer("a") != "b" || c.Peer("b") != "a" {
		t.Error("Peer should return the other chunk of the pair")
	}
	if c.Peer("c") != "" {
		t.Error("Peer of an uninvolved chunk should be empty")
	}
	if !c.Involves("a") || c.Involves("c") {
		t.Error("Involves mismatch")
	}
}
