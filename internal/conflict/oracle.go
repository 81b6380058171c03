// Package conflict implements the progressive conflict oracle. It decides
// whether two chunks may run in parallel, using the most precise evidence the
// pair's phases make available: proposed intents, goal documents, planned
// file paths and symbols, or recorded code references.
package conflict

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ShayCichocki/chunkd/internal/collab"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

// AnalysisError reports a failure to gather or score evidence for a pair.
// Callers treat it as advisory: the returned analysis degrades to
// ASK_OPERATOR and dispatch continues.
type AnalysisError struct {
	ChunkA string
	ChunkB string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("conflict analysis for %s/%s: %v", e.ChunkA, e.ChunkB, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Stage weights express how much a clear signal at each evidence tier is
// worth. Later tiers see more of the real work, so their verdicts count for
// more at equal signal strength.
const (
	weightProposed  = 0.85
	weightGoal      = 0.90
	weightPlan      = 0.97
	weightCompleted = 1.0

	// serializeThreshold is the minimum confidence for an automatic verdict.
	// Below it the oracle asks the operator rather than guess.
	serializeThreshold = 0.8

	// overlapSimilarity is the similarity score above which two text
	// descriptions are considered to target the same work.
	overlapSimilarity = 0.5
)

func stageWeight(s models.Stage) float64 {
	switch s {
	case models.StageProposed:
		return weightProposed
	case models.StageGoal:
		return weightGoal
	case models.StagePlan:
		return weightPlan
	case models.StageCompleted:
		return weightCompleted
	default:
		return 0
	}
}

// confidence maps a similarity score to verdict confidence. Scores near 0 or
// 1 are decisive either way; scores near the overlap boundary are ambiguous.
func confidence(sim, weight float64) float64 {
	c := weight * 2 * math.Abs(sim-overlapSimilarity)
	return math.Min(c, 1)
}

// Oracle computes serialization verdicts for chunk pairs. It reads evidence
// from the artifact store and scores text evidence with the configured
// comparator.
type Oracle struct {
	artifacts  collab.ArtifactStore
	comparator collab.Comparator
	now        func() time.Time
}

// NewOracle builds an oracle over the given artifact store. A nil comparator
// falls back to the builtin token comparator.
func NewOracle(artifacts collab.ArtifactStore, comparator collab.Comparator) *Oracle {
	if comparator == nil {
		comparator = &TokenComparator{}
	}
	return &Oracle{artifacts: artifacts, comparator: comparator, now: time.Now}
}

// Analyze computes the verdict for a pair of work units at their common
// evidence stage. It always returns a usable analysis: when evidence cannot
// be gathered or scored, the analysis carries VerdictAskOperator and the
// returned *AnalysisError describes the failure.
func (o *Oracle) Analyze(ctx context.Context, a, b *models.WorkUnit) (*models.ConflictAnalysis, error) {
	chunkA, chunkB := models.PairKey(a.Chunk, b.Chunk)
	stage := models.CommonStage(a.Phase, b.Phase)

	analysis := &models.ConflictAnalysis{
		ChunkA:     chunkA,
		ChunkB:     chunkB,
		Stage:      stage,
		ComputedAt: o.now(),
	}

	var err error
	switch stage {
	case models.StageProposed:
		err = o.scoreProposed(ctx, analysis)
	case models.StageGoal:
		err = o.scoreGoal(ctx, analysis)
	case models.StagePlan:
		err = o.scorePlan(ctx, analysis)
	case models.StageCompleted:
		err = o.scoreCompleted(analysis)
	default:
		err = fmt.Errorf("unknown evidence stage %q", stage)
	}
	if err != nil {
		aerr := &AnalysisError{ChunkA: chunkA, ChunkB: chunkB, Err: err}
		analysis.Verdict = models.VerdictAskOperator
		analysis.Confidence = 0
		analysis.Rationale = aerr.Error()
		return analysis, aerr
	}
	return analysis, nil
}

func (o *Oracle) scoreProposed(ctx context.Context, an *models.ConflictAnalysis) error {
	ia, err := o.artifacts.Intent(an.ChunkA)
	if err != nil {
		return fmt.Errorf("reading intent of %s: %w", an.ChunkA, err)
	}
	ib, err := o.artifacts.Intent(an.ChunkB)
	if err != nil {
		return fmt.Errorf("reading intent of %s: %w", an.ChunkB, err)
	}
	return o.scoreText(ctx, an, ia, ib, "intents")
}

func (o *Oracle) scoreGoal(ctx context.Context, an *models.ConflictAnalysis) error {
	ga, err := o.goalEvidence(an.ChunkA)
	if err != nil {
		return err
	}
	gb, err := o.goalEvidence(an.ChunkB)
	if err != nil {
		return err
	}
	return o.scoreText(ctx, an, ga, gb, "goals")
}

// goalEvidence concatenates a chunk's intent and template-stripped goal text.
func (o *Oracle) goalEvidence(chunk string) (string, error) {
	intent, err := o.artifacts.Intent(chunk)
	if err != nil {
		return "", fmt.Errorf("reading intent of %s: %w", chunk, err)
	}
	goal, err := o.artifacts.GoalText(chunk)
	if err != nil {
		return "", fmt.Errorf("reading goal of %s: %w", chunk, err)
	}
	return intent + "\n" + StripBoilerplate(goal), nil
}

func (o *Oracle) scorePlan(ctx context.Context, an *models.ConflictAnalysis) error {
	pa, err := o.artifacts.PlanText(an.ChunkA)
	if err != nil {
		return fmt.Errorf("reading plan of %s: %w", an.ChunkA, err)
	}
	pb, err := o.artifacts.PlanText(an.ChunkB)
	if err != nil {
		return fmt.Errorf("reading plan of %s: %w", an.ChunkB, err)
	}

	files := Intersect(PlanLocations(pa), PlanLocations(pb))
	symbols := Intersect(PlanSymbols(pa), PlanSymbols(pb))
	if len(files) > 0 || len(symbols) > 0 {
		an.Verdict = models.VerdictSerialize
		an.Confidence = weightPlan
		an.OverlappingFiles = files
		an.OverlappingSymbols = symbols
		an.Rationale = fmt.Sprintf("plans name the same targets (%s)", describeOverlap(files, symbols))
		return nil
	}
	return o.scoreText(ctx, an, StripBoilerplate(pa), StripBoilerplate(pb), "plans")
}

func (o *Oracle) scoreCompleted(an *models.ConflictAnalysis) error {
	ra, err := o.artifacts.CodeReferences(an.ChunkA)
	if err != nil {
		return fmt.Errorf("reading code references of %s: %w", an.ChunkA, err)
	}
	rb, err := o.artifacts.CodeReferences(an.ChunkB)
	if err != nil {
		return fmt.Errorf("reading code references of %s: %w", an.ChunkB, err)
	}

	an.Confidence = weightCompleted
	if shared := Intersect(ra, rb); len(shared) > 0 {
		an.Verdict = models.VerdictSerialize
		an.OverlappingSymbols = shared
		an.Rationale = fmt.Sprintf("completed work touched the same code (%s)", strings.Join(shared, ", "))
	} else {
		an.Verdict = models.VerdictIndependent
		an.Rationale = "completed work touched disjoint code"
	}
	return nil
}

// scoreText applies the comparator and maps similarity to a verdict. High
// confidence resolves automatically; anything near the overlap boundary is
// routed to the operator.
func (o *Oracle) scoreText(ctx context.Context, an *models.ConflictAnalysis, a, b, what string) error {
	sim, err := o.comparator.Similarity(ctx, a, b)
	if err != nil {
		return fmt.Errorf("comparing %s: %w", what, err)
	}

	an.Confidence = confidence(sim, stageWeight(an.Stage))
	overlap := sim >= overlapSimilarity
	switch {
	case an.Confidence <= serializeThreshold:
		an.Verdict = models.VerdictAskOperator
		an.Rationale = fmt.Sprintf("%s similarity %.2f is ambiguous at stage %s", what, sim, an.Stage)
	case overlap:
		an.Verdict = models.VerdictSerialize
		an.Rationale = fmt.Sprintf("%s describe the same work (similarity %.2f)", what, sim)
	default:
		an.Verdict = models.VerdictIndependent
		an.Rationale = fmt.Sprintf("%s describe unrelated work (similarity %.2f)", what, sim)
	}
	return nil
}

func describeOverlap(files, symbols []string) string {
	parts := make([]string, 0, 2)
	if len(files) > 0 {
		parts = append(parts, "files: "+strings.Join(files, ", "))
	}
	if len(symbols) > 0 {
		parts = append(parts, "symbols: "+strings.Join(symbols, ", "))
	}
	return strings.Join(parts, "; ")
}
