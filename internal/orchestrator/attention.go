package orchestrator

import (
	"github.com/ShayCichocki/chunkd/pkg/models"
)

// ListAttention returns every NEEDS_ATTENTION unit as an operator-facing
// item. CONFLICT items carry the peer from the stored ASK_OPERATOR verdict.
func (o *Orchestrator) ListAttention() ([]models.AttentionItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	units, err := o.store.ListByStatus(models.StatusNeedsAttention)
	if err != nil {
		return nil, o.persistence("list attention", err)
	}

	items := make([]models.AttentionItem, 0, len(units))
	for i := range units {
		unit := &units[i]
		item := models.AttentionItem{
			Chunk:     unit.Chunk,
			Kind:      unit.AttentionKind,
			Payload:   unit.AttentionReason,
			CreatedAt: unit.CreatedAt,
		}
		if unit.AttentionKind == models.AttentionConflict {
			item.Peer = o.conflictPeer(unit.Chunk)
		}
		items = append(items, item)
	}
	return items, nil
}

// conflictPeer finds the other chunk of the open ASK_OPERATOR verdict.
func (o *Orchestrator) conflictPeer(chunk string) string {
	analyses, err := o.store.ListConflictsFor(chunk)
	if err != nil {
		return ""
	}
	for i := range analyses {
		if analyses[i].Verdict == models.VerdictAskOperator {
			return analyses[i].Peer(chunk)
		}
	}
	return ""
}

// Answer records the operator's answer to a suspended unit's question and
// returns the unit to READY; the next dispatch resumes the persisted session
// with the answer.
func (o *Orchestrator) Answer(chunk, text string) (*models.WorkUnit, error) {
	if text == "" {
		return nil, &ValidationError{Msg: "answer text is required"}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	unit, err := o.store.GetWorkUnit(chunk)
	if err != nil {
		return nil, o.persistence("answer", err)
	}
	if unit == nil {
		return nil, ErrNotFound
	}
	if unit.Status != models.StatusNeedsAttention || unit.AttentionKind != models.AttentionQuestion {
		return nil, &InvalidStateError{Chunk: chunk, Msg: "no open question to answer"}
	}

	unit.PendingAnswer = text
	unit.Status = models.StatusReady
	unit.AttentionReason = ""
	unit.AttentionKind = ""
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		return nil, o.persistence("answer", err)
	}
	o.emit(EventReady, unit, "", "")
	o.logger.Info("question answered", "chunk", chunk)
	o.Wake()
	return unit, nil
}

// Resolve applies an operator override for an ASK_OPERATOR conflict between
// two chunks. PARALLELIZE records INDEPENDENT and frees both units if
// otherwise eligible; SERIALIZE records SERIALIZE and blocks the unit that
// raised attention behind its peer.
func (o *Orchestrator) Resolve(a, b string, verdict models.ResolveVerdict) error {
	if !verdict.Valid() {
		return &ValidationError{Msg: "verdict must be PARALLELIZE or SERIALIZE"}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	ua, err := o.store.GetWorkUnit(a)
	if err != nil {
		return o.persistence("resolve", err)
	}
	ub, err := o.store.GetWorkUnit(b)
	if err != nil {
		return o.persistence("resolve", err)
	}
	if ua == nil || ub == nil {
		return ErrNotFound
	}

	stored, err := o.store.GetConflict(a, b)
	if err != nil {
		return o.persistence("resolve", err)
	}
	stage := models.CommonStage(ua.Phase, ub.Phase)
	if stored != nil {
		stage = stored.Stage
	}

	analysis := &models.ConflictAnalysis{
		Stage:      stage,
		Confidence: 1.0,
		Rationale:  "operator override",
		ComputedAt: o.now(),
	}
	analysis.ChunkA, analysis.ChunkB = models.PairKey(a, b)

	if !conflictParked(ua) && !conflictParked(ub) {
		return &InvalidStateError{Chunk: a, Msg: "no open conflict escalation with " + b}
	}

	switch verdict {
	case models.ResolveParallelize:
		analysis.Verdict = models.VerdictIndependent
		if err := o.store.SaveConflict(analysis); err != nil {
			return o.persistence("resolve", err)
		}
		for _, unit := range []*models.WorkUnit{ua, ub} {
			if err := o.releaseFromConflict(unit); err != nil {
				return err
			}
		}

	case models.ResolveSerialize:
		analysis.Verdict = models.VerdictSerialize
		if err := o.store.SaveConflict(analysis); err != nil {
			return o.persistence("resolve", err)
		}
		// The unit that raised attention serializes behind its peer.
		unit, peer := ua, ub
		if conflictParked(ub) {
			unit, peer = ub, ua
		}
		if err := o.blockBehind(unit, peer.Chunk, "operator override"); err != nil {
			return err
		}
		o.logger.Info("conflict resolved", "chunk", unit.Chunk, "behind", peer.Chunk)
	}

	o.Wake()
	return nil
}

// Retry requeues a unit parked by an execution or merge failure once the
// operator has addressed the cause. The phase reruns from the top; a
// retained worktree (merge conflict case) is reused as-is.
func (o *Orchestrator) Retry(chunk string) (*models.WorkUnit, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	unit, err := o.store.GetWorkUnit(chunk)
	if err != nil {
		return nil, o.persistence("retry", err)
	}
	if unit == nil {
		return nil, ErrNotFound
	}
	if unit.Status != models.StatusNeedsAttention ||
		(unit.AttentionKind != models.AttentionError && unit.AttentionKind != models.AttentionMergeConflict) {
		return nil, &InvalidStateError{Chunk: chunk, Msg: "no failed execution to retry"}
	}

	unit.Status = models.StatusReady
	unit.AttentionReason = ""
	unit.AttentionKind = ""
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		return nil, o.persistence("retry", err)
	}
	o.emit(EventReady, unit, "", "")
	o.logger.Info("unit requeued for retry", "chunk", chunk)
	o.Wake()
	return unit, nil
}

// conflictParked reports whether the unit is waiting on an operator conflict
// decision.
func conflictParked(unit *models.WorkUnit) bool {
	return unit.Status == models.StatusNeedsAttention && unit.AttentionKind == models.AttentionConflict
}

// blockBehind moves a unit to BLOCKED behind peer, clearing any open
// escalation. Caller holds o.mu.
func (o *Orchestrator) blockBehind(unit *models.WorkUnit, peer, rationale string) error {
	unit.AddBlocker(peer)
	unit.Status = models.StatusBlocked
	unit.AttentionReason = ""
	unit.AttentionKind = ""
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		return o.persistence("block", err)
	}
	o.emit(EventBlocked, unit, peer, rationale)
	return nil
}

// reconcileSuperseded applies a freshly stored decisive verdict to any member
// of the pair still parked on an older ASK_OPERATOR escalation: INDEPENDENT
// releases it, SERIALIZE turns the park into a block behind the peer. A unit
// with a remaining open escalation against some third chunk stays parked;
// the dispatch gate re-derives its verdicts when that one resolves. Caller
// holds o.mu.
func (o *Orchestrator) reconcileSuperseded(analysis *models.ConflictAnalysis, ua, ub *models.WorkUnit) error {
	switch analysis.Verdict {
	case models.VerdictIndependent:
		for _, unit := range []*models.WorkUnit{ua, ub} {
			if conflictParked(unit) && o.conflictPeer(unit.Chunk) == "" {
				if err := o.releaseFromConflict(unit); err != nil {
					return err
				}
			}
		}

	case models.VerdictSerialize:
		unit, peer := ua, ub
		if !conflictParked(unit) {
			unit, peer = ub, ua
		}
		if conflictParked(unit) && o.conflictPeer(unit.Chunk) == "" {
			if err := o.blockBehind(unit, peer.Chunk, analysis.Rationale); err != nil {
				return err
			}
			o.logger.Info("superseded escalation serialized", "chunk", unit.Chunk, "behind", peer.Chunk)
		}
		if conflictParked(peer) && o.conflictPeer(peer.Chunk) == "" {
			if err := o.releaseFromConflict(peer); err != nil {
				return err
			}
		}
	}
	return nil
}

// releaseFromConflict returns a conflict-parked unit to READY, or BLOCKED
// when other blockers remain. Units in other states are untouched.
func (o *Orchestrator) releaseFromConflict(unit *models.WorkUnit) error {
	if unit.Status != models.StatusNeedsAttention || unit.AttentionKind != models.AttentionConflict {
		return nil
	}
	unit.AttentionReason = ""
	unit.AttentionKind = ""
	if len(unit.BlockedBy) > 0 {
		unit.Status = models.StatusBlocked
	} else {
		unit.Status = models.StatusReady
	}
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		return o.persistence("resolve", err)
	}
	if unit.Status == models.StatusReady {
		o.emit(EventReady, unit, "", "")
	} else {
		o.emit(EventBlocked, unit, "", "")
	}
	o.logger.Info("conflict released", "chunk", unit.Chunk, "status", unit.Status)
	return nil
}
