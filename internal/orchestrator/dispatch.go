package orchestrator

import (
	"context"
	"errors"

	"github.com/ShayCichocki/chunkd/internal/collab"
	"github.com/ShayCichocki/chunkd/internal/worktree"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

// dispatch runs one tick: while slots remain, pop the next READY unit,
// clear it against the oracle, and launch its phase. A tick with zero READY
// units changes nothing and emits nothing.
func (o *Orchestrator) dispatch(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ready, err := o.store.ListReadyOrdered()
	if err != nil {
		o.persistence("dispatch", err)
		return
	}
	if len(ready) == 0 {
		return
	}

	limit := o.maxAgents()
	for i := range ready {
		if len(o.running) >= limit {
			return
		}
		unit := &ready[i]
		if _, inFlight := o.running[unit.Chunk]; inFlight {
			continue
		}
		o.dispatchUnit(ctx, unit)
	}
}

// dispatchUnit clears one READY unit for execution or parks it per the
// oracle's verdict. Caller holds o.mu.
func (o *Orchestrator) dispatchUnit(ctx context.Context, unit *models.WorkUnit) {
	cleared, err := o.clearConflicts(ctx, unit)
	if err != nil {
		o.persistence("dispatch", err)
		return
	}
	if !cleared {
		return
	}

	if !o.worktrees.Exists(unit.Chunk) {
		if _, err := o.worktrees.Create(unit.Chunk); err != nil {
			o.logger.Error("worktree creation failed", "chunk", unit.Chunk, "error", err)
			o.toAttention(unit, models.AttentionError, "worktree creation failed: "+err.Error(), "")
			return
		}
		o.logger.Info("worktree created", "chunk", unit.Chunk, "path", o.worktrees.PathFor(unit.Chunk))
	}

	if unit.Phase == models.PhaseImplement {
		lock := o.wtLock(unit.Chunk)
		lock.Lock()
		err := o.activate(unit)
		lock.Unlock()
		if err != nil {
			o.logger.Error("chunk activation failed", "chunk", unit.Chunk, "error", err)
			o.toAttention(unit, models.AttentionError, "activation failed: "+err.Error(), "")
			return
		}
	}

	req := collab.PhaseRequest{
		Chunk:           unit.Chunk,
		Phase:           unit.Phase,
		Workdir:         o.worktrees.PathFor(unit.Chunk),
		ResumeSessionID: unit.SessionID,
		Answer:          unit.PendingAnswer,
	}
	unit.Status = models.StatusRunning
	unit.PendingAnswer = ""
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		o.persistence("dispatch", err)
		return
	}
	o.emit(EventDispatched, unit, "", "")
	o.logger.Info("phase dispatched", "chunk", unit.Chunk, "phase", unit.Phase)

	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.running[unit.Chunk] = cancel
	o.wg.Go(func() {
		defer cancel()
		result, err := o.executor.RunPhase(execCtx, req)
		o.handleResult(execCtx, req.Chunk, result, err)
	})
}

// clearConflicts consults the oracle against every other RUNNING or READY
// unit. It returns false when the unit was parked (BLOCKED or attention)
// instead of cleared.
func (o *Orchestrator) clearConflicts(ctx context.Context, unit *models.WorkUnit) (bool, error) {
	units, err := o.store.ListWorkUnits()
	if err != nil {
		return false, err
	}
	var blockers []string
	var rationale string
	for i := range units {
		peer := &units[i]
		if peer.Chunk == unit.Chunk {
			continue
		}
		parked := conflictParked(peer)
		if peer.Status != models.StatusRunning && peer.Status != models.StatusReady && !parked {
			continue
		}

		analysis, aerr := o.oracle.Analyze(ctx, unit, peer)
		if aerr != nil {
			o.logger.Warn("conflict analysis degraded", "chunk", unit.Chunk, "peer", peer.Chunk, "error", aerr)
		}
		if err := o.store.SaveConflict(analysis); err != nil {
			return false, err
		}

		// A parked peer only gates dispatch if the fresh verdict is still
		// ASK_OPERATOR; a decisive verdict supersedes its escalation,
		// unless an escalation against some third chunk remains open.
		if parked {
			switch analysis.Verdict {
			case models.VerdictIndependent:
				if o.conflictPeer(peer.Chunk) == "" {
					if err := o.releaseFromConflict(peer); err != nil {
						return false, err
					}
				}
				continue
			case models.VerdictSerialize:
				if o.conflictPeer(peer.Chunk) == "" {
					if err := o.blockBehind(peer, unit.Chunk, analysis.Rationale); err != nil {
						return false, err
					}
				}
				continue
			}
		}

		switch analysis.Verdict {
		case models.VerdictSerialize:
			blockers = append(blockers, peer.Chunk)
			rationale = analysis.Rationale
		case models.VerdictAskOperator:
			o.toAttention(unit, models.AttentionConflict, analysis.Rationale, peer.Chunk)
			return false, nil
		}
	}
	if len(blockers) > 0 {
		for _, b := range blockers {
			unit.AddBlocker(b)
		}
		unit.Status = models.StatusBlocked
		if err := o.store.UpdateWorkUnit(unit); err != nil {
			return false, err
		}
		o.emit(EventBlocked, unit, blockers[0], rationale)
		o.logger.Info("unit blocked", "chunk", unit.Chunk, "behind", blockers)
		return false, nil
	}
	return true, nil
}

// activate makes the chunk the sole IMPLEMENTING artifact in its worktree,
// demoting any other holder. The displaced chunk and its prior status are
// persisted on the unit so the restore half of the saga survives a crash.
func (o *Orchestrator) activate(unit *models.WorkUnit) error {
	holder, prior, err := o.implementingHolder(unit.Chunk)
	if err != nil {
		return err
	}
	if holder != "" {
		if err := o.artifacts.SetStatus(holder, collab.StatusPlanned); err != nil {
			return err
		}
		unit.DisplacedChunk = holder
		unit.DisplacedStatus = string(prior)
		if err := o.store.UpdateWorkUnit(unit); err != nil {
			return o.persistence("activate", err)
		}
		o.logger.Info("chunk displaced", "chunk", holder, "for", unit.Chunk)
	}
	return o.artifacts.SetStatus(unit.Chunk, collab.StatusImplementing)
}

// implementingHolder finds another chunk squatting the IMPLEMENTING status.
// A RUNNING unit legitimately holds IMPLEMENTING in its own worktree and is
// not a squatter.
func (o *Orchestrator) implementingHolder(chunk string) (string, collab.ChunkStatus, error) {
	units, err := o.store.ListWorkUnits()
	if err != nil {
		return "", "", err
	}
	for i := range units {
		peer := &units[i]
		if peer.Chunk == chunk || peer.Status == models.StatusRunning || !peer.Status.Active() {
			continue
		}
		status, err := o.artifacts.Status(peer.Chunk)
		if err != nil {
			continue
		}
		if status == collab.StatusImplementing {
			return peer.Chunk, status, nil
		}
	}
	return "", "", nil
}

// handleResult applies the transition for a finished phase execution.
func (o *Orchestrator) handleResult(ctx context.Context, chunk string, result *collab.PhaseResult, execErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.running, chunk)

	unit, err := o.store.GetWorkUnit(chunk)
	if err != nil {
		o.persistence("phase result", err)
		return
	}
	if unit == nil || unit.Status != models.StatusRunning {
		o.logger.Warn("phase result for non-running unit", "chunk", chunk)
		return
	}

	switch {
	case execErr != nil && ctx.Err() != nil:
		// Terminated during shutdown: requeue so a restart resumes it.
		unit.Status = models.StatusReady
		if err := o.store.UpdateWorkUnit(unit); err != nil {
			o.persistence("phase result", err)
			return
		}
		o.emit(EventReady, unit, "", "")

	case execErr != nil:
		o.logger.Error("phase execution failed", "chunk", chunk, "phase", unit.Phase, "error", execErr)
		o.toAttention(unit, models.AttentionError, execErr.Error(), "")

	case result.Outcome == collab.OutcomeSuspended:
		unit.SessionID = result.SessionID
		question := result.Question
		if question == "" {
			question = "agent suspended without a question"
		}
		o.toAttention(unit, models.AttentionQuestion, question, "")

	case unit.Phase == models.PhaseComplete:
		o.finalize(unit)

	default:
		next, _ := unit.Phase.Next()
		unit.Phase = next
		unit.Status = models.StatusReady
		unit.SessionID = ""
		if err := o.store.UpdateWorkUnit(unit); err != nil {
			o.persistence("phase result", err)
			return
		}
		// Phase advance invalidates verdicts computed from older evidence.
		if err := o.store.ClearConflictsFor(unit.Chunk); err != nil {
			o.persistence("phase result", err)
			return
		}
		o.emit(EventReady, unit, "", "")
		o.logger.Info("phase completed", "chunk", chunk, "next", next)
		o.Wake()
	}
}

// finalize restores any displaced chunk, merges the unit's branch to base,
// and unblocks dependents. Caller holds o.mu.
func (o *Orchestrator) finalize(unit *models.WorkUnit) {
	lock := o.wtLock(unit.Chunk)
	lock.Lock()
	defer lock.Unlock()

	if unit.DisplacedChunk != "" {
		restored := collab.ChunkStatus(unit.DisplacedStatus)
		if err := o.artifacts.SetStatus(unit.DisplacedChunk, restored); err != nil {
			o.logger.Error("displaced chunk restore failed", "chunk", unit.DisplacedChunk, "error", err)
			o.toAttention(unit, models.AttentionError, "restore of displaced chunk "+unit.DisplacedChunk+" failed: "+err.Error(), "")
			return
		}
		o.logger.Info("displaced chunk restored", "chunk", unit.DisplacedChunk, "status", restored)
		unit.DisplacedChunk = ""
		unit.DisplacedStatus = ""
	}

	if err := o.artifacts.SetStatus(unit.Chunk, collab.StatusCompleted); err != nil {
		o.logger.Warn("marking chunk completed failed", "chunk", unit.Chunk, "error", err)
	}

	if err := o.worktrees.MergeToBase(unit.Chunk); err != nil {
		var mcErr *worktree.MergeConflictError
		if errors.As(err, &mcErr) {
			// Worktree retained for manual resolution.
			o.toAttention(unit, models.AttentionMergeConflict, mcErr.Error(), "")
			return
		}
		o.toAttention(unit, models.AttentionError, "merge failed: "+err.Error(), "")
		return
	}

	if err := o.worktrees.Remove(unit.Chunk); err != nil {
		o.logger.Warn("worktree removal failed", "chunk", unit.Chunk, "error", err)
	}

	unit.Status = models.StatusDone
	unit.SessionID = ""
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		o.persistence("finalize", err)
		return
	}
	if err := o.store.ClearConflictsFor(unit.Chunk); err != nil {
		o.persistence("finalize", err)
		return
	}
	o.emit(EventDone, unit, "", "")
	o.logger.Info("unit done", "chunk", unit.Chunk)

	o.unblockDependents(unit.Chunk)
	o.Wake()
}

// unblockDependents removes the finished chunk from every blocked_by set
// and frees units whose set empties. Caller holds o.mu.
//
// A stale attention_reason on an unblocked unit is deliberately preserved.
func (o *Orchestrator) unblockDependents(chunk string) {
	blocked, err := o.store.ListBlockedBy(chunk)
	if err != nil {
		o.persistence("unblock", err)
		return
	}
	for i := range blocked {
		dep := &blocked[i]
		if dep.RemoveBlocker(chunk) {
			dep.Status = models.StatusReady
		}
		if err := o.store.UpdateWorkUnit(dep); err != nil {
			o.persistence("unblock", err)
			return
		}
		if dep.Status == models.StatusReady {
			o.emit(EventReady, dep, "", "")
			o.logger.Info("unit unblocked", "chunk", dep.Chunk, "after", chunk)
		}
	}
}

// toAttention parks a unit as NEEDS_ATTENTION. Caller holds o.mu.
func (o *Orchestrator) toAttention(unit *models.WorkUnit, kind models.AttentionKind, reason, peer string) {
	unit.Status = models.StatusNeedsAttention
	unit.AttentionKind = kind
	unit.AttentionReason = reason
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		o.persistence("attention", err)
		return
	}
	o.emit(EventNeedsAttention, unit, peer, reason)
	o.logger.Warn("unit needs attention", "chunk", unit.Chunk, "kind", kind)
}
