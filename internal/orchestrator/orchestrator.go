// Package orchestrator schedules work units over isolated worktrees. The
// dispatch loop is the sole lifecycle mutator: it pops READY units, consults
// the conflict oracle, runs phases through the executor, and applies the
// resulting transitions to the state store.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/ShayCichocki/chunkd/internal/collab"
	"github.com/ShayCichocki/chunkd/internal/conflict"
	"github.com/ShayCichocki/chunkd/internal/state"
	"github.com/ShayCichocki/chunkd/internal/worktree"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

// Config carries the scheduling parameters. MaxAgents and DispatchInterval
// act as defaults; values in the store's settings table override them at
// runtime.
type Config struct {
	// MaxAgents bounds concurrent phase executions.
	MaxAgents int
	// DispatchInterval is the period between dispatch ticks.
	DispatchInterval time.Duration
	// GracePeriod bounds how long Stop waits for in-flight phases before
	// force-terminating them.
	GracePeriod time.Duration
}

// DefaultConfig returns the scheduling defaults.
func DefaultConfig() Config {
	return Config{
		MaxAgents:        4,
		DispatchInterval: 5 * time.Second,
		GracePeriod:      30 * time.Second,
	}
}

// Orchestrator owns the dispatch loop and all lifecycle transitions.
type Orchestrator struct {
	store     state.Store
	worktrees worktree.Provider
	artifacts collab.ArtifactStore
	executor  collab.PhaseExecutor
	oracle    *conflict.Oracle
	bus       *Bus
	logger    *slog.Logger
	cfg       Config

	// mu guards every lifecycle transition. Phase executions run outside
	// it; their results re-enter through handleResult.
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wtLocks map[string]*sync.Mutex

	wg    *conc.WaitGroup
	wake  chan struct{}
	fatal chan error
	now   func() time.Time
}

// New wires the orchestrator. A nil logger falls back to slog.Default.
func New(store state.Store, worktrees worktree.Provider, artifacts collab.ArtifactStore,
	executor collab.PhaseExecutor, oracle *conflict.Oracle, bus *Bus,
	logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Orchestrator{
		store:     store,
		worktrees: worktrees,
		artifacts: artifacts,
		executor:  executor,
		oracle:    oracle,
		bus:       bus,
		logger:    logger.With("component", "orchestrator"),
		cfg:       cfg,
		running:   make(map[string]context.CancelFunc),
		wtLocks:   make(map[string]*sync.Mutex),
		wg:        conc.NewWaitGroup(),
		wake:      make(chan struct{}, 1),
		fatal:     make(chan error, 1),
		now:       time.Now,
	}
}

// Bus returns the event bus for subscribers.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Wake requests an immediate dispatch tick.
func (o *Orchestrator) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Inject validates the chunk against the artifact store and creates its
// work unit in READY at phase GOAL.
func (o *Orchestrator) Inject(chunk string, priority int) (*models.WorkUnit, error) {
	if chunk == "" {
		return nil, &ValidationError{Msg: "chunk name is required"}
	}
	if !o.artifacts.Exists(chunk) {
		return nil, &ValidationError{Msg: "unknown chunk " + chunk}
	}
	if !o.artifacts.HasGoal(chunk) {
		return nil, &ValidationError{Msg: "chunk " + chunk + " has no goal document"}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := o.store.GetWorkUnit(chunk)
	if err != nil {
		return nil, o.persistence("inject", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("chunk %s: %w", chunk, ErrAlreadyExists)
	}

	unit := &models.WorkUnit{
		Chunk:     chunk,
		Phase:     models.PhaseGoal,
		Status:    models.StatusReady,
		Priority:  priority,
		CreatedAt: o.now(),
	}
	if err := o.store.CreateWorkUnit(unit); err != nil {
		return nil, o.persistence("inject", err)
	}

	o.emit(EventInjected, unit, "", "")
	o.logger.Info("unit injected", "chunk", chunk, "priority", priority)
	o.Wake()
	return unit, nil
}

// SetPriority updates a unit's dispatch priority.
func (o *Orchestrator) SetPriority(chunk string, priority int) (*models.WorkUnit, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	unit, err := o.store.GetWorkUnit(chunk)
	if err != nil {
		return nil, o.persistence("set priority", err)
	}
	if unit == nil {
		return nil, ErrNotFound
	}
	unit.Priority = priority
	if err := o.store.UpdateWorkUnit(unit); err != nil {
		return nil, o.persistence("set priority", err)
	}
	o.Wake()
	return unit, nil
}

// AnalyzePair runs an on-demand oracle analysis for two units and persists
// the verdict.
func (o *Orchestrator) AnalyzePair(ctx context.Context, a, b string) (*models.ConflictAnalysis, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ua, err := o.store.GetWorkUnit(a)
	if err != nil {
		return nil, o.persistence("analyze", err)
	}
	ub, err := o.store.GetWorkUnit(b)
	if err != nil {
		return nil, o.persistence("analyze", err)
	}
	if ua == nil || ub == nil {
		return nil, ErrNotFound
	}

	analysis, aerr := o.oracle.Analyze(ctx, ua, ub)
	if aerr != nil {
		o.logger.Warn("conflict analysis degraded", "chunk_a", a, "chunk_b", b, "error", aerr)
	}
	if err := o.store.SaveConflict(analysis); err != nil {
		return nil, o.persistence("analyze", err)
	}
	// A decisive verdict supersedes any open escalation for this pair.
	if err := o.reconcileSuperseded(analysis, ua, ub); err != nil {
		return nil, err
	}
	o.Wake()
	return analysis, nil
}

// Run drives the dispatch loop until ctx is cancelled, then waits out the
// grace period for in-flight phases before force-terminating them. It
// returns the fatal error if the store failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("dispatch loop started", "interval", o.dispatchInterval())
	ticker := time.NewTicker(o.dispatchInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.shutdown()
		case err := <-o.fatal:
			o.logger.Error("halting on persistence failure", "error", err)
			o.terminateRunning()
			o.wg.Wait()
			return err
		case <-ticker.C:
			o.dispatch(ctx)
			ticker.Reset(o.dispatchInterval())
		case <-o.wake:
			o.dispatch(ctx)
		}
	}
}

// shutdown waits for in-flight phases within the grace period, then cancels
// whatever is left.
func (o *Orchestrator) shutdown() error {
	o.logger.Info("stopping", "grace", o.cfg.GracePeriod)
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.cfg.GracePeriod):
		o.logger.Warn("grace period elapsed, terminating in-flight phases")
		o.terminateRunning()
		<-done
	}
	return nil
}

func (o *Orchestrator) terminateRunning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for chunk, cancel := range o.running {
		o.logger.Warn("cancelling phase execution", "chunk", chunk)
		cancel()
	}
}

// maxAgents reads the runtime-mutable bound, falling back to config.
func (o *Orchestrator) maxAgents() int {
	if v, ok, err := o.store.GetSetting(state.SettingMaxAgents); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if o.cfg.MaxAgents > 0 {
		return o.cfg.MaxAgents
	}
	return DefaultConfig().MaxAgents
}

// dispatchInterval reads the runtime-mutable tick period, falling back to
// config.
func (o *Orchestrator) dispatchInterval() time.Duration {
	if v, ok, err := o.store.GetSetting(state.SettingDispatchInterval); err == nil && ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	if o.cfg.DispatchInterval > 0 {
		return o.cfg.DispatchInterval
	}
	return DefaultConfig().DispatchInterval
}

// wtLock returns the lock guarding the chunk's worktree saga. Callers must
// hold o.mu when acquiring the map entry.
func (o *Orchestrator) wtLock(chunk string) *sync.Mutex {
	l, ok := o.wtLocks[chunk]
	if !ok {
		l = &sync.Mutex{}
		o.wtLocks[chunk] = l
	}
	return l
}

// emit publishes one event for a completed transition.
func (o *Orchestrator) emit(t EventType, u *models.WorkUnit, peer, message string) {
	o.bus.Publish(Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Chunk:     u.Chunk,
		Phase:     u.Phase,
		Status:    u.Status,
		Peer:      peer,
		Message:   message,
		Timestamp: o.now(),
	})
}

// persistence wraps a store failure and signals the run loop to halt.
func (o *Orchestrator) persistence(op string, err error) error {
	perr := &PersistenceError{Op: op, Err: err}
	select {
	case o.fatal <- perr:
	default:
	}
	return perr
}
