package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/chunkd/internal/agent"
	"github.com/ShayCichocki/chunkd/internal/artifact"
	"github.com/ShayCichocki/chunkd/internal/collab"
	"github.com/ShayCichocki/chunkd/internal/config"
	"github.com/ShayCichocki/chunkd/internal/conflict"
	"github.com/ShayCichocki/chunkd/internal/orchestrator"
	"github.com/ShayCichocki/chunkd/internal/semantic"
	"github.com/ShayCichocki/chunkd/internal/server"
	"github.com/ShayCichocki/chunkd/internal/state"
	"github.com/ShayCichocki/chunkd/internal/worktree"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chunkd daemon",
	Long: `Start the dispatch loop and the HTTP API.

The daemon runs until interrupted. On SIGINT or SIGTERM it stops accepting
work, gives in-flight agent phases a grace period to finish, then
terminates the rest. Interrupted phases requeue and rerun on the next
start.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if serveVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	db, err := state.Open(cfg.Repo.DBPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	wt, err := worktree.NewManager(cfg.Repo.WorktreeDir, cfg.Repo.Path, cfg.Repo.BaseBranch)
	if err != nil {
		return fmt.Errorf("worktree manager: %w", err)
	}

	arts, err := artifact.NewFileStore(cfg.Repo.ChunksDir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	watcher, err := artifact.NewWatcher(arts.Root())
	if err != nil {
		return fmt.Errorf("artifact watcher: %w", err)
	}
	defer watcher.Close()

	executor, err := agent.NewCommandExecutor(cfg.Agent.Command, wt)
	if err != nil {
		return fmt.Errorf("agent executor: %w", err)
	}

	comparator, err := buildComparator(cfg)
	if err != nil {
		return err
	}
	oracle := conflict.NewOracle(arts, comparator)

	orch := orchestrator.New(db, wt, arts, executor, oracle, orchestrator.NewBus(), logger,
		orchestrator.Config{
			MaxAgents:        cfg.Scheduler.MaxAgents,
			DispatchInterval: cfg.Scheduler.DispatchInterval,
			GracePeriod:      cfg.Scheduler.GracePeriod,
		})
	srv := server.New(orch, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Artifact edits wake the dispatch loop so plan updates feed conflict
	// analysis without waiting for the next tick.
	go func() {
		for range watcher.Wake() {
			orch.Wake()
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		stop()
		<-runErr
		return fmt.Errorf("http server: %w", err)
	case err := <-runErr:
		shutdownServer(srv, logger)
		if err != nil {
			return fmt.Errorf("dispatch loop: %w", err)
		}
		return nil
	}

	shutdownServer(srv, logger)
	return <-runErr
}

func shutdownServer(srv *server.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
}

// buildComparator selects the similarity backend for conflict analysis.
func buildComparator(cfg *config.Config) (collab.Comparator, error) {
	if cfg.Comparator.Kind != "semantic" {
		return &conflict.TokenComparator{}, nil
	}

	apiKey := ""
	if !cfg.Comparator.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("semantic comparator: %w", err)
		}
		apiKey = key
	}
	return semantic.NewComparator(semantic.Config{
		Model:         cfg.Comparator.Model,
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Comparator.UseAWSBedrock,
		AWSRegion:     cfg.Comparator.AWSRegion,
		AWSProfile:    cfg.Comparator.AWSProfile,
	})
}
