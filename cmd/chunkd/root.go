package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/chunkd/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "chunkd",
	Short: "Chunk work orchestration daemon",
	Long: `chunkd orchestrates coding agents over chunks of work, each in its
own isolated git worktree.

Inject chunks through the HTTP API and chunkd schedules them through their
lifecycle phases, analyzing pairs of in-flight chunks for conflicts and
serializing the ones that would collide. When an agent finishes a chunk its
branch merges back to base and anything blocked behind it is freed.

Core capabilities:
- Runs agents in parallel, each isolated in a git worktree
- Escalates ambiguous conflicts and agent questions to the operator
- Streams lifecycle events over WebSocket
- Survives restarts via a SQLite state store`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: ~/.config/chunkd/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads from the --config path when given, otherwise from the
// usual search paths.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromPath(configFile)
	}
	return config.Load()
}
