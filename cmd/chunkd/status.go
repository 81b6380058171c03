package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/chunkd/internal/state"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show work unit state",
	Long: `Display the current state of all work units.

Shows each unit's phase, status, blockers, and anything waiting on operator
attention. Reads the state database directly, so it works whether or not
the daemon is running.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := os.Stat(cfg.Repo.DBPath); os.IsNotExist(err) {
		fmt.Println("No state database. Run 'chunkd serve' and inject a chunk to start.")
		return nil
	}

	db, err := state.Open(cfg.Repo.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	units, err := db.ListWorkUnits()
	if err != nil {
		return fmt.Errorf("list work units: %w", err)
	}
	if len(units) == 0 {
		fmt.Println("No work units.")
		return nil
	}

	displayUnits(units)

	attention := 0
	for _, u := range units {
		if u.Status == models.StatusNeedsAttention {
			attention++
		}
	}
	if attention > 0 {
		fmt.Println()
		color.Yellow("%d unit(s) need attention. Resolve them through the API or answer the agent's question.", attention)
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func displayUnits(units []models.WorkUnit) {
	fmt.Printf("%s: %d\n\n", headerStyle.Render("Work Units"), len(units))
	for _, u := range units {
		fmt.Printf("  %s  %s %s %s\n",
			statusColor(u.Status)(string(u.Status)),
			color.New(color.Bold).Sprint(u.Chunk),
			u.Phase,
			fmt.Sprintf("(%s ago)", formatDuration(time.Since(u.CreatedAt))))

		if len(u.BlockedBy) > 0 {
			fmt.Printf("      blocked by: %s\n", strings.Join(u.BlockedBy, ", "))
		}
		if u.Status == models.StatusNeedsAttention {
			fmt.Printf("      %s: %s\n", strings.ToLower(string(u.AttentionKind)), u.AttentionReason)
		}
		if u.DisplacedChunk != "" {
			fmt.Printf("      displaced: %s\n", u.DisplacedChunk)
		}
	}
}

// statusColor picks a sprint function per unit status.
func statusColor(s models.Status) func(a ...interface{}) string {
	switch s {
	case models.StatusRunning:
		return color.New(color.FgCyan).SprintFunc()
	case models.StatusDone:
		return color.New(color.FgGreen).SprintFunc()
	case models.StatusBlocked:
		return color.New(color.FgMagenta).SprintFunc()
	case models.StatusNeedsAttention:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgWhite).SprintFunc()
	}
}

// formatDuration renders a duration in the largest sensible unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
