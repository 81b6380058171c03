package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/chunkd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify chunkd configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/chunkd/config.yaml
Project-specific overrides can be placed in .chunkd.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
	fmt.Printf("scheduler.max_agents: %d\n", cfg.Scheduler.MaxAgents)
	fmt.Printf("scheduler.dispatch_interval: %s\n", cfg.Scheduler.DispatchInterval)
	fmt.Printf("scheduler.grace_period: %s\n", cfg.Scheduler.GracePeriod)
	fmt.Printf("repo.path: %s\n", cfg.Repo.Path)
	fmt.Printf("repo.base_branch: %s\n", cfg.Repo.BaseBranch)
	fmt.Printf("repo.worktree_dir: %s\n", cfg.Repo.WorktreeDir)
	fmt.Printf("repo.chunks_dir: %s\n", cfg.Repo.ChunksDir)
	fmt.Printf("repo.db_path: %s\n", cfg.Repo.DBPath)
	fmt.Printf("agent.command: %s\n", strings.Join(cfg.Agent.Command, " "))
	fmt.Printf("comparator.kind: %s\n", cfg.Comparator.Kind)
	fmt.Printf("comparator.model: %s\n", cfg.Comparator.Model)
	fmt.Printf("comparator.use_aws_bedrock: %t\n", cfg.Comparator.UseAWSBedrock)
	fmt.Printf("comparator.aws_region: %s\n", cfg.Comparator.AWSRegion)
	fmt.Printf("comparator.aws_profile: %s\n", cfg.Comparator.AWSProfile)
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "server.addr":
		return cfg.Server.Addr, nil
	case "scheduler.max_agents":
		return strconv.Itoa(cfg.Scheduler.MaxAgents), nil
	case "scheduler.dispatch_interval":
		return cfg.Scheduler.DispatchInterval.String(), nil
	case "scheduler.grace_period":
		return cfg.Scheduler.GracePeriod.String(), nil
	case "repo.path":
		return cfg.Repo.Path, nil
	case "repo.base_branch":
		return cfg.Repo.BaseBranch, nil
	case "repo.worktree_dir":
		return cfg.Repo.WorktreeDir, nil
	case "repo.chunks_dir":
		return cfg.Repo.ChunksDir, nil
	case "repo.db_path":
		return cfg.Repo.DBPath, nil
	case "agent.command":
		return strings.Join(cfg.Agent.Command, " "), nil
	case "comparator.kind":
		return cfg.Comparator.Kind, nil
	case "comparator.model":
		return cfg.Comparator.Model, nil
	case "comparator.use_aws_bedrock":
		return strconv.FormatBool(cfg.Comparator.UseAWSBedrock), nil
	case "comparator.aws_region":
		return cfg.Comparator.AWSRegion, nil
	case "comparator.aws_profile":
		return cfg.Comparator.AWSProfile, nil
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "server.addr":
		cfg.Server.Addr = value
	case "scheduler.max_agents":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("scheduler.max_agents must be a positive integer")
		}
		cfg.Scheduler.MaxAgents = n
	case "scheduler.dispatch_interval":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("scheduler.dispatch_interval must be a positive duration")
		}
		cfg.Scheduler.DispatchInterval = d
	case "scheduler.grace_period":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("scheduler.grace_period must be a duration")
		}
		cfg.Scheduler.GracePeriod = d
	case "repo.path":
		cfg.Repo.Path = value
	case "repo.base_branch":
		cfg.Repo.BaseBranch = value
	case "repo.worktree_dir":
		cfg.Repo.WorktreeDir = value
	case "repo.chunks_dir":
		cfg.Repo.ChunksDir = value
	case "repo.db_path":
		cfg.Repo.DBPath = value
	case "agent.command":
		cfg.Agent.Command = strings.Fields(value)
	case "comparator.kind":
		if value != "token" && value != "semantic" {
			return fmt.Errorf("comparator.kind must be token or semantic")
		}
		cfg.Comparator.Kind = value
	case "comparator.model":
		cfg.Comparator.Model = value
	case "comparator.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("comparator.use_aws_bedrock must be true or false")
		}
		cfg.Comparator.UseAWSBedrock = b
	case "comparator.aws_region":
		cfg.Comparator.AWSRegion = value
	case "comparator.aws_profile":
		cfg.Comparator.AWSProfile = value
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
