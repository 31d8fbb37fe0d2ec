package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
	"github.com/complyhq/flow2/pkg/flow2/config"
	"github.com/complyhq/flow2/pkg/flow2/export"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configPath string
	exportOut  string
	sweepAge   time.Duration
	sweepApply bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flow2",
		Short: "flow2 - checkpointed compliance review runs",
		Long: `flow2 inspects and maintains the checkpoint store of the compliance
document review engine: list runs, show their review state, export
approval packages, and sweep expired paused runs.

Approving or rejecting a paused run is not done here: a resume must
re-enter the compiled review graph, so it belongs to the service that
owns the graph definition.`,
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "flow2.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List all runs in the checkpoint store",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's checkpoint",
		Long:  "Display a run's status, review gates, and execution trace",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export an approval package",
		Long:  "Build the audit-ready approval package for a run and write it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark expired paused runs as failed",
		Long: `Scan the store for paused runs whose pause is older than the maximum
pause age and mark them failed so their tokens can no longer resume.
Dry run by default; pass --apply to write the transitions.`,
		RunE: sweepRuns,
	}
	sweepCmd.Flags().DurationVar(&sweepAge, "max-age", 0, "Maximum pause age (default: max_pause_age from config)")
	sweepCmd.Flags().BoolVar(&sweepApply, "apply", false, "Write the failed transitions instead of reporting")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and opens the configured checkpoint store.
func setup() (config.Settings, checkpoint.Store, *slog.Logger, error) {
	cfg := config.New(nil)
	if _, err := os.Stat(configPath); err == nil {
		fileCfg, err := config.FromFile(configPath)
		if err != nil {
			return config.Settings{}, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = fileCfg
	}

	settings, err := config.Load(cfg)
	if err != nil {
		return config.Settings{}, nil, nil, err
	}

	level := slogLevel(settings.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var store checkpoint.Store
	switch settings.StoreBackend {
	case config.BackendSQLite:
		store, err = checkpoint.NewSQLiteStore(settings.SQLitePath, logger)
	default:
		store, err = checkpoint.NewFileStore(settings.DataDir, logger)
	}
	if err != nil {
		return config.Settings{}, nil, nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	return settings, store, logger, nil
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	_, store, _, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-38s %-24s %-14s %-18s %s\n", "RUN", "GRAPH", "STATUS", "PAUSED AT NODE", "CREATED")
	fmt.Println(strings.Repeat("-", 110))
	for _, info := range infos {
		pausedAt := "-"
		if info.PausedAtNodeID != "" {
			pausedAt = info.PausedAtNodeID
		}
		fmt.Printf("%-38s %-24s %-14s %-18s %s\n",
			info.RunID, info.GraphID, info.Status, pausedAt,
			info.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	_, store, _, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := store.Load(args[0])
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("run not found: %s", args[0])
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	fmt.Printf("Run:        %s\n", cp.RunID)
	fmt.Printf("Graph:      %s\n", cp.GraphID)
	fmt.Printf("Status:     %s\n", cp.Status)
	fmt.Printf("Created:    %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	if !cp.PausedAt.IsZero() {
		fmt.Printf("Paused:     %s\n", cp.PausedAt.Format("2006-01-02 15:04:05"))
	}
	if cp.ResumedAt != nil {
		fmt.Printf("Resumed:    %s\n", cp.ResumedAt.Format("2006-01-02 15:04:05"))
	}
	if cp.PausedAtNodeID != "" {
		fmt.Printf("At node:    %s\n", cp.PausedAtNodeID)
	}
	if cp.LastError != "" {
		fmt.Printf("Last error: %s\n", cp.LastError)
	}

	if len(cp.Gates) > 0 {
		fmt.Println()
		fmt.Println("Review gates:")
		for _, g := range cp.Gates {
			decision := "pending"
			if g.Decision != "" {
				decision = fmt.Sprintf("%s by %s", g.Decision, g.DecidedBy)
				if g.DecidedAt != nil {
					decision += " at " + g.DecidedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Printf("  %-8s issued %s  %s\n", g.Stage,
				g.IssuedAt.Format("2006-01-02 15:04:05"), decision)
		}
	}

	if len(cp.Trace) > 0 {
		fmt.Println()
		fmt.Println("Trace:")
		for _, entry := range cp.Trace {
			fmt.Printf("  %s  %-20s %-10s %.1fms\n",
				entry.StartedAt.Format("15:04:05"), entry.NodeID, entry.Status, entry.DurationMs)
		}
	}

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	_, store, _, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := store.Load(args[0])
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("run not found: %s", args[0])
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	pkg := export.Build(cp)
	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode package: %w", err)
	}
	data = append(data, '\n')

	if exportOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write package: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", exportOut, len(data))
	return nil
}

func sweepRuns(cmd *cobra.Command, args []string) error {
	settings, store, logger, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	maxAge := sweepAge
	if maxAge <= 0 {
		maxAge = settings.MaxPauseAge
	}
	if maxAge <= 0 {
		return fmt.Errorf("no maximum pause age configured; pass --max-age or set max_pause_age")
	}

	infos, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	now := time.Now()
	expired := 0
	for _, info := range infos {
		if info.Status != checkpoint.StatusPaused {
			continue
		}
		cp, err := store.Load(info.RunID)
		if err != nil {
			logger.Warn("skipping unreadable run", "run_id", info.RunID, "error", err)
			continue
		}
		if !checkpoint.IsExpired(cp, maxAge, now) {
			continue
		}
		expired++

		if !sweepApply {
			fmt.Printf("would expire %s (paused %s at node %s)\n",
				cp.RunID, cp.PausedAt.Format("2006-01-02 15:04:05"), cp.PausedAtNodeID)
			continue
		}

		err = store.UpdateStatus(cp.RunID, checkpoint.StatusFailed, func(c *checkpoint.Checkpoint) {
			c.PausedAtNodeID = ""
			c.LastError = fmt.Sprintf("pause expired after %s", maxAge)
		})
		if err != nil {
			logger.Error("failed to expire run", "run_id", cp.RunID, "error", err)
			continue
		}
		logger.Info("expired paused run", "run_id", cp.RunID, "max_age", maxAge)
	}

	if expired == 0 {
		fmt.Println("No expired paused runs.")
	} else if !sweepApply {
		fmt.Printf("%d run(s) would be expired; re-run with --apply\n", expired)
	} else {
		fmt.Printf("Expired %d run(s).\n", expired)
	}

	return nil
}
