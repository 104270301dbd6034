package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediadupes/internal/config"
	"mediadupes/internal/finder"
	"mediadupes/internal/storage"
)

var (
	dbPath     string
	threshold  float64
	variant    string
	rotations  bool
	workers    int
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mediadupes",
	Short: "Find perceptually duplicate images",
	Long: `mediadupes finds images that look alike even after resizing,
re-encoding, small edits or rotation.

Each image is reduced to a perceptual fingerprint (a DCT hash plus a color
histogram by default) and every pair of images is scored from 0 to 100.
Pairs at or above the threshold are reported. Pairs you mark as not
duplicates are remembered and never reported again.

Example usage:
  mediadupes scan ./photos          # Scan a folder for duplicates
  mediadupes list                   # List duplicate pairs
  mediadupes list --groups          # List connected groups
  mediadupes skip a.jpg b.jpg       # Mark a pair as not duplicates
  mediadupes serve                  # Browse results over HTTP`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logLevel)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "Path to SQLite database")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0, "Minimum similarity 0-100 (default 85 advanced, 90 basic)")
	rootCmd.PersistentFlags().StringVar(&variant, "variant", "advanced", "Fingerprint variant: basic or advanced")
	rootCmd.PersistentFlags().BoolVar(&rotations, "rotations", true, "Also match images rotated by 90, 180 or 270 degrees")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 1, "Number of images decoded in parallel")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

// setupLogger installs a text handler on stderr
func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

// loadConfig reads --config and applies explicitly set flags over it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") || cfg.DBPath == "" {
		cfg.DBPath = dbPath
	}
	if flags.Changed("threshold") {
		cfg.Threshold = &threshold
	}
	if flags.Changed("variant") {
		cfg.Variant = variant
	}
	if flags.Changed("rotations") {
		cfg.IncludeRotations = rotations
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finderOptions converts settings into finder options
func finderOptions(cfg *config.Config) finder.Options {
	return finder.Options{
		Threshold:        cfg.Threshold,
		IncludeRotations: cfg.IncludeRotations,
		Variant:          cfg.ParsedVariant(),
		Workers:          cfg.Workers,
		BatchSize:        cfg.BatchSize,
		Logger:           slog.Default(),
	}
}

// openStorage loads settings and opens the database they name
func openStorage(cmd *cobra.Command) (*config.Config, *storage.Storage, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, store, nil
}
