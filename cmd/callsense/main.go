package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"callsense/internal/config"
	"callsense/internal/observability"
)

var (
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "callsense",
	Short: "Call disposition extraction tooling",
	Long: `callsense normalizes model output into call dispositions, runs the
local model on single transcripts, re-normalizes stored predictions and
checks the deployment's dependencies.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath == "" {
			configPath = os.Getenv("CS_CONFIG")
		}
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		if logger, err = observability.NewLogger(level, true); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CS_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	normalizeCmd.Flags().StringVarP(&transcript, "transcript", "t", "", "Transcript used as evidence")
	normalizeCmd.Flags().StringVar(&transcriptFile, "transcript-file", "", "Read the transcript from a file")
	normalizeCmd.Flags().StringVarP(&currentDate, "date", "d", "", "Current date (YYYY-MM-DD)")
	normalizeCmd.Flags().BoolVar(&explain, "explain", false, "Print the corrections applied")

	predictCmd.Flags().StringVarP(&currentDate, "date", "d", "", "Current date (YYYY-MM-DD, default today UTC)")
	predictCmd.Flags().BoolVar(&explain, "explain", false, "Print the raw generation and corrections")

	reprocessCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")
	reprocessCmd.Flags().IntVar(&limit, "limit", 0, "Scan at most this many rows (0 = all)")

	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
