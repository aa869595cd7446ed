package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"callsense/internal/app"
	"callsense/internal/disposition"
	"callsense/internal/jsonstop"
	"callsense/internal/observability"
	"callsense/internal/predict"
	"callsense/internal/queue"
	"callsense/internal/reprocess"
	"callsense/internal/rules"
	"callsense/internal/store"
	"callsense/internal/vocab"
)

var (
	transcript     string
	transcriptFile string
	currentDate    string
	explain        bool
	dryRun         bool
	limit          int
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [raw-output-file]",
	Short: "Normalize raw model output read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		if transcriptFile != "" {
			data, err := os.ReadFile(transcriptFile)
			if err != nil {
				return err
			}
			transcript = string(data)
		}
		if currentDate != "" && !predict.ValidDate(currentDate) {
			return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", currentDate)
		}
		ruleSet, err := rules.LoadOrDefault(cfg.Rules.Path)
		if err != nil {
			return err
		}
		res, err := disposition.NewNormalizer(ruleSet).Normalize(string(raw), transcript, currentDate)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res, "")
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <transcript>",
	Short: "Run the configured model on one transcript",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if currentDate != "" && !predict.ValidDate(currentDate) {
			return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", currentDate)
		}
		model, err := app.BuildModel(cfg, logger, nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		out, err := model.Run(ctx, strings.Join(args, " "), currentDate)
		if err != nil {
			var ee *disposition.ExtractionError
			if errors.As(err, &ee) && explain {
				fmt.Fprintf(cmd.ErrOrStderr(), "raw output:\n%s\n", ee.Raw)
			}
			return err
		}
		logger.Debug("predicted", zap.Duration("latency", out.Latency), zap.String("engine", model.EngineName()))
		return printResult(cmd.OutOrStdout(), out.Result, out.Raw)
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-normalize stored predictions with the current rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.DSN == "" {
			return errors.New("missing database.dsn (or CS_DB_DSN)")
		}
		ruleSet, err := rules.LoadOrDefault(cfg.Rules.Path)
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer st.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		svc := reprocess.NewService(st, disposition.NewNormalizer(ruleSet))
		svc.Logger = logger
		svc.DryRun = dryRun
		svc.Limit = limit
		report, err := svc.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d updated=%d failed=%d dry_run=%t\n", report.Scanned, report.Updated, report.Failed, dryRun)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configured dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		w := cmd.OutOrStdout()
		failed := false
		check := func(name string, err error) {
			if err != nil {
				failed = true
				fmt.Fprintf(w, "%-10s FAIL %v\n", name, err)
				return
			}
			fmt.Fprintf(w, "%-10s ok\n", name)
		}

		fmt.Fprintf(w, "%-10s %s (%s)\n", "engine", cfg.LLM.Provider, cfg.LLM.Model)
		if cfg.Database.DSN != "" {
			check("database", pingStore(ctx, cfg.Database.DSN))
		}
		if cfg.Redis.URL != "" {
			check("redis", pingQueue(ctx, cfg.Redis.URL))
		}
		if cfg.Vocab.TokenizerPath != "" {
			_, err := vocab.Load(cfg.Vocab.TokenizerPath)
			check("tokenizer", err)
		}
		if cfg.Rules.Path != "" {
			_, err := rules.Load(cfg.Rules.Path)
			check("rules", err)
		}
		if cfg.LLM.PromptPath != "" {
			_, err := predict.LoadTemplate(cfg.LLM.PromptPath)
			check("prompt", err)
		}
		stats, err := observability.NvidiaSMI(ctx)
		switch {
		case errors.Is(err, observability.ErrNoGPU):
			fmt.Fprintf(w, "%-10s none\n", "gpu")
		case err != nil:
			check("gpu", err)
		default:
			for _, s := range stats {
				fmt.Fprintf(w, "%-10s gpu%s util=%.0f%% mem=%.0f/%.0fMiB\n", "gpu", s.Index, s.Utilization, s.MemoryUsedMiB, s.MemoryTotalMiB)
			}
		}
		if failed {
			return errors.New("doctor found problems")
		}
		return nil
	},
}

var vocabCmd = &cobra.Command{
	Use:   "vocab <tokenizer.json>",
	Short: "Classify a tokenizer's vocabulary for brace tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := vocab.Load(args[0])
		if err != nil {
			return err
		}
		flags, err := jsonstop.Classify(tok)
		if err != nil {
			return err
		}
		var opens, closes, both int
		for id := 0; id < flags.Len(); id++ {
			o, c := flags.Open[id], flags.Close[id]
			switch {
			case o && c:
				both++
			case o:
				opens++
			case c:
				closes++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tokens=%d open=%d close=%d both=%d\n", flags.Len(), opens, closes, both)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of a disposition result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), disposition.Schema())
		return err
	},
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(cmd.InOrStdin())
}

func printResult(w io.Writer, res disposition.Result, raw string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !explain {
		return nil
	}
	if raw != "" {
		fmt.Fprintf(w, "\nraw output:\n%s\n", raw)
	}
	if len(res.Corrections) > 0 {
		fmt.Fprintln(w, "\ncorrections:")
		for _, c := range res.Corrections {
			fmt.Fprintf(w, "  %-22s %s -> %s (%s)\n", c.Field, c.From, c.To, c.Rule)
		}
	}
	return nil
}

func pingStore(ctx context.Context, dsn string) error {
	st, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Ping(ctx)
}

func pingQueue(ctx context.Context, url string) error {
	q, err := queue.New(url)
	if err != nil {
		return err
	}
	defer q.Close()
	return q.Ping(ctx)
}
