// Package app wires configuration into a running service: the model, its
// optional store and queue, the HTTP surface and the background workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"callsense/internal/api"
	"callsense/internal/config"
	"callsense/internal/disposition"
	"callsense/internal/jsonstop"
	"callsense/internal/llm"
	"callsense/internal/observability"
	"callsense/internal/predict"
	"callsense/internal/queue"
	"callsense/internal/rules"
	"callsense/internal/store"
	"callsense/internal/vocab"
)

// Version is stamped into metrics resources.
var Version = "dev"

type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Model   *predict.Model
	Store   *store.Store
	Queue   *queue.Queue

	shutdownMetrics func(context.Context) error
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	shutdown, err := observability.InitProvider("callsense", Version)
	if err != nil {
		return nil, fmt.Errorf("metrics provider: %w", err)
	}
	a.shutdownMetrics = shutdown
	if a.Metrics, err = observability.Default(); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.Model, err = BuildModel(cfg, logger, a.Metrics); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Metrics.ModelLoaded.Record(ctx, 1)
	logger.Info("model ready", zap.String("engine", a.Model.EngineName()), zap.String("model", a.Model.ModelName()))

	if cfg.Database.DSN != "" {
		if a.Store, err = store.Open(cfg.Database.DSN); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("store: %w", err)
		}
		if err := a.Store.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.Redis.URL != "" {
		if a.Queue, err = queue.New(cfg.Redis.URL); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("queue: %w", err)
		}
	}
	return a, nil
}

// BuildModel loads the vocabulary, rules and prompt named by cfg and returns
// a model over the configured engine.
func BuildModel(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*predict.Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		flags jsonstop.BraceFlags
		enc   llm.Encoder
	)
	if cfg.Vocab.TokenizerPath != "" {
		tok, err := vocab.Load(cfg.Vocab.TokenizerPath)
		if err != nil {
			return nil, err
		}
		if flags, err = jsonstop.Classify(tok); err != nil {
			return nil, fmt.Errorf("classify vocabulary: %w", err)
		}
		enc = tok
		logger.Info("vocabulary classified", zap.Int("tokens", flags.Len()))
	}

	ruleSet, err := rules.LoadOrDefault(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	tpl := predict.DefaultTemplate()
	if cfg.LLM.PromptPath != "" {
		if tpl, err = predict.LoadTemplate(cfg.LLM.PromptPath); err != nil {
			return nil, err
		}
	}

	engine, err := selectEngine(cfg, enc)
	if err != nil {
		return nil, err
	}
	return predict.New(engine, flags, predict.Options{
		MaxNewTokens:       cfg.LLM.MaxNewTokens,
		MaxTranscriptChars: cfg.LLM.MaxTranscriptChars,
		Prompt:             tpl,
		Normalizer:         disposition.NewNormalizer(ruleSet),
		Logger:             logger,
		Metrics:            metrics,
	}), nil
}

func selectEngine(cfg config.Config, enc llm.Encoder) (llm.Engine, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.RequestTimeout, enc)
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.RequestTimeout, enc), nil
	case "noop", "":
		return llm.NewNoop(enc), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.shutdownMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.shutdownMetrics(ctx))
	}
	return errors.Join(errs...)
}

// Handler builds the API handler. Store and queue are attached only when
// configured.
func (a *App) Handler() *api.Handler {
	h := api.NewHandler(a.Model, a.Logger)
	h.Metrics = a.Metrics
	h.MetricsHandler = observability.Handler()
	h.MaxUploadBytes = int64(a.Config.HTTP.MaxUploadMB) << 20
	h.Limiter = api.NewRateLimiter(a.Config.HTTP.RateLimitRPM, a.Config.HTTP.RateBurst,
		observability.NewLimitObserver(a.Logger, a.Metrics))
	if a.Store != nil {
		h.Store = a.Store
	}
	if a.Queue != nil {
		h.Queue = a.Queue
	}
	return h
}

// Serve runs the HTTP server and the GPU poller until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	a.Handler().RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("serving", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		poller := &observability.GPUPoller{
			Metrics:  a.Metrics,
			Interval: a.Config.Metrics.GPUPollInterval,
			Logger:   a.Logger,
		}
		return poller.Run(ctx)
	})
	return g.Wait()
}
