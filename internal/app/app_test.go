package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"callsense/internal/config"
	"callsense/internal/disposition"
	"callsense/internal/queue"
	"callsense/internal/store"
)

func TestSelectEngine(t *testing.T) {
	cfg := config.Default()
	for provider, want := range map[string]string{"noop": "noop", "ollama": "ollama", "openai": "openai"} {
		cfg.LLM.Provider = provider
		cfg.LLM.Model = "qwen2.5-7b-instruct"
		engine, err := selectEngine(cfg, nil)
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if engine.Name() != want {
			t.Fatalf("expected %s engine, got %s", want, engine.Name())
		}
	}
	cfg.LLM.Provider = "tgi"
	if _, err := selectEngine(cfg, nil); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestBuildModelWithRulesAndPrompt(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte("payment_fallbacks:\n  - contains: [\"CHEQUE\"]\n    label: DENIED_TO_PAY\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	promptPath := filepath.Join(dir, "prompt.tmpl")
	if err := os.WriteFile(promptPath, []byte("Date {{.CurrentDate}}\n{{.TranscriptMarker}} {{.Transcript}}\n"), 0o600); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	cfg := config.Default()
	cfg.Rules.Path = rulesPath
	cfg.LLM.PromptPath = promptPath
	model, err := BuildModel(cfg, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	res, err := model.Predict(context.Background(), "customer busy hai", "2026-01-27")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.Disposition != disposition.Busy {
		t.Fatalf("expected BUSY, got %s", res.Disposition)
	}

	cfg.Rules.Path = filepath.Join(dir, "missing.yaml")
	if _, err := BuildModel(cfg, nil, nil); err == nil {
		t.Fatalf("expected missing rules file error")
	}
}

type sliceJobs struct {
	mu   sync.Mutex
	jobs []queue.Job
	errs int
}

func (s *sliceJobs) PopJob(ctx context.Context, _ time.Duration) (queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs > 0 {
		s.errs--
		return queue.Job{}, errors.New("connection reset")
	}
	if len(s.jobs) == 0 {
		return queue.Job{}, queue.ErrEmpty
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, nil
}

func TestWorkerRecordsJobs(t *testing.T) {
	st, err := store.Open("sqlite://" + filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	model, err := BuildModel(config.Default(), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	jobs := &sliceJobs{
		errs: 1,
		jobs: []queue.Job{
			{ID: "j1", Transcript: "Haan main parso 5000 jama kar dunga.", CurrentDate: "2026-01-27"},
			{ID: "j2", Transcript: "wrong number", CurrentDate: "2026-01-27"},
		},
	}

	var mu sync.Mutex
	statuses := map[string]int{}
	w := &Worker{
		Jobs:    jobs,
		Model:   model,
		Store:   st,
		Backoff: time.Millisecond,
		OnJob: func(_ context.Context, status string) {
			mu.Lock()
			statuses[status]++
			done := statuses["ok"] == 2
			mu.Unlock()
			if done {
				cancel()
			}
		},
	}
	if err := w.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	p, err := st.GetPrediction(context.Background(), "j1")
	if err != nil {
		t.Fatalf("get j1: %v", err)
	}
	if p.Result.PaymentDisposition != disposition.PTP || p.Engine != "noop" {
		t.Fatalf("unexpected j1 row: %+v", p)
	}
	if p.Result.PtpDetails.Date == nil || *p.Result.PtpDetails.Date != "2026-01-29" {
		t.Fatalf("expected corrected date on j1")
	}
	p2, err := st.GetPrediction(context.Background(), "j2")
	if err != nil || p2.Result.Disposition != disposition.WrongNumber {
		t.Fatalf("unexpected j2 row: %+v (%v)", p2, err)
	}
}

func TestWorkerWithoutQueue(t *testing.T) {
	a := &App{}
	if _, err := a.Worker(); err == nil {
		t.Fatalf("expected error without queue")
	}
}
