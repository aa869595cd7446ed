// Package predict owns the generation engine and runs the full
// generate-then-normalize pipeline one request at a time.
package predict

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"callsense/internal/disposition"
	"callsense/internal/jsonstop"
	"callsense/internal/llm"
	"callsense/internal/observability"
)

const (
	DefaultMaxNewTokens       = 512
	DefaultMaxTranscriptChars = 22000
	truncationSuffix          = "... [TRUNCATED]"
	dateLayout                = "2006-01-02"
)

var ErrGeneration = errors.New("generation failed")

type Options struct {
	MaxNewTokens       int
	MaxTranscriptChars int
	Prompt             *template.Template
	Normalizer         *disposition.Normalizer
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Now                func() time.Time
}

// Outcome is a completed prediction together with what produced it.
type Outcome struct {
	Result      disposition.Result
	Raw         string
	Transcript  string
	CurrentDate string
	Latency     time.Duration
}

// Model serializes access to an engine. The stop controller is reset before
// every call and never shared between concurrent calls.
type Model struct {
	mu     sync.Mutex
	engine llm.Engine
	ctrl   *jsonstop.Controller
	opts   Options
}

func New(engine llm.Engine, flags jsonstop.BraceFlags, opts Options) *Model {
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = DefaultMaxNewTokens
	}
	if opts.MaxTranscriptChars <= 0 {
		opts.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	if opts.Prompt == nil {
		opts.Prompt = DefaultTemplate()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = disposition.NewNormalizer(disposition.DefaultRules())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Model{engine: engine, ctrl: jsonstop.NewController(flags), opts: opts}
}

func (m *Model) EngineName() string { return m.engine.Name() }
func (m *Model) ModelName() string  { return m.engine.Model() }

// Predict returns the normalized disposition for transcript. currentDate is
// "YYYY-MM-DD"; empty means today in UTC.
func (m *Model) Predict(ctx context.Context, transcript, currentDate string) (disposition.Result, error) {
	out, err := m.Run(ctx, transcript, currentDate)
	return out.Result, err
}

// Run is Predict that also returns the raw generation. On an extraction
// failure Raw is still populated.
func (m *Model) Run(ctx context.Context, transcript, currentDate string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.opts.Now()
	if currentDate == "" {
		currentDate = start.UTC().Format(dateLayout)
	}
	transcript = Truncate(transcript, m.opts.MaxTranscriptChars)
	out := Outcome{Transcript: transcript, CurrentDate: currentDate}

	prompt, err := RenderPrompt(m.opts.Prompt, transcript, currentDate)
	if err != nil {
		return out, fmt.Errorf("render prompt: %w", err)
	}

	m.ctrl.Reset()
	raw, err := m.engine.Generate(ctx, llm.Request{Prompt: prompt, MaxNewTokens: m.opts.MaxNewTokens}, m.ctrl)
	out.Raw = raw
	if err != nil {
		out.Latency = m.opts.Now().Sub(start)
		return out, fmt.Errorf("%w: %s: %v", ErrGeneration, m.engine.Name(), err)
	}

	res, err := m.opts.Normalizer.Normalize(raw, transcript, currentDate)
	out.Latency = m.opts.Now().Sub(start)
	if err != nil {
		m.opts.Logger.Warn("extraction failed", zap.String("engine", m.engine.Name()), zap.Int("raw_len", len(raw)), zap.Error(err))
		return out, err
	}
	out.Result = res

	for _, c := range res.Corrections {
		m.opts.Logger.Debug("corrected field", zap.String("field", c.Field), zap.String("from", c.From), zap.String("to", c.To), zap.String("rule", c.Rule))
		m.opts.Metrics.RecordCorrection(ctx, c.Field, c.Rule)
	}
	if err := disposition.Validate(res); err != nil {
		m.opts.Logger.Error("normalized result violates contract", zap.Error(err))
	}
	return out, nil
}

// Truncate caps transcript at limit runes and marks the cut.
func Truncate(transcript string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(transcript) <= limit {
		return transcript
	}
	n := 0
	for i := range transcript {
		if n == limit {
			return transcript[:i] + truncationSuffix
		}
		n++
	}
	return transcript
}

// ValidDate reports whether s is a "YYYY-MM-DD" calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
