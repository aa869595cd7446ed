package predict

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"callsense/internal/disposition"
	"callsense/internal/jsonstop"
	"callsense/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays fixed fragments through the stopper.
type scripted struct {
	fragments []string
	err       error
	prompts   []string
	active    int32
	maxActive int32
	delay     time.Duration
}

func (s *scripted) Name() string  { return "scripted" }
func (s *scripted) Model() string { return "scripted-1" }

func (s *scripted) Generate(_ context.Context, req llm.Request, stop llm.Stopper) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		cur := atomic.LoadInt32(&s.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&s.maxActive, cur, n) {
			break
		}
	}
	time.Sleep(s.delay)
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return "", s.err
	}
	var out strings.Builder
	for _, f := range s.fragments {
		out.WriteString(f)
		if stop.Text(f) {
			break
		}
	}
	return out.String(), nil
}

func fixedNow() time.Time { return time.Date(2026, 1, 27, 9, 30, 0, 0, time.UTC) }

func TestPredictEndToEnd(t *testing.T) {
	engine := &scripted{fragments: []string{
		`Output: {"disposition": "answered", "payment_disposition": "ptp", `,
		`"ptp_details": {"amount": "5,000", "date": "2026-01-27"}, `,
		`"confidence_score": 1.4}`,
		` and then {"junk": true}`,
	}}
	m := New(engine, jsonstop.BraceFlags{}, Options{Now: fixedNow})

	out, err := m.Run(context.Background(), "Customer: parso 5000 pakka", "")
	require.NoError(t, err)
	assert.NotContains(t, out.Raw, "junk")
	assert.Equal(t, "2026-01-27", out.CurrentDate)
	assert.Equal(t, disposition.Answered, out.Result.Disposition)
	assert.Equal(t, disposition.PTP, out.Result.PaymentDisposition)
	assert.Equal(t, "5000", *out.Result.PtpDetails.Amount)
	assert.Equal(t, "2026-01-29", *out.Result.PtpDetails.Date)
	assert.Equal(t, 1.0, out.Result.ConfidenceScore)

	require.Len(t, engine.prompts, 1)
	assert.Contains(t, engine.prompts[0], "Context: Current Date is 2026-01-27")
	assert.Contains(t, engine.prompts[0], llm.TranscriptMarker+" Customer: parso 5000 pakka")
}

func TestPredictExtractionError(t *testing.T) {
	engine := &scripted{fragments: []string{"I cannot help with that."}}
	m := New(engine, jsonstop.BraceFlags{}, Options{Now: fixedNow})

	out, err := m.Run(context.Background(), "hello", "2026-01-27")
	var ee *disposition.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "I cannot help with that.", ee.Raw)
	assert.Equal(t, "I cannot help with that.", out.Raw)
}

func TestPredictGenerationError(t *testing.T) {
	engine := &scripted{err: errors.New("cuda oom")}
	m := New(engine, jsonstop.BraceFlags{}, Options{})
	_, err := m.Predict(context.Background(), "hello", "2026-01-27")
	require.ErrorIs(t, err, ErrGeneration)

	// lock released after failure
	engine.err = nil
	engine.fragments = []string{`{"disposition":"BUSY"}`}
	res, err := m.Predict(context.Background(), "hello", "2026-01-27")
	require.NoError(t, err)
	assert.Equal(t, disposition.Busy, res.Disposition)
}

func TestPredictSerializesCalls(t *testing.T) {
	engine := &scripted{fragments: []string{`{"disposition":"BUSY"}`}, delay: 5 * time.Millisecond}
	m := New(engine, jsonstop.BraceFlags{}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Predict(context.Background(), "busy", "2026-01-27")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&engine.maxActive))
	assert.Len(t, engine.prompts, 8)
}

func TestPredictResetsControllerBetweenCalls(t *testing.T) {
	// first call leaves the object open; the second must still stop at its own close
	engine := &scripted{fragments: []string{`{"disposition": "BUSY"`}}
	m := New(engine, jsonstop.BraceFlags{}, Options{})
	_, err := m.Predict(context.Background(), "x", "2026-01-27")
	require.Error(t, err)

	engine.fragments = []string{`{"disposition": "BUSY"}`, " tail {"}
	out, err := m.Run(context.Background(), "x", "2026-01-27")
	require.NoError(t, err)
	assert.Equal(t, `{"disposition": "BUSY"}`, out.Raw)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab"+truncationSuffix, Truncate("abc", 2))
	assert.Equal(t, "नम"+truncationSuffix, Truncate("नमस्ते", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestTruncatedTranscriptIsEvidence(t *testing.T) {
	engine := &scripted{fragments: []string{`{"payment_disposition":"PTP","ptp_details":{"amount":"9999"}}`}}
	m := New(engine, jsonstop.BraceFlags{}, Options{MaxTranscriptChars: 5})
	out, err := m.Run(context.Background(), "kal 9999 dunga", "2026-01-27")
	require.NoError(t, err)
	assert.Equal(t, "kal 9"+truncationSuffix, out.Transcript)
	assert.Nil(t, out.Result.PtpDetails.Amount)
}

func TestRenderPromptCustomTemplate(t *testing.T) {
	tpl, err := DefaultTemplate().Parse(`{{.CurrentDate}}|{{.Transcript}}|{{len .PaymentLabels}}`)
	require.NoError(t, err)
	got, err := RenderPrompt(tpl, "hi", "2026-01-27")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-27|hi|11", got)
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2026-02-28"))
	assert.False(t, ValidDate("2026-02-30"))
	assert.False(t, ValidDate("27-01-2026"))
}
