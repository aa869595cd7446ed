package llm

import (
	"context"
	"errors"
)

// Request is one generation call.
type Request struct {
	Prompt       string
	MaxNewTokens int
}

// Stopper is consulted for every generated token. Engines that can map
// their output to vocabulary ids call Observe; engines that only see text
// call Text. Either returns true once generation should end.
type Stopper interface {
	Observe(tokenID int) bool
	Text(fragment string) bool
}

// Encoder maps generated text back to vocabulary ids.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Engine produces text for a prompt, ending early when stop says so or when
// the token budget is spent. The returned text includes the fragment that
// triggered the stop.
type Engine interface {
	Generate(ctx context.Context, req Request, stop Stopper) (string, error)
	Name() string
	Model() string
}

var ErrNotConfigured = errors.New("llm engine not configured")

// meter feeds streamed fragments to a Stopper and tracks the token budget.
type meter struct {
	stop   Stopper
	enc    Encoder
	budget int
	used   int
}

func newMeter(stop Stopper, enc Encoder, budget int) *meter {
	return &meter{stop: stop, enc: enc, budget: budget}
}

// feed reports whether generation should end after fragment.
func (m *meter) feed(fragment string) (bool, error) {
	if fragment == "" {
		return false, nil
	}
	if m.enc == nil {
		m.used++
		if m.stop != nil && m.stop.Text(fragment) {
			return true, nil
		}
		return m.spent(), nil
	}
	ids, err := m.enc.Encode(fragment)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		m.used++
		if m.stop != nil && m.stop.Observe(id) {
			return true, nil
		}
		if m.spent() {
			return true, nil
		}
	}
	return false, nil
}

func (m *meter) spent() bool {
	return m.budget > 0 && m.used >= m.budget
}
