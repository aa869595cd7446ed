package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// TranscriptMarker precedes the transcript in generated prompts. Noop reads
// only the text after its last occurrence.
const TranscriptMarker = "Transcript:"

var (
	noopAmount = regexp.MustCompile(`\d[\d,]{2,}`)
	noopDate   = regexp.MustCompile(`Current Date is (\d{4}-\d{2}-\d{2})`)
)

// Noop drafts a keyword-based disposition without a model and replays it
// word by word, followed by chatter the stop controller should cut off.
type Noop struct {
	Encoder Encoder
}

func NewNoop(enc Encoder) *Noop {
	return &Noop{Encoder: enc}
}

func (n *Noop) Name() string  { return "noop" }
func (n *Noop) Model() string { return "noop" }

func (n *Noop) Generate(ctx context.Context, req Request, stop Stopper) (string, error) {
	draft, err := json.Marshal(n.draft(req.Prompt))
	if err != nil {
		return "", err
	}
	text := "```json\n" + string(draft) + "\n```\nLet me know if you need anything else."

	m := newMeter(stop, n.Encoder, req.MaxNewTokens)
	var out strings.Builder
	for _, fragment := range splitKeep(text) {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}
		out.WriteString(fragment)
		done, err := m.feed(fragment)
		if err != nil {
			return out.String(), err
		}
		if done {
			break
		}
	}
	return out.String(), nil
}

type noopDraft struct {
	Disposition        string         `json:"disposition"`
	PaymentDisposition string         `json:"payment_disposition"`
	ReasonForNotPaying *string        `json:"reason_for_not_paying"`
	PtpDetails         map[string]any `json:"ptp_details"`
	Remarks            string         `json:"remarks"`
	ConfidenceScore    float64        `json:"confidence_score"`
}

func (n *Noop) draft(prompt string) noopDraft {
	transcript := prompt
	if i := strings.LastIndex(prompt, TranscriptMarker); i >= 0 {
		transcript = prompt[i+len(TranscriptMarker):]
	}
	lower := strings.ToLower(transcript)

	d := noopDraft{
		Disposition:        "ANSWERED",
		PaymentDisposition: "NO_PAYMENT_COMMITMENT",
		PtpDetails:         map[string]any{"amount": nil, "date": nil},
		Remarks:            "Drafted without a model.",
		ConfidenceScore:    0.42,
	}
	switch {
	case strings.TrimSpace(lower) == "":
		d.Disposition = "SILENCE_ISSUE"
	case strings.Contains(lower, "wrong number"):
		d.Disposition = "WRONG_NUMBER"
	case strings.Contains(lower, "switched off") || strings.Contains(lower, "switch off"):
		d.Disposition = "SWITCHED_OFF"
	case strings.Contains(lower, "busy"):
		d.Disposition = "BUSY"
	}

	switch {
	case strings.Contains(lower, "nahi dunga") || strings.Contains(lower, "won't pay") || strings.Contains(lower, "refuse"):
		d.PaymentDisposition = "DENIED_TO_PAY"
	case strings.Contains(lower, "paid"):
		d.PaymentDisposition = "PAID"
	case strings.Contains(lower, "dunga") || strings.Contains(lower, "karunga") || strings.Contains(lower, "will pay"):
		d.PaymentDisposition = "PTP"
		if amt := noopAmount.FindString(transcript); amt != "" {
			d.PtpDetails["amount"] = amt
		}
		if m := noopDate.FindStringSubmatch(prompt); m != nil {
			d.PtpDetails["date"] = m[1]
		}
	}
	if strings.Contains(lower, "job") && (strings.Contains(lower, "lost") || strings.Contains(lower, "chali gayi")) {
		reason := "job lost"
		d.ReasonForNotPaying = &reason
	}
	return d
}

// splitKeep splits text after each space or newline, keeping separators.
func splitKeep(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' || text[i] == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
