package disposition

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalizer applies a fixed set of [Rules] to extracted drafts. It holds
// no mutable state and is safe for concurrent use.
type Normalizer struct {
	rules Rules
}

// NewNormalizer returns a Normalizer using r.
func NewNormalizer(r Rules) *Normalizer {
	return &Normalizer{rules: r}
}

var defaultNormalizer = NewNormalizer(DefaultRules())

// Normalize extracts and normalizes rawText with the built-in rules.
// currentDate is "YYYY-MM-DD" or empty.
func Normalize(rawText, transcript, currentDate string) (Result, error) {
	return defaultNormalizer.Normalize(rawText, transcript, currentDate)
}

// Normalize extracts the JSON object from rawText and repairs every field.
// The only error is *ExtractionError.
func (n *Normalizer) Normalize(rawText, transcript, currentDate string) (Result, error) {
	obj, err := Extract(rawText)
	if err != nil {
		return Result{}, err
	}
	return n.Apply(obj, transcript, currentDate), nil
}

// Apply normalizes an already extracted object. Unknown keys are dropped.
func (n *Normalizer) Apply(obj map[string]any, transcript, currentDate string) Result {
	ev := NewEvidence(transcript)
	var res Result

	res.Disposition = n.callOutcome(&res, obj["disposition"])
	res.PaymentDisposition = n.paymentDisposition(&res, obj["payment_disposition"], ev)
	res.ReasonForNotPaying = n.reason(&res, obj["reason_for_not_paying"])
	res.Remarks = remarksText(obj["remarks"])

	rawAmount, rawDate := ptpCandidates(obj["ptp_details"])
	res.PtpDetails.Amount = validateAmount(&res, rawAmount, ev)
	res.PtpDetails.Date = n.validateDate(&res, rawDate, ev, currentDate)

	if !BearsPTP(res.PaymentDisposition) {
		if res.PtpDetails.Amount != nil || res.PtpDetails.Date != nil {
			res.note("ptp_details", "present", "null", "no commitment")
		}
		res.PtpDetails = PtpDetails{}
	}
	n.downgrade(&res, ev)

	raw, present := obj["confidence_score"]
	res.ConfidenceScore = finalizeConfidence(&res, raw, present)
	return res
}

func (n *Normalizer) callOutcome(res *Result, v any) string {
	label, ok := canonicalLabel(v)
	if !ok {
		res.note("disposition", "null", Others, "missing")
		return Others
	}
	if IsCallOutcome(label) {
		return label
	}
	if mapped, ok := firstFallback(n.rules.CallOutcomeFallbacks, label); ok {
		res.note("disposition", label, mapped, "fallback")
		return mapped
	}
	if labelShaped(label) {
		return label
	}
	res.note("disposition", label, Others, "unrecognized")
	return Others
}

func (n *Normalizer) paymentDisposition(res *Result, v any, ev Evidence) string {
	label, ok := canonicalLabel(v)
	if !ok {
		return None
	}
	if label == WillPayAfterVisit {
		if ev.ContainsAny(n.rules.VisitKeywords) {
			return label
		}
		res.note("payment_disposition", label, PTP, "no visit evidence")
		return PTP
	}
	if IsPaymentDisposition(label) {
		return label
	}
	if mapped, ok := firstFallback(n.rules.PaymentFallbacks, label); ok {
		res.note("payment_disposition", label, mapped, "fallback")
		return mapped
	}
	res.note("payment_disposition", label, None, "unrecognized")
	return None
}

func (n *Normalizer) reason(res *Result, v any) string {
	label, ok := canonicalLabel(v)
	if !ok || label == "" || label == "NONE" || label == "NULL" {
		return None
	}
	if n.rules.JobKeyword != "" && strings.Contains(label, n.rules.JobKeyword) &&
		containsAnyOf(label, n.rules.JobLossIndicators) {
		res.note("reason_for_not_paying", label, JobChangedWaitingForSalary, "job loss")
		return JobChangedWaitingForSalary
	}
	return label
}

func (n *Normalizer) downgrade(res *Result, ev Evidence) {
	if res.PaymentDisposition != PTP {
		return
	}
	if res.PtpDetails.Amount != nil || res.PtpDetails.Date != nil {
		return
	}
	if !ev.ContainsAny(n.rules.NonCommittalMarkers) || ev.ContainsAny(n.rules.CommitmentKeywords) {
		return
	}
	res.note("payment_disposition", PTP, NoPaymentCommitment, "non-committal")
	res.PaymentDisposition = NoPaymentCommitment
	if res.Remarks == "" {
		res.Remarks = n.rules.DowngradeRemark
	} else {
		res.Remarks += " " + n.rules.DowngradeRemark
	}
}

// canonicalLabel uppercases a label and replaces spaces with underscores.
// ok is false for a missing or null value.
func canonicalLabel(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_"), true
}

func firstFallback(rules []Fallback, label string) (string, bool) {
	for _, f := range rules {
		if containsAnyOf(label, f.Contains) {
			return f.Label, true
		}
	}
	return "", false
}

func containsAnyOf(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// labelShaped reports whether s looks like a deliberate label: longer than
// two runes, only letters, digits and underscores, not underscores alone.
func labelShaped(s string) bool {
	if utf8.RuneCountInString(s) <= 2 {
		return false
	}
	core := false
	for _, r := range s {
		switch {
		case r == '_':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			core = true
		default:
			return false
		}
	}
	return core
}

func remarksText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
