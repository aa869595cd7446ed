// Package disposition turns a language model's draft of a call disposition
// into a record downstream systems can trust.
//
// The draft is located in the generated text, mapped onto the closed label
// vocabularies, checked against the transcript it claims to describe, and
// given calendar-valid promise-to-pay details. Every field-level problem is
// repaired locally; the only failure that reaches the caller is an
// [ExtractionError] when no JSON object can be recovered at all.
package disposition

import (
	"errors"
	"fmt"
)

// Result is a fully normalized call disposition.
type Result struct {
	Disposition        string     `json:"disposition"`
	PaymentDisposition string     `json:"payment_disposition"`
	ReasonForNotPaying string     `json:"reason_for_not_paying"`
	PtpDetails         PtpDetails `json:"ptp_details"`
	Remarks            string     `json:"remarks"`
	ConfidenceScore    float64    `json:"confidence_score"`

	// Corrections lists the silent repairs applied while normalizing.
	Corrections []Correction `json:"-"`
}

// PtpDetails holds the promise-to-pay amount and date. Both are nil unless
// the payment disposition carries a commitment.
type PtpDetails struct {
	Amount *string `json:"amount"`
	Date   *string `json:"date"`
}

// Correction records one field that was repaired by defaulting, clamping or
// reclassification.
type Correction struct {
	Field string
	From  string
	To    string
	Rule  string
}

func (r *Result) note(field, from, to, rule string) {
	if from == to {
		return
	}
	r.Corrections = append(r.Corrections, Correction{Field: field, From: from, To: to, Rule: rule})
}

var (
	ErrNoObject = errors.New("no JSON object found")
)

// ExtractionError reports that no structurally valid JSON object could be
// recovered from the generated text. Raw carries the text for diagnostics.
type ExtractionError struct {
	Raw   string
	Cause error
}

func (e *ExtractionError) Error() string {
	if e.Cause == nil {
		return "extraction failed"
	}
	return fmt.Sprintf("extraction failed: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

func strPtr(s string) *string {
	return &s
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
