// Package rules loads operator keyword tables and merges them over the
// built-in disposition rules.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"callsense/internal/disposition"
)

// File is the on-disk shape of a rules overlay. Every list is appended to
// the matching built-in table; fallbacks are tried after the built-in ones.
type File struct {
	ID      string `yaml:"id"`
	Version int    `yaml:"version"`

	CallOutcomeFallbacks []disposition.Fallback `yaml:"call_outcome_fallbacks"`
	PaymentFallbacks     []disposition.Fallback `yaml:"payment_fallbacks"`

	VisitKeywords       []string `yaml:"visit_keywords"`
	DayAfterTomorrow    []string `yaml:"day_after_tomorrow"`
	Tomorrow            []string `yaml:"tomorrow"`
	NonCommittalMarkers []string `yaml:"non_committal_markers"`
	CommitmentKeywords  []string `yaml:"commitment_keywords"`
	JobLossIndicators   []string `yaml:"job_loss_indicators"`
	DowngradeRemark     string   `yaml:"downgrade_remark"`
}

func Load(path string) (disposition.Rules, error) {
	base := disposition.DefaultRules()
	if path == "" {
		return base, errors.New("missing rules path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return base, fmt.Errorf("rules %s: %w", path, err)
	}
	return Merge(base, f), nil
}

// LoadOrDefault returns the built-in rules when path is empty.
func LoadOrDefault(path string) (disposition.Rules, error) {
	if path == "" {
		return disposition.DefaultRules(), nil
	}
	return Load(path)
}

// Merge appends the overlay to base. Transcript keywords are lowercased and
// label keywords are put in canonical label form so they match what the
// normalizer compares against.
func Merge(base disposition.Rules, f File) disposition.Rules {
	out := base
	out.CallOutcomeFallbacks = append(clone(base.CallOutcomeFallbacks), canonicalFallbacks(f.CallOutcomeFallbacks)...)
	out.PaymentFallbacks = append(clone(base.PaymentFallbacks), canonicalFallbacks(f.PaymentFallbacks)...)
	out.VisitKeywords = appendLower(base.VisitKeywords, f.VisitKeywords)
	out.DayAfterTomorrow = appendLower(base.DayAfterTomorrow, f.DayAfterTomorrow)
	out.Tomorrow = appendLower(base.Tomorrow, f.Tomorrow)
	out.NonCommittalMarkers = appendLower(base.NonCommittalMarkers, f.NonCommittalMarkers)
	out.CommitmentKeywords = appendLower(base.CommitmentKeywords, f.CommitmentKeywords)
	out.JobLossIndicators = append(append([]string(nil), base.JobLossIndicators...), labelForms(f.JobLossIndicators)...)
	if f.DowngradeRemark != "" {
		out.DowngradeRemark = f.DowngradeRemark
	}
	return out
}

func (f File) validate() error {
	for _, fb := range append(append([]disposition.Fallback(nil), f.CallOutcomeFallbacks...), f.PaymentFallbacks...) {
		if fb.Label == "" {
			return errors.New("fallback without label")
		}
		if len(fb.Contains) == 0 {
			return fmt.Errorf("fallback %s has no keywords", fb.Label)
		}
	}
	for _, fb := range f.PaymentFallbacks {
		label := fallbackLabel(fb.Label)
		if label == disposition.WillPayAfterVisit {
			return fmt.Errorf("payment fallback to %s bypasses the visit check", label)
		}
		if label != disposition.None && !disposition.IsPaymentDisposition(label) {
			return fmt.Errorf("payment fallback to unknown label %q", fb.Label)
		}
	}
	return nil
}

// fallbackLabel puts a fallback target in canonical form. The None sentinel
// is matched in any case.
func fallbackLabel(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), disposition.None) {
		return disposition.None
	}
	return labelForm(s)
}

func canonicalFallbacks(in []disposition.Fallback) []disposition.Fallback {
	out := make([]disposition.Fallback, 0, len(in))
	for _, fb := range in {
		out = append(out, disposition.Fallback{Contains: labelForms(fb.Contains), Label: fallbackLabel(fb.Label)})
	}
	return out
}

func labelForm(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
}

func labelForms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := labelForm(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func appendLower(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, s := range extra {
		if v := strings.ToLower(strings.TrimSpace(s)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clone(in []disposition.Fallback) []disposition.Fallback {
	return append([]disposition.Fallback(nil), in...)
}
