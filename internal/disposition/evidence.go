package disposition

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Evidence is a transcript prepared for keyword and digit lookups.
type Evidence struct {
	lower  string
	digits string
}

// NewEvidence folds the transcript to NFKC so full-width digits and
// compatibility forms match their ASCII keywords.
func NewEvidence(transcript string) Evidence {
	folded := norm.NFKC.String(transcript)
	return Evidence{
		lower:  strings.ToLower(folded),
		digits: strings.ReplaceAll(folded, ",", ""),
	}
}

// ContainsAny reports whether the lowercased transcript contains any keyword.
func (e Evidence) ContainsAny(keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(e.lower, k) {
			return true
		}
	}
	return false
}

// HasAmount reports whether digits occur in the comma-stripped transcript.
// The match is a plain substring, so "500" is found inside "5000".
func (e Evidence) HasAmount(digits string) bool {
	return digits != "" && strings.Contains(e.digits, digits)
}
