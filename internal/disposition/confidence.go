package disposition

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultConfidence is used when the draft's score is missing or unusable.
const DefaultConfidence = 0.85

func finalizeConfidence(res *Result, v any, present bool) float64 {
	if !present || v == nil {
		res.note("confidence_score", "null", "0.85", "default")
		return DefaultConfidence
	}
	f, ok := confidenceValue(v)
	if !ok || math.IsNaN(f) {
		res.note("confidence_score", describe(v), "0.85", "default")
		return DefaultConfidence
	}
	clamped := math.Max(0, math.Min(1, f))
	if clamped != f {
		res.note("confidence_score", describe(v), strconv.FormatFloat(clamped, 'g', -1, 64), "clamped")
	}
	return clamped
}

func confidenceValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
