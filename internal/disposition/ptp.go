package disposition

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

func ptpCandidates(v any) (amount, date any) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	return m["amount"], m["date"]
}

// validateAmount returns the integer digit string for v when the transcript
// contains it, nil otherwise.
func validateAmount(res *Result, v any, ev Evidence) *string {
	digits, ok := amountDigits(v)
	if !ok {
		if !isFalsy(v) {
			res.note("ptp_details.amount", describe(v), "null", "unparseable")
		}
		return nil
	}
	if !ev.HasAmount(digits) {
		res.note("ptp_details.amount", digits, "null", "not in transcript")
		return nil
	}
	return strPtr(digits)
}

func amountDigits(v any) (string, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(t, ",", "")), 64)
		if err != nil || parsed == 0 {
			return "", false
		}
		f = parsed
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil || parsed == 0 {
			return "", false
		}
		f = parsed
	case float64:
		if t == 0 {
			return "", false
		}
		f = t
	default:
		return "", false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	f = math.Trunc(f)
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// validateDate applies relative-day corrections, strips any time component
// and forces the result to a real calendar date.
func (n *Normalizer) validateDate(res *Result, v any, ev Evidence, currentDate string) *string {
	raw, ok := v.(string)
	if !ok || raw == "" {
		if !isFalsy(v) {
			res.note("ptp_details.date", describe(v), "null", "not a string")
		}
		return nil
	}

	if currentDate != "" {
		today, err := parseLooseDate(currentDate)
		if err != nil {
			res.note("ptp_details.date", raw, "null", "invalid current date")
			return nil
		}
		switch {
		case ev.ContainsAny(n.rules.DayAfterTomorrow):
			fixed := today.AddDate(0, 0, 2).Format(dateLayout)
			res.note("ptp_details.date", raw, fixed, "day after tomorrow")
			raw = fixed
		case ev.ContainsAny(n.rules.Tomorrow) && datePart(raw) == currentDate:
			fixed := today.AddDate(0, 0, 1).Format(dateLayout)
			res.note("ptp_details.date", raw, fixed, "tomorrow")
			raw = fixed
		}
	}

	match := isoDate.FindString(datePart(raw))
	if match == "" {
		res.note("ptp_details.date", raw, "null", "no date")
		return nil
	}
	if _, err := time.Parse(dateLayout, match); err == nil {
		return strPtr(match)
	}

	fixed, ok := clampDay(match)
	if !ok {
		res.note("ptp_details.date", match, "null", "invalid date")
		return nil
	}
	res.note("ptp_details.date", match, fixed, "clamped day")
	return strPtr(fixed)
}

// datePart drops a trailing time component separated by 'T' or a space.
func datePart(s string) string {
	if i := strings.Index(s, "T"); i >= 0 {
		return s[:i]
	}
	if i := strings.Index(s, " "); i >= 0 {
		return s[:i]
	}
	return s
}

// clampDay repairs a YYYY-MM-DD string whose day overruns its month.
func clampDay(s string) (string, bool) {
	y, _ := strconv.Atoi(s[0:4])
	m, _ := strconv.Atoi(s[5:7])
	d, _ := strconv.Atoi(s[8:10])
	if m < 1 || m > 12 || d < 1 {
		return "", false
	}
	last := daysIn(y, time.Month(m))
	if d > last {
		d = last
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).Format(dateLayout), true
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseLooseDate accepts Y-M-D with or without zero padding.
func parseLooseDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, &time.ParseError{Layout: dateLayout, Value: s}
	}
	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, &time.ParseError{Layout: dateLayout, Value: s}
		}
		ymd[i] = n
	}
	t := time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC)
	if t.Year() != ymd[0] || int(t.Month()) != ymd[1] || t.Day() != ymd[2] {
		return time.Time{}, &time.ParseError{Layout: dateLayout, Value: s}
	}
	return t, nil
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	return false
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
