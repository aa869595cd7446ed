package disposition

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndToEnd(t *testing.T) {
	raw := `Sure, here is the JSON: {"disposition": "answered", "payment_disposition": "ptp", ` +
		`"ptp_details": {"amount": "5,000", "date": "2026-01-27"}, "confidence_score": 1.4} thanks`
	transcript := "Customer: main parso 5000 de dunga, pakka."

	res, err := Normalize(raw, transcript, "2026-01-27")
	require.NoError(t, err)

	assert.Equal(t, Answered, res.Disposition)
	assert.Equal(t, PTP, res.PaymentDisposition)
	require.NotNil(t, res.PtpDetails.Amount)
	require.NotNil(t, res.PtpDetails.Date)
	assert.Equal(t, "5000", *res.PtpDetails.Amount)
	assert.Equal(t, "2026-01-29", *res.PtpDetails.Date)
	assert.Equal(t, 1.0, res.ConfidenceScore)
	assert.Equal(t, None, res.ReasonForNotPaying)
	assert.Equal(t, "", res.Remarks)
	require.NoError(t, Validate(res))
}

func TestNormalizeExtractionFailure(t *testing.T) {
	for _, raw := range []string{"", "no braces here", "} backwards {", `{"disposition": }`, `{"a":1} junk {"b":2}`} {
		_, err := Normalize(raw, "transcript", "2026-01-27")
		var ee *ExtractionError
		require.True(t, errors.As(err, &ee), "raw %q", raw)
		assert.Equal(t, raw, ee.Raw)
	}
}

func TestCallOutcomeLabels(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"answered", Answered},
		{"wrong person", WrongPerson},
		{"Customer Hung Up Politely", "CUSTOMER_HUNG_UP_POLITELY"},
		{"CUSTOMER_HUNG_UP_POLITELY", "CUSTOMER_HUNG_UP_POLITELY"},
		{"???", Others},
		{"ab", Others},
		{"___", Others},
		{nil, Others},
		{"spoke with family", AnsweredByFamilyMember},
		{"line busy tone", Busy},
		{"WRONG-NUM", WrongNumber},
		{"answer machine?", Answered},
		{"family busy", AnsweredByFamilyMember},
	}
	for _, tc := range cases {
		res := defaultNormalizer.Apply(map[string]any{"disposition": tc.in}, "", "")
		assert.Equal(t, tc.want, res.Disposition, "input %v", tc.in)
	}
}

func TestPaymentDispositionLabels(t *testing.T) {
	cases := []struct {
		in         any
		transcript string
		want       string
	}{
		{"paid", "", Paid},
		{"claims paid", "", Paid},
		{"promised", "", PTP},
		{"ptp soon", "", PTP},
		{"refused", "", DeniedToPay},
		{"deny", "", DeniedToPay},
		{"something else", "", None},
		{nil, "", None},
		{"none", "", None},
		{"will pay after visit", "send the collector to my home", WillPayAfterVisit},
		{"WILL_PAY_AFTER_VISIT", "please send someone to collect", WillPayAfterVisit},
		{"WILL_PAY_AFTER_VISIT", "I will pay on Friday", PTP},
	}
	for _, tc := range cases {
		res := defaultNormalizer.Apply(map[string]any{"payment_disposition": tc.in}, tc.transcript, "")
		assert.Equal(t, tc.want, res.PaymentDisposition, "input %v", tc.in)
	}
}

func TestReasonForNotPaying(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, None},
		{"", None},
		{"none", None},
		{"NULL", None},
		{"job lost recently", JobChangedWaitingForSalary},
		{"JOB_LOSS", JobChangedWaitingForSalary},
		{"job reh gaya", JobChangedWaitingForSalary},
		{"job changed", "JOB_CHANGED"},
		{"medical emergency", "MEDICAL_EMERGENCY"},
	}
	for _, tc := range cases {
		res := defaultNormalizer.Apply(map[string]any{"reason_for_not_paying": tc.in}, "", "")
		assert.Equal(t, tc.want, res.ReasonForNotPaying, "input %v", tc.in)
	}
}

func TestRemarksCoercion(t *testing.T) {
	res := defaultNormalizer.Apply(map[string]any{"remarks": nil}, "", "")
	assert.Equal(t, "", res.Remarks)

	res = defaultNormalizer.Apply(map[string]any{"remarks": []any{"a", "b"}}, "", "")
	assert.Equal(t, `["a","b"]`, res.Remarks)

	res = defaultNormalizer.Apply(map[string]any{"remarks": "ok", "extra": 1}, "", "")
	assert.Equal(t, "ok", res.Remarks)
}

func TestSuppressionWithoutCommitment(t *testing.T) {
	obj := map[string]any{
		"payment_disposition": "NO_PAYMENT_COMMITMENT",
		"ptp_details":         map[string]any{"amount": "5000", "date": "2026-02-01"},
	}
	res := defaultNormalizer.Apply(obj, "I owe 5000", "2026-01-27")
	assert.Equal(t, NoPaymentCommitment, res.PaymentDisposition)
	assert.Nil(t, res.PtpDetails.Amount)
	assert.Nil(t, res.PtpDetails.Date)
}

func TestPTPDetailsNotObject(t *testing.T) {
	res := defaultNormalizer.Apply(map[string]any{"payment_disposition": "PTP", "ptp_details": "5000"}, "5000", "")
	assert.Nil(t, res.PtpDetails.Amount)
	assert.Nil(t, res.PtpDetails.Date)
}

func TestDowngradeNonCommittal(t *testing.T) {
	obj := map[string]any{"payment_disposition": "PTP", "remarks": "Customer unsure"}
	res := defaultNormalizer.Apply(obj, "Customer: dekhunga, abhi nahi bata sakta", "2026-01-27")
	assert.Equal(t, NoPaymentCommitment, res.PaymentDisposition)
	assert.Equal(t, "Customer unsure (Policy Downgrade: Non-committal)", res.Remarks)

	res = defaultNormalizer.Apply(map[string]any{"payment_disposition": "PTP"}, "I will see", "")
	assert.Equal(t, NoPaymentCommitment, res.PaymentDisposition)
	assert.Equal(t, "(Policy Downgrade: Non-committal)", res.Remarks)
}

func TestDowngradeSkipped(t *testing.T) {
	// commitment word present
	res := defaultNormalizer.Apply(map[string]any{"payment_disposition": "PTP"}, "sochunga, kal bataunga", "")
	assert.Equal(t, PTP, res.PaymentDisposition)

	// a validated amount survives
	obj := map[string]any{"payment_disposition": "PTP", "ptp_details": map[string]any{"amount": 700.0}}
	res = defaultNormalizer.Apply(obj, "sochunga 700", "")
	assert.Equal(t, PTP, res.PaymentDisposition)
	require.NotNil(t, res.PtpDetails.Amount)
	assert.Equal(t, "700", *res.PtpDetails.Amount)

	// english marker with an english commitment word
	for _, transcript := range []string{"I will see, maybe tomorrow", "will think about it, tell me the date"} {
		res = defaultNormalizer.Apply(map[string]any{"payment_disposition": "PTP"}, transcript, "2026-01-27")
		assert.Equal(t, PTP, res.PaymentDisposition, transcript)
		assert.Empty(t, res.Remarks, transcript)
	}

	// no marker
	res = defaultNormalizer.Apply(map[string]any{"payment_disposition": "PTP"}, "theek hai", "")
	assert.Equal(t, PTP, res.PaymentDisposition)
	assert.Empty(t, res.Remarks)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []struct {
		raw, transcript, date string
	}{
		{`{"disposition":"answered","payment_disposition":"ptp","ptp_details":{"amount":"5,000","date":"2026-01-27"},"confidence_score":1.4}`, "parso 5000", "2026-01-27"},
		{`{"disposition":"weird label","payment_disposition":"PTP","remarks":"hmm","confidence_score":"abc"}`, "dekhunga", "2026-01-27"},
		{`{"disposition":"???","payment_disposition":"ptp","ptp_details":{"amount":"1200","date":"2026-01-27T10:00:00"}}`, "kal 1200 bhej dunga", "2026-01-27"},
		{`{"reason_for_not_paying":"job lost","payment_disposition":"settlement","ptp_details":{"date":"2026-02-30"}}`, "", ""},
	}
	for _, in := range inputs {
		first, err := Normalize(in.raw, in.transcript, in.date)
		require.NoError(t, err)
		b, err := json.Marshal(first)
		require.NoError(t, err)
		second, err := Normalize(string(b), in.transcript, in.date)
		require.NoError(t, err)

		first.Corrections, second.Corrections = nil, nil
		assert.Equal(t, first, second)
		require.NoError(t, Validate(second))
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	values := []any{nil, -3.0, 0.0, 0.42, 1.0, 7.5, "0.9", " 0.3 ", "abc", "nan", "inf", "-inf",
		true, false, json.Number("1e400"), json.Number("0.7"), []any{1}, map[string]any{}}
	for _, v := range values {
		res := defaultNormalizer.Apply(map[string]any{"confidence_score": v}, "", "")
		assert.GreaterOrEqual(t, res.ConfidenceScore, 0.0, "input %v", v)
		assert.LessOrEqual(t, res.ConfidenceScore, 1.0, "input %v", v)
		assert.False(t, math.IsNaN(res.ConfidenceScore))
	}

	res := defaultNormalizer.Apply(map[string]any{}, "", "")
	assert.Equal(t, DefaultConfidence, res.ConfidenceScore)
	res = defaultNormalizer.Apply(map[string]any{"confidence_score": "nan"}, "", "")
	assert.Equal(t, DefaultConfidence, res.ConfidenceScore)
	res = defaultNormalizer.Apply(map[string]any{"confidence_score": true}, "", "")
	assert.Equal(t, 1.0, res.ConfidenceScore)
	res = defaultNormalizer.Apply(map[string]any{"confidence_score": "-inf"}, "", "")
	assert.Equal(t, 0.0, res.ConfidenceScore)
}

func TestCorrectionsRecorded(t *testing.T) {
	res, err := Normalize(`{"disposition":"???","confidence_score":3}`, "", "")
	require.NoError(t, err)
	var fields []string
	for _, c := range res.Corrections {
		fields = append(fields, c.Field)
	}
	assert.Contains(t, fields, "disposition")
	assert.Contains(t, fields, "confidence_score")
}

func TestCustomRules(t *testing.T) {
	r := DefaultRules()
	r.VisitKeywords = []string{"office"}
	n := NewNormalizer(r)
	res := n.Apply(map[string]any{"payment_disposition": "will pay after visit"}, "come to my office", "")
	assert.Equal(t, WillPayAfterVisit, res.PaymentDisposition)
	res = n.Apply(map[string]any{"payment_disposition": "will pay after visit"}, "come to my home", "")
	assert.Equal(t, PTP, res.PaymentDisposition)
}
