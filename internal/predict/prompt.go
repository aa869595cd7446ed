package predict

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"callsense/internal/disposition"
	"callsense/internal/llm"
)

// PromptData is passed to the prompt template.
type PromptData struct {
	CurrentDate       string
	Transcript        string
	TranscriptMarker  string
	PaymentLabels     []string
	ReasonLabels      []string
	CallOutcomeLabels []string
}

var reasonLabels = []string{
	"FUNDS_ISSUE", "TECHNICAL_ISSUE", disposition.JobChangedWaitingForSalary,
	"RATE_OF_INTEREST_ISSUES", "SALARY_NOT_CREDITED", "SERVICE_ISSUE",
	"CUSTOMER_NOT_TELLING_REASON", "OTHER_REASONS", disposition.None,
}

var funcs = template.FuncMap{"join": strings.Join}

const defaultPrompt = `### Instruction:
You are an AI assistant that extracts structured call disposition data.
Fields: disposition, payment_disposition, reason_for_not_paying, ptp_details, remarks, confidence_score.

ALLOWED LABELS:
- disposition: {{join .CallOutcomeLabels ", "}}
- payment_disposition: {{join .PaymentLabels ", "}}
- reason_for_not_paying: {{join .ReasonLabels ", "}}

EXAMPLES:
1. Transcript: 'Hello? Haan Mamata ji ke devar bol raha hoon. Wo ghar pe nahi hain.'
   Output: {"disposition": "ANSWERED_BY_FAMILY_MEMBER", "payment_disposition": null, "reason_for_not_paying": null, "ptp_details": {"amount": null, "date": null}, "remarks": "talked to brother-in-law", "confidence_score": 0.98}

2. Transcript: 'Haan main parso 5000 jama kar dunga.' Current Date: 2026-01-27
   Output: {"disposition": "ANSWERED", "payment_disposition": "PTP", "reason_for_not_paying": "FUNDS_ISSUE", "ptp_details": {"amount": 5000, "date": "2026-01-29"}, "remarks": "will pay day after tomorrow", "confidence_score": 0.95}

3. Transcript: 'Aap kisi ko ghar bhej do, main cash de dunga.'
   Output: {"disposition": "ANSWERED", "payment_disposition": "WILL_PAY_AFTER_VISIT", "reason_for_not_paying": "OTHER_REASONS", "ptp_details": {"amount": null, "date": null}, "remarks": "requested home visit for cash payment", "confidence_score": 0.97}

4. Transcript: 'My job is lost, I cannot pay the EMI.'
   Output: {"disposition": "ANSWERED", "payment_disposition": "DENIED_TO_PAY", "reason_for_not_paying": "JOB_CHANGED_WAITING_FOR_SALARY", "ptp_details": {"amount": null, "date": null}, "remarks": "lost job, refused to pay", "confidence_score": 0.99}

5. Transcript: 'Mere ghar mein medical emergency hai, abhi paise nahi de sakta.'
   Output: {"disposition": "ANSWERED", "payment_disposition": "DENIED_TO_PAY", "reason_for_not_paying": "OTHER_REASONS", "ptp_details": {"amount": null, "date": null}, "remarks": "medical emergency in family", "confidence_score": 0.96}

RULES:
- A 'PTP' (Promise to Pay) occurs when a customer commits to pay on a specific date (e.g., 'Monday pay', 'parso dunga'). This is the default for most payment commitments.
- 'WILL_PAY_AFTER_VISIT' must ONLY be used if the customer explicitly requests a home visit, cash pickup, or mentions a collector coming home (e.g., 'Ghar aao', 'collector ko bhejo').
- If the customer is vague (e.g., 'I will try'), use 'NO_PAYMENT_COMMITMENT'.
- If the customer explicitly refuses or states inability to pay (e.g., job loss, lack of funds), use 'DENIED_TO_PAY' and the appropriate reason ('JOB_CHANGED_WAITING_FOR_SALARY', 'FUNDS_ISSUE').
- DATE CALCULATION: 'Kal' = Tomorrow (Today + 1), 'Parso' = Day After Tomorrow (Today + 2). February has 28 days.
- confidence_score should be between 0.0 and 1.0 based on how clear the transcript is.
- Return ONLY valid JSON.

### Input:
Context: Current Date is {{.CurrentDate}}
{{.TranscriptMarker}} {{.Transcript}}

### Response:
`

// DefaultTemplate returns the built-in prompt.
func DefaultTemplate() *template.Template {
	return template.Must(template.New("prompt").Funcs(funcs).Parse(defaultPrompt))
}

// LoadTemplate parses a prompt template file.
func LoadTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tpl, err := template.New("prompt").Funcs(funcs).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", path, err)
	}
	return tpl, nil
}

// RenderPrompt formats the prompt for one transcript.
func RenderPrompt(tpl *template.Template, transcript, currentDate string) (string, error) {
	if tpl == nil {
		tpl = DefaultTemplate()
	}
	var b strings.Builder
	err := tpl.Execute(&b, PromptData{
		CurrentDate:       currentDate,
		Transcript:        transcript,
		TranscriptMarker:  llm.TranscriptMarker,
		PaymentLabels:     disposition.PaymentDispositions,
		ReasonLabels:      reasonLabels,
		CallOutcomeLabels: disposition.CallOutcomes,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
