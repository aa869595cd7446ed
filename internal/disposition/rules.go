package disposition

// Fallback maps a non-canonical label to Label when it contains any of the
// substrings in Contains. Fallbacks are evaluated in order; first match wins.
type Fallback struct {
	Contains []string `yaml:"contains"`
	Label    string   `yaml:"label"`
}

// Rules holds every keyword table the normalizer consults. Keywords matched
// against the transcript are lowercase; keywords matched against labels are
// in canonical label form (uppercase, underscores).
type Rules struct {
	CallOutcomeFallbacks []Fallback `yaml:"call_outcome_fallbacks"`
	PaymentFallbacks     []Fallback `yaml:"payment_fallbacks"`

	VisitKeywords    []string `yaml:"visit_keywords"`
	DayAfterTomorrow []string `yaml:"day_after_tomorrow"`
	Tomorrow         []string `yaml:"tomorrow"`

	NonCommittalMarkers []string `yaml:"non_committal_markers"`
	CommitmentKeywords  []string `yaml:"commitment_keywords"`
	DowngradeRemark     string   `yaml:"downgrade_remark"`

	JobKeyword        string   `yaml:"job_keyword"`
	JobLossIndicators []string `yaml:"job_loss_indicators"`
}

// DefaultRules returns the built-in keyword tables.
func DefaultRules() Rules {
	return Rules{
		CallOutcomeFallbacks: []Fallback{
			{Contains: []string{"FAMILY"}, Label: AnsweredByFamilyMember},
			{Contains: []string{"BUSY"}, Label: Busy},
			{Contains: []string{"WRONG"}, Label: WrongNumber},
			{Contains: []string{"ANSWER"}, Label: Answered},
		},
		PaymentFallbacks: []Fallback{
			{Contains: []string{"CLAIM"}, Label: Paid},
			{Contains: []string{"PROMISE", "PTP"}, Label: PTP},
			{Contains: []string{"REFUSE", "DENY"}, Label: DeniedToPay},
		},
		VisitKeywords: []string{
			"ghar", "home", "visit", "bhej", "send someone", "collect", "pickup", "pick up",
			"address", "location", "dikkat", "call cut", "milne",
		},
		DayAfterTomorrow:    []string{"parso", "day after tomorrow"},
		Tomorrow:            []string{"kal", "tomorrow"},
		NonCommittalMarkers: []string{"sochunga", "dekhunga", "will think about it", "will see"},
		CommitmentKeywords: []string{
			"pay", "paid", "amount", "rupaye", "kal", "aaj", "parso", "tarikh",
			"send", "karunga", "dena", "tomorrow", "date",
		},
		DowngradeRemark:   "(Policy Downgrade: Non-committal)",
		JobKeyword:        "JOB",
		JobLossIndicators: []string{"LOSS", "LOST", "REH_GAYA"},
	}
}
