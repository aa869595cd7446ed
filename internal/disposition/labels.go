package disposition

// Call outcome labels.
const (
	Answered                   = "ANSWERED"
	AnsweredByFamilyMember     = "ANSWERED_BY_FAMILY_MEMBER"
	CustomerPicked             = "CUSTOMER_PICKED"
	AgentBusyOnAnotherCall     = "AGENT_BUSY_ON_ANOTHER_CALL"
	SilenceIssue               = "SILENCE_ISSUE"
	LanguageBarrier            = "LANGUAGE_BARRIER"
	AnsweredVoiceIssue         = "ANSWERED_VOICE_ISSUE"
	CustomerAbusive            = "CUSTOMER_ABUSIVE"
	AutomatedVoice             = "AUTOMATED_VOICE"
	ForwardedCall              = "FORWARDED_CALL"
	Ringing                    = "RINGING"
	Busy                       = "BUSY"
	SwitchedOff                = "SWITCHED_OFF"
	WrongNumber                = "WRONG_NUMBER"
	DoNotKnowThePerson         = "DO_NOT_KNOW_THE_PERSON"
	NotInContactAnymore        = "NOT_IN_CONTACT_ANYMORE"
	OutOfNetwork               = "OUT_OF_NETWORK"
	OutOfServices              = "OUT_OF_SERVICES"
	CallBackLater              = "CALL_BACK_LATER"
	WillAskToPay               = "WILL_ASK_TO_PAY"
	GaveAlternateNumber        = "GAVE_ALTERNATE_NUMBER"
	AnsweredDisconnected       = "ANSWERED_DISCONNECTED"
	CallDisconnectedByCustomer = "CALL_DISCONNECTED_BY_CUSTOMER"
	NotAvailable               = "NOT_AVAILABLE"
	WrongPerson                = "WRONG_PERSON"
	NoIncomingCalls            = "NO_INCOMING_CALLS"
	RingingDisconnected        = "RINGING_DISCONNECTED"
	Others                     = "OTHERS"
)

// Payment disposition labels.
const (
	Paid                        = "PAID"
	PTP                         = "PTP"
	PartialPayment              = "PARTIAL_PAYMENT"
	Settlement                  = "SETTLEMENT"
	WillPayAfterVisit           = "WILL_PAY_AFTER_VISIT"
	DeniedToPay                 = "DENIED_TO_PAY"
	NoPaymentCommitment         = "NO_PAYMENT_COMMITMENT"
	NoProofGiven                = "NO_PROOF_GIVEN"
	WantForeclosure             = "WANT_FORECLOSURE"
	WantsToRenegotiateLoanTerms = "WANTS_TO_RENEGOTIATE_LOAN_TERMS"
	None                        = "None"
)

// JobChangedWaitingForSalary is the canonical reason for job-loss narratives.
const JobChangedWaitingForSalary = "JOB_CHANGED_WAITING_FOR_SALARY"

// CallOutcomes is the closed call outcome vocabulary in display order.
var CallOutcomes = []string{
	Answered, AnsweredByFamilyMember, CustomerPicked, AgentBusyOnAnotherCall,
	SilenceIssue, LanguageBarrier, AnsweredVoiceIssue, CustomerAbusive,
	AutomatedVoice, ForwardedCall, Ringing, Busy, SwitchedOff, WrongNumber,
	DoNotKnowThePerson, NotInContactAnymore, OutOfNetwork, OutOfServices,
	CallBackLater, WillAskToPay, GaveAlternateNumber, AnsweredDisconnected,
	CallDisconnectedByCustomer, NotAvailable, WrongPerson, NoIncomingCalls,
	RingingDisconnected, Others,
}

// PaymentDispositions is the closed payment disposition vocabulary.
var PaymentDispositions = []string{
	Paid, PTP, PartialPayment, Settlement, WillPayAfterVisit, DeniedToPay,
	NoPaymentCommitment, NoProofGiven, WantForeclosure,
	WantsToRenegotiateLoanTerms, None,
}

// PTPBearing lists the payment dispositions that may carry amount and date.
var PTPBearing = []string{PTP, PartialPayment, Settlement}

var (
	callOutcomeSet = toSet(CallOutcomes)
	paymentSet     = toSet(PaymentDispositions)
	ptpBearingSet  = toSet(PTPBearing)
)

// IsCallOutcome reports whether label is in the closed call outcome set.
func IsCallOutcome(label string) bool { return callOutcomeSet[label] }

// IsPaymentDisposition reports whether label is in the closed payment set.
func IsPaymentDisposition(label string) bool { return paymentSet[label] }

// BearsPTP reports whether a payment disposition may carry PTP details.
func BearsPTP(label string) bool { return ptpBearingSet[label] }

func toSet(labels []string) map[string]bool {
	out := make(map[string]bool, len(labels))
	for _, l := range labels {
		out[l] = true
	}
	return out
}
