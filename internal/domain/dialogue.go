package domain

import (
	"time"
)

// Role identifies which side of the marketplace the user is on.
// It is set once per session and never changes afterwards.
type Role string

const (
	RoleClient Role = "client"
	RoleExpert Role = "expert"
)

// Category is the issue category chosen after the role.
type Category string

const (
	CategoryFinding    Category = "finding"    // client: finding an expert
	CategoryDocuments  Category = "documents"  // client: documents & access requests
	CategoryRatings    Category = "ratings"    // client: ratings & reviews
	CategoryCredits    Category = "credits"    // expert: credits & billing
	CategoryApproaches Category = "approaches" // expert: approaching clients
	CategoryTechnical  Category = "technical"  // shared technical flow
	CategoryOther      Category = "other"      // open free-text fallback
)

// SubIssue refines a category. Only meaningful for the credits and
// approaches categories.
type SubIssue string

const (
	SubIssueNoResponse SubIssue = "no_response"
	SubIssueTopUp      SubIssue = "top_up"
	SubIssueHowItWorks SubIssue = "how_it_works"
)

// Step is a node identifier in the dialogue graph.
type Step string

const (
	StepStart           Step = "start"
	StepChooseRole      Step = "choose_role"
	StepClientMenu      Step = "client_issue_menu"
	StepExpertMenu      Step = "expert_issue_menu"
	StepCreditMenu      Step = "credit_issue_menu"
	StepApproachMenu    Step = "approach_issue_menu"
	StepFindingService  Step = "finding_service"
	StepTechnical       Step = "technical_flow"
	StepClientCount     Step = "client_count"
	StepEvaluating      Step = "evaluating"
	StepSatisfaction    Step = "satisfaction_check"
	StepFallback        Step = "fallback"
	StepEscalateContact Step = "escalate_contact"
	StepScheduleCall    Step = "schedule_call"
	StepRefundOutcome   Step = "refund_outcome"
	StepResolved        Step = "resolved"
	StepEscalated       Step = "escalated"
	StepClosed          Step = "closed"
)

// Speaker identifies who produced a transcript message.
type Speaker string

const (
	SpeakerBot  Speaker = "bot"
	SpeakerUser Speaker = "user"
)

// Message is one entry in the append-only transcript.
type Message struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// PendingKind discriminates the pending-continuation union.
type PendingKind string

const (
	// PendingNone means the session is at a true terminal and accepts no input.
	PendingNone PendingKind = "none"
	// PendingOptions means the next input must be an option index.
	PendingOptions PendingKind = "options"
	// PendingFreeText means the next input must be a free-text message.
	PendingFreeText PendingKind = "free_text"
)

// TextHandler enumerates the free-text handlers a session can arm.
// Dispatch happens by matching on this value, never on stored closures.
type TextHandler string

const (
	TextHandlerNone         TextHandler = ""
	TextHandlerFallback     TextHandler = "fallback"
	TextHandlerService      TextHandler = "service"
	TextHandlerClientCount  TextHandler = "client_count"
	TextHandlerCallbackTime TextHandler = "callback_time"
)

// Pending is the at-most-one outstanding continuation of a session.
// Exactly one of the option list or the free-text handler is armed at any
// time; arming a new continuation replaces the previous one.
type Pending struct {
	Kind    PendingKind `json:"kind"`
	Options []string    `json:"options,omitempty"`
	Handler TextHandler `json:"-"`
	Prompt  string      `json:"prompt,omitempty"`
}

// Decision is the outcome of the remote refund-eligibility evaluation.
type Decision string

const (
	DecisionAutoRefund   Decision = "AUTO_REFUND"
	DecisionCloseChat    Decision = "CLOSE_CHAT"
	DecisionEscalateCall Decision = "ESCALATE_CALL"
)

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAutoRefund, DecisionCloseChat, DecisionEscalateCall:
		return true
	}
	return false
}

// Evaluation is the result of the eligibility evaluation call.
type Evaluation struct {
	Decision        Decision `json:"decision"`
	TicketID        string   `json:"ticketId,omitempty"`
	CreditsToRefund int      `json:"creditsToRefund,omitempty"`
	InactiveCount   int      `json:"inactiveCount,omitempty"`
}
