package dialogue

import (
	"context"

	"github.com/wisio/supportdesk/internal/domain"
)

// IssueTypeNoResponse is the only issue type the evaluation endpoint accepts.
const IssueTypeNoResponse = "no_response"

// EvaluationRequest is the payload sent to the refund-eligibility endpoint.
type EvaluationRequest struct {
	UserID      string `json:"userId"`
	IssueType   string `json:"issueType"`
	ClientCount int    `json:"clientCount"`
}

// Evaluator decides refund eligibility. The decision depends on server-held
// account data, so the engine never decides locally: on any error it
// escalates instead of guessing.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error)
}

// Responder produces a free-form reply for an unscripted turn. Any non-empty
// reply counts as success; the engine attempts at most one call per turn.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// TicketSink persists tickets created by escalation paths.
type TicketSink interface {
	SaveTicket(ctx context.Context, ticket *domain.Ticket) error
}
