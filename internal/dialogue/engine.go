// Package dialogue implements the scripted support conversation engine:
// role selection, issue menus, the refund-eligibility bridge, escalation
// contact capture and the free-text responder fallback.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wisio/supportdesk/internal/domain"
)

var (
	// ErrNotOpen is returned when input arrives before Open.
	ErrNotOpen = errors.New("session not open")
	// ErrExpectedOption is returned for free text while an option list is armed.
	ErrExpectedOption = errors.New("an option selection is expected")
	// ErrExpectedText is returned for an option while free text is armed.
	ErrExpectedText = errors.New("a free-text message is expected")
	// ErrInvalidOption is returned for an out-of-range option index.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrSessionClosed is returned for input after a terminal step.
	ErrSessionClosed = errors.New("session is closed")
)

// EventType classifies engine events delivered to observers.
type EventType string

const (
	// EventMessage is a transcript append.
	EventMessage EventType = "message"
	// EventStatus is a transient placeholder change ("" clears it).
	EventStatus EventType = "status"
	// EventInput announces the newly armed continuation after a turn.
	EventInput EventType = "input"
)

// Event is delivered to transcript observers as the conversation advances.
type Event struct {
	Type    EventType       `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
	Status  string          `json:"status,omitempty"`
	Input   *domain.Pending `json:"input,omitempty"`
}

// Observer receives engine events. Observers must not block.
type Observer func(Event)

// Deps are the collaborators one engine instance needs.
type Deps struct {
	Evaluator Evaluator
	Responder Responder
	Tickets   TicketSink
	Logger    *slog.Logger
	// SupportPhone is surfaced on the "call me now" escalation path.
	SupportPhone string
}

// Engine drives one support conversation. It owns its Session exclusively
// and is not safe for concurrent use; callers serialize access (the registry
// does this per session).
type Engine struct {
	session   *domain.Session
	deps      Deps
	log       *slog.Logger
	observers []Observer
}

// New creates an engine for one widget instance. The session is created on
// Open, not here.
func New(userID string, deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		session: domain.NewSession(userID),
		deps:    deps,
		log:     log.With("user_id", userID),
	}
}

// Subscribe registers a transcript observer.
func (e *Engine) Subscribe(fn Observer) {
	e.observers = append(e.observers, fn)
}

// Session returns the engine's session for read-only inspection.
func (e *Engine) Session() *domain.Session {
	return e.session
}

// Open starts the conversation. Opening an already-running session is a
// no-op so a re-opened widget resumes where it left off.
func (e *Engine) Open() {
	if e.session.Step != domain.StepStart {
		return
	}
	e.say(msgGreeting)
	e.transition(domain.StepChooseRole)
	e.session.ArmOptions(optClient, optExpert)
	e.announceInput()
}

// Restart resets the session to the initial step and replays the greeting.
func (e *Engine) Restart() {
	e.log.Info("session restarted", "previous_step", e.session.Step)
	e.session = domain.NewSession(e.session.UserID)
	e.Open()
}

// Close marks the session terminal. The caller archives and discards it.
func (e *Engine) Close() {
	e.transition(domain.StepClosed)
	e.session.Disarm()
}

// SubmitOption handles the selection of option index i from the armed list.
func (e *Engine) SubmitOption(ctx context.Context, i int) error {
	s := e.session
	switch s.Pending.Kind {
	case domain.PendingOptions:
	case domain.PendingFreeText:
		return ErrExpectedText
	default:
		if s.Step == domain.StepStart {
			return ErrNotOpen
		}
		return ErrSessionClosed
	}
	if i < 0 || i >= len(s.Pending.Options) {
		return ErrInvalidOption
	}

	label := s.Pending.Options[i]
	e.echo(label)
	e.log.Info("option selected", "step", s.Step, "index", i, "label", label)

	switch s.Step {
	case domain.StepChooseRole:
		e.chooseRole(i)
	case domain.StepClientMenu:
		e.clientMenu(ctx, i)
	case domain.StepExpertMenu:
		e.expertMenu(ctx, i)
	case domain.StepCreditMenu:
		e.creditMenu(ctx, i)
	case domain.StepApproachMenu:
		e.approachMenu(ctx, i)
	case domain.StepSatisfaction:
		e.satisfaction(ctx, i)
	case domain.StepRefundOutcome:
		e.refundOutcome(ctx, i)
	case domain.StepEscalateContact:
		e.contactChoice(ctx, i)
	case domain.StepResolved, domain.StepEscalated:
		e.Restart()
		return nil
	default:
		return fmt.Errorf("step %q has no option handler", s.Step)
	}
	e.announceInput()
	return nil
}

// SubmitFreeText handles a free-text message for the armed handler. Input
// the session did not prompt for is rejected: the engine never accepts a
// message while an option list is armed.
func (e *Engine) SubmitFreeText(ctx context.Context, text string) error {
	s := e.session
	switch s.Pending.Kind {
	case domain.PendingFreeText:
	case domain.PendingOptions:
		return ErrExpectedOption
	default:
		if s.Step == domain.StepStart {
			return ErrNotOpen
		}
		return ErrSessionClosed
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrExpectedText
	}
	e.echo(text)

	switch s.Pending.Handler {
	case domain.TextHandlerService:
		e.serviceGuidance(text)
	case domain.TextHandlerClientCount:
		e.clientCount(ctx, text)
	case domain.TextHandlerCallbackTime:
		e.finishEscalation(ctx, domain.ContactCallback, text)
	case domain.TextHandlerFallback:
		e.fallback(ctx)
	default:
		return fmt.Errorf("unknown text handler %q", s.Pending.Handler)
	}
	e.announceInput()
	return nil
}

// --- scripted branches ---

func (e *Engine) chooseRole(i int) {
	if i == 0 {
		e.session.UserRole = domain.RoleClient
	} else {
		e.session.UserRole = domain.RoleExpert
	}
	e.showRoleMenu()
}

func (e *Engine) showRoleMenu() {
	s := e.session
	if s.UserRole == domain.RoleExpert {
		e.say(msgExpertMenu)
		e.transition(domain.StepExpertMenu)
		s.ArmOptions(optCredits, optApproaches, optTechnical, optOther)
		return
	}
	e.say(msgClientMenu)
	e.transition(domain.StepClientMenu)
	s.ArmOptions(optFinding, optDocuments, optRatings, optTechnical, optOther)
}

func (e *Engine) clientMenu(ctx context.Context, i int) {
	s := e.session
	switch i {
	case 0:
		s.IssueCategory = domain.CategoryFinding
		e.say(msgAskService)
		e.transition(domain.StepFindingService)
		s.ArmFreeText(domain.TextHandlerService, msgAskService)
	case 1:
		s.IssueCategory = domain.CategoryDocuments
		e.say(msgDocuments)
		e.askSatisfaction()
	case 2:
		s.IssueCategory = domain.CategoryRatings
		e.say(msgRatings)
		e.askSatisfaction()
	case 3:
		e.technicalFlow()
	case 4:
		e.startFallback()
	}
}

func (e *Engine) expertMenu(ctx context.Context, i int) {
	s := e.session
	switch i {
	case 0:
		s.IssueCategory = domain.CategoryCredits
		e.say(msgCreditMenu)
		e.transition(domain.StepCreditMenu)
		s.ArmOptions(optNoResponse, optTopUp, optCreditsOther)
	case 1:
		s.IssueCategory = domain.CategoryApproaches
		e.say(msgApproachMenu)
		e.transition(domain.StepApproachMenu)
		s.ArmOptions(optNoResponse, optHowApproaches, optApprOther)
	case 2:
		e.technicalFlow()
	case 3:
		e.startFallback()
	}
}

func (e *Engine) creditMenu(ctx context.Context, i int) {
	switch i {
	case 0:
		e.askClientCount()
	case 1:
		e.session.SubIssue = domain.SubIssueTopUp
		e.say(msgTopUp)
		e.askSatisfaction()
	case 2:
		e.startFallback()
	}
}

func (e *Engine) approachMenu(ctx context.Context, i int) {
	switch i {
	case 0:
		e.askClientCount()
	case 1:
		e.session.SubIssue = domain.SubIssueHowItWorks
		e.say(msgHowApproaches)
		e.askSatisfaction()
	case 2:
		e.startFallback()
	}
}

// technicalFlow is shared by both role menus: the fix-it script does not
// depend on whether the asker is a client or an expert.
func (e *Engine) technicalFlow() {
	e.session.IssueCategory = domain.CategoryTechnical
	e.transition(domain.StepTechnical)
	e.say(msgTechnical)
	e.askSatisfaction()
}

func (e *Engine) serviceGuidance(service string) {
	e.say(fmt.Sprintf(msgServiceGuidance, service, service))
	e.askSatisfaction()
}

// askSatisfaction is the mandatory post-answer check: no scripted branch may
// end without it, so every scripted leaf funnels through here.
func (e *Engine) askSatisfaction() {
	e.say(msgSatisfaction)
	e.transition(domain.StepSatisfaction)
	e.session.ArmOptions(optYes, optMore, optHuman)
}

func (e *Engine) satisfaction(ctx context.Context, i int) {
	switch i {
	case 0:
		e.resolve()
	case 1:
		e.showRoleMenu()
	case 2:
		e.startEscalation(ctx)
	}
}

// resolve is the only way to reach the resolved terminal: an explicit
// affirmative answer to the satisfaction check (or to a refund outcome).
func (e *Engine) resolve() {
	e.say(msgResolved)
	e.transition(domain.StepResolved)
	e.session.ArmOptions(optStartOver)
}

// --- eligibility evaluation ---

func (e *Engine) askClientCount() {
	e.session.SubIssue = domain.SubIssueNoResponse
	e.say(msgAskClientCount)
	e.transition(domain.StepClientCount)
	e.session.ArmFreeText(domain.TextHandlerClientCount, msgAskClientCount)
}

func (e *Engine) clientCount(ctx context.Context, text string) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		e.say(msgBadClientCount)
		e.session.ArmFreeText(domain.TextHandlerClientCount, msgAskClientCount)
		return
	}
	e.evaluate(ctx, n)
}

// evaluate delegates the refund decision to the evaluation endpoint. The
// engine never guesses: any failure degrades to escalation.
func (e *Engine) evaluate(ctx context.Context, clientCount int) {
	s := e.session
	e.transition(domain.StepEvaluating)
	e.setStatus(msgCheckingAccount)

	result, err := e.deps.Evaluator.Evaluate(ctx, EvaluationRequest{
		UserID:      s.UserID,
		IssueType:   IssueTypeNoResponse,
		ClientCount: clientCount,
	})
	e.setStatus("")

	if err != nil {
		e.log.Warn("eligibility evaluation failed", "error", err, "client_count", clientCount)
		e.say(msgEvalFailed)
		e.startEscalation(ctx)
		return
	}

	s.Evaluation = result
	e.log.Info("eligibility evaluated", "decision", result.Decision, "ticket_id", result.TicketID)

	switch result.Decision {
	case domain.DecisionAutoRefund:
		e.say(fmt.Sprintf(msgAutoRefund, result.CreditsToRefund, result.InactiveCount))
		e.transition(domain.StepRefundOutcome)
		s.ArmOptions(optDone, optRequestCall)
	case domain.DecisionCloseChat:
		e.say(msgManualReview)
		e.transition(domain.StepClosed)
		s.Disarm()
	case domain.DecisionEscalateCall:
		e.startEscalation(ctx)
	default:
		// The shipped client validates decisions, but the engine must not
		// trust every Evaluator to: an unknown decision is a failed check.
		e.log.Warn("evaluation returned unknown decision", "decision", result.Decision)
		e.say(msgEvalFailed)
		e.startEscalation(ctx)
	}
}

func (e *Engine) refundOutcome(ctx context.Context, i int) {
	if i == 0 {
		e.resolve()
		return
	}
	e.startEscalation(ctx)
}

// --- escalation / contact capture ---

// startEscalation ensures a ticket exists and asks for the single preferred
// contact method. This is one of the three outcomes exempt from the
// satisfaction check.
func (e *Engine) startEscalation(ctx context.Context) {
	e.ensureTicket(ctx)
	e.say(msgAskContact)
	e.transition(domain.StepEscalateContact)
	e.session.ArmOptions(optCallNow, optSchedule, optEmail)
}

func (e *Engine) contactChoice(ctx context.Context, i int) {
	switch i {
	case 0:
		e.finishEscalation(ctx, domain.ContactCall, e.deps.SupportPhone)
	case 1:
		e.say(msgAskCallTime)
		e.transition(domain.StepScheduleCall)
		e.session.ArmFreeText(domain.TextHandlerCallbackTime, msgAskCallTime)
	case 2:
		e.finishEscalation(ctx, domain.ContactEmail, "")
	}
}

func (e *Engine) finishEscalation(ctx context.Context, method domain.ContactMethod, detail string) {
	s := e.session
	ticket := e.ensureTicket(ctx)
	ticket.ContactMethod = method
	ticket.ContactDetail = detail
	e.saveTicket(ctx, ticket)

	switch method {
	case domain.ContactCall:
		e.say(fmt.Sprintf(msgCallNow, e.deps.SupportPhone, ticket.ID))
	case domain.ContactCallback:
		e.say(fmt.Sprintf(msgCallbackSet, detail, ticket.ID))
	case domain.ContactEmail:
		e.say(fmt.Sprintf(msgEmailSLA, ticket.ID))
	}
	if ticket.IsProvisional() {
		e.say(msgProvisionalNote)
	}

	e.transition(domain.StepEscalated)
	s.ArmOptions(optStartOver)
}

// ensureTicket returns the session ticket, creating one if needed. A
// server-issued ID from the evaluation result yields a confirmed ticket;
// otherwise the reference is synthesized locally and explicitly marked
// provisional so it is never mistaken for a recorded case.
func (e *Engine) ensureTicket(ctx context.Context) *domain.Ticket {
	s := e.session
	if s.Ticket != nil {
		return s.Ticket
	}

	ticket := &domain.Ticket{
		UserID:    s.UserID,
		Issue:     e.issueLabel(),
		CreatedAt: time.Now(),
	}
	if s.Evaluation != nil && s.Evaluation.TicketID != "" {
		ticket.ID = s.Evaluation.TicketID
		ticket.Origin = domain.TicketConfirmed
	} else {
		id, err := domain.NewProvisionalTicketID()
		if err != nil {
			// Entropy failure is no reason to dead-end the user.
			id = fmt.Sprintf("WI-%d", time.Now().UnixMilli())
		}
		ticket.ID = id
		ticket.Origin = domain.TicketProvisional
	}

	s.Ticket = ticket
	e.saveTicket(ctx, ticket)
	return ticket
}

func (e *Engine) saveTicket(ctx context.Context, ticket *domain.Ticket) {
	if e.deps.Tickets == nil {
		return
	}
	if err := e.deps.Tickets.SaveTicket(ctx, ticket); err != nil {
		// The user still gets the reference; persistence is retried by support
		// tooling off the transcript log.
		e.log.Error("failed to persist ticket", "ticket_id", ticket.ID, "error", err)
	}
}

func (e *Engine) issueLabel() string {
	s := e.session
	parts := []string{string(s.UserRole)}
	if s.IssueCategory != "" {
		parts = append(parts, string(s.IssueCategory))
	}
	if s.SubIssue != "" {
		parts = append(parts, string(s.SubIssue))
	}
	return strings.Join(parts, "/")
}

// --- free-text fallback ---

func (e *Engine) startFallback() {
	e.session.IssueCategory = domain.CategoryOther
	e.say(msgAskFallback)
	e.transition(domain.StepFallback)
	e.session.ArmFreeText(domain.TextHandlerFallback, msgAskFallback)
}

// fallback forwards the transcript to the responder, exactly once. A failed
// or empty reply yields the fixed apology and goes straight to escalation.
func (e *Engine) fallback(ctx context.Context) {
	e.setStatus(msgThinking)
	reply, err := e.deps.Responder.Respond(ctx, e.buildPrompt())
	e.setStatus("")

	if err != nil || strings.TrimSpace(reply) == "" {
		e.log.Warn("fallback responder failed", "error", err)
		e.say(msgApology)
		e.startEscalation(ctx)
		return
	}

	e.say(reply)
	e.askSatisfaction()
}

func (e *Engine) buildPrompt() string {
	var b strings.Builder
	b.WriteString(responderPreamble)
	b.WriteString("\n\n")
	for _, msg := range e.session.History {
		if msg.Speaker == domain.SpeakerBot {
			b.WriteString("assistant: ")
		} else {
			b.WriteString("user: ")
		}
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// --- transcript plumbing ---

func (e *Engine) say(text string) {
	msg := e.session.Append(domain.SpeakerBot, text)
	e.emit(Event{Type: EventMessage, Message: &msg})
}

func (e *Engine) echo(text string) {
	msg := e.session.Append(domain.SpeakerUser, text)
	e.emit(Event{Type: EventMessage, Message: &msg})
}

func (e *Engine) setStatus(status string) {
	e.session.Status = status
	e.emit(Event{Type: EventStatus, Status: status})
}

func (e *Engine) transition(step domain.Step) {
	e.session.Step = step
}

func (e *Engine) announceInput() {
	pending := e.session.Pending
	e.emit(Event{Type: EventInput, Input: &pending})
}

func (e *Engine) emit(ev Event) {
	for _, fn := range e.observers {
		fn(ev)
	}
}
