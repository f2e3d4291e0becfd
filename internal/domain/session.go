package domain

import (
	"time"
)

// Session holds the state of one open support conversation. It is created
// when the widget opens, reset on explicit restart, and never persisted
// across widget reloads. The session is exclusively owned by its engine;
// callers interact with it only through the engine's operations.
type Session struct {
	UserID        string
	Step          Step
	UserRole      Role
	IssueCategory Category
	SubIssue      SubIssue
	History       []Message
	Pending       Pending
	Evaluation    *Evaluation
	Ticket        *Ticket

	// Status is the transient placeholder shown while a collaborator call is
	// in flight ("checking your account"). It is never part of History and is
	// cleared before the next input is armed.
	Status string

	StartedAt    time.Time
	LastActiveAt time.Time
}

// NewSession creates a session at the initial step.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:       userID,
		Step:         StepStart,
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// Append adds a message to the transcript and returns it. History is
// append-only; nothing ever removes or edits an entry.
func (s *Session) Append(speaker Speaker, text string) Message {
	msg := Message{Speaker: speaker, Text: text, At: time.Now()}
	s.History = append(s.History, msg)
	s.LastActiveAt = msg.At
	return msg
}

// ArmOptions arms an option-list continuation, clearing any free-text one.
func (s *Session) ArmOptions(options ...string) {
	s.Pending = Pending{Kind: PendingOptions, Options: options}
}

// ArmFreeText arms a free-text continuation, clearing any option list.
func (s *Session) ArmFreeText(handler TextHandler, prompt string) {
	s.Pending = Pending{Kind: PendingFreeText, Handler: handler, Prompt: prompt}
}

// Disarm clears the pending continuation. Only true terminal steps do this.
func (s *Session) Disarm() {
	s.Pending = Pending{Kind: PendingNone}
}

// Terminal reports whether the session accepts no further input.
func (s *Session) Terminal() bool {
	return s.Pending.Kind == PendingNone && s.Step != StepStart
}
