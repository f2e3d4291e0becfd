package domain

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TicketOrigin distinguishes server-issued tickets from locally synthesized
// placeholders. A provisional ticket is a display reference only and must
// never be presented as if support had already recorded the case.
type TicketOrigin string

const (
	TicketConfirmed   TicketOrigin = "confirmed"
	TicketProvisional TicketOrigin = "provisional"
)

// ContactMethod is the single preferred contact channel captured during
// escalation.
type ContactMethod string

const (
	ContactCall     ContactMethod = "call"
	ContactCallback ContactMethod = "callback"
	ContactEmail    ContactMethod = "email"
)

// Ticket is a support ticket created by an escalation path.
type Ticket struct {
	ID            string        `json:"id"`
	Origin        TicketOrigin  `json:"origin"`
	UserID        string        `json:"user_id"`
	Issue         string        `json:"issue"`
	ContactMethod ContactMethod `json:"contact_method,omitempty"`
	ContactDetail string        `json:"contact_detail,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IsProvisional reports whether the ticket reference was synthesized locally.
func (t *Ticket) IsProvisional() bool {
	return t.Origin == TicketProvisional
}

// NewProvisionalTicketID generates a ticket reference in format WI-{nanoid(10)}.
func NewProvisionalTicketID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WI-%s", id), nil
}

// NewArchiveID generates a transcript archive ID in format TR-{nanoid(10)}.
func NewArchiveID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TR-%s", id), nil
}
