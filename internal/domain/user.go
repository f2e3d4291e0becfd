// Package domain contains core domain types for the support desk.
package domain

import (
	"time"
)

// User represents an anonymous widget user.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Role       Role      `json:"role,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
