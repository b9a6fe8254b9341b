// Package types defines the shared domain model for the notekeeper service:
// users, notes, reminder state, and the error taxonomy used across all layers.
package types

import "time"

// User is an account that owns notes. Users authenticate either with a
// password or through an external identity provider; in the latter case
// PasswordHash is empty and AuthProvider records the provider name.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"-"`
	AuthProvider string     `json:"auth_provider,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Reminder is the durable reminder state carried on a Note. The three fields
// make scheduling recoverable and queryable without consulting the delay
// store:
//
//   - At is the instant the reminder fires, always UTC.
//   - Sent flips to true exactly once, when delivery succeeds or the user
//     dismisses the reminder.
//   - ScheduleID identifies the delay-store entry backing the reminder.
//     While Sent is false and ScheduleID is set, exactly one live entry with
//     that id exists (or has fired and is mid-dispatch).
type Reminder struct {
	At         *time.Time `json:"at,omitempty"`
	Sent       bool       `json:"sent"`
	ScheduleID string     `json:"schedule_id,omitempty"`
}

// Live reports whether the reminder has a schedule entry that has not been
// consumed yet.
func (r Reminder) Live() bool {
	return r.ScheduleID != "" && !r.Sent
}

// Note is a user-owned note. Deletion is soft: Deleted/DeletedAt move the
// note to the trash, from where it can be restored or purged for good.
type Note struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Color     string     `json:"color,omitempty"`
	Pinned    bool       `json:"pinned"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Reminder  Reminder   `json:"reminder"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ReminderPayload is the snapshot captured when a reminder is scheduled.
// It travels through the delay store as the entry payload; later edits to
// the note's title or body are deliberately not reflected in a pending
// reminder (snapshot semantics).
type ReminderPayload struct {
	NoteID    string `json:"note_id"`
	OwnerID   string `json:"owner_id"`
	Recipient string `json:"recipient"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
}

// SendInput carries pre-rendered email content to an EmailProvider.
type SendInput struct {
	From        EmailAddress
	To          string
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// EmailAddress pairs a display name with an address for the From header.
type EmailAddress struct {
	Name    string
	Address string
}

// String renders the address as it appears in a From header: "Name <addr>",
// or the bare address when no display name is set.
func (a EmailAddress) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}
