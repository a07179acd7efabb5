package swap

import "time"

// EventStatus marks whether a calendar slot is held or offered for exchange.
type EventStatus string

const (
	EventStatusBusy      EventStatus = "busy"
	EventStatusSwappable EventStatus = "swappable"
)

// Valid reports whether the status is one of the two defined values.
func (s EventStatus) Valid() bool {
	return s == EventStatusBusy || s == EventStatusSwappable
}

// RequestStatus is the lifecycle state of a swap request. Pending is the
// initial state; accepted and rejected are terminal.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// Valid reports whether the status is one of the three defined values.
func (s RequestStatus) Valid() bool {
	return s == RequestStatusPending || s == RequestStatusAccepted || s == RequestStatusRejected
}

// User is an identity record. Immutable after signup.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRef is the denormalized user summary embedded in request listings and
// marketplace entries.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ref returns the summary form of a user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Event is a user-owned calendar slot. Start and end times are caller-supplied
// and stored verbatim; no overlap validation is performed against the owner's
// other events.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
	Status      EventStatus `json:"status"`
	OwnerID     string      `json:"ownerId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// MarketEvent is a swappable event with its owner summary attached, as shown
// in the marketplace listing.
type MarketEvent struct {
	Event
	Owner UserRef `json:"owner"`
}

// Request proposes a swap of ownership over a specific event between two users.
type Request struct {
	ID        string        `json:"id"`
	FromID    string        `json:"fromId"`
	ToID      string        `json:"toId"`
	EventID   string        `json:"eventId"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// RequestView is a request with from/to/event denormalized for display.
type RequestView struct {
	ID        string        `json:"id"`
	From      UserRef       `json:"from"`
	To        UserRef       `json:"to"`
	Event     Event         `json:"event"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Notification is a persisted message addressed to a single user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
