package swap

import (
	"context"
	"time"

	"slotswapper.dev/internal/auth"
)

// Store describes the persistence operations required by the swap workflow.
// Implementations live in internal/store.
type Store interface {
	Users() UserStore
	Events() EventStore
	Requests() RequestStore
	Notifications() NotificationStore
	RefreshTokens() auth.RefreshTokenStore

	// Atomic runs fn against a store view whose writes commit together.
	// SQL-backed stores open a transaction; the in-memory store holds its
	// write lock for the duration of fn.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// UserStore manages identity records.
type UserStore interface {
	// Create inserts a user; ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// EventStore manages calendar slots. Every mutating operation is scoped by
// (id, owner) in a single conditional write so a caller can never touch
// another user's event.
type EventStore interface {
	Create(ctx context.Context, e *Event) error
	Find(ctx context.Context, id string) (*Event, error)
	// ListForOwnerBetween returns the owner's events whose start time lies in
	// the inclusive range [from, to], ordered by start time.
	ListForOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]Event, error)
	// ListSwappable returns swappable events not owned by excludeOwnerID,
	// with owner summaries attached.
	ListSwappable(ctx context.Context, excludeOwnerID string) ([]MarketEvent, error)
	// Update replaces the mutable fields of the owner's event;
	// ErrNotFound when no event matches (id, ownerID).
	Update(ctx context.Context, e *Event) error
	// UpdateStatus flips the status of the owner's event;
	// ErrNotFound when no event matches (id, ownerID).
	UpdateStatus(ctx context.Context, id, ownerID string, status EventStatus) (*Event, error)
	// Reassign hands the event to a new owner with a new status. Used only by
	// the approval path, which has already authorized the transition.
	Reassign(ctx context.Context, id, newOwnerID string, status EventStatus) error
	// Delete removes the owner's event; ErrNotFound when no event matches.
	Delete(ctx context.Context, id, ownerID string) error
}

// RequestStore manages swap requests.
type RequestStore interface {
	// Create inserts a pending request; ErrDuplicateRequest when a pending
	// request for the same (from, to, event) triple already exists. The
	// uniqueness rule is enforced by the store, not by a check-then-insert.
	Create(ctx context.Context, r *Request) error
	Find(ctx context.Context, id string) (*Request, error)
	UpdateStatus(ctx context.Context, id string, status RequestStatus) error
	// View returns the request with from/to/event denormalized.
	View(ctx context.Context, id string) (*RequestView, error)
	// ListIncoming returns requests addressed to userID, newest first,
	// optionally filtered to the given statuses (empty slice means all).
	ListIncoming(ctx context.Context, userID string, statuses []RequestStatus) ([]RequestView, error)
	// ListOutgoing returns requests created by userID, newest first.
	ListOutgoing(ctx context.Context, userID string, statuses []RequestStatus) ([]RequestView, error)
}

// NotificationStore persists notifications addressed to users.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	// ListForUser returns the user's notifications, newest first.
	ListForUser(ctx context.Context, userID string) ([]Notification, error)
	// MarkRead flags the user's notification as read; ErrNotFound when no
	// notification matches (id, userID).
	MarkRead(ctx context.Context, id, userID string) error
}
