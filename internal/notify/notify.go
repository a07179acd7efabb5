// Package notify persists notifications and fans them out to live channels.
package notify

import (
	"context"
	"time"

	"slotswapper.dev/internal/ids"
	"slotswapper.dev/internal/obs"
	"slotswapper.dev/internal/swap"
)

// Notice is the payload pushed over live channels.
type Notice struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Publisher pushes a notice to every live connection of a user. Publish is
// best-effort: a user with no open connections is not an error.
type Publisher interface {
	Publish(userID string, n Notice)
}

// Dispatcher implements the workflow's notifier: it writes the notification
// to the store first, then pushes it to the user's live connections. The
// store write is the source of truth; the push is fire-and-forget.
type Dispatcher struct {
	store swap.NotificationStore
	pub   Publisher
	now   func() time.Time
}

// NewDispatcher builds a dispatcher. pub may be nil, in which case
// notifications are persisted only.
func NewDispatcher(store swap.NotificationStore, pub Publisher) *Dispatcher {
	return &Dispatcher{store: store, pub: pub, now: time.Now}
}

// Send stores the notification and pushes it live.
func (d *Dispatcher) Send(ctx context.Context, userID, title, message string) error {
	n := &swap.Notification{
		ID:        ids.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.Create(ctx, n); err != nil {
		return err
	}
	obs.NotificationSent()
	if d.pub != nil {
		d.pub.Publish(userID, Notice{Title: title, Message: message, CreatedAt: n.CreatedAt})
	}
	return nil
}
