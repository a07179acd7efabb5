package swap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slotswapper.dev/internal/ids"
	"slotswapper.dev/internal/obs"
)

// Notifier delivers a notification to a user. The workflow treats delivery as
// a side effect: a failure is logged, never rolled back into the triggering
// operation.
type Notifier interface {
	Send(ctx context.Context, userID, title, message string) error
}

// Service is the swap workflow: the orchestration logic governing event
// lifecycle, request lifecycle and their notification side effects. It holds
// no state of its own beyond the injected collaborators.
type Service struct {
	store  Store
	notify Notifier
	now    func() time.Time
	loc    *time.Location
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLocation sets the time zone used to resolve calendar-day boundaries.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService constructs the workflow over a store and a notifier.
func NewService(store Store, notify Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		notify: notify,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventInput carries the caller-supplied fields of an event.
type EventInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
	Status      EventStatus `json:"status"`
}

func (in *EventInput) validate() error {
	if strings.TrimSpace(in.Title) == "" ||
		strings.TrimSpace(in.Description) == "" ||
		in.StartTime.IsZero() || in.EndTime.IsZero() {
		return fmt.Errorf("%w: title, description, startTime and endTime are required", ErrInvalidInput)
	}
	if !in.EndTime.After(in.StartTime) {
		return fmt.Errorf("%w: endTime must be after startTime", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = EventStatusBusy
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: status must be busy or swappable", ErrInvalidInput)
	}
	return nil
}

// CreateEvent inserts a new slot owned by ownerID.
func (s *Service) CreateEvent(ctx context.Context, ownerID string, in EventInput) (*Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := &Event{
		ID:          ids.New(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      in.Status,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Events().Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEvent replaces the mutable fields of the caller's event.
func (s *Service) UpdateEvent(ctx context.Context, id, ownerID string, in EventInput) (*Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e := &Event{
		ID:          id,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      in.Status,
		OwnerID:     ownerID,
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.store.Events().Update(ctx, e); err != nil {
		return nil, err
	}
	return s.store.Events().Find(ctx, id)
}

// ListEventsForDay returns the caller's events whose start time falls on the
// given calendar day (YYYY-MM-DD), resolved in the service's local time zone
// and matched with an inclusive [startOfDay, startOfDay+24h] range.
func (s *Service) ListEventsForDay(ctx context.Context, ownerID, date string) ([]Event, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	from := day.UTC()
	to := day.Add(24 * time.Hour).UTC()
	return s.store.Events().ListForOwnerBetween(ctx, ownerID, from, to)
}

// ListSwappableEvents returns the marketplace: every swappable event not owned
// by the caller, with owner summaries attached.
func (s *Service) ListSwappableEvents(ctx context.Context, callerID string) ([]MarketEvent, error) {
	return s.store.Events().ListSwappable(ctx, callerID)
}

// UpdateEventStatus flips the caller's event between busy and swappable.
func (s *Service) UpdateEventStatus(ctx context.Context, id, ownerID string, status EventStatus) (*Event, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be busy or swappable", ErrInvalidInput)
	}
	return s.store.Events().UpdateStatus(ctx, id, ownerID, status)
}

// DeleteEvent removes the caller's event.
func (s *Service) DeleteEvent(ctx context.Context, id, ownerID string) error {
	return s.store.Events().Delete(ctx, id, ownerID)
}

// RequestInput carries the caller-supplied fields of a swap request.
type RequestInput struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Event string `json:"event"`
}

// CreateRequest inserts a pending swap request and notifies the recipient.
// The caller must be the requester; the event must exist, belong to the
// recipient and currently be swappable.
func (s *Service) CreateRequest(ctx context.Context, callerID string, in RequestInput) (*RequestView, error) {
	from := strings.TrimSpace(in.From)
	to := strings.TrimSpace(in.To)
	eventID := strings.TrimSpace(in.Event)
	if from == "" || to == "" || eventID == "" {
		return nil, fmt.Errorf("%w: from, to and event are required", ErrInvalidInput)
	}
	if from != callerID {
		return nil, fmt.Errorf("%w: from must be the authenticated user", ErrInvalidInput)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot request a swap with yourself", ErrInvalidInput)
	}

	ev, err := s.store.Events().Find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OwnerID != to {
		return nil, fmt.Errorf("%w: event does not belong to the recipient", ErrInvalidInput)
	}
	if ev.Status != EventStatusSwappable {
		return nil, ErrEventNotSwappable
	}

	now := s.now().UTC()
	req := &Request{
		ID:        ids.New(),
		FromID:    from,
		ToID:      to,
		EventID:   eventID,
		Status:    RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Requests().Create(ctx, req); err != nil {
		return nil, err
	}

	s.send(ctx, to, "New Request Received", "You have a new request for an event.")
	return s.store.Requests().View(ctx, req.ID)
}

// ApproveRequest accepts a pending request addressed to the caller. The event
// is handed to the requester and marked busy, and the request becomes
// accepted — both writes commit in one atomic unit.
func (s *Service) ApproveRequest(ctx context.Context, callerID, requestID string) (*RequestView, error) {
	var (
		view        *RequestView
		requesterID string
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		req, err := tx.Requests().Find(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ToID != callerID {
			return ErrUnauthorized
		}
		if req.Status != RequestStatusPending {
			return ErrRequestClosed
		}
		if _, err := tx.Events().Find(ctx, req.EventID); err != nil {
			return err
		}
		if err := tx.Events().Reassign(ctx, req.EventID, req.FromID, EventStatusBusy); err != nil {
			return err
		}
		if err := tx.Requests().UpdateStatus(ctx, req.ID, RequestStatusAccepted); err != nil {
			return err
		}
		requesterID = req.FromID
		view, err = tx.Requests().View(ctx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.send(ctx, requesterID, "Request Approved", "Your request was approved.")
	return view, nil
}

// RejectRequest declines a pending request addressed to the caller. The
// referenced event is left completely untouched.
func (s *Service) RejectRequest(ctx context.Context, callerID, requestID string) (*RequestView, error) {
	var (
		view        *RequestView
		requesterID string
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		req, err := tx.Requests().Find(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ToID != callerID {
			return ErrUnauthorized
		}
		if req.Status != RequestStatusPending {
			return ErrRequestClosed
		}
		if err := tx.Requests().UpdateStatus(ctx, req.ID, RequestStatusRejected); err != nil {
			return err
		}
		requesterID = req.FromID
		view, err = tx.Requests().View(ctx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.send(ctx, requesterID, "Request Rejected", "Your request was rejected.")
	return view, nil
}

// ListIncomingRequests returns requests addressed to the user. The filter is
// the wire form: comma-separated statuses; unknown values never match and are
// not rejected.
func (s *Service) ListIncomingRequests(ctx context.Context, userID, statusFilter string) ([]RequestView, error) {
	return s.store.Requests().ListIncoming(ctx, userID, ParseStatusFilter(statusFilter))
}

// ListOutgoingRequests returns requests created by the user.
func (s *Service) ListOutgoingRequests(ctx context.Context, userID, statusFilter string) ([]RequestView, error) {
	return s.store.Requests().ListOutgoing(ctx, userID, ParseStatusFilter(statusFilter))
}

// Notifications returns the user's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	return s.store.Notifications().ListForUser(ctx, userID)
}

// MarkNotificationRead flags the user's notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return s.store.Notifications().MarkRead(ctx, id, userID)
}

// ParseStatusFilter turns the comma-separated wire form into a status set.
// Whitespace is trimmed; empty segments are dropped.
func ParseStatusFilter(raw string) []RequestStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []RequestStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, RequestStatus(part))
	}
	return out
}

func (s *Service) send(ctx context.Context, userID, title, message string) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Send(ctx, userID, title, message); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    s.now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "notification dispatch failed",
			"user":  userID,
			"error": err.Error(),
		})
	}
}
