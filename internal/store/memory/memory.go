// Package memory implements the swap store with in-process maps. It backs the
// test suites and zero-configuration development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/swap"
)

// Store keeps every record under a single RWMutex. Atomic holds the write
// lock for the whole unit of work; mutations inside a failed unit are not
// rolled back, so callers validate before writing (the SQL stores provide
// real rollback).
type Store struct {
	mu sync.RWMutex

	users         map[string]swap.User
	emailIndex    map[string]string
	events        map[string]swap.Event
	requests      map[string]swap.Request
	notifications map[string]swap.Notification
	refresh       map[string]auth.RefreshToken
}

var _ swap.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]swap.User),
		emailIndex:    make(map[string]string),
		events:        make(map[string]swap.Event),
		requests:      make(map[string]swap.Request),
		notifications: make(map[string]swap.Notification),
		refresh:       make(map[string]auth.RefreshToken),
	}
}

func (s *Store) Users() swap.UserStore                 { return userView{s, true} }
func (s *Store) Events() swap.EventStore               { return eventView{s, true} }
func (s *Store) Requests() swap.RequestStore           { return requestView{s, true} }
func (s *Store) Notifications() swap.NotificationStore { return notificationView{s, true} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return refreshView{s, true} }

// Atomic locks the store and hands fn a view that skips per-call locking.
func (s *Store) Atomic(ctx context.Context, fn func(swap.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(lockedStore{s})
}

type lockedStore struct{ s *Store }

func (l lockedStore) Users() swap.UserStore                 { return userView{l.s, false} }
func (l lockedStore) Events() swap.EventStore               { return eventView{l.s, false} }
func (l lockedStore) Requests() swap.RequestStore           { return requestView{l.s, false} }
func (l lockedStore) Notifications() swap.NotificationStore { return notificationView{l.s, false} }
func (l lockedStore) RefreshTokens() auth.RefreshTokenStore { return refreshView{l.s, false} }

func (l lockedStore) Atomic(ctx context.Context, fn func(swap.Store) error) error {
	// Already inside a unit of work; run against the same view.
	return fn(l)
}

// --- users ---

type userView struct {
	s    *Store
	lock bool
}

func (v userView) Create(ctx context.Context, u *swap.User) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	key := strings.ToLower(u.Email)
	if _, ok := v.s.emailIndex[key]; ok {
		return swap.ErrAlreadyExists
	}
	v.s.users[u.ID] = *u
	v.s.emailIndex[key] = u.ID
	return nil
}

func (v userView) Find(ctx context.Context, id string) (*swap.User, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	u, ok := v.s.users[id]
	if !ok {
		return nil, swap.ErrNotFound
	}
	return &u, nil
}

func (v userView) FindByEmail(ctx context.Context, email string) (*swap.User, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	id, ok := v.s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, swap.ErrNotFound
	}
	u := v.s.users[id]
	return &u, nil
}

// --- events ---

type eventView struct {
	s    *Store
	lock bool
}

func (v eventView) Create(ctx context.Context, e *swap.Event) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	v.s.events[e.ID] = *e
	return nil
}

func (v eventView) Find(ctx context.Context, id string) (*swap.Event, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	e, ok := v.s.events[id]
	if !ok {
		return nil, swap.ErrNotFound
	}
	return &e, nil
}

func (v eventView) ListForOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]swap.Event, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	var out []swap.Event
	for _, e := range v.s.events {
		if e.OwnerID != ownerID {
			continue
		}
		if e.StartTime.Before(from) || e.StartTime.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (v eventView) ListSwappable(ctx context.Context, excludeOwnerID string) ([]swap.MarketEvent, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	var out []swap.MarketEvent
	for _, e := range v.s.events {
		if e.Status != swap.EventStatusSwappable || e.OwnerID == excludeOwnerID {
			continue
		}
		owner := v.s.users[e.OwnerID]
		out = append(out, swap.MarketEvent{Event: e, Owner: owner.Ref()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (v eventView) Update(ctx context.Context, e *swap.Event) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	cur, ok := v.s.events[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return swap.ErrNotFound
	}
	cur.Title = e.Title
	cur.Description = e.Description
	cur.StartTime = e.StartTime
	cur.EndTime = e.EndTime
	cur.Status = e.Status
	cur.UpdatedAt = e.UpdatedAt
	v.s.events[e.ID] = cur
	return nil
}

func (v eventView) UpdateStatus(ctx context.Context, id, ownerID string, status swap.EventStatus) (*swap.Event, error) {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	cur, ok := v.s.events[id]
	if !ok || cur.OwnerID != ownerID {
		return nil, swap.ErrNotFound
	}
	cur.Status = status
	cur.UpdatedAt = time.Now().UTC()
	v.s.events[id] = cur
	return &cur, nil
}

func (v eventView) Reassign(ctx context.Context, id, newOwnerID string, status swap.EventStatus) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	cur, ok := v.s.events[id]
	if !ok {
		return swap.ErrNotFound
	}
	cur.OwnerID = newOwnerID
	cur.Status = status
	cur.UpdatedAt = time.Now().UTC()
	v.s.events[id] = cur
	return nil
}

func (v eventView) Delete(ctx context.Context, id, ownerID string) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	cur, ok := v.s.events[id]
	if !ok || cur.OwnerID != ownerID {
		return swap.ErrNotFound
	}
	delete(v.s.events, id)
	return nil
}

// --- requests ---

type requestView struct {
	s    *Store
	lock bool
}

func (v requestView) Create(ctx context.Context, r *swap.Request) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	for _, existing := range v.s.requests {
		if existing.Status == swap.RequestStatusPending &&
			existing.FromID == r.FromID && existing.ToID == r.ToID && existing.EventID == r.EventID {
			return swap.ErrDuplicateRequest
		}
	}
	v.s.requests[r.ID] = *r
	return nil
}

func (v requestView) Find(ctx context.Context, id string) (*swap.Request, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	r, ok := v.s.requests[id]
	if !ok {
		return nil, swap.ErrNotFound
	}
	return &r, nil
}

func (v requestView) UpdateStatus(ctx context.Context, id string, status swap.RequestStatus) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	r, ok := v.s.requests[id]
	if !ok {
		return swap.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	v.s.requests[id] = r
	return nil
}

func (v requestView) View(ctx context.Context, id string) (*swap.RequestView, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	r, ok := v.s.requests[id]
	if !ok {
		return nil, swap.ErrNotFound
	}
	view := v.s.denormalize(r)
	return &view, nil
}

func (v requestView) ListIncoming(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return v.list(func(r swap.Request) bool { return r.ToID == userID }, statuses), nil
}

func (v requestView) ListOutgoing(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return v.list(func(r swap.Request) bool { return r.FromID == userID }, statuses), nil
}

func (v requestView) list(match func(swap.Request) bool, statuses []swap.RequestStatus) []swap.RequestView {
	var out []swap.RequestView
	for _, r := range v.s.requests {
		if !match(r) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, r.Status) {
			continue
		}
		out = append(out, v.s.denormalize(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func containsStatus(statuses []swap.RequestStatus, s swap.RequestStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s *Store) denormalize(r swap.Request) swap.RequestView {
	from := s.users[r.FromID]
	to := s.users[r.ToID]
	return swap.RequestView{
		ID:        r.ID,
		From:      from.Ref(),
		To:        to.Ref(),
		Event:     s.events[r.EventID],
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// --- notifications ---

type notificationView struct {
	s    *Store
	lock bool
}

func (v notificationView) Create(ctx context.Context, n *swap.Notification) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	v.s.notifications[n.ID] = *n
	return nil
}

func (v notificationView) ListForUser(ctx context.Context, userID string) ([]swap.Notification, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	var out []swap.Notification
	for _, n := range v.s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v notificationView) MarkRead(ctx context.Context, id, userID string) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	n, ok := v.s.notifications[id]
	if !ok || n.UserID != userID {
		return swap.ErrNotFound
	}
	n.Read = true
	v.s.notifications[id] = n
	return nil
}

// --- refresh tokens ---

type refreshView struct {
	s    *Store
	lock bool
}

func (v refreshView) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	v.s.refresh[tok.ID] = *tok
	return nil
}

func (v refreshView) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	if v.lock {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	tok, ok := v.s.refresh[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &tok, nil
}

func (v refreshView) MarkRevoked(ctx context.Context, id string) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	tok, ok := v.s.refresh[id]
	if !ok {
		return auth.ErrNotFound
	}
	tok.Revoked = true
	v.s.refresh[id] = tok
	return nil
}
