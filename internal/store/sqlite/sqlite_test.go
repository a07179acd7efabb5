package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/ids"
	"slotswapper.dev/internal/swap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func addUser(t *testing.T, st *Store, name, email string) *swap.User {
	t.Helper()
	u := &swap.User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func addEvent(t *testing.T, st *Store, ownerID string, status swap.EventStatus, start time.Time) *swap.Event {
	t.Helper()
	now := time.Now().UTC()
	e := &swap.Event{
		ID:          ids.New(),
		Title:       "Shift",
		Description: "d",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      status,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.Events().Create(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func TestUserEmailUniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	addUser(t, st, "Alice", "alice@example.com")

	dup := &swap.User{ID: ids.New(), Name: "A2", Email: "alice@example.com", PasswordHash: "x", CreatedAt: time.Now().UTC()}
	if err := st.Users().Create(ctx, dup); !errors.Is(err, swap.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	// Lookup is case-insensitive because emails are stored lowercased.
	u, err := st.Users().FindByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if u.Name != "Alice" {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := st.Users().Find(ctx, "missing"); !errors.Is(err, swap.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEventRangeQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, st, "Alice", "alice@example.com")
	bob := addUser(t, st, "Bob", "bob@example.com")

	day := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	early := addEvent(t, st, alice.ID, swap.EventStatusBusy, day.Add(9*time.Hour))
	late := addEvent(t, st, alice.ID, swap.EventStatusBusy, day.Add(15*time.Hour))
	addEvent(t, st, alice.ID, swap.EventStatusBusy, day.Add(30*time.Hour))
	addEvent(t, st, bob.ID, swap.EventStatusBusy, day.Add(9*time.Hour))

	events, err := st.Events().ListForOwnerBetween(ctx, alice.ID, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != early.ID || events[1].ID != late.ID {
		t.Fatalf("expected start-time order, got %s then %s", events[0].ID, events[1].ID)
	}
	if !events[0].StartTime.Equal(early.StartTime) {
		t.Fatalf("start time round trip mismatch: %v vs %v", events[0].StartTime, early.StartTime)
	}
}

func TestOwnerScopedWrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, st, "Alice", "alice@example.com")
	bob := addUser(t, st, "Bob", "bob@example.com")
	ev := addEvent(t, st, alice.ID, swap.EventStatusBusy, time.Now().UTC())

	if _, err := st.Events().UpdateStatus(ctx, ev.ID, bob.ID, swap.EventStatusSwappable); !errors.Is(err, swap.ErrNotFound) {
		t.Fatalf("expected not found for foreign flip, got %v", err)
	}
	if err := st.Events().Delete(ctx, ev.ID, bob.ID); !errors.Is(err, swap.ErrNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}

	got, err := st.Events().UpdateStatus(ctx, ev.ID, alice.ID, swap.EventStatusSwappable)
	if err != nil {
		t.Fatalf("owner flip: %v", err)
	}
	if got.Status != swap.EventStatusSwappable {
		t.Fatalf("expected swappable, got %s", got.Status)
	}

	market, err := st.Events().ListSwappable(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list swappable: %v", err)
	}
	if len(market) != 1 || market[0].Owner.Email != "alice@example.com" {
		t.Fatalf("unexpected market %+v", market)
	}

	if err := st.Events().Reassign(ctx, ev.ID, bob.ID, swap.EventStatusBusy); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	moved, err := st.Events().Find(ctx, ev.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if moved.OwnerID != bob.ID || moved.Status != swap.EventStatusBusy {
		t.Fatalf("unexpected event after reassign %+v", moved)
	}
}

func TestPendingRequestUniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, st, "Alice", "alice@example.com")
	bob := addUser(t, st, "Bob", "bob@example.com")
	ev := addEvent(t, st, bob.ID, swap.EventStatusSwappable, time.Now().UTC())

	now := time.Now().UTC()
	mk := func() *swap.Request {
		return &swap.Request{
			ID: ids.New(), FromID: alice.ID, ToID: bob.ID, EventID: ev.ID,
			Status: swap.RequestStatusPending, CreatedAt: now, UpdatedAt: now,
		}
	}

	first := mk()
	if err := st.Requests().Create(ctx, first); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := st.Requests().Create(ctx, mk()); !errors.Is(err, swap.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}

	// Resolving the first request frees the triple for a new pending one.
	if err := st.Requests().UpdateStatus(ctx, first.ID, swap.RequestStatusRejected); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := st.Requests().Create(ctx, mk()); err != nil {
		t.Fatalf("expected new pending allowed after rejection, got %v", err)
	}

	view, err := st.Requests().View(ctx, first.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.From.Email != "alice@example.com" || view.To.Email != "bob@example.com" || view.Event.ID != ev.ID {
		t.Fatalf("unexpected view %+v", view)
	}

	incoming, err := st.Requests().ListIncoming(ctx, bob.ID, []swap.RequestStatus{swap.RequestStatusPending})
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].Status != swap.RequestStatusPending {
		t.Fatalf("unexpected incoming %+v", incoming)
	}

	outgoing, err := st.Requests().ListOutgoing(ctx, alice.ID, nil)
	if err != nil {
		t.Fatalf("list outgoing: %v", err)
	}
	if len(outgoing) != 2 {
		t.Fatalf("expected 2 outgoing, got %d", len(outgoing))
	}
}

func TestNotificationsAndRefreshTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, st, "Alice", "alice@example.com")
	bob := addUser(t, st, "Bob", "bob@example.com")

	n := &swap.Notification{
		ID: ids.New(), UserID: alice.ID,
		Title: "t", Message: "m", CreatedAt: time.Now().UTC(),
	}
	if err := st.Notifications().Create(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := st.Notifications().MarkRead(ctx, n.ID, bob.ID); !errors.Is(err, swap.ErrNotFound) {
		t.Fatalf("expected not found for foreign mark-read, got %v", err)
	}
	if err := st.Notifications().MarkRead(ctx, n.ID, alice.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, err := st.Notifications().ListForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].Read {
		t.Fatalf("unexpected notifications %+v", list)
	}

	now := time.Now().UTC()
	_, rec, err := auth.NewRefreshToken(alice.ID, now, time.Hour)
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}
	if err := st.RefreshTokens().Create(ctx, rec); err != nil {
		t.Fatalf("store refresh token: %v", err)
	}
	got, err := st.RefreshTokens().Find(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find refresh token: %v", err)
	}
	if got.TokenHash != rec.TokenHash || got.Revoked {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := st.RefreshTokens().MarkRevoked(ctx, rec.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err = st.RefreshTokens().Find(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find after revoke: %v", err)
	}
	if !got.Revoked {
		t.Fatal("expected revoked record")
	}
}

func TestAtomicRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := addUser(t, st, "Alice", "alice@example.com")

	boom := errors.New("boom")
	err := st.Atomic(ctx, func(tx swap.Store) error {
		now := time.Now().UTC()
		e := &swap.Event{
			ID: ids.New(), Title: "Shift", Description: "d",
			StartTime: now, EndTime: now.Add(time.Hour),
			Status: swap.EventStatusBusy, OwnerID: alice.ID,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.Events().Create(ctx, e); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected unit error surfaced, got %v", err)
	}

	events, err := st.Events().ListForOwnerBetween(ctx, alice.ID,
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected rollback, found %d events", len(events))
	}
}
