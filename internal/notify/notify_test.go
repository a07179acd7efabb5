package notify

import (
	"context"
	"testing"
	"time"

	"slotswapper.dev/internal/store/memory"
)

type capturingPublisher struct {
	userID string
	notice Notice
	calls  int
}

func (p *capturingPublisher) Publish(userID string, n Notice) {
	p.userID = userID
	p.notice = n
	p.calls++
}

func TestSendPersistsThenPublishes(t *testing.T) {
	store := memory.New()
	pub := &capturingPublisher{}
	d := NewDispatcher(store.Notifications(), pub)

	if err := d.Send(context.Background(), "user-1", "Request Approved", "Your request was approved."); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, err := store.Notifications().ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Request Approved" || list[0].Read {
		t.Fatalf("unexpected stored notifications %+v", list)
	}

	if pub.calls != 1 || pub.userID != "user-1" {
		t.Fatalf("expected one publish to user-1, got %d to %q", pub.calls, pub.userID)
	}
	if pub.notice.Message != "Your request was approved." || pub.notice.CreatedAt.IsZero() {
		t.Fatalf("unexpected notice %+v", pub.notice)
	}
}

func TestSendWithoutPublisher(t *testing.T) {
	store := memory.New()
	d := NewDispatcher(store.Notifications(), nil)

	if err := d.Send(context.Background(), "user-1", "t", "m"); err != nil {
		t.Fatalf("send: %v", err)
	}
	list, err := store.Notifications().ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected stored notification, got %d", len(list))
	}
}

func TestDispatcherClockIsUTC(t *testing.T) {
	store := memory.New()
	d := NewDispatcher(store.Notifications(), nil)
	d.now = func() time.Time { return time.Date(2025, 11, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }

	if err := d.Send(context.Background(), "user-1", "t", "m"); err != nil {
		t.Fatalf("send: %v", err)
	}
	list, _ := store.Notifications().ListForUser(context.Background(), "user-1")
	if got := list[0].CreatedAt; got.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", got)
	}
}
