package notification

import (
	"context"
	"testing"
	"time"

	"github.com/pillbox/pillbox/internal/platform/kv"
	"github.com/rs/zerolog"
)

type staticGate bool

func (g staticGate) AllowDelivery(context.Context) bool { return bool(g) }

func openKV(t *testing.T, dir string) *kv.Store {
	t.Helper()
	store, err := kv.Open(dir)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	return store
}

func newTestScheduler(t *testing.T, gate Gate) (*LocalScheduler, *MockDeliverer) {
	t.Helper()
	store := openKV(t, t.TempDir())
	t.Cleanup(func() { store.Close() })
	d := &MockDeliverer{}
	return NewLocalScheduler(store, time.UTC, d, gate, zerolog.Nop()), d
}

func reminder(id string, weekday int) Request {
	return Request{
		ID:      id,
		Content: Content{Title: "Time for your medication!", Body: "Aspirin - 100mg", Data: map[string]string{"medicationId": "med-1"}},
		Trigger: Trigger{Weekday: weekday, Hour: 8, Minute: 0, Repeats: true},
	}
}

func TestLocalScheduler_ScheduleListCancel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)

	for i, id := range []string{"n-b", "n-a"} {
		got, err := s.Schedule(ctx, reminder(id, i+2))
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if got != id {
			t.Errorf("expected id %s, got %s", id, got)
		}
	}

	reqs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(reqs) != 2 || reqs[0].ID != "n-a" || reqs[1].ID != "n-b" {
		t.Fatalf("unexpected list: %+v", reqs)
	}
	if reqs[0].Content.Data["medicationId"] != "med-1" {
		t.Errorf("payload not persisted: %+v", reqs[0].Content.Data)
	}
	if armed := s.Armed(); len(armed) != 2 {
		t.Errorf("expected 2 armed entries, got %v", armed)
	}

	if err := s.Cancel(ctx, "n-a"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Cancel(ctx, "unknown"); err != nil {
		t.Fatalf("Cancel unknown id must be a no-op: %v", err)
	}

	reqs, _ = s.List(ctx)
	if len(reqs) != 1 || reqs[0].ID != "n-b" {
		t.Errorf("unexpected list after cancel: %+v", reqs)
	}
	if armed := s.Armed(); len(armed) != 1 || armed[0] != "n-b" {
		t.Errorf("unexpected armed entries: %v", armed)
	}
}

func TestLocalScheduler_AssignsID(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	id, err := s.Schedule(context.Background(), reminder("", 3))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id == "" {
		t.Fatal("expected an assigned id")
	}
}

func TestLocalScheduler_RejectsInvalidTrigger(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	if _, err := s.Schedule(ctx, reminder("bad", 0)); err == nil {
		t.Fatal("expected error for weekday 0")
	}
	reqs, _ := s.List(ctx)
	if len(reqs) != 0 {
		t.Errorf("rejected request must not be persisted, got %+v", reqs)
	}
}

func TestLocalScheduler_ScheduleSameIDReplaces(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)

	if _, err := s.Schedule(ctx, reminder("n-1", 2)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.Schedule(ctx, reminder("n-1", 4)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	reqs, _ := s.List(ctx)
	if len(reqs) != 1 || reqs[0].Trigger.Weekday != 4 {
		t.Errorf("expected a single replaced request, got %+v", reqs)
	}
	if armed := s.Armed(); len(armed) != 1 {
		t.Errorf("expected 1 armed entry, got %v", armed)
	}
}

func TestLocalScheduler_CancelAll(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := s.Schedule(ctx, reminder(id, i+1)); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	if err := s.CancelAll(ctx); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	reqs, _ := s.List(ctx)
	if len(reqs) != 0 {
		t.Errorf("expected no requests, got %d", len(reqs))
	}
	if armed := s.Armed(); len(armed) != 0 {
		t.Errorf("expected no armed entries, got %v", armed)
	}
}

func TestLocalScheduler_StartRearmsPersisted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := openKV(t, dir)
	first := NewLocalScheduler(store, time.UTC, &MockDeliverer{}, nil, zerolog.Nop())
	if _, err := first.Schedule(ctx, reminder("n-1", 2)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store = openKV(t, dir)
	defer store.Close()
	second := NewLocalScheduler(store, time.UTC, &MockDeliverer{}, nil, zerolog.Nop())
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer second.Stop()

	if armed := second.Armed(); len(armed) != 1 || armed[0] != "n-1" {
		t.Errorf("expected persisted notification re-armed, got %v", armed)
	}
}

func TestLocalScheduler_StartAfterScheduleKeepsOneEntry(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)

	if _, err := s.Schedule(ctx, reminder("n-1", 2)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("expected 1 cron entry after Start, got %d", n)
	}

	if err := s.Cancel(ctx, "n-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if n := len(s.cron.Entries()); n != 0 {
		t.Errorf("cancelled notification still has %d cron entries", n)
	}
	if armed := s.Armed(); len(armed) != 0 {
		t.Errorf("expected nothing armed, got %v", armed)
	}
}

func TestLocalScheduler_FireDelivers(t *testing.T) {
	s, d := newTestScheduler(t, staticGate(true))
	req := reminder("n-1", 2)
	s.fire(req)

	calls := d.Calls()
	if len(calls) != 1 || calls[0].Title != req.Content.Title {
		t.Fatalf("expected one delivery, got %+v", calls)
	}
}

func TestLocalScheduler_FireSuppressedByGate(t *testing.T) {
	ctx := context.Background()
	s, d := newTestScheduler(t, staticGate(false))
	req := reminder("n-1", 2)
	if _, err := s.Schedule(ctx, req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.fire(req)

	if calls := d.Calls(); len(calls) != 0 {
		t.Errorf("expected delivery suppressed, got %+v", calls)
	}
	reqs, _ := s.List(ctx)
	if len(reqs) != 1 {
		t.Errorf("suppression must not remove the registration, got %d", len(reqs))
	}
}

func TestLocalScheduler_OneShotRetiredOnFire(t *testing.T) {
	ctx := context.Background()
	s, d := newTestScheduler(t, nil)
	req := reminder("once", 5)
	req.Trigger.Repeats = false
	if _, err := s.Schedule(ctx, req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.fire(req)

	if len(d.Calls()) != 1 {
		t.Errorf("expected one delivery")
	}
	reqs, _ := s.List(ctx)
	if len(reqs) != 0 {
		t.Errorf("one-shot notification should be removed after firing, got %+v", reqs)
	}
}
