package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
)

var kolkata = time.FixedZone("IST", 5*3600+1800)

func newService(now time.Time) (*Service, *repo.Memory, *clock.Fake) {
	store := repo.NewMemory()
	clk := clock.NewFake(now)
	return New(store, clk, Options{Location: kolkata}), store, clk
}

func TestCreate_DefaultsDateAndCutoff(t *testing.T) {
	svc, _, _ := newService(time.Date(2026, 3, 10, 9, 0, 0, 0, kolkata))
	s, err := svc.Create(context.Background(), CreateRequest{Name: "Special", ScheduledTime: "16:00"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Date != "2026-03-10" || s.BettingCutoff != "15:55" {
		t.Fatalf("date=%s cutoff=%s", s.Date, s.BettingCutoff)
	}
	if s.State != domain.SessionActive || !s.Pool.IsZero() || s.CreatedBy != domain.CreatedByAdmin || s.ID == "" {
		t.Fatalf("session=%+v", s)
	}
}

func TestCreate_TodayFollowsDrawZone(t *testing.T) {
	// 20:00 UTC do dia 10 já é dia 11 em IST
	svc, _, _ := newService(time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC))
	s, err := svc.Create(context.Background(), CreateRequest{ScheduledTime: "12:00"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Date != "2026-03-11" {
		t.Fatalf("date=%s", s.Date)
	}
}

func TestCreate_RejectsBadInput(t *testing.T) {
	svc, _, _ := newService(time.Date(2026, 3, 10, 9, 0, 0, 0, kolkata))
	cases := []CreateRequest{
		{ScheduledTime: "7pm"},
		{ScheduledTime: "24:10"},
		{ScheduledTime: "10:00", BettingCutoff: "10:30"},
		{ScheduledTime: "10:00", Date: "10/03/2026"},
	}
	for _, c := range cases {
		if _, err := svc.Create(context.Background(), c); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%+v: err=%v want ErrInvalidInput", c, err)
		}
	}
}

func TestCreate_CutoffDoesNotCrossMidnight(t *testing.T) {
	svc, _, _ := newService(time.Date(2026, 3, 10, 0, 0, 0, 0, kolkata))
	s, err := svc.Create(context.Background(), CreateRequest{ScheduledTime: "00:02"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.BettingCutoff != "00:00" {
		t.Fatalf("cutoff=%s", s.BettingCutoff)
	}
}

func TestEnsureDaily_Idempotent(t *testing.T) {
	svc, store, _ := newService(time.Date(2026, 3, 10, 0, 1, 0, 0, kolkata))
	ctx := context.Background()

	created, err := svc.EnsureDaily(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created=%d want 2", len(created))
	}
	again, err := svc.EnsureDaily(ctx, "")
	if err != nil || len(again) != 0 {
		t.Fatalf("second run created=%d err=%v", len(again), err)
	}

	s, err := store.GetSession(ctx, "session-1430-2026-03-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Name != "Afternoon Draw" || s.BettingCutoff != "14:25" || s.CreatedBy != domain.CreatedBySystem {
		t.Fatalf("session=%+v", s)
	}
	if _, err := store.GetSession(ctx, DailyID("19:00", "2026-03-10")); err != nil {
		t.Fatalf("evening session: %v", err)
	}
}

func TestListDue_UsesDrawInstantNotCutoff(t *testing.T) {
	svc, _, clk := newService(time.Date(2026, 3, 10, 0, 1, 0, 0, kolkata))
	ctx := context.Background()
	if _, err := svc.EnsureDaily(ctx, "2026-03-09"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnsureDaily(ctx, ""); err != nil {
		t.Fatal(err)
	}

	// ontem: ambas vencidas
	due, err := svc.ListDue(ctx, clk.Now())
	if err != nil || len(due) != 2 {
		t.Fatalf("due=%d err=%v", len(due), err)
	}

	// depois do cutoff, antes do sorteio: ainda não vence
	clk.Set(time.Date(2026, 3, 10, 14, 27, 0, 0, kolkata))
	due, _ = svc.ListDue(ctx, clk.Now())
	if len(due) != 2 {
		t.Fatalf("due=%d want 2 (only yesterday's)", len(due))
	}

	clk.Set(time.Date(2026, 3, 10, 14, 30, 0, 0, kolkata))
	due, _ = svc.ListDue(ctx, clk.Now())
	if len(due) != 3 || due[2].ID != "session-1430-2026-03-10" {
		t.Fatalf("due=%v", due)
	}

	if ok, err := svc.MarkSettled(ctx, due[2].ID); !ok || err != nil {
		t.Fatalf("mark settled ok=%v err=%v", ok, err)
	}
	if ok, err := svc.MarkSettled(ctx, due[2].ID); ok || err != nil {
		t.Fatalf("second mark ok=%v err=%v", ok, err)
	}
	due, _ = svc.ListDue(ctx, clk.Now())
	if len(due) != 2 {
		t.Fatalf("settled session still due: %d", len(due))
	}
}

func TestList_FiltersAndValidatesState(t *testing.T) {
	svc, _, _ := newService(time.Date(2026, 3, 10, 9, 0, 0, 0, kolkata))
	ctx := context.Background()
	_, _ = svc.EnsureDaily(ctx, "2026-03-10")
	_, _ = svc.EnsureDaily(ctx, "2026-03-11")

	got, err := svc.List(ctx, Filter{Date: "2026-03-11"})
	if err != nil || len(got) != 2 {
		t.Fatalf("list=%d err=%v", len(got), err)
	}
	if _, err := svc.List(ctx, Filter{State: "Closed"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err=%v", err)
	}
	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}
