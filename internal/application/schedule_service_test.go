package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/recurrence"
)

func newScheduleFixture(t *testing.T) (*memStore, *testClock, *ScheduleService) {
	t.Helper()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addUser("carol", "Carol")
	store.addGroup("g1", 3, "alice", "bob")
	clock := newTestClock()
	svc := NewScheduleService(store, store, store, recurrence.NewEngine(time.UTC), sequence("id"), clock.Now)
	return store, clock, svc
}

func nightDates(t *testing.T, store *memStore, groupID string) []string {
	t.Helper()
	nights, err := store.ListMovieNights(context.Background(), groupID, persistence.MovieNightFilter{})
	if err != nil {
		t.Fatalf("list nights: %v", err)
	}
	dates := make([]string, 0, len(nights))
	for _, n := range nights {
		dates = append(dates, n.Date)
	}
	return dates
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScheduleService_CreateGeneratesNights(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newScheduleFixture(t)

	schedule, generated, err := svc.CreateSchedule(ctx, Principal{UserID: "bob"}, "g1", ScheduleInput{
		Name:       "Fridays",
		DayOfWeek:  int(time.Friday),
		Time:       "19:30",
		Recurrence: "weekly",
	})
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if generated != DefaultGenerateCount {
		t.Fatalf("expected %d nights, got %d", DefaultGenerateCount, generated)
	}
	if schedule.StartsOn != "2024-03-01" {
		t.Fatalf("expected schedule to start today, got %s", schedule.StartsOn)
	}

	want := []string{"2024-03-01", "2024-03-08", "2024-03-15", "2024-03-22"}
	if got := nightDates(t, store, "g1"); !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScheduleService_Validation(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newScheduleFixture(t)
	bob := Principal{UserID: "bob"}

	cases := []struct {
		name  string
		input ScheduleInput
		field string
	}{
		{name: "bad time", input: ScheduleInput{Name: "x", Time: "25:00", Recurrence: "weekly"}, field: "time"},
		{name: "bad recurrence", input: ScheduleInput{Name: "x", Time: "19:00", Recurrence: "daily"}, field: "recurrence"},
		{name: "bad weekday", input: ScheduleInput{Name: "x", DayOfWeek: 7, Time: "19:00", Recurrence: "weekly"}, field: "day_of_week"},
		{name: "host outside group", input: ScheduleInput{Name: "x", Time: "19:00", Recurrence: "weekly", HostID: "carol"}, field: "host_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateSchedule(ctx, bob, "g1", tc.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected %s field error, got %v", tc.field, err)
			}
		})
	}

	if _, _, err := svc.CreateSchedule(ctx, Principal{UserID: "carol"}, "g1", ScheduleInput{Name: "x", Time: "19:00", Recurrence: "weekly"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected non-member to be refused, got %v", err)
	}
}

func TestScheduleService_TopUp(t *testing.T) {
	ctx := context.Background()
	store, clock, svc := newScheduleFixture(t)

	if _, _, err := svc.CreateSchedule(ctx, Principal{UserID: "alice"}, "g1", ScheduleInput{
		Name: "Fridays", DayOfWeek: int(time.Friday), Time: "19:30", Recurrence: "weekly",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := svc.TopUp(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected no top-up while full, got %d (%v)", n, err)
	}

	clock.Advance(7 * 24 * time.Hour)
	n, err = svc.TopUp(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one new night, got %d (%v)", n, err)
	}
	dates := nightDates(t, store, "g1")
	if dates[len(dates)-1] != "2024-03-29" {
		t.Fatalf("expected newest night on 2024-03-29, got %v", dates)
	}

	// Running again is idempotent.
	if n, err = svc.TopUp(ctx); err != nil || n != 0 {
		t.Fatalf("expected idempotent top-up, got %d (%v)", n, err)
	}
}

func TestScheduleService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newScheduleFixture(t)
	alice := Principal{UserID: "alice"}

	schedule, _, err := svc.CreateSchedule(ctx, alice, "g1", ScheduleInput{
		Name: "Fridays", DayOfWeek: int(time.Friday), Time: "19:30", Recurrence: "weekly",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateSchedule(ctx, Principal{UserID: "bob"}, schedule.ID, ScheduleInput{Name: "x", Time: "19:00", Recurrence: "weekly"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected member update to be refused, got %v", err)
	}

	updated, err := svc.UpdateSchedule(ctx, alice, schedule.ID, ScheduleInput{
		Name: "Saturdays", DayOfWeek: int(time.Saturday), Time: "20:00", Recurrence: "weekly", GenerateCount: 6,
	})
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if updated.StartsOn != "2024-03-02" {
		t.Fatalf("expected cadence to re-anchor on 2024-03-02, got %s", updated.StartsOn)
	}
	// Existing Friday nights stay; Saturdays are added up to the new count.
	if got := len(nightDates(t, store, "g1")); got != 10 {
		t.Fatalf("expected 4 kept plus 6 new nights, got %d", got)
	}

	// A decided night survives deletion, detached.
	nights, _ := store.ListMovieNights(ctx, "g1", persistence.MovieNightFilter{})
	decided := nights[0]
	decided.Status = persistence.NightStatusDecided
	if err := store.UpdateMovieNight(ctx, decided); err != nil {
		t.Fatalf("update night: %v", err)
	}

	if err := svc.DeleteSchedule(ctx, alice, schedule.ID); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	remaining, _ := store.ListMovieNights(ctx, "g1", persistence.MovieNightFilter{})
	if len(remaining) != 1 || remaining[0].ID != decided.ID || remaining[0].ScheduleID != nil {
		t.Fatalf("expected only the detached decided night to remain, got %+v", remaining)
	}
	if _, err := svc.ListSchedules(ctx, alice, "g1"); err != nil {
		t.Fatalf("list schedules: %v", err)
	}
	if err := svc.DeleteSchedule(ctx, alice, schedule.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleService_NoneRecurrence(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newScheduleFixture(t)

	_, generated, err := svc.CreateSchedule(ctx, Principal{UserID: "alice"}, "g1", ScheduleInput{
		Name: "Once", DayOfWeek: int(time.Sunday), Time: "18:00", Recurrence: "none",
	})
	if err != nil || generated != 1 {
		t.Fatalf("expected a single night, got %d (%v)", generated, err)
	}
	if got := nightDates(t, store, "g1"); !equalStrings(got, []string{"2024-03-03"}) {
		t.Fatalf("expected 2024-03-03, got %v", got)
	}
}
