package recurrence

import (
	"errors"
	"testing"
	"time"
)

func dates(occurrences []Occurrence) []string {
	out := make([]string, len(occurrences))
	for i, o := range occurrences {
		out[i] = o.Date
	}
	return out
}

func equalDates(a, b []string) bool {
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

func TestEngine_GenerateOccurrences(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	wednesday := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rule Rule
		opts GenerateOptions
		want []string
	}{
		{
			name: "weekly starts at the first matching weekday",
			rule: Rule{Frequency: FrequencyWeekly, Weekday: time.Friday, Time: "19:30"},
			opts: GenerateOptions{From: wednesday, Count: 3},
			want: []string{"2026-03-06", "2026-03-13", "2026-03-20"},
		},
		{
			name: "same weekday as today is included",
			rule: Rule{Frequency: FrequencyWeekly, Weekday: time.Wednesday, Time: "19:30"},
			opts: GenerateOptions{From: wednesday, Count: 1},
			want: []string{"2026-03-04"},
		},
		{
			name: "biweekly keeps the anchor cadence",
			rule: Rule{Frequency: FrequencyBiweekly, Weekday: time.Friday, Time: "20:00", StartsOn: time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)},
			opts: GenerateOptions{From: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), Count: 2},
			want: []string{"2026-03-20", "2026-04-03"},
		},
		{
			name: "biweekly includes an occurrence on the start date",
			rule: Rule{Frequency: FrequencyBiweekly, Weekday: time.Friday, Time: "20:00", StartsOn: time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)},
			opts: GenerateOptions{From: time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), Count: 1},
			want: []string{"2026-03-20"},
		},
		{
			name: "monthly keeps the weekday ordinal",
			rule: Rule{Frequency: FrequencyMonthly, Weekday: time.Friday, Time: "20:00", StartsOn: time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)},
			opts: GenerateOptions{From: wednesday, Count: 3},
			want: []string{"2026-03-13", "2026-04-10", "2026-05-08"},
		},
		{
			name: "monthly fifth weekday clamps to the last one",
			rule: Rule{Frequency: FrequencyMonthly, Weekday: time.Friday, Time: "20:00", StartsOn: time.Date(2026, time.January, 30, 0, 0, 0, 0, time.UTC)},
			opts: GenerateOptions{From: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), Count: 5},
			want: []string{"2026-01-30", "2026-02-27", "2026-03-27", "2026-04-24", "2026-05-29"},
		},
		{
			name: "none yields a single night",
			rule: Rule{Frequency: FrequencyNone, Weekday: time.Saturday, Time: "18:00"},
			opts: GenerateOptions{From: wednesday, Count: 4},
			want: []string{"2026-03-07"},
		},
		{
			name: "none yields nothing once the anchor has passed",
			rule: Rule{Frequency: FrequencyNone, Weekday: time.Saturday, Time: "18:00", StartsOn: time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)},
			opts: GenerateOptions{From: wednesday, Count: 4},
			want: []string{},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := engine.GenerateOccurrences(tc.rule, tc.opts)
			if err != nil {
				t.Fatalf("GenerateOccurrences returned error: %v", err)
			}
			if !equalDates(dates(got), tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, dates(got))
			}
		})
	}
}

func TestEngine_TimezoneDeterminesToday(t *testing.T) {
	t.Parallel()

	auckland, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	engine := NewEngine(auckland)

	// Friday evening in UTC is already Saturday in Auckland.
	from := time.Date(2026, time.March, 6, 23, 30, 0, 0, time.UTC)
	got, err := engine.GenerateOccurrences(Rule{Frequency: FrequencyWeekly, Weekday: time.Friday, Time: "19:00"}, GenerateOptions{From: from, Count: 1})
	if err != nil {
		t.Fatalf("GenerateOccurrences returned error: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2026-03-13" {
		t.Fatalf("expected 2026-03-13, got %v", dates(got))
	}
	if got[0].Start.Location() != auckland || got[0].Start.Hour() != 19 {
		t.Fatalf("expected local 19:00 start, got %v", got[0].Start)
	}
}

func TestEngine_RejectsInvalidRules(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	from := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

	if _, err := engine.GenerateOccurrences(Rule{Frequency: "daily", Weekday: time.Friday, Time: "19:00"}, GenerateOptions{From: from, Count: 1}); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if _, err := engine.GenerateOccurrences(Rule{Frequency: FrequencyWeekly, Weekday: time.Friday, Time: "7pm"}, GenerateOptions{From: from, Count: 1}); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if _, err := engine.GenerateOccurrences(Rule{Frequency: FrequencyWeekly, Weekday: time.Weekday(9), Time: "19:00"}, GenerateOptions{From: from, Count: 1}); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()

	if f, err := ParseFrequency(" Monthly "); err != nil || f != FrequencyMonthly {
		t.Fatalf("expected monthly, got %q (%v)", f, err)
	}
	if _, err := ParseFrequency("yearly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}
