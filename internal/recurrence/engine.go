package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format movie nights are stored with.
const DateLayout = "2006-01-02"

// Frequency represents supported recurrence intervals.
type Frequency string

const (
	// FrequencyNone produces a single occurrence.
	FrequencyNone Frequency = "none"
	// FrequencyWeekly repeats every seven days.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiweekly repeats every fourteen days.
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencyMonthly repeats on the same weekday ordinal each month
	// ("second Friday"), clamped to the last such weekday in short months.
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates a stored or submitted recurrence value.
func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(value))); f {
	case FrequencyNone, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return f, nil
	default:
		return "", ErrInvalidFrequency
	}
}

// Rule describes a schedule's recurrence.
type Rule struct {
	ScheduleID string
	Frequency  Frequency
	Weekday    time.Weekday
	// Time is the local start time in HH:MM form.
	Time string
	// StartsOn anchors the cadence. When zero, the first matching date on or
	// after the generation start becomes the anchor.
	StartsOn time.Time
}

// GenerateOptions bounds occurrence generation.
type GenerateOptions struct {
	// From is the earliest date (inclusive) an occurrence may fall on.
	From time.Time
	// Count is the maximum number of occurrences returned.
	Count int
}

// Occurrence represents a generated instance of a recurrence rule.
type Occurrence struct {
	ScheduleID string
	Date       string
	Time       string
	Start      time.Time
}

// Engine expands recurrence rules into occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that evaluates calendar dates in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidTime indicates the rule time is not HH:MM.
var ErrInvalidTime = errors.New("recurrence: time must be HH:MM")

// ErrInvalidWeekday indicates the weekday is outside Sunday..Saturday.
var ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 and 6")

// ParseClock splits an HH:MM value into hour and minute.
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, ErrInvalidTime
	}
	return t.Hour(), t.Minute(), nil
}

// FirstOnOrAfter returns the first date on or after day falling on weekday.
func (e *Engine) FirstOnOrAfter(day time.Time, weekday time.Weekday) time.Time {
	d := e.dateOf(day)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// GenerateOccurrences produces up to opts.Count occurrences on or after
// opts.From, following the rule's cadence from its anchor.
//
// The engine enforces the following semantics:
//   - Dates are calendar dates in the engine's time zone.
//   - A none rule yields its anchor date only, and nothing once it has passed.
//   - Monthly rules keep the anchor's weekday ordinal; a fifth weekday that a
//     month lacks falls back to that month's last such weekday.
func (e *Engine) GenerateOccurrences(rule Rule, opts GenerateOptions) ([]Occurrence, error) {
	if rule.Weekday < time.Sunday || rule.Weekday > time.Saturday {
		return nil, ErrInvalidWeekday
	}
	hour, minute, err := ParseClock(rule.Time)
	if err != nil {
		return nil, err
	}
	if _, err := ParseFrequency(string(rule.Frequency)); err != nil {
		return nil, err
	}
	if opts.Count <= 0 {
		return nil, nil
	}

	from := e.dateOf(opts.From)
	anchor := e.FirstOnOrAfter(from, rule.Weekday)
	if !rule.StartsOn.IsZero() {
		anchor = e.FirstOnOrAfter(rule.StartsOn, rule.Weekday)
	}

	dates := e.expand(rule.Frequency, anchor, from, opts.Count)
	occurrences := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		start := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, e.Location())
		occurrences = append(occurrences, Occurrence{
			ScheduleID: rule.ScheduleID,
			Date:       d.Format(DateLayout),
			Time:       fmt.Sprintf("%02d:%02d", hour, minute),
			Start:      start,
		})
	}
	return occurrences, nil
}

func (e *Engine) expand(freq Frequency, anchor, from time.Time, count int) []time.Time {
	var dates []time.Time
	switch freq {
	case FrequencyNone:
		if !anchor.Before(from) {
			dates = append(dates, anchor)
		}
	case FrequencyWeekly, FrequencyBiweekly:
		step := 7
		if freq == FrequencyBiweekly {
			step = 14
		}
		current := anchor
		if current.Before(from) {
			days := int(from.Sub(current).Hours()/24+0.5) + step - 1
			current = current.AddDate(0, 0, days/step*step)
		}
		for len(dates) < count {
			dates = append(dates, current)
			current = current.AddDate(0, 0, step)
		}
	case FrequencyMonthly:
		ordinal := (anchor.Day()-1)/7 + 1
		year, month := anchor.Year(), anchor.Month()
		for len(dates) < count {
			d := nthWeekday(year, month, anchor.Weekday(), ordinal, anchor.Location())
			if !d.Before(from) && !d.Before(anchor) {
				dates = append(dates, d)
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
	}
	return dates
}

// nthWeekday returns the nth weekday of a month, or the last one when the
// month has fewer than n.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	day := first.AddDate(0, 0, offset+(n-1)*7)
	for day.Month() != month {
		day = day.AddDate(0, 0, -7)
	}
	return day
}

func (e *Engine) dateOf(t time.Time) time.Time {
	y, m, d := t.In(e.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.Location())
}
