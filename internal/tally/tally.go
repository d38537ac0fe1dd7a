// Package tally counts votes for a movie night and resolves its winner.
package tally

import (
	"errors"
	"sort"
	"time"
)

// AttendanceStatus is a user's declared presence for a movie night.
type AttendanceStatus string

const (
	AttendancePending   AttendanceStatus = "pending"
	AttendanceAttending AttendanceStatus = "attending"
	AttendanceAbsent    AttendanceStatus = "absent"
)

// ErrNothingToDecide is returned when no nomination can win.
var ErrNothingToDecide = errors.New("tally: no nominations to decide")

// Candidate is a nomination as seen by the tally.
type Candidate struct {
	ID        string
	CreatedAt time.Time
	Blocked   bool
}

// Vote is one user's stored vote weight on a nomination.
type Vote struct {
	NominationID string
	UserID       string
	Count        int
}

// Attendance is one user's attendance row.
type Attendance struct {
	UserID string
	Status AttendanceStatus
}

// Filter decides which users' votes count.
type Filter struct {
	attending map[string]struct{}
	absent    map[string]struct{}
}

// NewFilter indexes attendance rows.
func NewFilter(rows []Attendance) Filter {
	f := Filter{attending: map[string]struct{}{}, absent: map[string]struct{}{}}
	for _, row := range rows {
		switch row.Status {
		case AttendanceAttending:
			f.attending[row.UserID] = struct{}{}
		case AttendanceAbsent:
			f.absent[row.UserID] = struct{}{}
		}
	}
	return f
}

// HasAttending reports whether anyone is marked attending.
func (f Filter) HasAttending() bool {
	return len(f.attending) > 0
}

// CountsForDisplay drops absent users and, once anyone is attending, keeps
// only attending users.
func (f Filter) CountsForDisplay(userID string) bool {
	if _, ok := f.absent[userID]; ok {
		return false
	}
	if f.HasAttending() {
		_, ok := f.attending[userID]
		return ok
	}
	return true
}

// CountsForDecision keeps only attending users when anyone is attending, and
// every user otherwise.
func (f Filter) CountsForDecision(userID string) bool {
	if !f.HasAttending() {
		return true
	}
	_, ok := f.attending[userID]
	return ok
}

// Totals sums votes per nomination for users accepted by include.
func Totals(votes []Vote, include func(userID string) bool) map[string]int {
	totals := make(map[string]int)
	for _, v := range votes {
		if v.Count <= 0 || !include(v.UserID) {
			continue
		}
		totals[v.NominationID] += v.Count
	}
	return totals
}

// Earlier orders candidates by creation time, then id. It is the tie-break
// wherever counts are equal.
func Earlier(a, b Candidate) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Decide picks the unblocked candidate with the most counted votes. Ties go
// to the earliest nomination.
func Decide(candidates []Candidate, votes []Vote, attendance []Attendance) (string, error) {
	filter := NewFilter(attendance)
	totals := Totals(votes, filter.CountsForDecision)

	var (
		best      Candidate
		bestCount int
		found     bool
	)
	for _, c := range candidates {
		if c.Blocked {
			continue
		}
		count := totals[c.ID]
		if count == 0 {
			continue
		}
		if !found || count > bestCount || (count == bestCount && Earlier(c, best)) {
			best, bestCount, found = c, count, true
		}
	}
	if !found {
		return "", ErrNothingToDecide
	}
	return best.ID, nil
}

// Entry is a nomination in the presentation order.
type Entry struct {
	Candidate
	Votes     int
	IsWinner  bool
	IsLeading bool
}

// MarkLeaders sorts entries winner first, then by votes descending, then by
// nomination age. Without a winner every entry sharing a positive top count
// is leading; with a winner no entry is.
func MarkLeaders(entries []Entry, winnerID string) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)

	top := 0
	for i := range out {
		out[i].IsWinner = winnerID != "" && out[i].ID == winnerID
		out[i].IsLeading = false
		if out[i].Votes > top {
			top = out[i].Votes
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsWinner != out[j].IsWinner {
			return out[i].IsWinner
		}
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return Earlier(out[i].Candidate, out[j].Candidate)
	})

	if winnerID == "" && top > 0 {
		for i := range out {
			out[i].IsLeading = out[i].Votes == top
		}
	}
	return out
}
