package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/movienight/internal/clients/overseerr"
	"github.com/example/movienight/internal/clients/plex"
	"github.com/example/movienight/internal/clients/tmdb"
	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/testfixtures"
)

// testNow is a Friday.
var testNow = testfixtures.ReferenceTime()

type testClock = testfixtures.Clock

func newTestClock() *testClock {
	return testfixtures.NewClock(testNow)
}

func sequence(prefix string) func() string {
	return testfixtures.Sequence(prefix)
}

var (
	_ persistence.UserRepository       = (*memStore)(nil)
	_ persistence.SessionRepository    = (*memStore)(nil)
	_ persistence.GroupRepository      = (*memStore)(nil)
	_ persistence.ScheduleRepository   = (*memStore)(nil)
	_ persistence.MovieNightRepository = (*memStore)(nil)
	_ persistence.NominationRepository = (*memStore)(nil)
	_ persistence.InviteRepository     = (*memStore)(nil)
	_ persistence.SettingsRepository   = (*memStore)(nil)
)

// memStore is an in-memory implementation of every repository, with the
// same sentinel errors the SQLite repositories return.
type memStore struct {
	mu          sync.Mutex
	users       map[string]persistence.User
	sessions    map[string]persistence.Session
	groups      map[string]persistence.Group
	members     map[string]map[string]persistence.GroupMember
	schedules   map[string]persistence.Schedule
	nights      map[string]persistence.MovieNight
	attendance  map[string]map[string]persistence.Attendance
	nominations map[string]persistence.Nomination
	votes       map[[2]string]persistence.Vote
	blocks      map[[2]string]persistence.NominationBlock
	invites     map[string]persistence.GuestInvite
	settings    map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]persistence.User{},
		sessions:    map[string]persistence.Session{},
		groups:      map[string]persistence.Group{},
		members:     map[string]map[string]persistence.GroupMember{},
		schedules:   map[string]persistence.Schedule{},
		nights:      map[string]persistence.MovieNight{},
		attendance:  map[string]map[string]persistence.Attendance{},
		nominations: map[string]persistence.Nomination{},
		votes:       map[[2]string]persistence.Vote{},
		blocks:      map[[2]string]persistence.NominationBlock{},
		invites:     map[string]persistence.GuestInvite{},
		settings:    map[string]string{},
	}
}

// Seeding helpers.

func (m *memStore) addUser(id, displayName string) persistence.User {
	u := persistence.User{ID: id, Username: id, DisplayName: displayName, CreatedAt: testNow, UpdatedAt: testNow}
	m.mu.Lock()
	m.users[id] = u
	m.mu.Unlock()
	return u
}

func (m *memStore) addPlexUser(id, plexID string) persistence.User {
	u := m.addUser(id, id)
	u.PlexID = &plexID
	m.mu.Lock()
	m.users[id] = u
	m.mu.Unlock()
	return u
}

func (m *memStore) addGroup(id string, maxVotes int, admin string, members ...string) persistence.Group {
	g := persistence.Group{ID: id, Name: "Group " + id, MaxVotesPerUser: maxVotes, CreatedBy: admin, CreatedAt: testNow, UpdatedAt: testNow}
	m.mu.Lock()
	m.groups[id] = g
	m.members[id] = map[string]persistence.GroupMember{}
	m.members[id][admin] = persistence.GroupMember{GroupID: id, UserID: admin, Role: persistence.MemberRoleAdmin, JoinedAt: testNow}
	for _, u := range members {
		m.members[id][u] = persistence.GroupMember{GroupID: id, UserID: u, Role: persistence.MemberRoleMember, JoinedAt: testNow}
	}
	m.mu.Unlock()
	return g
}

func (m *memStore) addNight(id, groupID, date string) persistence.MovieNight {
	n := persistence.MovieNight{ID: id, GroupID: groupID, Date: date, Time: "19:30", Status: persistence.NightStatusVoting, CreatedAt: testNow, UpdatedAt: testNow}
	m.mu.Lock()
	m.nights[id] = n
	m.mu.Unlock()
	return n
}

func (m *memStore) addNomination(id, nightID, by string, createdAt time.Time) persistence.Nomination {
	key := "rk-" + id
	n := persistence.Nomination{ID: id, MovieNightID: nightID, NominatedBy: by, PlexRatingKey: &key, Title: "Movie " + id, CreatedAt: createdAt}
	m.mu.Lock()
	m.nominations[id] = n
	m.mu.Unlock()
	return n
}

func (m *memStore) setVotes(nominationID, userID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nominations[nominationID]
	m.votes[[2]string{nominationID, userID}] = persistence.Vote{
		NominationID: nominationID, UserID: userID, MovieNightID: n.MovieNightID, VoteCount: count, CreatedAt: testNow, UpdatedAt: testNow,
	}
}

func (m *memStore) setAttendance(nightID, userID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attendance[nightID] == nil {
		m.attendance[nightID] = map[string]persistence.Attendance{}
	}
	m.attendance[nightID][userID] = persistence.Attendance{MovieNightID: nightID, UserID: userID, Status: status, UpdatedAt: testNow}
}

// UserRepository

func (m *memStore) CreateUser(_ context.Context, user persistence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" || user.Username == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := m.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Username, user.Username) {
			return persistence.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) UpdateUser(_ context.Context, user persistence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (m *memStore) GetUserByPlexID(_ context.Context, plexID string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PlexID != nil && *u.PlexID == plexID {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context) ([]persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memStore) CountUsers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.users, id)
	for _, members := range m.members {
		delete(members, id)
	}
	return nil
}

// SessionRepository

func (m *memStore) CreateSession(_ context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}
	m.sessions[session.Token] = session
	return session, nil
}

func (m *memStore) GetSession(_ context.Context, token string) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (m *memStore) RevokeSession(_ context.Context, token string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || s.RevokedAt != nil {
		return persistence.ErrNotFound
	}
	s.RevokedAt = &revokedAt
	m.sessions[token] = s
	return nil
}

func (m *memStore) DeleteExpiredSessions(_ context.Context, reference time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if !s.ExpiresAt.After(reference) || s.RevokedAt != nil {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// GroupRepository

func (m *memStore) CreateGroup(_ context.Context, group persistence.Group, owner persistence.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group.ID == "" || owner.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := m.groups[group.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.groups[group.ID] = group
	m.members[group.ID] = map[string]persistence.GroupMember{owner.UserID: owner}
	return nil
}

func (m *memStore) UpdateGroup(_ context.Context, group persistence.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memStore) GetGroup(_ context.Context, id string) (persistence.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return g, nil
}

func (m *memStore) ListGroups(_ context.Context) ([]persistence.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) ListGroupsForUser(_ context.Context, userID string) ([]persistence.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Group
	for id, g := range m.groups {
		if _, ok := m.members[id][userID]; ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.groups, id)
	delete(m.members, id)
	for nightID, n := range m.nights {
		if n.GroupID == id {
			delete(m.nights, nightID)
			delete(m.attendance, nightID)
		}
	}
	for schedID, s := range m.schedules {
		if s.GroupID == id {
			delete(m.schedules, schedID)
		}
	}
	return nil
}

func (m *memStore) AddMember(_ context.Context, member persistence.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[member.GroupID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := m.users[member.UserID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := m.members[member.GroupID][member.UserID]; ok {
		return persistence.ErrDuplicate
	}
	m.members[member.GroupID][member.UserID] = member
	return nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, groupID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[groupID][userID]
	if !ok {
		return persistence.ErrNotFound
	}
	member.Role = role
	m.members[groupID][userID] = member
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[groupID][userID]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.members[groupID], userID)
	return nil
}

func (m *memStore) memberLocked(member persistence.GroupMember) persistence.GroupMember {
	if u, ok := m.users[member.UserID]; ok {
		member.Username = u.Username
		member.DisplayName = u.DisplayName
		member.AvatarURL = u.AvatarURL
	}
	return member
}

func (m *memStore) GetMember(_ context.Context, groupID, userID string) (persistence.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[groupID][userID]
	if !ok {
		return persistence.GroupMember{}, persistence.ErrNotFound
	}
	return m.memberLocked(member), nil
}

func (m *memStore) ListMembers(_ context.Context, groupID string) ([]persistence.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.GroupMember
	for _, member := range m.members[groupID] {
		out = append(out, m.memberLocked(member))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// ScheduleRepository

func (m *memStore) CreateSchedule(_ context.Context, schedule persistence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *memStore) UpdateSchedule(_ context.Context, schedule persistence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[schedule.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *memStore) GetSchedule(_ context.Context, id string) (persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListSchedules(_ context.Context, groupID string) ([]persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Schedule
	for _, s := range m.schedules {
		if s.GroupID == groupID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListAllSchedules(_ context.Context) ([]persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Schedule
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteSchedule(_ context.Context, id, today string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	for nightID, n := range m.nights {
		if n.ScheduleID == nil || *n.ScheduleID != id {
			continue
		}
		if n.Date >= today && n.Status == persistence.NightStatusVoting {
			delete(m.nights, nightID)
			continue
		}
		n.ScheduleID = nil
		m.nights[nightID] = n
	}
	delete(m.schedules, id)
	return nil
}

// MovieNightRepository

func (m *memStore) CreateMovieNight(_ context.Context, night persistence.MovieNight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if night.ID == "" || night.GroupID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := m.nights[night.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.nights[night.ID] = night
	return nil
}

func (m *memStore) CreateMovieNights(_ context.Context, nights []persistence.MovieNight) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, night := range nights {
		exists := false
		for _, existing := range m.nights {
			if existing.ScheduleID != nil && night.ScheduleID != nil && *existing.ScheduleID == *night.ScheduleID && existing.Date == night.Date {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		m.nights[night.ID] = night
		inserted++
	}
	return inserted, nil
}

func (m *memStore) UpdateMovieNight(_ context.Context, night persistence.MovieNight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nights[night.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.nights[night.ID] = night
	return nil
}

func (m *memStore) GetMovieNight(_ context.Context, id string) (persistence.MovieNight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nights[id]
	if !ok {
		return persistence.MovieNight{}, persistence.ErrNotFound
	}
	return n, nil
}

func (m *memStore) ListMovieNights(_ context.Context, groupID string, filter persistence.MovieNightFilter) ([]persistence.MovieNight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.MovieNight
	for _, n := range m.nights {
		if n.GroupID != groupID || (filter.FromDate != "" && n.Date < filter.FromDate) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) CountUpcomingForSchedule(_ context.Context, scheduleID, fromDate string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.nights {
		if n.ScheduleID != nil && *n.ScheduleID == scheduleID && n.Date >= fromDate {
			count++
		}
	}
	return count, nil
}

func (m *memStore) UpsertAttendance(_ context.Context, attendance persistence.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nights[attendance.MovieNightID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if m.attendance[attendance.MovieNightID] == nil {
		m.attendance[attendance.MovieNightID] = map[string]persistence.Attendance{}
	}
	m.attendance[attendance.MovieNightID][attendance.UserID] = attendance
	return nil
}

func (m *memStore) ListAttendance(_ context.Context, movieNightID string) ([]persistence.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Attendance
	for _, a := range m.attendance[movieNightID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// NominationRepository

func (m *memStore) CreateNomination(_ context.Context, nomination persistence.Nomination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (nomination.PlexRatingKey == nil) == (nomination.TMDBID == nil) {
		return persistence.ErrConstraintViolation
	}
	for _, existing := range m.nominations {
		if existing.MovieNightID != nomination.MovieNightID {
			continue
		}
		if nomination.PlexRatingKey != nil && existing.PlexRatingKey != nil && *existing.PlexRatingKey == *nomination.PlexRatingKey {
			return persistence.ErrDuplicate
		}
		if nomination.TMDBID != nil && existing.TMDBID != nil && *existing.TMDBID == *nomination.TMDBID {
			return persistence.ErrDuplicate
		}
	}
	m.nominations[nomination.ID] = nomination
	return nil
}

func (m *memStore) GetNomination(_ context.Context, id string) (persistence.Nomination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nominations[id]
	if !ok {
		return persistence.Nomination{}, persistence.ErrNotFound
	}
	return n, nil
}

func (m *memStore) ListNominations(_ context.Context, movieNightID string) ([]persistence.Nomination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Nomination
	for _, n := range m.nominations {
		if n.MovieNightID == movieNightID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) DeleteNomination(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nominations[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.nominations, id)
	for key := range m.votes {
		if key[0] == id {
			delete(m.votes, key)
		}
	}
	for key := range m.blocks {
		if key[0] == id {
			delete(m.blocks, key)
		}
	}
	return nil
}

func (m *memStore) IncrementVote(_ context.Context, vote persistence.Vote, maxVotes int) (persistence.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := 0
	for _, v := range m.votes {
		if v.MovieNightID == vote.MovieNightID && v.UserID == vote.UserID {
			used += v.VoteCount
		}
	}
	if used >= maxVotes {
		return persistence.Vote{}, persistence.ErrLimitReached
	}
	for key := range m.blocks {
		if key[0] == vote.NominationID {
			return persistence.Vote{}, persistence.ErrBlocked
		}
	}
	key := [2]string{vote.NominationID, vote.UserID}
	existing, ok := m.votes[key]
	if ok {
		existing.VoteCount++
		existing.HasWatched = vote.HasWatched
		existing.UpdatedAt = vote.UpdatedAt
	} else {
		existing = vote
		existing.VoteCount = 1
	}
	m.votes[key] = existing
	return existing, nil
}

func (m *memStore) DecrementVote(_ context.Context, nominationID, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{nominationID, userID}
	v, ok := m.votes[key]
	if !ok {
		return 0, persistence.ErrNotFound
	}
	v.VoteCount--
	v.UpdatedAt = at
	if v.VoteCount <= 0 {
		delete(m.votes, key)
		return 0, nil
	}
	m.votes[key] = v
	return v.VoteCount, nil
}

func (m *memStore) ListVotes(_ context.Context, movieNightID string) ([]persistence.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Vote
	for _, v := range m.votes {
		if v.MovieNightID == movieNightID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NominationID != out[j].NominationID {
			return out[i].NominationID < out[j].NominationID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *memStore) CountUserVotes(_ context.Context, movieNightID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, v := range m.votes {
		if v.MovieNightID == movieNightID && v.UserID == userID {
			total += v.VoteCount
		}
	}
	return total, nil
}

func (m *memStore) BlockNomination(_ context.Context, block persistence.NominationBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nominations[block.NominationID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	key := [2]string{block.NominationID, block.UserID}
	if _, ok := m.blocks[key]; !ok {
		m.blocks[key] = block
	}
	for vk := range m.votes {
		if vk[0] == block.NominationID {
			delete(m.votes, vk)
		}
	}
	return nil
}

func (m *memStore) UnblockNomination(_ context.Context, nominationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{nominationID, userID}
	if _, ok := m.blocks[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.blocks, key)
	return nil
}

func (m *memStore) ListBlocks(_ context.Context, movieNightID string) ([]persistence.NominationBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.NominationBlock
	for _, b := range m.blocks {
		if m.nominations[b.NominationID].MovieNightID == movieNightID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NominationID != out[j].NominationID {
			return out[i].NominationID < out[j].NominationID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// InviteRepository

func (m *memStore) CreateInvite(_ context.Context, invite persistence.GuestInvite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invites {
		if existing.Token == invite.Token {
			return persistence.ErrDuplicate
		}
	}
	m.invites[invite.ID] = invite
	return nil
}

func (m *memStore) GetInvite(_ context.Context, id string) (persistence.GuestInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.invites[id]
	if !ok {
		return persistence.GuestInvite{}, persistence.ErrNotFound
	}
	return i, nil
}

func (m *memStore) GetInviteByToken(_ context.Context, token string) (persistence.GuestInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.invites {
		if i.Token == token {
			return i, nil
		}
	}
	return persistence.GuestInvite{}, persistence.ErrNotFound
}

func (m *memStore) ListInvites(_ context.Context, movieNightID string) ([]persistence.GuestInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.GuestInvite
	for _, i := range m.invites {
		if i.MovieNightID == movieNightID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) DeleteInvite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.invites, id)
	return nil
}

// SettingsRepository

func (m *memStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", persistence.ErrNotFound
	}
	return v, nil
}

func (m *memStore) ListSettings(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SetSettings(_ context.Context, values map[string]string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		if v == "" {
			delete(m.settings, k)
			continue
		}
		m.settings[k] = v
	}
	return nil
}

// watchStub answers watch history from a fixed set of "plexID|ratingKey" keys.
type watchStub struct {
	watched map[string]bool
}

func (w watchStub) HasWatched(_ context.Context, plexUserID, ratingKey string) bool {
	return w.watched[plexUserID+"|"+ratingKey]
}

// catalogStub serves fixed metadata.
type catalogStub struct {
	plexMovies map[string]plex.Movie
	tmdbMovies map[int]tmdb.Movie
	tmdbErr    error
	overseerr  map[int]overseerr.Movie
}

func (c catalogStub) PlexMovie(_ context.Context, ratingKey string) (plex.Movie, error) {
	m, ok := c.plexMovies[ratingKey]
	if !ok {
		return plex.Movie{}, fmt.Errorf("plex: no movie %s", ratingKey)
	}
	return m, nil
}

func (c catalogStub) TMDBMovie(_ context.Context, id int) (tmdb.Movie, error) {
	if c.tmdbErr != nil {
		return tmdb.Movie{}, c.tmdbErr
	}
	m, ok := c.tmdbMovies[id]
	if !ok {
		return tmdb.Movie{}, fmt.Errorf("tmdb: no movie %d", id)
	}
	return m, nil
}

func (c catalogStub) OverseerrMovie(_ context.Context, id int) (overseerr.Movie, error) {
	m, ok := c.overseerr[id]
	if !ok {
		return overseerr.Movie{}, fmt.Errorf("overseerr: no movie %d", id)
	}
	return m, nil
}
