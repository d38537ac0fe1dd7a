package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/recurrence"
)

// DefaultGenerateCount is the number of upcoming nights kept for a schedule
// created without an explicit count.
const DefaultGenerateCount = 4

// ScheduleService orchestrates validation and persistence for recurring
// schedules and the movie nights they generate.
type ScheduleService struct {
	groups      persistence.GroupRepository
	schedules   persistence.ScheduleRepository
	nights      persistence.MovieNightRepository
	engine      *recurrence.Engine
	auth        authorizer
	cal         calendar
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(groups persistence.GroupRepository, schedules persistence.ScheduleRepository, nights persistence.MovieNightRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *ScheduleService {
	return NewScheduleServiceWithLogger(groups, schedules, nights, engine, idGenerator, now, nil)
}

// NewScheduleServiceWithLogger wires dependencies with a specified logger.
func NewScheduleServiceWithLogger(groups persistence.GroupRepository, schedules persistence.ScheduleRepository, nights persistence.MovieNightRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	return &ScheduleService{
		groups:      groups,
		schedules:   schedules,
		nights:      nights,
		engine:      engine,
		auth:        authorizer{groups: groups},
		cal:         newCalendar(engine.Location(), now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// ScheduleInput carries the fields of a schedule definition.
type ScheduleInput struct {
	Name          string `json:"name" validate:"required,max=100"`
	DayOfWeek     int    `json:"dayOfWeek" validate:"min=0,max=6"`
	Time          string `json:"time" validate:"required,hhmm"`
	Recurrence    string `json:"recurrence" validate:"required,oneof=weekly biweekly monthly none"`
	GenerateCount int    `json:"generateCount" validate:"min=0,max=52"`
	HostID        string `json:"hostId"`
}

// ListSchedules returns a group's schedules.
func (s *ScheduleService) ListSchedules(ctx context.Context, principal Principal, groupID string) ([]Schedule, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleService is nil")
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, mapScheduleRepoError(err)
	}
	if _, err := s.auth.groupRole(ctx, principal, groupID, ""); err != nil {
		return nil, err
	}

	records, err := s.schedules.ListSchedules(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]Schedule, 0, len(records))
	for _, record := range records {
		out = append(out, toSchedule(record))
	}
	return out, nil
}

// CreateSchedule stores a schedule and generates its first nights. The first
// occurrence is the first date on or after today falling on DayOfWeek.
func (s *ScheduleService) CreateSchedule(ctx context.Context, principal Principal, groupID string, input ScheduleInput) (schedule Schedule, generated int, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSchedule", "principal_id", principal.UserID, "group_id", groupID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create schedule", "")
			return
		}
		logger.With("schedule_id", schedule.ID, "generated", generated).InfoContext(ctx, "schedule created")
	}()

	if _, err = s.groups.GetGroup(ctx, groupID); err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if _, err = s.auth.groupRole(ctx, principal, groupID, ""); err != nil {
		return
	}
	input = normalizeScheduleInput(input)
	if err = s.validateInput(ctx, groupID, input); err != nil {
		return
	}

	now := s.now()
	record := persistence.Schedule{
		ID:            s.idGenerator(),
		GroupID:       groupID,
		Name:          input.Name,
		DayOfWeek:     input.DayOfWeek,
		Time:          input.Time,
		Recurrence:    input.Recurrence,
		GenerateCount: input.GenerateCount,
		HostID:        ptr(input.HostID),
		StartsOn:      s.firstDate(input.DayOfWeek),
		CreatedBy:     principal.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = s.schedules.CreateSchedule(ctx, record); err != nil {
		err = mapScheduleRepoError(err)
		return
	}

	generated, err = s.generate(ctx, record)
	if err != nil {
		return
	}
	schedule = toSchedule(record)
	return
}

// UpdateSchedule edits a schedule definition. Nights already generated keep
// their dates; the cadence is re-anchored when the weekday or recurrence
// changes and the schedule is topped up.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, principal Principal, scheduleID string, input ScheduleInput) (schedule Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule", "principal_id", principal.UserID, "schedule_id", scheduleID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update schedule", "")
			return
		}
		logger.InfoContext(ctx, "schedule updated")
	}()

	var record persistence.Schedule
	record, err = s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if err = s.requireManage(ctx, principal, record.GroupID); err != nil {
		return
	}
	input = normalizeScheduleInput(input)
	if err = s.validateInput(ctx, record.GroupID, input); err != nil {
		return
	}

	if record.DayOfWeek != input.DayOfWeek || record.Recurrence != input.Recurrence {
		record.StartsOn = s.firstDate(input.DayOfWeek)
	}
	record.Name = input.Name
	record.DayOfWeek = input.DayOfWeek
	record.Time = input.Time
	record.Recurrence = input.Recurrence
	record.GenerateCount = input.GenerateCount
	record.HostID = ptr(input.HostID)
	record.UpdatedAt = s.now()

	if err = s.schedules.UpdateSchedule(ctx, record); err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if _, err = s.topUp(ctx, record); err != nil {
		return
	}
	schedule = toSchedule(record)
	return
}

// DeleteSchedule removes a schedule with its upcoming undecided nights. Past
// and decided nights stay, detached.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, principal Principal, scheduleID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteSchedule", "principal_id", principal.UserID, "schedule_id", scheduleID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete schedule", "")
			return
		}
		logger.InfoContext(ctx, "schedule deleted")
	}()

	record, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	if err = s.requireManage(ctx, principal, record.GroupID); err != nil {
		return
	}
	return mapScheduleRepoError(s.schedules.DeleteSchedule(ctx, scheduleID, s.cal.today()))
}

// TopUp brings every schedule back to its configured number of upcoming
// nights and reports how many nights were created.
func (s *ScheduleService) TopUp(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("ScheduleService is nil")
	}

	records, err := s.schedules.ListAllSchedules(ctx)
	if err != nil {
		return 0, err
	}

	var total int
	var errs []error
	for _, record := range records {
		n, err := s.topUp(ctx, record)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", record.ID, err))
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

func (s *ScheduleService) topUp(ctx context.Context, record persistence.Schedule) (int, error) {
	upcoming, err := s.nights.CountUpcomingForSchedule(ctx, record.ID, s.cal.today())
	if err != nil {
		return 0, err
	}
	if upcoming >= record.GenerateCount {
		return 0, nil
	}
	return s.generate(ctx, record)
}

// generate expands the schedule from today and inserts the nights that do
// not exist yet.
func (s *ScheduleService) generate(ctx context.Context, record persistence.Schedule) (int, error) {
	freq, err := recurrence.ParseFrequency(record.Recurrence)
	if err != nil {
		return 0, err
	}
	startsOn, err := time.ParseInLocation(recurrence.DateLayout, record.StartsOn, s.engine.Location())
	if err != nil {
		return 0, fmt.Errorf("invalid schedule start %q: %w", record.StartsOn, err)
	}

	occurrences, err := s.engine.GenerateOccurrences(recurrence.Rule{
		ScheduleID: record.ID,
		Frequency:  freq,
		Weekday:    time.Weekday(record.DayOfWeek),
		Time:       record.Time,
		StartsOn:   startsOn,
	}, recurrence.GenerateOptions{From: s.now(), Count: record.GenerateCount})
	if err != nil {
		return 0, err
	}

	now := s.now()
	nights := make([]persistence.MovieNight, 0, len(occurrences))
	for _, occ := range occurrences {
		nights = append(nights, persistence.MovieNight{
			ID:         s.idGenerator(),
			GroupID:    record.GroupID,
			ScheduleID: &record.ID,
			Date:       occ.Date,
			Time:       occ.Time,
			Status:     persistence.NightStatusVoting,
			HostID:     record.HostID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return s.nights.CreateMovieNights(ctx, nights)
}

func (s *ScheduleService) firstDate(dayOfWeek int) string {
	return s.engine.FirstOnOrAfter(s.now(), time.Weekday(dayOfWeek)).Format(recurrence.DateLayout)
}

func (s *ScheduleService) validateInput(ctx context.Context, groupID string, input ScheduleInput) error {
	vErr := validateStruct(input)
	if input.HostID != "" {
		if _, err := s.groups.GetMember(ctx, groupID, input.HostID); err != nil {
			if !errors.Is(err, persistence.ErrNotFound) {
				return err
			}
			vErr.add("hostId", "host must be a member of the group")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func (s *ScheduleService) requireManage(ctx context.Context, principal Principal, groupID string) error {
	role, err := s.auth.groupRole(ctx, principal, groupID, "")
	if err != nil {
		return err
	}
	if !access.CapabilitiesFor(role).CanManageMembers {
		return ErrUnauthorized
	}
	return nil
}

func normalizeScheduleInput(input ScheduleInput) ScheduleInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Time = strings.TrimSpace(input.Time)
	input.Recurrence = strings.ToLower(strings.TrimSpace(input.Recurrence))
	input.HostID = strings.TrimSpace(input.HostID)
	if input.GenerateCount == 0 {
		input.GenerateCount = DefaultGenerateCount
	}
	return input
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("hostId", "host does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("schedule", "schedule fields are invalid")
	}
	return err
}
