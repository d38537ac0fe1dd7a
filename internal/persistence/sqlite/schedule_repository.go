package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/movienight/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const scheduleColumns = `id, group_id, name, day_of_week, time, recurrence, generate_count, host_id,
	starts_on, created_by, created_at, updated_at`

// CreateSchedule inserts a schedule
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" || schedule.GroupID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		schedule.ID,
		schedule.GroupID,
		schedule.Name,
		schedule.DayOfWeek,
		schedule.Time,
		schedule.Recurrence,
		schedule.GenerateCount,
		nullableString(schedule.HostID),
		schedule.StartsOn,
		schedule.CreatedBy,
		formatTime(schedule.CreatedAt),
		formatTime(schedule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateSchedule updates a schedule's definition
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE schedules
		SET name = ?, day_of_week = ?, time = ?, recurrence = ?, generate_count = ?, host_id = ?,
			starts_on = ?, updated_at = ?
		WHERE id = ?
	`,
		schedule.Name,
		schedule.DayOfWeek,
		schedule.Time,
		schedule.Recurrence,
		schedule.GenerateCount,
		nullableString(schedule.HostID),
		schedule.StartsOn,
		formatTime(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// GetSchedule retrieves a schedule by ID
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	if id == "" {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	schedule, err := scanSchedule(r.helper.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return schedule, err
}

// ListSchedules retrieves a group's schedules
func (r *ScheduleRepository) ListSchedules(ctx context.Context, groupID string) ([]persistence.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE group_id = ? ORDER BY day_of_week, time, id`, groupID)
}

// ListAllSchedules retrieves every schedule, used by maintenance top-ups
func (r *ScheduleRepository) ListAllSchedules(ctx context.Context) ([]persistence.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY group_id, id`)
}

// DeleteSchedule removes a schedule, its upcoming undecided nights, and
// detaches the nights that are kept.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id, today string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM movie_nights
			WHERE schedule_id = ? AND night_date >= ? AND status = ?
		`, id, today, persistence.NightStatusVoting); err != nil {
			return r.mapper.MapError(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE movie_nights SET schedule_id = NULL WHERE schedule_id = ?`, id,
		); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return rowsAffected(result)
	})
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Schedule, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var (
		schedule                   persistence.Schedule
		hostID                     sql.NullString
		createdAtStr, updatedAtStr string
	)
	err := row.Scan(
		&schedule.ID,
		&schedule.GroupID,
		&schedule.Name,
		&schedule.DayOfWeek,
		&schedule.Time,
		&schedule.Recurrence,
		&schedule.GenerateCount,
		&hostID,
		&schedule.StartsOn,
		&schedule.CreatedBy,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Schedule{}, err
		}
		return persistence.Schedule{}, fmt.Errorf("failed to scan schedule: %w", err)
	}
	schedule.HostID = stringPtr(hostID)
	if schedule.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}
