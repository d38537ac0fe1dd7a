package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/movienight/internal/persistence"
)

// MovieNightRepository implements persistence.MovieNightRepository using SQLite
type MovieNightRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMovieNightRepository creates a new SQLite movie night repository
func NewMovieNightRepository(pool *ConnectionPool) *MovieNightRepository {
	return &MovieNightRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const movieNightColumns = `id, group_id, schedule_id, night_date, time, status, is_cancelled, cancel_reason,
	winning_nomination_id, host_id, created_at, updated_at`

const movieNightValues = ` INTO movie_nights (` + movieNightColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func movieNightArgs(night persistence.MovieNight) []any {
	return []any{
		night.ID,
		night.GroupID,
		nullableString(night.ScheduleID),
		night.Date,
		night.Time,
		night.Status,
		night.IsCancelled,
		nullableString(night.CancelReason),
		nullableString(night.WinningNominationID),
		nullableString(night.HostID),
		formatTime(night.CreatedAt),
		formatTime(night.UpdatedAt),
	}
}

// CreateMovieNight inserts a single movie night
func (r *MovieNightRepository) CreateMovieNight(ctx context.Context, night persistence.MovieNight) error {
	if night.ID == "" || night.GroupID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT`+movieNightValues, movieNightArgs(night)...)
	return r.mapper.MapError(err)
}

// CreateMovieNights inserts generated nights in one transaction. Nights that
// collide with an existing (schedule, date) are skipped.
func (r *MovieNightRepository) CreateMovieNights(ctx context.Context, nights []persistence.MovieNight) (int, error) {
	if len(nights) == 0 {
		return 0, nil
	}

	var inserted int
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE`+movieNightValues)
		if err != nil {
			return fmt.Errorf("failed to prepare movie night insert: %w", err)
		}
		defer stmt.Close()

		for _, night := range nights {
			if night.ID == "" || night.GroupID == "" {
				return persistence.ErrConstraintViolation
			}
			result, err := stmt.ExecContext(ctx, movieNightArgs(night)...)
			if err != nil {
				return r.mapper.MapError(err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpdateMovieNight persists status, winner, host and cancellation changes
func (r *MovieNightRepository) UpdateMovieNight(ctx context.Context, night persistence.MovieNight) error {
	if night.ID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE movie_nights
		SET schedule_id = ?, night_date = ?, time = ?, status = ?, is_cancelled = ?, cancel_reason = ?,
			winning_nomination_id = ?, host_id = ?, updated_at = ?
		WHERE id = ?
	`,
		nullableString(night.ScheduleID),
		night.Date,
		night.Time,
		night.Status,
		night.IsCancelled,
		nullableString(night.CancelReason),
		nullableString(night.WinningNominationID),
		nullableString(night.HostID),
		formatTime(night.UpdatedAt),
		night.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// GetMovieNight retrieves a movie night by ID
func (r *MovieNightRepository) GetMovieNight(ctx context.Context, id string) (persistence.MovieNight, error) {
	if id == "" {
		return persistence.MovieNight{}, persistence.ErrNotFound
	}
	night, err := scanMovieNight(r.helper.QueryRow(ctx, `SELECT `+movieNightColumns+` FROM movie_nights WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.MovieNight{}, persistence.ErrNotFound
	}
	return night, err
}

// ListMovieNights retrieves a group's nights in date order
func (r *MovieNightRepository) ListMovieNights(ctx context.Context, groupID string, filter persistence.MovieNightFilter) ([]persistence.MovieNight, error) {
	query := `SELECT ` + movieNightColumns + ` FROM movie_nights WHERE group_id = ?`
	args := []any{groupID}
	if filter.FromDate != "" {
		query += ` AND night_date >= ?`
		args = append(args, filter.FromDate)
	}
	query += ` ORDER BY night_date, time, id`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movie nights: %w", err)
	}
	defer rows.Close()

	var nights []persistence.MovieNight
	for rows.Next() {
		night, err := scanMovieNight(rows)
		if err != nil {
			return nil, err
		}
		nights = append(nights, night)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movie nights: %w", err)
	}
	return nights, nil
}

// CountUpcomingForSchedule counts a schedule's nights dated on or after fromDate
func (r *MovieNightRepository) CountUpcomingForSchedule(ctx context.Context, scheduleID, fromDate string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(*) FROM movie_nights WHERE schedule_id = ? AND night_date >= ?`,
		scheduleID, fromDate,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming nights: %w", err)
	}
	return count, nil
}

// UpsertAttendance sets a user's attendance for a night
func (r *MovieNightRepository) UpsertAttendance(ctx context.Context, attendance persistence.Attendance) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO attendance (movie_night_id, user_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (movie_night_id, user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`,
		attendance.MovieNightID,
		attendance.UserID,
		attendance.Status,
		formatTime(attendance.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ListAttendance retrieves every attendance row for a night
func (r *MovieNightRepository) ListAttendance(ctx context.Context, movieNightID string) ([]persistence.Attendance, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT movie_night_id, user_id, status, updated_at FROM attendance WHERE movie_night_id = ? ORDER BY user_id`,
		movieNightID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []persistence.Attendance
	for rows.Next() {
		var (
			a         persistence.Attendance
			updatedAt string
		)
		if err := rows.Scan(&a.MovieNightID, &a.UserID, &a.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}
	return out, nil
}

func scanMovieNight(row rowScanner) (persistence.MovieNight, error) {
	var (
		night                                      persistence.MovieNight
		scheduleID, cancelReason, winnerID, hostID sql.NullString
		createdAtStr, updatedAtStr                 string
	)
	err := row.Scan(
		&night.ID,
		&night.GroupID,
		&scheduleID,
		&night.Date,
		&night.Time,
		&night.Status,
		&night.IsCancelled,
		&cancelReason,
		&winnerID,
		&hostID,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.MovieNight{}, err
		}
		return persistence.MovieNight{}, fmt.Errorf("failed to scan movie night: %w", err)
	}
	night.ScheduleID = stringPtr(scheduleID)
	night.CancelReason = stringPtr(cancelReason)
	night.WinningNominationID = stringPtr(winnerID)
	night.HostID = stringPtr(hostID)
	if night.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.MovieNight{}, err
	}
	if night.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.MovieNight{}, err
	}
	return night, nil
}
