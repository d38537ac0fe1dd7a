package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/movienight/internal/persistence"
)

// NominationRepository implements persistence.NominationRepository using SQLite
type NominationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNominationRepository creates a new SQLite nomination repository
func NewNominationRepository(pool *ConnectionPool) *NominationRepository {
	return &NominationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const nominationColumns = `id, movie_night_id, nominated_by, plex_rating_key, tmdb_id, title, year, poster_url,
	overview, runtime_minutes, created_at`

// CreateNomination inserts a nomination. A second nomination of the same
// movie for the same night fails with ErrDuplicate.
func (r *NominationRepository) CreateNomination(ctx context.Context, nomination persistence.Nomination) error {
	if nomination.ID == "" || nomination.MovieNightID == "" {
		return persistence.ErrConstraintViolation
	}
	if (nomination.PlexRatingKey == nil) == (nomination.TMDBID == nil) {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO nominations (`+nominationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nomination.ID,
		nomination.MovieNightID,
		nomination.NominatedBy,
		nullableString(nomination.PlexRatingKey),
		nullableInt64(nomination.TMDBID),
		nomination.Title,
		nullableInt(nomination.Year),
		nullableString(nomination.PosterURL),
		nullableString(nomination.Overview),
		nullableInt(nomination.RuntimeMinutes),
		formatTime(nomination.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetNomination retrieves a nomination by ID
func (r *NominationRepository) GetNomination(ctx context.Context, id string) (persistence.Nomination, error) {
	if id == "" {
		return persistence.Nomination{}, persistence.ErrNotFound
	}
	nomination, err := scanNomination(r.helper.QueryRow(ctx, `SELECT `+nominationColumns+` FROM nominations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Nomination{}, persistence.ErrNotFound
	}
	return nomination, err
}

// ListNominations retrieves a night's nominations oldest first
func (r *NominationRepository) ListNominations(ctx context.Context, movieNightID string) ([]persistence.Nomination, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+nominationColumns+` FROM nominations WHERE movie_night_id = ? ORDER BY created_at, id`,
		movieNightID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nominations: %w", err)
	}
	defer rows.Close()

	var nominations []persistence.Nomination
	for rows.Next() {
		nomination, err := scanNomination(rows)
		if err != nil {
			return nil, err
		}
		nominations = append(nominations, nomination)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nominations: %w", err)
	}
	return nominations, nil
}

// DeleteNomination removes a nomination with its votes and blocks
func (r *NominationRepository) DeleteNomination(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM nominations WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// IncrementVote adds one vote inside an immediate transaction so the cap
// check and the write cannot interleave with a concurrent vote.
func (r *NominationRepository) IncrementVote(ctx context.Context, vote persistence.Vote, maxVotes int) (persistence.Vote, error) {
	if vote.NominationID == "" || vote.UserID == "" || vote.MovieNightID == "" {
		return persistence.Vote{}, persistence.ErrConstraintViolation
	}

	var stored persistence.Vote
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var used int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(vote_count), 0) FROM votes WHERE movie_night_id = ? AND user_id = ?`,
			vote.MovieNightID, vote.UserID,
		).Scan(&used); err != nil {
			return fmt.Errorf("failed to sum votes: %w", err)
		}
		if used >= maxVotes {
			return persistence.ErrLimitReached
		}

		var blocked int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM nomination_blocks WHERE nomination_id = ?`, vote.NominationID,
		).Scan(&blocked); err != nil {
			return fmt.Errorf("failed to check blocks: %w", err)
		}
		if blocked > 0 {
			return persistence.ErrBlocked
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO votes (nomination_id, user_id, movie_night_id, vote_count, has_watched, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT (nomination_id, user_id) DO UPDATE SET
				vote_count = vote_count + 1,
				has_watched = excluded.has_watched,
				updated_at = excluded.updated_at
		`,
			vote.NominationID,
			vote.UserID,
			vote.MovieNightID,
			vote.HasWatched,
			formatTime(vote.CreatedAt),
			formatTime(vote.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		stored, err = scanVote(tx.QueryRowContext(ctx,
			`SELECT `+voteColumns+` FROM votes WHERE nomination_id = ? AND user_id = ?`,
			vote.NominationID, vote.UserID,
		))
		return err
	})
	if err != nil {
		return persistence.Vote{}, err
	}
	return stored, nil
}

// DecrementVote removes one vote and returns the remaining count
func (r *NominationRepository) DecrementVote(ctx context.Context, nominationID, userID string, at time.Time) (int, error) {
	var remaining int
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT vote_count FROM votes WHERE nomination_id = ? AND user_id = ?`,
			nominationID, userID,
		).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read vote: %w", err)
		}

		remaining = count - 1
		if remaining <= 0 {
			remaining = 0
			_, err = tx.ExecContext(ctx, `DELETE FROM votes WHERE nomination_id = ? AND user_id = ?`, nominationID, userID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE votes SET vote_count = ?, updated_at = ? WHERE nomination_id = ? AND user_id = ?`,
				remaining, formatTime(at), nominationID, userID,
			)
		}
		return r.mapper.MapError(err)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

const voteColumns = `nomination_id, user_id, movie_night_id, vote_count, has_watched, created_at, updated_at`

// ListVotes retrieves every vote for a night
func (r *NominationRepository) ListVotes(ctx context.Context, movieNightID string) ([]persistence.Vote, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE movie_night_id = ? ORDER BY nomination_id, user_id`,
		movieNightID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []persistence.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating votes: %w", err)
	}
	return votes, nil
}

// CountUserVotes sums a user's votes across a night's nominations
func (r *NominationRepository) CountUserVotes(ctx context.Context, movieNightID, userID string) (int, error) {
	var used int
	err := r.helper.QueryRow(ctx,
		`SELECT COALESCE(SUM(vote_count), 0) FROM votes WHERE movie_night_id = ? AND user_id = ?`,
		movieNightID, userID,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum votes: %w", err)
	}
	return used, nil
}

// BlockNomination records a block and purges the nomination's votes
// atomically. Blocking twice is a no-op.
func (r *NominationRepository) BlockNomination(ctx context.Context, block persistence.NominationBlock) error {
	if block.NominationID == "" || block.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO nomination_blocks (nomination_id, user_id, created_at) VALUES (?, ?, ?)`,
			block.NominationID, block.UserID, formatTime(block.CreatedAt),
		); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE nomination_id = ?`, block.NominationID); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// UnblockNomination removes one user's block
func (r *NominationRepository) UnblockNomination(ctx context.Context, nominationID, userID string) error {
	result, err := r.helper.Exec(ctx,
		`DELETE FROM nomination_blocks WHERE nomination_id = ? AND user_id = ?`,
		nominationID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// ListBlocks retrieves every block on a night's nominations
func (r *NominationRepository) ListBlocks(ctx context.Context, movieNightID string) ([]persistence.NominationBlock, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT b.nomination_id, b.user_id, b.created_at
		FROM nomination_blocks b
		JOIN nominations n ON n.id = b.nomination_id
		WHERE n.movie_night_id = ?
		ORDER BY b.created_at, b.nomination_id, b.user_id
	`, movieNightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []persistence.NominationBlock
	for rows.Next() {
		var (
			block     persistence.NominationBlock
			createdAt string
		)
		if err := rows.Scan(&block.NominationID, &block.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if block.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}
	return blocks, nil
}

func scanNomination(row rowScanner) (persistence.Nomination, error) {
	var (
		n                              persistence.Nomination
		ratingKey, posterURL, overview sql.NullString
		tmdbID, year, runtime          sql.NullInt64
		createdAtStr                   string
	)
	err := row.Scan(
		&n.ID,
		&n.MovieNightID,
		&n.NominatedBy,
		&ratingKey,
		&tmdbID,
		&n.Title,
		&year,
		&posterURL,
		&overview,
		&runtime,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Nomination{}, err
		}
		return persistence.Nomination{}, fmt.Errorf("failed to scan nomination: %w", err)
	}
	n.PlexRatingKey = stringPtr(ratingKey)
	n.TMDBID = int64Ptr(tmdbID)
	n.Year = intPtr(year)
	n.PosterURL = stringPtr(posterURL)
	n.Overview = stringPtr(overview)
	n.RuntimeMinutes = intPtr(runtime)
	if n.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Nomination{}, err
	}
	return n, nil
}

func scanVote(row rowScanner) (persistence.Vote, error) {
	var (
		v                          persistence.Vote
		createdAtStr, updatedAtStr string
	)
	if err := row.Scan(
		&v.NominationID,
		&v.UserID,
		&v.MovieNightID,
		&v.VoteCount,
		&v.HasWatched,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return persistence.Vote{}, fmt.Errorf("failed to scan vote: %w", err)
	}
	var err error
	if v.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Vote{}, err
	}
	if v.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Vote{}, err
	}
	return v, nil
}
