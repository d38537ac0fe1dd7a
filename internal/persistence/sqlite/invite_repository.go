package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/movienight/internal/persistence"
)

// InviteRepository implements persistence.InviteRepository using SQLite
type InviteRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewInviteRepository creates a new SQLite guest invite repository
func NewInviteRepository(pool *ConnectionPool) *InviteRepository {
	return &InviteRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const inviteColumns = `id, token, movie_night_id, created_by, expires_at, created_at`

// CreateInvite stores a guest invite
func (r *InviteRepository) CreateInvite(ctx context.Context, invite persistence.GuestInvite) error {
	if invite.ID == "" || invite.MovieNightID == "" || strings.TrimSpace(invite.Token) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx,
		`INSERT INTO guest_invites (`+inviteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		invite.ID,
		invite.Token,
		invite.MovieNightID,
		invite.CreatedBy,
		nullableTime(invite.ExpiresAt),
		formatTime(invite.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetInvite retrieves an invite by ID
func (r *InviteRepository) GetInvite(ctx context.Context, id string) (persistence.GuestInvite, error) {
	return r.getOne(ctx, `SELECT `+inviteColumns+` FROM guest_invites WHERE id = ?`, id)
}

// GetInviteByToken retrieves an invite by its public token
func (r *InviteRepository) GetInviteByToken(ctx context.Context, token string) (persistence.GuestInvite, error) {
	return r.getOne(ctx, `SELECT `+inviteColumns+` FROM guest_invites WHERE token = ?`, token)
}

// ListInvites retrieves a night's invites newest first
func (r *InviteRepository) ListInvites(ctx context.Context, movieNightID string) ([]persistence.GuestInvite, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+inviteColumns+` FROM guest_invites WHERE movie_night_id = ? ORDER BY created_at DESC, id`,
		movieNightID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	defer rows.Close()

	var invites []persistence.GuestInvite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}
	return invites, nil
}

// DeleteInvite removes an invite
func (r *InviteRepository) DeleteInvite(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM guest_invites WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

func (r *InviteRepository) getOne(ctx context.Context, query string, arg string) (persistence.GuestInvite, error) {
	if strings.TrimSpace(arg) == "" {
		return persistence.GuestInvite{}, persistence.ErrNotFound
	}
	invite, err := scanInvite(r.helper.QueryRow(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.GuestInvite{}, persistence.ErrNotFound
	}
	return invite, err
}

func scanInvite(row rowScanner) (persistence.GuestInvite, error) {
	var (
		invite       persistence.GuestInvite
		expiresAt    sql.NullString
		createdAtStr string
	)
	err := row.Scan(
		&invite.ID,
		&invite.Token,
		&invite.MovieNightID,
		&invite.CreatedBy,
		&expiresAt,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.GuestInvite{}, err
		}
		return persistence.GuestInvite{}, fmt.Errorf("failed to scan invite: %w", err)
	}
	if invite.ExpiresAt, err = timePtr(expiresAt); err != nil {
		return persistence.GuestInvite{}, err
	}
	if invite.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.GuestInvite{}, err
	}
	return invite, nil
}
