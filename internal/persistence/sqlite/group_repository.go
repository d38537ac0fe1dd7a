package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/movienight/internal/persistence"
)

// GroupRepository implements persistence.GroupRepository using SQLite
type GroupRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewGroupRepository creates a new SQLite group repository
func NewGroupRepository(pool *ConnectionPool) *GroupRepository {
	return &GroupRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const groupColumns = `id, name, description, max_votes_per_user, sharing_enabled, invite_pin, created_by, created_at, updated_at`

// CreateGroup inserts a group together with its owner's admin membership
func (r *GroupRepository) CreateGroup(ctx context.Context, group persistence.Group, owner persistence.GroupMember) error {
	if group.ID == "" || strings.TrimSpace(group.Name) == "" || owner.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO movie_groups (`+groupColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			group.ID,
			group.Name,
			nullableString(group.Description),
			group.MaxVotesPerUser,
			group.SharingEnabled,
			nullableString(group.InvitePIN),
			group.CreatedBy,
			formatTime(group.CreatedAt),
			formatTime(group.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			group.ID, owner.UserID, owner.Role, formatTime(owner.JoinedAt),
		)
		return r.mapper.MapError(err)
	})
}

// UpdateGroup updates a group's editable fields
func (r *GroupRepository) UpdateGroup(ctx context.Context, group persistence.Group) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE movie_groups
		SET name = ?, description = ?, max_votes_per_user = ?, sharing_enabled = ?, invite_pin = ?, updated_at = ?
		WHERE id = ?
	`,
		group.Name,
		nullableString(group.Description),
		group.MaxVotesPerUser,
		group.SharingEnabled,
		nullableString(group.InvitePIN),
		formatTime(group.UpdatedAt),
		group.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// GetGroup retrieves a group by ID
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	if id == "" {
		return persistence.Group{}, persistence.ErrNotFound
	}
	group, err := scanGroup(r.helper.QueryRow(ctx, `SELECT `+groupColumns+` FROM movie_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return group, err
}

// ListGroups retrieves every group ordered by name
func (r *GroupRepository) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	return r.list(ctx, `SELECT `+groupColumns+` FROM movie_groups ORDER BY name COLLATE NOCASE, id`)
}

// ListGroupsForUser retrieves the groups a user belongs to
func (r *GroupRepository) ListGroupsForUser(ctx context.Context, userID string) ([]persistence.Group, error) {
	return r.list(ctx, `
		SELECT g.id, g.name, g.description, g.max_votes_per_user, g.sharing_enabled, g.invite_pin,
			g.created_by, g.created_at, g.updated_at
		FROM movie_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.name COLLATE NOCASE, g.id
	`, userID)
}

// DeleteGroup removes a group. Schedules, nights, nominations, votes, blocks,
// attendance, invites and memberships go with it through ON DELETE CASCADE;
// invite sessions scoped to its nights are revoked in the same transaction.
func (r *GroupRepository) DeleteGroup(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM sessions
			WHERE movie_night_id IN (SELECT id FROM movie_nights WHERE group_id = ?)
		`, id); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM movie_groups WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return rowsAffected(result)
	})
}

// AddMember inserts a membership
func (r *GroupRepository) AddMember(ctx context.Context, member persistence.GroupMember) error {
	if member.GroupID == "" || member.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		member.GroupID, member.UserID, member.Role, formatTime(member.JoinedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateMemberRole changes a member's role
func (r *GroupRepository) UpdateMemberRole(ctx context.Context, groupID, userID, role string) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE group_members SET role = ? WHERE group_id = ? AND user_id = ?`,
		role, groupID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// RemoveMember deletes a membership
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	result, err := r.helper.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

const memberSelect = `
	SELECT m.group_id, m.user_id, m.role, m.joined_at, u.username, u.display_name, u.avatar_url
	FROM group_members m
	JOIN users u ON u.id = m.user_id
`

// GetMember retrieves one membership
func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID string) (persistence.GroupMember, error) {
	member, err := scanMember(r.helper.QueryRow(ctx, memberSelect+` WHERE m.group_id = ? AND m.user_id = ?`, groupID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.GroupMember{}, persistence.ErrNotFound
	}
	return member, err
}

// ListMembers retrieves a group's members ordered by display name
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]persistence.GroupMember, error) {
	rows, err := r.helper.Query(ctx, memberSelect+` WHERE m.group_id = ? ORDER BY u.display_name COLLATE NOCASE, u.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []persistence.GroupMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func (r *GroupRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Group, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []persistence.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}

func scanGroup(row rowScanner) (persistence.Group, error) {
	var (
		group                      persistence.Group
		description, invitePIN     sql.NullString
		createdAtStr, updatedAtStr string
	)
	err := row.Scan(
		&group.ID,
		&group.Name,
		&description,
		&group.MaxVotesPerUser,
		&group.SharingEnabled,
		&invitePIN,
		&group.CreatedBy,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Group{}, err
		}
		return persistence.Group{}, fmt.Errorf("failed to scan group: %w", err)
	}

	group.Description = stringPtr(description)
	group.InvitePIN = stringPtr(invitePIN)
	if group.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Group{}, err
	}
	if group.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Group{}, err
	}
	return group, nil
}

func scanMember(row rowScanner) (persistence.GroupMember, error) {
	var (
		member    persistence.GroupMember
		joinedAt  string
		avatarURL sql.NullString
	)
	err := row.Scan(
		&member.GroupID,
		&member.UserID,
		&member.Role,
		&joinedAt,
		&member.Username,
		&member.DisplayName,
		&avatarURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.GroupMember{}, err
		}
		return persistence.GroupMember{}, fmt.Errorf("failed to scan member: %w", err)
	}
	member.AvatarURL = stringPtr(avatarURL)
	if member.JoinedAt, err = parseTime(joinedAt); err != nil {
		return persistence.GroupMember{}, err
	}
	return member, nil
}
