package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"huru-chat/internal/models"
)

// GroupRepository abstracts group persistence and membership lifecycle.
// Every membership mutation runs inside a transaction holding a row lock on
// the group, so concurrent mutations on the same group serialize and the
// at-least-one-admin invariant cannot be broken by interleaving.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name, about string, participantIDs []int) (models.GroupSnapshot, error)
	GetGroup(ctx context.Context, groupID int) (models.GroupSnapshot, error)
	IsMember(ctx context.Context, groupID, userID int) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID int) (bool, error)
	AddParticipant(ctx context.Context, groupID, userID int, action string, actorID int) error
	AddParticipants(ctx context.Context, groupID int, userIDs []int, action string, actorID int) ([]int, error)
	PromoteAdmin(ctx context.Context, groupID, userID int, action string, actorID int) error
	Leave(ctx context.Context, groupID, userID int, action string) error
	ForceLeave(ctx context.Context, groupID, targetID int, action string, actorID int) error
	UpdateMetadata(ctx context.Context, groupID, actorID int, name, about, pictureURL *string) (models.Group, string, error)
	History(ctx context.Context, groupID int) ([]models.HistoryEntry, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	DeleteGroup(ctx context.Context, groupID int) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, about, picture_url, created_by, created_at`

// withGroupLock runs fn inside a transaction that holds a FOR UPDATE lock
// on the group row.
func (r *GroupRepo) withGroupLock(ctx context.Context, groupID int, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var id int
	if err = tx.GetContext(ctx, &id, `SELECT id FROM groups WHERE id=$1 FOR UPDATE`, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrGroupNotFound
		}
		return err
	}

	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func appendHistory(ctx context.Context, tx *sqlx.Tx, groupID int, action string, actorID int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO group_history (group_id, action, actor_id) VALUES ($1, $2, $3)`, groupID, action, actorID)
	return err
}

// CreateGroup creates a group, its membership and the opening history entry
// atomically. The creator is always a participant and the first admin.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name, about string, participantIDs []int) (models.GroupSnapshot, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.GroupSnapshot{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE name=$1 AND created_by=$2)`, name, creatorID); err != nil {
		return models.GroupSnapshot{}, err
	}
	if exists {
		err = ErrDuplicateGroupName
		return models.GroupSnapshot{}, err
	}

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, about, created_by) VALUES ($1, $2, $3) RETURNING `+groupColumns, name, about, creatorID).
		StructScan(&group); err != nil {
		return models.GroupSnapshot{}, err
	}

	seen := map[int]struct{}{creatorID: {}}
	participants := []int{creatorID}
	for _, id := range participantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	for _, id := range participants {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, is_admin) VALUES ($1, $2, $3)`, group.ID, id, id == creatorID); err != nil {
			return models.GroupSnapshot{}, err
		}
	}

	if err = appendHistory(ctx, tx, group.ID, "Group created", creatorID); err != nil {
		return models.GroupSnapshot{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.GroupSnapshot{}, err
	}

	return models.GroupSnapshot{Group: group, Participants: participants, Admins: []int{creatorID}}, nil
}

// GetGroup fetches a group with its current participants and admins.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.GroupSnapshot, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupSnapshot{}, ErrGroupNotFound
	}
	if err != nil {
		return models.GroupSnapshot{}, err
	}

	snapshot := models.GroupSnapshot{Group: group}
	if err := r.db.SelectContext(ctx, &snapshot.Participants, `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY user_id`, groupID); err != nil {
		return models.GroupSnapshot{}, err
	}
	if err := r.db.SelectContext(ctx, &snapshot.Admins, `SELECT user_id FROM group_members WHERE group_id=$1 AND is_admin ORDER BY user_id`, groupID); err != nil {
		return models.GroupSnapshot{}, err
	}
	return snapshot, nil
}

// IsMember checks current membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// IsAdmin checks current admin status.
func (r *GroupRepo) IsAdmin(ctx context.Context, groupID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2 AND is_admin)`, groupID, userID)
	return exists, err
}

// AddParticipant adds a single participant and appends one history entry.
func (r *GroupRepo) AddParticipant(ctx context.Context, groupID, userID int, action string, actorID int) error {
	return r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
		if err != nil {
			return err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrAlreadyMember
		}
		return appendHistory(ctx, tx, groupID, action, actorID)
	})
}

// AddParticipants adds a batch of participants, silently skipping users who
// are already members, and appends one history entry per added user.
// Returns the ids actually added.
func (r *GroupRepo) AddParticipants(ctx context.Context, groupID int, userIDs []int, action string, actorID int) ([]int, error) {
	var added []int
	err := r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		for _, userID := range userIDs {
			res, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
			if err != nil {
				return err
			}
			count, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if count == 0 {
				continue
			}
			added = append(added, userID)
			if err := appendHistory(ctx, tx, groupID, fmt.Sprintf("%s (user %d)", action, userID), actorID); err != nil {
				return err
			}
		}
		return nil
	})
	return added, err
}

// PromoteAdmin flags an existing participant as admin.
func (r *GroupRepo) PromoteAdmin(ctx context.Context, groupID, userID int, action string, actorID int) error {
	return r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE group_members SET is_admin = TRUE WHERE group_id=$1 AND user_id=$2 AND is_admin = FALSE`, groupID, userID)
		if err != nil {
			return err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			var isAdmin bool
			if err := tx.GetContext(ctx, &isAdmin, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2 AND is_admin)`, groupID, userID); err != nil {
				return err
			}
			if isAdmin {
				return ErrAlreadyAdmin
			}
			return ErrUserNotFound
		}
		return appendHistory(ctx, tx, groupID, action, actorID)
	})
}

// Leave removes the user voluntarily. The sole admin of a non-empty group
// may not leave; the admin-set check and the removal happen under the same
// group lock.
func (r *GroupRepo) Leave(ctx context.Context, groupID, userID int, action string) error {
	return r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		var member models.GroupMember
		err := tx.GetContext(ctx, &member, `SELECT group_id, user_id, is_admin FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if member.IsAdmin {
			var adminCount int
			if err := tx.GetContext(ctx, &adminCount, `SELECT COUNT(*) FROM group_members WHERE group_id=$1 AND is_admin`, groupID); err != nil {
				return err
			}
			if adminCount == 1 {
				return ErrLastAdminCannotLeave
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID); err != nil {
			return err
		}
		return appendHistory(ctx, tx, groupID, action, userID)
	})
}

// ForceLeave removes the target unconditionally, even a sole admin. This is
// the admin escape hatch; it is distinct from voluntary Leave on purpose.
func (r *GroupRepo) ForceLeave(ctx context.Context, groupID, targetID int, action string, actorID int) error {
	return r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, targetID)
		if err != nil {
			return err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return appendHistory(ctx, tx, groupID, action, actorID)
	})
}

// UpdateMetadata applies name/about/picture changes. Matching the upstream
// behavior, a call changing several fields records a single history entry
// describing only the last field changed. Returns the updated group and
// that action description (empty when nothing changed).
func (r *GroupRepo) UpdateMetadata(ctx context.Context, groupID, actorID int, name, about, pictureURL *string) (models.Group, string, error) {
	var group models.Group
	var action string
	err := r.withGroupLock(ctx, groupID, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID); err != nil {
			return err
		}

		if name != nil && *name != group.Name {
			group.Name = *name
			action = fmt.Sprintf("Group name changed to %s", *name)
		}
		if pictureURL != nil && *pictureURL != group.PictureURL {
			group.PictureURL = *pictureURL
			action = "Group picture updated"
		}
		if about != nil && *about != group.About {
			group.About = *about
			action = fmt.Sprintf("Group about information updated to %s", *about)
		}

		if action == "" {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE groups SET name=$2, about=$3, picture_url=$4 WHERE id=$1`, groupID, group.Name, group.About, group.PictureURL); err != nil {
			return err
		}
		return appendHistory(ctx, tx, groupID, action, actorID)
	})
	return group, action, err
}

// History returns the append-only history log in insertion order.
func (r *GroupRepo) History(ctx context.Context, groupID int) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := r.db.SelectContext(ctx, &entries, `SELECT id, group_id, action, actor_id, occurred_at FROM group_history WHERE group_id=$1 ORDER BY id`, groupID)
	return entries, err
}

// ListGroupsForUser returns groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.about, g.picture_url, g.created_by, g.created_at FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// DeleteGroup removes the group row; members and history cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}
