package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	Create(ctx context.Context, group models.Group) error
	FindByID(ctx context.Context, groupID string) (models.Group, error)
	FindByMember(ctx context.Context, userID string) ([]models.Group, error)
	Save(ctx context.Context, group models.Group) error
	DeleteByID(ctx context.Context, groupID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, created_by, picture_url, music_url, created_at, updated_at`

// Create inserts a group and its members atomically.
func (r *GroupRepo) Create(ctx context.Context, group models.Group) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO chat_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		group.ID, group.Name, group.CreatedBy, group.PictureURL, group.MusicURL, group.CreatedAt.UTC(), group.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if err = r.writeMembers(ctx, tx, group); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByID loads a group with its members and admins.
func (r *GroupRepo) FindByID(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, r.db.Rebind(`SELECT `+groupColumns+` FROM chat_groups WHERE id=?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}

	groups := []models.Group{group}
	if err := r.attachMembers(ctx, groups); err != nil {
		return models.Group{}, err
	}
	return groups[0], nil
}

// FindByMember returns every group that lists userID as a member, newest first.
func (r *GroupRepo) FindByMember(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, r.db.Rebind(`SELECT g.id, g.name, g.created_by, g.picture_url, g.music_url, g.created_at, g.updated_at
        FROM chat_groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=? ORDER BY g.created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Save overwrites the mutable fields and the full member list.
func (r *GroupRepo) Save(ctx context.Context, group models.Group) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE chat_groups SET name=?, picture_url=?, music_url=?, updated_at=? WHERE id=?`),
		group.Name, group.PictureURL, group.MusicURL, group.UpdatedAt.UTC(), group.ID)
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

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM group_members WHERE group_id=?`), group.ID); err != nil {
		return err
	}
	if err = r.writeMembers(ctx, tx, group); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByID removes a group and its membership rows.
func (r *GroupRepo) DeleteByID(ctx context.Context, groupID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM group_members WHERE group_id=?`), groupID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM chat_groups WHERE id=?`), groupID)
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
	return tx.Commit()
}

func (r *GroupRepo) writeMembers(ctx context.Context, tx *sqlx.Tx, group models.Group) error {
	insert := r.db.Rebind(`INSERT INTO group_members (group_id, user_id, is_admin) VALUES (?, ?, ?)`)
	for _, userID := range group.Members {
		if _, err := tx.ExecContext(ctx, insert, group.ID, userID, group.IsAdmin(userID)); err != nil {
			return fmt.Errorf("insert member %s: %w", userID, err)
		}
	}
	return nil
}

func (r *GroupRepo) attachMembers(ctx context.Context, groups []models.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := make([]string, 0, len(groups))
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		ids = append(ids, g.ID)
		index[g.ID] = i
		groups[i].Members = []string{}
		groups[i].Admins = []string{}
	}

	query, args, err := sqlx.In(`SELECT group_id, user_id, is_admin FROM group_members WHERE group_id IN (?) ORDER BY group_id, user_id`, ids)
	if err != nil {
		return err
	}
	var rows []models.GroupMember
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		i, ok := index[row.GroupID]
		if !ok {
			continue
		}
		groups[i].Members = append(groups[i].Members, row.UserID)
		if row.IsAdmin {
			groups[i].Admins = append(groups[i].Admins, row.UserID)
		}
	}
	return nil
}
