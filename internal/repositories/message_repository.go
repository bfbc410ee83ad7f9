package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	FindByID(ctx context.Context, messageID string) (models.Message, error)
	FindByGroup(ctx context.Context, groupID string, page, limit int) ([]models.Message, error)
	UpdateStatus(ctx context.Context, messageID string, status models.MessageStatus) error
	UpdateContent(ctx context.Context, msg models.Message) error
	AddDeletedFor(ctx context.Context, messageID string, userID string) error
	DeleteByGroup(ctx context.Context, groupID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, sender_id, sender_name, type, content, file_type, file_name, duration, status, deleted_for_all, pinned, created_at`

// Create stores a new message.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.GroupID, msg.SenderID, msg.SenderDisplayName, msg.Type, msg.Content, msg.FileType, msg.FileName,
		msg.Duration, msg.Status, msg.DeletedForAll, msg.Pinned, msg.CreatedAt.UTC())
	return err
}

// FindByID retrieves a single message with its per-user deletions.
func (r *MessageRepo) FindByID(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id=?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	msgs := []models.Message{msg}
	if err := r.attachDeletions(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// FindByGroup returns one page of a group's messages, newest first.
func (r *MessageRepo) FindByGroup(ctx context.Context, groupID string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE group_id=?
        ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	if err := r.attachDeletions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateStatus overwrites the delivery status.
func (r *MessageRepo) UpdateStatus(ctx context.Context, messageID string, status models.MessageStatus) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET status=? WHERE id=?`), status, messageID)
	return requireRow(res, err, ErrMessageNotFound)
}

// UpdateContent rewrites the body of a message and clears its per-user deletions.
func (r *MessageRepo) UpdateContent(ctx context.Context, msg models.Message) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET type=?, content=?, file_type=?, file_name=?, duration=?, deleted_for_all=? WHERE id=?`),
		msg.Type, msg.Content, msg.FileType, msg.FileName, msg.Duration, msg.DeletedForAll, msg.ID)
	if err = requireRow(res, err, ErrMessageNotFound); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM message_deletions WHERE message_id=?`), msg.ID); err != nil {
		return err
	}
	for _, userID := range msg.DeletedFor {
		if _, err = tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO message_deletions (message_id, user_id) VALUES (?, ?)`), msg.ID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddDeletedFor hides a message for one user. Repeating it is a no-op.
func (r *MessageRepo) AddDeletedFor(ctx context.Context, messageID string, userID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO message_deletions (message_id, user_id) VALUES (?, ?)
        ON CONFLICT (message_id, user_id) DO NOTHING`), messageID, userID)
	return err
}

// DeleteByGroup removes every message of a group.
func (r *MessageRepo) DeleteByGroup(ctx context.Context, groupID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM message_deletions WHERE message_id IN (SELECT id FROM messages WHERE group_id=?)`), groupID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM messages WHERE group_id=?`), groupID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MessageRepo) attachDeletions(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		ids = append(ids, m.ID)
		index[m.ID] = i
		msgs[i].DeletedFor = []string{}
	}

	query, args, err := sqlx.In(`SELECT message_id, user_id FROM message_deletions WHERE message_id IN (?) ORDER BY user_id`, ids)
	if err != nil {
		return err
	}
	var rows []struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		if i, ok := index[row.MessageID]; ok {
			msgs[i].DeletedFor = append(msgs[i].DeletedFor, row.UserID)
		}
	}
	return nil
}

func requireRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
