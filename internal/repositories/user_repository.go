package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the presence and profile surface the realtime core needs.
type UserRepository interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	DisplayName(ctx context.Context, userID string) (string, error)
	FindMissing(ctx context.Context, userIDs []string) ([]string, error)
	Get(ctx context.Context, userID string) (models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

// SetOnline records presence and bumps last_seen.
func (r *UserRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET online=?, last_seen=? WHERE id=?`), online, r.now().UTC(), userID)
	return requireRow(res, err, ErrUserNotFound)
}

// DisplayName returns the name shown next to a user's messages.
func (r *UserRepo) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, r.db.Rebind(`SELECT display_name FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return name, err
}

// FindMissing returns the ids among userIDs that have no user record.
func (r *UserRepo) FindMissing(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []string
	for _, id := range userIDs {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Get fetches a user record.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT id, display_name, online, last_seen FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}
