package postgres

import (
	"context"
	"errors"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository — read-only доступ к внешней таблице аккаунтов.
// Профили ведёт account-сервис, ядро их никогда не изменяет.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Resolve(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, display_name, avatar_url FROM public.users WHERE id=$1`,
		userID).Scan(&u.ID, &u.DisplayName, &u.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
