package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PresenceRepository struct {
	db *pgxpool.Pool
}

func NewPresenceRepository(db *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET is_online = EXCLUDED.is_online,
			    last_seen_at = EXCLUDED.last_seen_at`,
		rec.UserID, rec.IsOnline, rec.LastSeenAt)
	return err
}

// Touch обновляет last_seen_at, сохраняя текущий is_online.
func (r *PresenceRepository) Touch(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen_at)
		VALUES ($1, false, $2)
		ON CONFLICT (user_id) DO UPDATE
			SET last_seen_at = EXCLUDED.last_seen_at`,
		userID, at)
	return err
}

// Get возвращает (nil, nil), если пользователь ни разу не подключался.
func (r *PresenceRepository) Get(ctx context.Context, userID int64) (*domain.PresenceRecord, error) {
	var rec domain.PresenceRecord
	err := r.db.QueryRow(ctx,
		`SELECT user_id, is_online, last_seen_at FROM presence WHERE user_id=$1`,
		userID).Scan(&rec.UserID, &rec.IsOnline, &rec.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
