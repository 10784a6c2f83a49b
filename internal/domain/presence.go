package domain

import "time"

type PresenceRecord struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	IsOnline   bool      `db:"is_online" json:"is_online"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}
