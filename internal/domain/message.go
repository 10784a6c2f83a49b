package domain

import "time"

type Message struct {
	ID              string     `db:"id"`
	SenderID        int64      `db:"sender_id"`
	ReceiverID      int64      `db:"receiver_id"`
	Content         string     `db:"content"`
	ClientMessageID *string    `db:"client_message_id"`
	CreatedAt       time.Time  `db:"created_at"`
	ReadAt          *time.Time `db:"read_at"`

	// Duplicate = true, если Send вернул уже существующую строку
	// по idempotency-токену (повторная отправка того же сообщения).
	Duplicate bool `db:"-"`
}
