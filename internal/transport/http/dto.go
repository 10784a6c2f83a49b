package http

import (
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SendMessageRequest struct {
	ReceiverID      int64  `json:"receiver_id"`
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type MessageItem struct {
	ID              string     `json:"id"`
	SenderID        string     `json:"sender_id"`
	ReceiverID      string     `json:"receiver_id"`
	Content         string     `json:"content"`
	ClientMessageID string     `json:"client_message_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	Duplicate       bool       `json:"duplicate,omitempty"`
}

type HistoryResponse struct {
	Items           []MessageItem `json:"items"`
	ConversationKey string        `json:"conversation_key"`
	NextCursor      string        `json:"next_cursor,omitempty"`
}

type MarkReadResponse struct {
	MessageID string     `json:"message_id"`
	ReadAt    *time.Time `json:"read_at"`
}

type PresenceResponse struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func toMessageItem(m *domain.Message) MessageItem {
	it := MessageItem{
		ID:         m.ID,
		SenderID:   formatID(m.SenderID),
		ReceiverID: formatID(m.ReceiverID),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.Truncate(time.Millisecond),
		ReadAt:     m.ReadAt,
		Duplicate:  m.Duplicate,
	}
	if m.ClientMessageID != nil {
		it.ClientMessageID = *m.ClientMessageID
	}
	return it
}
