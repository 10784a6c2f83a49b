package event

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

// Типы событий wire-протокола. Версия схемы фиксируется типом payload,
// произвольных map[string]any в протоколе нет.
const (
	TypeAuthenticate  = "authenticate"
	TypeAuthenticated = "authenticated"
	TypeAuthError     = "auth:error"

	TypeMessageSend      = "message:send"
	TypeMessageDelivered = "message:delivered"
	TypeMessageReceived  = "message:received"
	TypeMessageMarkRead  = "message:markRead"
	TypeMessageRead      = "message:read"

	TypeMessagesSync   = "messages:sync"
	TypeMessagesSynced = "messages:synced"

	TypeTypingStart  = "typing:start"
	TypeTypingStop   = "typing:stop"
	TypeTypingUpdate = "typing:update"

	TypePresenceQuery  = "presence:query"
	TypePresenceStatus = "presence:status"
	TypePresenceUpdate = "presence:update"

	TypeCallOffer        = "call:offer"
	TypeCallRinging      = "call:ringing"
	TypeCallIncoming     = "call:incoming"
	TypeCallAnswer       = "call:answer"
	TypeCallAnswered     = "call:answered"
	TypeCallICECandidate = "call:ice-candidate"
	TypeCallEnd          = "call:end"
	TypeCallEnded        = "call:ended"
	TypeCallReject       = "call:reject"
	TypeCallRejected     = "call:rejected"
	TypeCallFailed       = "call:failed"

	TypeHeartbeat = "heartbeat"
	TypeError     = "error"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// --- клиент → сервер ---

type AuthenticatePayload struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

type MessageSendPayload struct {
	ReceiverID      int64  `json:"receiver_id"`
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type MarkReadPayload struct {
	MessageID string `json:"message_id"`
}

type SyncPayload struct {
	SinceTimestamp time.Time `json:"since_timestamp"`
}

type TypingPayload struct {
	CounterpartID int64 `json:"counterpart_id"`
}

type PresenceQueryPayload struct {
	UserID int64 `json:"user_id"`
}

type CallOfferPayload struct {
	CalleeID int64                     `json:"callee_id"`
	IsVideo  bool                      `json:"is_video"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type CallAnswerPayload struct {
	CallID string                    `json:"call_id"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type CallCandidatePayload struct {
	CallID    string                  `json:"call_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type CallControlPayload struct {
	CallID string `json:"call_id"`
}

// --- сервер → клиент ---

type AuthenticatedPayload struct {
	UserID       int64  `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

type AuthErrorPayload struct {
	Reason string `json:"reason"`
}

type MessageDeliveredPayload struct {
	MessageID       string    `json:"message_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Duplicate       bool      `json:"duplicate,omitempty"`
}

type MessageItem struct {
	ID              string     `json:"id"`
	SenderID        int64      `json:"sender_id"`
	ReceiverID      int64      `json:"receiver_id"`
	Content         string     `json:"content"`
	ClientMessageID string     `json:"client_message_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

type MessageReadPayload struct {
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
	ReadBy    int64     `json:"read_by"`
}

type SyncedPayload struct {
	Messages      []MessageItem `json:"messages"`
	SyncTimestamp time.Time     `json:"sync_timestamp"`
}

type TypingUpdatePayload struct {
	UserID   int64 `json:"user_id"`
	IsTyping bool  `json:"is_typing"`
}

type PresenceStatusPayload struct {
	UserID     int64     `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// CallRingingPayload — ответ инициатору: callId созданной сессии.
type CallRingingPayload struct {
	CallID   string `json:"call_id"`
	CalleeID int64  `json:"callee_id"`
}

type CallIncomingPayload struct {
	CallID   string                    `json:"call_id"`
	CallerID int64                     `json:"caller_id"`
	IsVideo  bool                      `json:"is_video"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type CallAnsweredPayload struct {
	CallID string                    `json:"call_id"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type CallClosedPayload struct {
	CallID string `json:"call_id"`
	ByUser int64  `json:"by_user,omitempty"`
}

type CallFailedPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// RefType — тип события, вызвавшего ошибку.
	RefType string `json:"ref_type,omitempty"`
}

// Decode переливает payload (map после json.Unmarshal конверта)
// в типизированную структуру события.
func Decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
