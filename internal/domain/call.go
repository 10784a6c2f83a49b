package domain

import "time"

type CallState string

const (
	CallRinging  CallState = "ringing"
	CallActive   CallState = "active"
	CallEnded    CallState = "ended"
	CallRejected CallState = "rejected"
	CallFailed   CallState = "failed"
)

// Terminal — после этих состояний сессия уничтожается.
func (s CallState) Terminal() bool {
	return s == CallEnded || s == CallRejected || s == CallFailed
}

type CallSession struct {
	ID        string    `json:"call_id"`
	CallerID  int64     `json:"caller_id"`
	CalleeID  int64     `json:"callee_id"`
	IsVideo   bool      `json:"is_video"`
	State     CallState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// PairKey — инвариант «не более одного не-терминального звонка на пару».
func (c *CallSession) PairKey() string {
	return ConversationKey(c.CallerID, c.CalleeID)
}

// OtherParty возвращает второго участника звонка.
func (c *CallSession) OtherParty(userID int64) int64 {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

// Involves — участвует ли пользователь в звонке.
func (c *CallSession) Involves(userID int64) bool {
	return userID == c.CallerID || userID == c.CalleeID
}
