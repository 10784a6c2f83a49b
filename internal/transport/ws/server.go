package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// errMalformedPayload — payload события не распарсился. Классифицируется
// как ошибка валидации: ретраить такой кадр бессмысленно.
var errMalformedPayload = errors.New("malformed event payload")

type Messenger interface {
	Send(ctx context.Context, senderID, receiverID int64, content, clientMessageID string) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID string, readerID int64) (*domain.Message, error)
	Sync(ctx context.Context, userID int64, since time.Time) ([]domain.Message, time.Time, error)
	NotifyTyping(userID, counterpartID int64, isTyping bool)
}

type PresenceSvc interface {
	Diagnose(ctx context.Context, userID int64) domain.PresenceRecord
	MarkHeartbeat(userID int64)
}

type CallSvc interface {
	Initiate(callerID, calleeID int64, isVideo bool, offer webrtc.SessionDescription) (*domain.CallSession, error)
	Answer(callID string, calleeID int64, answer webrtc.SessionDescription) error
	RelayCandidate(callID string, fromUserID int64, cand webrtc.ICECandidateInit)
	Reject(callID string, calleeID int64) error
	End(callID string, byUserID int64)
}

type Accounts interface {
	Resolve(ctx context.Context, userID int64) (*domain.User, error)
}

type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry

	accounts Accounts
	messages Messenger
	presence PresenceSvc
	calls    CallSvc

	pingEvery   time.Duration
	authTimeout time.Duration
	opTimeout   time.Duration
	queueSize   int
}

func NewServer(reg *registry.Registry, accounts Accounts, messages Messenger, presence PresenceSvc, calls CallSvc) *Server {
	return &Server{
		reg:      reg,
		accounts: accounts,
		messages: messages,
		presence: presence,
		calls:    calls,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:   15 * time.Second,
		authTimeout: 10 * time.Second,
		opTimeout:   10 * time.Second,
		queueSize:   64,
	}
}

func (s *Server) SetQueueSize(n int) {
	if n > 0 {
		s.queueSize = n
	}
}

func (s *Server) SetPingInterval(d time.Duration) {
	if d > 0 {
		s.pingEvery = d
	}
}

// WS endpoint: GET /ws. Первый кадр обязан быть authenticate{user_id,token};
// до него никакие события не принимаются.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	userID, err := s.handshake(r.Context(), conn)
	if err != nil {
		slog.Debug("ws handshake rejected", "err", err)
		_ = conn.Close()
		return
	}

	c := newWsConn(conn, userID, s.queueSize)
	connID := s.reg.Admit(userID, c)

	go c.writeLoop(s.pingEvery, func() { s.presence.MarkHeartbeat(userID) })

	_ = c.Send(event.Event{
		Type:    event.TypeAuthenticated,
		Payload: event.AuthenticatedPayload{UserID: userID, ConnectionID: connID},
	})

	s.readLoop(r.Context(), c, connID)

	// обрыв/стоп: обычная семантика eviction, presence обновится сам
	s.reg.Evict(connID)
	slog.Debug("ws disconnected", "user", userID, "conn", connID)
}

// handshake читает и проверяет первый кадр. Таймаут и любой кадр
// кроме authenticate — отказ с auth:error.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (int64, error) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.authTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != event.TypeAuthenticate {
		s.rejectAuth(conn, "authenticate frame expected")
		return 0, domain.ErrAuthRequired
	}
	var p event.AuthenticatePayload
	if err := event.Decode(ev.Payload, &p); err != nil || p.UserID <= 0 {
		s.rejectAuth(conn, "invalid user_id")
		return 0, domain.ErrAuthRequired
	}
	if strings.TrimSpace(p.Token) == "" {
		s.rejectAuth(conn, "missing token")
		return 0, domain.ErrAuthRequired
	}

	rctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if _, err := s.accounts.Resolve(rctx, p.UserID); err != nil {
		s.rejectAuth(conn, "unknown user")
		return 0, domain.ErrAuthRequired
	}

	return p.UserID, nil
}

func (s *Server) rejectAuth(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(event.Event{
		Type:    event.TypeAuthError,
		Payload: event.AuthErrorPayload{Reason: reason},
	})
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, connID string) {
	defer func() { _ = c.Close() }()

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.reg.Heartbeat(connID)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev event.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// мусорный кадр пропускаем, соединение не рвём
			continue
		}
		// события одного соединения обрабатываются в порядке прихода
		s.dispatch(ctx, c, connID, ev)
	}
}

// dispatch выполняет одно входящее событие под серверным таймаутом.
// Бизнес-ошибки возвращаются отправителю и никогда не рвут соединение.
func (s *Server) dispatch(ctx context.Context, c *wsConn, connID string, ev event.Event) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	switch ev.Type {
	case event.TypeHeartbeat:
		s.reg.Heartbeat(connID)
		s.presence.MarkHeartbeat(c.userID)

	case event.TypeMessageSend:
		var p event.MessageSendPayload
		if err := event.Decode(ev.Payload, &p); err != nil {
			s.sendErr(c, ev.Type, errMalformedPayload)
			return
		}
		m, err := s.messages.Send(ctx, c.userID, p.ReceiverID, p.Content, p.ClientMessageID)
		if err != nil {
			s.sendErr(c, ev.Type, err)
			return
		}
		out := event.MessageDeliveredPayload{
			MessageID: m.ID,
			CreatedAt: m.CreatedAt,
			Duplicate: m.Duplicate,
		}
		if m.ClientMessageID != nil {
			out.ClientMessageID = *m.ClientMessageID
		}
		_ = c.Send(event.Event{Type: event.TypeMessageDelivered, Payload: out})

	case event.TypeMessageMarkRead:
		var p event.MarkReadPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.MessageID == "" {
			s.sendErr(c, ev.Type, errMalformedPayload)
			return
		}
		if _, err := s.messages.MarkRead(ctx, p.MessageID, c.userID); err != nil {
			s.sendErr(c, ev.Type, err)
		}

	case event.TypeMessagesSync:
		var p event.SyncPayload
		if err := event.Decode(ev.Payload, &p); err != nil {
			s.sendErr(c, ev.Type, errMalformedPayload)
			return
		}
		msgs, syncTS, err := s.messages.Sync(ctx, c.userID, p.SinceTimestamp)
		if err != nil {
			s.sendErr(c, ev.Type, err)
			return
		}
		_ = c.Send(event.Event{
			Type: event.TypeMessagesSynced,
			Payload: event.SyncedPayload{
				Messages:      syncItems(msgs),
				SyncTimestamp: syncTS,
			},
		})

	case event.TypeTypingStart, event.TypeTypingStop:
		var p event.TypingPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CounterpartID <= 0 {
			return
		}
		s.messages.NotifyTyping(c.userID, p.CounterpartID, ev.Type == event.TypeTypingStart)

	case event.TypePresenceQuery:
		var p event.PresenceQueryPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.UserID <= 0 {
			return
		}
		rec := s.presence.Diagnose(ctx, p.UserID)
		_ = c.Send(event.Event{
			Type: event.TypePresenceStatus,
			Payload: event.PresenceStatusPayload{
				UserID:     rec.UserID,
				IsOnline:   rec.IsOnline,
				LastSeenAt: rec.LastSeenAt,
			},
		})

	case event.TypeCallOffer:
		var p event.CallOfferPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CalleeID <= 0 {
			s.sendErr(c, ev.Type, errMalformedPayload)
			return
		}
		sess, err := s.calls.Initiate(c.userID, p.CalleeID, p.IsVideo, p.Offer)
		if err != nil {
			s.sendErr(c, ev.Type, err)
			return
		}
		_ = c.Send(event.Event{
			Type:    event.TypeCallRinging,
			Payload: event.CallRingingPayload{CallID: sess.ID, CalleeID: sess.CalleeID},
		})

	case event.TypeCallAnswer:
		var p event.CallAnswerPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CallID == "" {
			s.sendErr(c, ev.Type, errMalformedPayload)
			return
		}
		if err := s.calls.Answer(p.CallID, c.userID, p.Answer); err != nil {
			s.sendErr(c, ev.Type, err)
		}

	case event.TypeCallICECandidate:
		var p event.CallCandidatePayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CallID == "" {
			return
		}
		s.calls.RelayCandidate(p.CallID, c.userID, p.Candidate)

	case event.TypeCallReject:
		var p event.CallControlPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CallID == "" {
			return
		}
		if err := s.calls.Reject(p.CallID, c.userID); err != nil {
			s.sendErr(c, ev.Type, err)
		}

	case event.TypeCallEnd:
		var p event.CallControlPayload
		if err := event.Decode(ev.Payload, &p); err != nil || p.CallID == "" {
			return
		}
		// повторный end по завершённому callId — no-op
		s.calls.End(p.CallID, c.userID)

	default:
		// незнакомые типы игнорируем: клиент может быть новее сервера
	}
}

func (s *Server) sendErr(c *wsConn, refType string, err error) {
	_ = c.Send(event.Event{
		Type: event.TypeError,
		Payload: event.ErrorPayload{
			Code:    errCode(err),
			Message: err.Error(),
			RefType: refType,
		},
	})
}

// errCode сводит доменные ошибки к кодам протокола; всё прочее —
// PersistenceFailure (retryable, соединение остаётся открытым).
func errCode(err error) string {
	switch {
	case errors.Is(err, errMalformedPayload),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrContentTooLong):
		return "ValidationFailed"
	case errors.Is(err, domain.ErrRecipientNotFound):
		return "RecipientNotFound"
	case errors.Is(err, domain.ErrMessageNotFound):
		return "NotFound"
	case errors.Is(err, domain.ErrNotReceiver):
		return "NotReceiver"
	case errors.Is(err, domain.ErrCallerBusy):
		return "CallerBusy"
	case errors.Is(err, domain.ErrCalleeUnreachable):
		return "CalleeUnreachable"
	case errors.Is(err, domain.ErrInvalidCallTransition):
		return "InvalidCallTransition"
	case errors.Is(err, domain.ErrAuthRequired):
		return "AuthenticationRequired"
	default:
		return "PersistenceFailure"
	}
}

func syncItems(ms []domain.Message) []event.MessageItem {
	out := make([]event.MessageItem, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		it := event.MessageItem{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			ReadAt:     m.ReadAt,
		}
		if m.ClientMessageID != nil {
			it.ClientMessageID = *m.ClientMessageID
		}
		out = append(out, it)
	}
	return out
}
