package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"

	"github.com/oklog/ulid/v2"
)

type MessageRepo interface {
	Insert(ctx context.Context, m *domain.Message, dedupWindow time.Duration) (*domain.Message, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	MarkRead(ctx context.Context, id string, readerID int64) (*domain.Message, bool, error)
	ListPair(ctx context.Context, userID, otherID int64, since *time.Time, beforeID string, limit int) ([]domain.Message, error)
	ListInbox(ctx context.Context, userID int64, since time.Time, limit int) ([]domain.Message, error)
}

// Accounts — внешний account store; ядро только читает профили.
type Accounts interface {
	Resolve(ctx context.Context, userID int64) (*domain.User, error)
}

// Broadcaster — fan-out по live-соединениям получателя.
type Broadcaster interface {
	SendToUser(userID int64, ev event.Event) int
}

type MessageService struct {
	repo     MessageRepo
	accounts Accounts
	bc       Broadcaster

	maxContentLen int
	dedupWindow   time.Duration
}

func NewMessageService(repo MessageRepo, accounts Accounts, bc Broadcaster, maxContentLen int, dedupWindow time.Duration) *MessageService {
	if maxContentLen <= 0 {
		maxContentLen = 1000
	}
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Minute
	}
	return &MessageService{
		repo:          repo,
		accounts:      accounts,
		bc:            bc,
		maxContentLen: maxContentLen,
		dedupWindow:   dedupWindow,
	}
}

// normalizeContent схлопывает пробельные последовательности до одного пробела.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Send — store-and-forward: сообщение сохраняется независимо от
// достижимости получателя; live-доставка best-effort после коммита.
// Повторная отправка с тем же client_message_id возвращает исходную
// строку (Duplicate=true) и не рассылается второй раз.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID int64, content, clientMessageID string) (*domain.Message, error) {
	content = normalizeContent(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if len([]rune(content)) > s.maxContentLen {
		return nil, domain.ErrContentTooLong
	}

	if _, err := s.accounts.Resolve(ctx, receiverID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}

	m := &domain.Message{
		ID:         ulid.Make().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if clientMessageID != "" {
		m.ClientMessageID = &clientMessageID
	}

	stored, err := s.repo.Insert(ctx, m, s.dedupWindow)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	if !stored.Duplicate {
		delivered := s.bc.SendToUser(receiverID, event.Event{
			Type:    event.TypeMessageReceived,
			Payload: messageItem(stored),
		})
		slog.Debug("message stored",
			"id", stored.ID, "sender", senderID, "receiver", receiverID,
			"live_deliveries", delivered)
	}
	return stored, nil
}

// MarkRead принимается только от получателя; read_at ставится один раз,
// повторные вызовы возвращают исходную отметку без нового broadcast.
func (s *MessageService) MarkRead(ctx context.Context, messageID string, readerID int64) (*domain.Message, error) {
	m, updated, err := s.repo.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return nil, err
	}
	if updated && m.ReadAt != nil {
		s.bc.SendToUser(m.SenderID, event.Event{
			Type: event.TypeMessageRead,
			Payload: event.MessageReadPayload{
				MessageID: m.ID,
				ReadAt:    *m.ReadAt,
				ReadBy:    readerID,
			},
		})
	}
	return m, nil
}

type HistoryOptions struct {
	Since    *time.Time
	BeforeID string
	Limit    int
}

// History — переписка пары в восходящем порядке created_at.
func (s *MessageService) History(ctx context.Context, userID, otherID int64, opts HistoryOptions) ([]domain.Message, error) {
	limit := clampLimit(opts.Limit, 50, 100)
	return s.repo.ListPair(ctx, userID, otherID, opts.Since, opts.BeforeID, limit)
}

// Sync отдаёт сообщения, адресованные userID, с created_at > since.
// Идемпотентен: повторный вызов с тем же since даёт тот же результат.
func (s *MessageService) Sync(ctx context.Context, userID int64, since time.Time) ([]domain.Message, time.Time, error) {
	msgs, err := s.repo.ListInbox(ctx, userID, since, 500)
	if err != nil {
		return nil, time.Time{}, err
	}
	syncTS := time.Now()
	if len(msgs) > 0 {
		syncTS = msgs[len(msgs)-1].CreatedAt
	}
	return msgs, syncTS, nil
}

// NotifyTyping ретранслирует индикатор набора второй стороне,
// ничего не сохраняя.
func (s *MessageService) NotifyTyping(userID, counterpartID int64, isTyping bool) {
	s.bc.SendToUser(counterpartID, event.Event{
		Type:    event.TypeTypingUpdate,
		Payload: event.TypingUpdatePayload{UserID: userID, IsTyping: isTyping},
	})
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func messageItem(m *domain.Message) event.MessageItem {
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
	return it
}
