package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"
)

type fakeRepo struct {
	inserted []*domain.Message
	byClient map[string]*domain.Message // client_message_id -> исходная строка

	markReadMsg     *domain.Message
	markReadUpdated bool
	markReadErr     error

	inbox []domain.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byClient: make(map[string]*domain.Message)}
}

func (f *fakeRepo) Insert(_ context.Context, m *domain.Message, _ time.Duration) (*domain.Message, error) {
	if m.ClientMessageID != nil {
		if orig, ok := f.byClient[*m.ClientMessageID]; ok {
			dup := *orig
			dup.Duplicate = true
			return &dup, nil
		}
	}
	stored := *m
	stored.CreatedAt = time.Now()
	f.inserted = append(f.inserted, &stored)
	if m.ClientMessageID != nil {
		f.byClient[*m.ClientMessageID] = &stored
	}
	out := stored
	return &out, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*domain.Message, error) {
	for _, m := range f.inserted {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (f *fakeRepo) MarkRead(_ context.Context, _ string, _ int64) (*domain.Message, bool, error) {
	return f.markReadMsg, f.markReadUpdated, f.markReadErr
}

func (f *fakeRepo) ListPair(_ context.Context, _, _ int64, _ *time.Time, _ string, limit int) ([]domain.Message, error) {
	if limit < len(f.inbox) {
		return f.inbox[:limit], nil
	}
	return f.inbox, nil
}

func (f *fakeRepo) ListInbox(_ context.Context, _ int64, _ time.Time, _ int) ([]domain.Message, error) {
	return f.inbox, nil
}

type fakeAccounts struct {
	known map[int64]bool
}

func (f *fakeAccounts) Resolve(_ context.Context, userID int64) (*domain.User, error) {
	if !f.known[userID] {
		return nil, domain.ErrUserNotFound
	}
	return &domain.User{ID: userID}, nil
}

type fakeBroadcaster struct {
	events    []event.Event
	toUser    []int64
	delivered int
}

func (f *fakeBroadcaster) SendToUser(userID int64, ev event.Event) int {
	f.toUser = append(f.toUser, userID)
	f.events = append(f.events, ev)
	return f.delivered
}

func newSvc(repo *fakeRepo, bc *fakeBroadcaster) *MessageService {
	return NewMessageService(repo, &fakeAccounts{known: map[int64]bool{1: true, 2: true}}, bc, 1000, 5*time.Minute)
}

func TestSendValidation(t *testing.T) {
	svc := newSvc(newFakeRepo(), &fakeBroadcaster{})
	ctx := context.Background()

	if _, err := svc.Send(ctx, 1, 2, "   \t\n ", ""); !errors.Is(err, domain.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	long := strings.Repeat("я", 1001)
	if _, err := svc.Send(ctx, 1, 2, long, ""); !errors.Is(err, domain.ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	// ровно на границе — проходит (длина в рунах, не в байтах)
	if _, err := svc.Send(ctx, 1, 2, strings.Repeat("я", 1000), ""); err != nil {
		t.Fatalf("boundary length must pass: %v", err)
	}
	if _, err := svc.Send(ctx, 1, 99, "hi", ""); !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestSendNormalizesWhitespace(t *testing.T) {
	repo := newFakeRepo()
	svc := newSvc(repo, &fakeBroadcaster{})

	m, err := svc.Send(context.Background(), 1, 2, "  hello \t\n  world  ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Content != "hello world" {
		t.Fatalf("expected normalized content, got %q", m.Content)
	}
}

func TestSendStoreAndForward(t *testing.T) {
	repo := newFakeRepo()
	bc := &fakeBroadcaster{delivered: 0} // получатель оффлайн
	svc := newSvc(repo, bc)

	m, err := svc.Send(context.Background(), 1, 2, "hi", "c-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.ID == "" || m.Duplicate {
		t.Fatalf("expected fresh stored message, got %+v", m)
	}
	// сохранено несмотря на нулевую live-доставку
	if len(repo.inserted) != 1 {
		t.Fatalf("message must be persisted regardless of delivery")
	}
	if len(bc.events) != 1 || bc.events[0].Type != event.TypeMessageReceived || bc.toUser[0] != 2 {
		t.Fatalf("expected one message:received for the receiver, got %+v", bc.events)
	}
}

func TestSendDuplicateNotRebroadcast(t *testing.T) {
	repo := newFakeRepo()
	bc := &fakeBroadcaster{}
	svc := newSvc(repo, bc)
	ctx := context.Background()

	first, err := svc.Send(ctx, 1, 2, "hi", "c-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := svc.Send(ctx, 1, 2, "hi", "c-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	if !second.Duplicate || second.ID != first.ID {
		t.Fatalf("retry must return the original row, got %+v", second)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("retry must not create a second row")
	}
	if len(bc.events) != 1 {
		t.Fatalf("duplicate must not be broadcast again, got %d events", len(bc.events))
	}
}

func TestMarkReadBroadcastsOnce(t *testing.T) {
	at := time.Now()
	repo := newFakeRepo()
	repo.markReadMsg = &domain.Message{ID: "m1", SenderID: 1, ReceiverID: 2, ReadAt: &at}
	repo.markReadUpdated = true
	bc := &fakeBroadcaster{}
	svc := newSvc(repo, bc)

	m, err := svc.MarkRead(context.Background(), "m1", 2)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if m.ReadAt == nil {
		t.Fatalf("expected read_at set")
	}
	if len(bc.events) != 1 || bc.events[0].Type != event.TypeMessageRead || bc.toUser[0] != 1 {
		t.Fatalf("sender must get message:read, got %+v", bc.events)
	}

	// повторная отметка: updated=false, нового broadcast нет
	repo.markReadUpdated = false
	if _, err := svc.MarkRead(context.Background(), "m1", 2); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if len(bc.events) != 1 {
		t.Fatalf("repeat mark read must not broadcast")
	}
}

func TestMarkReadErrorsPassThrough(t *testing.T) {
	repo := newFakeRepo()
	repo.markReadErr = domain.ErrNotReceiver
	svc := newSvc(repo, &fakeBroadcaster{})

	if _, err := svc.MarkRead(context.Background(), "m1", 1); !errors.Is(err, domain.ErrNotReceiver) {
		t.Fatalf("expected ErrNotReceiver, got %v", err)
	}
}

func TestSyncTimestamps(t *testing.T) {
	repo := newFakeRepo()
	svc := newSvc(repo, &fakeBroadcaster{})
	ctx := context.Background()

	// пустой инбокс: sync_timestamp — текущее время
	before := time.Now()
	msgs, ts, err := svc.Sync(ctx, 2, time.Time{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(msgs) != 0 || ts.Before(before) {
		t.Fatalf("empty sync must return now, got %v", ts)
	}

	last := time.Now().Add(-time.Minute)
	repo.inbox = []domain.Message{
		{ID: "a", CreatedAt: last.Add(-time.Minute)},
		{ID: "b", CreatedAt: last},
	}
	msgs, ts, err = svc.Sync(ctx, 2, time.Time{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(msgs) != 2 || !ts.Equal(last) {
		t.Fatalf("sync_timestamp must be the last created_at, got %v", ts)
	}
}

func TestHistoryLimitClamp(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 200; i++ {
		repo.inbox = append(repo.inbox, domain.Message{ID: "m"})
	}
	svc := newSvc(repo, &fakeBroadcaster{})
	ctx := context.Background()

	msgs, err := svc.History(ctx, 1, 2, HistoryOptions{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 50 {
		t.Fatalf("default limit must be 50, got %d", len(msgs))
	}

	msgs, _ = svc.History(ctx, 1, 2, HistoryOptions{Limit: 1000})
	if len(msgs) != 100 {
		t.Fatalf("limit must be clamped to 100, got %d", len(msgs))
	}
}

func TestNotifyTyping(t *testing.T) {
	bc := &fakeBroadcaster{}
	svc := newSvc(newFakeRepo(), bc)

	svc.NotifyTyping(1, 2, true)
	if len(bc.events) != 1 || bc.events[0].Type != event.TypeTypingUpdate || bc.toUser[0] != 2 {
		t.Fatalf("expected typing:update for the counterpart, got %+v", bc.events)
	}
	p, ok := bc.events[0].Payload.(event.TypingUpdatePayload)
	if !ok || !p.IsTyping || p.UserID != 1 {
		t.Fatalf("unexpected typing payload: %+v", bc.events[0].Payload)
	}
}
