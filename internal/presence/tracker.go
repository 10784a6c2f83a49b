package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"
)

// Store — durable-проекция presence (postgres).
type Store interface {
	Upsert(ctx context.Context, rec domain.PresenceRecord) error
	// Touch обновляет only last_seen_at, не трогая is_online:
	// флаг online принадлежит только переходам счётчика соединений.
	Touch(ctx context.Context, userID int64, at time.Time) error
	Get(ctx context.Context, userID int64) (*domain.PresenceRecord, error)
}

// Cache — read-through кэш presence (redis); nil-реализация допускается
// только в тестах, в проде кэш опционален через NoopCache.
type Cache interface {
	Set(ctx context.Context, rec domain.PresenceRecord) error
	Get(ctx context.Context, userID int64) (*domain.PresenceRecord, error)
}

// Broadcaster — рассылка presence-событий всем, кроме самого subject.
type Broadcaster interface {
	BroadcastExcept(exceptUserID int64, ev event.Event)
}

type Tracker struct {
	store Store
	cache Cache
	bc    Broadcaster

	opTimeout time.Duration
	now       func() time.Time
}

func NewTracker(store Store, cache Cache, bc Broadcaster) *Tracker {
	return &Tracker{
		store:     store,
		cache:     cache,
		bc:        bc,
		opTimeout: 5 * time.Second,
		now:       time.Now,
	}
}

// HandleOnline вызывается реестром ровно один раз на переход 0→1.
func (t *Tracker) HandleOnline(userID int64) {
	t.flip(userID, true)
}

// HandleOffline — переход >0→0 (последнее соединение закрылось).
func (t *Tracker) HandleOffline(userID int64) {
	t.flip(userID, false)
}

func (t *Tracker) flip(userID int64, online bool) {
	rec := domain.PresenceRecord{
		UserID:     userID,
		IsOnline:   online,
		LastSeenAt: t.now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opTimeout)
	defer cancel()

	if err := t.store.Upsert(ctx, rec); err != nil {
		slog.Error("presence upsert failed", "user", userID, "online", online, "err", err)
	}
	if err := t.cache.Set(ctx, rec); err != nil {
		slog.Debug("presence cache set failed", "user", userID, "err", err)
	}

	// broadcast вне каких-либо блокировок реестра: subject свои
	// собственные соединения не уведомляются.
	t.bc.BroadcastExcept(userID, event.Event{
		Type: event.TypePresenceUpdate,
		Payload: event.PresenceStatusPayload{
			UserID:     userID,
			IsOnline:   online,
			LastSeenAt: rec.LastSeenAt,
		},
	})
}

// MarkHeartbeat обновляет last_seen без broadcast: состояние здесь
// перевернуться не может, переходы приходят только из реестра.
// Кэш не трогаем — online-флаг heartbeat не знает, TTL догонит.
func (t *Tracker) MarkHeartbeat(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opTimeout)
	defer cancel()

	if err := t.store.Touch(ctx, userID, t.now()); err != nil {
		slog.Debug("presence heartbeat touch failed", "user", userID, "err", err)
	}
}

// Diagnose возвращает presence пользователя: кэш → store → оффлайн-заглушка.
func (t *Tracker) Diagnose(ctx context.Context, userID int64) domain.PresenceRecord {
	if rec, err := t.cache.Get(ctx, userID); err == nil && rec != nil {
		return *rec
	}
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		slog.Error("presence get failed", "user", userID, "err", err)
	}
	if rec == nil {
		// пользователь ни разу не подключался
		return domain.PresenceRecord{UserID: userID, IsOnline: false}
	}
	return *rec
}

// NoopCache — заглушка, когда redis не сконфигурирован.
type NoopCache struct{}

func (NoopCache) Set(context.Context, domain.PresenceRecord) error { return nil }
func (NoopCache) Get(context.Context, int64) (*domain.PresenceRecord, error) {
	return nil, nil
}
