package registry

import (
	"sync"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"

	"github.com/google/uuid"
)

// Sender — исходящий канал одного live-соединения. Реализация (ws)
// обязана не блокировать: очередь ограничена, при переполнении
// соединение сбрасывается транспортом.
type Sender interface {
	Send(ev event.Event) error
	Close() error
}

// Notifier получает переходы счётчика соединений пользователя 0→1 / 1→0.
// Вызывается ровно один раз на переход, вне блокировки реестра;
// переходы одного userID доставляются строго в порядке возникновения.
type Notifier interface {
	HandleOnline(userID int64)
	HandleOffline(userID int64)
}

type connection struct {
	id             string
	userID         int64
	sender         Sender
	establishedAt  time.Time
	lastLivenessAt time.Time
}

// transitions — очередь presence-переходов одного пользователя.
// Переход ставится в очередь под Registry.mu (в порядке принятия решения),
// доставляется вне её; deliver держит единственный доставщик, поэтому
// порядок online/offline для userID никогда не переставляется.
type transitions struct {
	deliver sync.Mutex
	queue   []bool // guarded by Registry.mu; true = online
}

// Registry — реестр live-соединений: connectionID → владелец,
// userID → набор соединений (мультидевайс). Он же выполняет fan-out
// событий по соединениям пользователя.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection           // connID -> connection
	byUser map[int64]map[string]*connection // userID -> set
	trans  map[int64]*transitions           // записи не удаляются: их не больше, чем пользователей

	notifier Notifier
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		conns:  make(map[string]*connection),
		byUser: make(map[int64]map[string]*connection),
		trans:  make(map[int64]*transitions),
		now:    time.Now,
	}
}

// SetNotifier — presence tracker подключается после создания
// (разрывает цикл инициализации registry ↔ tracker).
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

// Admit регистрирует соединение и возвращает сгенерированный connectionID.
// Повторные Admit для того же userID допустимы (несколько устройств).
func (r *Registry) Admit(userID int64, sender Sender) string {
	c := &connection{
		id:             uuid.New().String(),
		userID:         userID,
		sender:         sender,
		establishedAt:  r.now(),
		lastLivenessAt: r.now(),
	}

	r.mu.Lock()
	r.conns[c.id] = c
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]*connection)
		r.byUser[userID] = set
	}
	wasEmpty := len(set) == 0
	set[c.id] = c
	if wasEmpty {
		r.enqueueTransitionLocked(userID, true)
	}
	r.mu.Unlock()

	if wasEmpty {
		r.drainTransitions(userID)
	}
	return c.id
}

// Evict идемпотентен: повторное удаление — no-op.
func (r *Registry) Evict(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	nowEmpty := false
	if set, ok := r.byUser[c.userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, c.userID)
			nowEmpty = true
		}
	}
	if nowEmpty {
		r.enqueueTransitionLocked(c.userID, false)
	}
	r.mu.Unlock()

	// Close вне пути доставки переходов: медленный сокет не может
	// переупорядочить offline/online конкурентного Admit
	_ = c.sender.Close()
	if nowEmpty {
		r.drainTransitions(c.userID)
	}
}

// enqueueTransitionLocked ставит переход в очередь пользователя.
// Вызывается под r.mu — порядок очереди совпадает с порядком решений.
func (r *Registry) enqueueTransitionLocked(userID int64, online bool) {
	t, ok := r.trans[userID]
	if !ok {
		t = &transitions{}
		r.trans[userID] = t
	}
	t.queue = append(t.queue, online)
}

// drainTransitions доставляет накопленные переходы пользователя строго
// по порядку. Доставщик может вычерпать и чужие элементы: конкурентный
// вызов увидит пустую очередь и вернётся сразу.
func (r *Registry) drainTransitions(userID int64) {
	r.mu.RLock()
	t := r.trans[userID]
	r.mu.RUnlock()
	if t == nil {
		return
	}

	t.deliver.Lock()
	defer t.deliver.Unlock()

	for {
		r.mu.Lock()
		if len(t.queue) == 0 {
			r.mu.Unlock()
			return
		}
		online := t.queue[0]
		t.queue = t.queue[1:]
		n := r.notifier
		r.mu.Unlock()

		if n == nil {
			continue
		}
		if online {
			n.HandleOnline(userID)
		} else {
			n.HandleOffline(userID)
		}
	}
}

func (r *Registry) OwnerOf(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return 0, false
	}
	return c.userID, true
}

func (r *Registry) HandlesOf(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IsOnline — есть ли у пользователя хотя бы одно live-соединение.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Heartbeat обновляет lastLivenessAt; неизвестное соединение молча игнорируется.
func (r *Registry) Heartbeat(connID string) {
	r.mu.Lock()
	if c, ok := r.conns[connID]; ok {
		c.lastLivenessAt = r.now()
	}
	r.mu.Unlock()
}

// SweepStale выталкивает соединения без heartbeat дольше timeout.
// Срабатывает обычная семантика Evict (включая presence-переход).
// Возвращает id вытолкнутых соединений.
func (r *Registry) SweepStale(timeout time.Duration) []string {
	deadline := r.now().Add(-timeout)

	r.mu.RLock()
	var stale []string
	for id, c := range r.conns {
		if c.lastLivenessAt.Before(deadline) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Evict(id)
	}
	return stale
}

// --- fan-out ---

// SendToUser рассылает событие на все соединения пользователя (best-effort)
// и возвращает число успешных доставок. 0 — пользователь оффлайн либо
// все очереди закрыты; на персистентность это не влияет (store-and-forward).
func (r *Registry) SendToUser(userID int64, ev event.Event) int {
	r.mu.RLock()
	set := r.byUser[userID]
	senders := make([]Sender, 0, len(set))
	for _, c := range set {
		senders = append(senders, c.sender)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range senders {
		if err := s.Send(ev); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) SendToConn(connID string, ev event.Event) error {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.sender.Send(ev)
}

// BroadcastExcept — рассылка всем, кроме соединений самого subject
// (presence-события не возвращаются их источнику).
func (r *Registry) BroadcastExcept(exceptUserID int64, ev event.Event) {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.conns))
	for _, c := range r.conns {
		if c.userID == exceptUserID {
			continue
		}
		senders = append(senders, c.sender)
	}
	r.mu.RUnlock()

	for _, s := range senders {
		_ = s.Send(ev) // best-effort
	}
}
