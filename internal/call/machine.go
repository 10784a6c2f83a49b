package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"

	"github.com/oklog/ulid/v2"
	"github.com/pion/webrtc/v4"
)

const (
	ReasonTimeout          = "timeout"
	ReasonPeerDisconnected = "peer_disconnected"
)

// Signaler — доставка сигнальных событий участникам звонка.
// Реализуется реестром соединений.
type Signaler interface {
	SendToUser(userID int64, ev event.Event) int
	IsOnline(userID int64) bool
}

// Machine владеет всеми CallSession на время их жизни. Сессии
// эфемерны: терминальное состояние — и сессия удаляется из индексов.
// Single-instance: состояние звонков живёт только в памяти процесса.
type Machine struct {
	sig         Signaler
	ringTimeout time.Duration

	mu     sync.Mutex
	byID   map[string]*domain.CallSession
	byUser map[int64]map[string]struct{} // userID -> набор не-терминальных callID
	byPair map[string]string             // pairKey -> callID

	now func() time.Time
}

func NewMachine(sig Signaler, ringTimeout time.Duration) *Machine {
	if ringTimeout <= 0 {
		ringTimeout = 60 * time.Second
	}
	return &Machine{
		sig:         sig,
		ringTimeout: ringTimeout,
		byID:        make(map[string]*domain.CallSession),
		byUser:      make(map[int64]map[string]struct{}),
		byPair:      make(map[string]string),
		now:         time.Now,
	}
}

// Initiate создаёт сессию Ringing и доставляет call:incoming на все
// соединения callee. Недостижимость callee — жёсткий пречек до создания.
func (m *Machine) Initiate(callerID, calleeID int64, isVideo bool, offer webrtc.SessionDescription) (*domain.CallSession, error) {
	if !m.sig.IsOnline(calleeID) {
		return nil, domain.ErrCalleeUnreachable
	}

	m.mu.Lock()
	// callee может одновременно быть стороной другого звонка,
	// поэтому byUser — набор, а занятость проверяется по его размеру
	if len(m.byUser[callerID]) > 0 {
		m.mu.Unlock()
		return nil, domain.ErrCallerBusy
	}
	pair := domain.ConversationKey(callerID, calleeID)
	if _, busy := m.byPair[pair]; busy {
		m.mu.Unlock()
		return nil, domain.ErrCallerBusy
	}

	s := &domain.CallSession{
		ID:        ulid.Make().String(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		IsVideo:   isVideo,
		State:     domain.CallRinging,
		CreatedAt: m.now(),
	}
	m.byID[s.ID] = s
	m.addUserCallLocked(callerID, s.ID)
	m.addUserCallLocked(calleeID, s.ID)
	m.byPair[pair] = s.ID
	snapshot := *s
	m.mu.Unlock()

	// доставка вне блокировки
	m.sig.SendToUser(calleeID, event.Event{
		Type: event.TypeCallIncoming,
		Payload: event.CallIncomingPayload{
			CallID:   snapshot.ID,
			CallerID: callerID,
			IsVideo:  isVideo,
			Offer:    offer,
		},
	})
	slog.Info("call initiated", "call", snapshot.ID, "caller", callerID, "callee", calleeID, "video", isVideo)
	return &snapshot, nil
}

// Answer: только callee, только из Ringing. Первый ответ выигрывает —
// второй конкурентный Answer получает ErrInvalidCallTransition.
func (m *Machine) Answer(callID string, calleeID int64, answer webrtc.SessionDescription) error {
	m.mu.Lock()
	s, ok := m.byID[callID]
	if !ok || s.CalleeID != calleeID || s.State != domain.CallRinging {
		m.mu.Unlock()
		return domain.ErrInvalidCallTransition
	}
	s.State = domain.CallActive
	callerID := s.CallerID
	m.mu.Unlock()

	m.sig.SendToUser(callerID, event.Event{
		Type:    event.TypeCallAnswered,
		Payload: event.CallAnsweredPayload{CallID: callID, Answer: answer},
	})
	slog.Info("call answered", "call", callID, "callee", calleeID)
	return nil
}

// RelayCandidate пересылает ICE-кандидата второй стороне без смены
// состояния. Поздние кандидаты после hangup — не ошибка: молча отбрасываются.
func (m *Machine) RelayCandidate(callID string, fromUserID int64, cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	s, ok := m.byID[callID]
	if !ok || !s.Involves(fromUserID) {
		m.mu.Unlock()
		return
	}
	other := s.OtherParty(fromUserID)
	m.mu.Unlock()

	m.sig.SendToUser(other, event.Event{
		Type:    event.TypeCallICECandidate,
		Payload: event.CallCandidatePayload{CallID: callID, Candidate: cand},
	})
}

// Reject: только callee, только из Ringing.
func (m *Machine) Reject(callID string, calleeID int64) error {
	m.mu.Lock()
	s, ok := m.byID[callID]
	if !ok || s.CalleeID != calleeID || s.State != domain.CallRinging {
		m.mu.Unlock()
		return domain.ErrInvalidCallTransition
	}
	callerID := s.CallerID
	m.discardLocked(s, domain.CallRejected)
	m.mu.Unlock()

	m.sig.SendToUser(callerID, event.Event{
		Type:    event.TypeCallRejected,
		Payload: event.CallClosedPayload{CallID: callID, ByUser: calleeID},
	})
	slog.Info("call rejected", "call", callID, "callee", calleeID)
	return nil
}

// End завершает звонок из Ringing или Active любой из сторон.
// Неизвестный/уже завершённый callID — no-op, не ошибка.
func (m *Machine) End(callID string, byUserID int64) {
	m.mu.Lock()
	s, ok := m.byID[callID]
	if !ok || !s.Involves(byUserID) {
		m.mu.Unlock()
		return
	}
	other := s.OtherParty(byUserID)
	m.discardLocked(s, domain.CallEnded)
	m.mu.Unlock()

	m.sig.SendToUser(other, event.Event{
		Type:    event.TypeCallEnded,
		Payload: event.CallClosedPayload{CallID: callID, ByUser: byUserID},
	})
	slog.Info("call ended", "call", callID, "by", byUserID)
}

// Fail — системный переход (таймаут дозвона, обрыв участника).
// Уведомляются обе стороны: у инициирующей причины соединений может
// уже не быть, доставка best-effort.
func (m *Machine) Fail(callID string, reason string) {
	m.mu.Lock()
	s, ok := m.byID[callID]
	if !ok {
		m.mu.Unlock()
		return
	}
	callerID, calleeID := s.CallerID, s.CalleeID
	m.discardLocked(s, domain.CallFailed)
	m.mu.Unlock()

	ev := event.Event{
		Type:    event.TypeCallFailed,
		Payload: event.CallFailedPayload{CallID: callID, Reason: reason},
	}
	m.sig.SendToUser(callerID, ev)
	m.sig.SendToUser(calleeID, ev)
	slog.Info("call failed", "call", callID, "reason", reason)
}

// HandleOffline гасит ВСЕ не-терминальные звонки участника, у которого
// не осталось ни одного live-соединения.
func (m *Machine) HandleOffline(userID int64) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Fail(id, ReasonPeerDisconnected)
	}
}

// Get возвращает снапшот сессии (для диагностики и тестов).
func (m *Machine) Get(callID string) (*domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[callID]
	if !ok {
		return nil, false
	}
	snapshot := *s
	return &snapshot, true
}

// RunGC — фоновая сборка зависших Ringing-сессий: без ответа дольше
// ringTimeout звонок переводится в Failed(timeout).
func (m *Machine) RunGC(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepRinging()
		}
	}
}

func (m *Machine) sweepRinging() {
	deadline := m.now().Add(-m.ringTimeout)

	m.mu.Lock()
	var expired []string
	for id, s := range m.byID {
		if s.State == domain.CallRinging && s.CreatedAt.Before(deadline) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Fail(id, ReasonTimeout)
	}
}

// discardLocked переводит сессию в терминальное состояние и убирает её
// из всех индексов. Вызывается под m.mu.
func (m *Machine) discardLocked(s *domain.CallSession, final domain.CallState) {
	s.State = final
	delete(m.byID, s.ID)
	delete(m.byPair, s.PairKey())
	m.removeUserCallLocked(s.CallerID, s.ID)
	m.removeUserCallLocked(s.CalleeID, s.ID)
}

func (m *Machine) addUserCallLocked(userID int64, callID string) {
	set, ok := m.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[userID] = set
	}
	set[callID] = struct{}{}
}

func (m *Machine) removeUserCallLocked(userID int64, callID string) {
	set, ok := m.byUser[userID]
	if !ok {
		return
	}
	delete(set, callID)
	if len(set) == 0 {
		delete(m.byUser, userID)
	}
}
