package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/postgres"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/presence"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/service"
	httpmw "github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	messageSvc  *service.MessageService
	presenceSvc *presence.Tracker
}

func NewHandler(messageSvc *service.MessageService, presenceSvc *presence.Tracker) *Handler {
	return &Handler{
		messageSvc:  messageSvc,
		presenceSvc: presenceSvc,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// POST /messages — идемпотентный send для клиентов без открытого сокета.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := httpmw.UserIDFromCtx(r.Context())
	if senderID == 0 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	m, err := h.messageSvc.Send(r.Context(), senderID, req.ReceiverID, req.Content, req.ClientMessageID)
	if err != nil {
		h.writeSendErr(w, err)
		return
	}

	status := http.StatusCreated
	if m.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toMessageItem(m))
}

func (h *Handler) writeSendErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrContentTooLong):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRecipientNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "recipient not found"})
	default:
		slog.Error("handler.SendMessage:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "try again later"})
	}
}

// POST /messages/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	readerID := httpmw.UserIDFromCtx(r.Context())
	if readerID == 0 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}
	messageID := chi.URLParam(r, "id")

	m, err := h.messageSvc.MarkRead(r.Context(), messageID, readerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "message not found"})
		case errors.Is(err, domain.ErrNotReceiver):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not the receiver"})
		default:
			slog.Error("handler.MarkRead:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "try again later"})
		}
		return
	}

	writeJSON(w, http.StatusOK, MarkReadResponse{MessageID: m.ID, ReadAt: m.ReadAt})
}

// GET /conversations/{otherUserId}/messages?limit=&since=&cursor=
// since (RFC3339) — восходящий догон для sync; cursor — страница назад;
// без них — последние limit в восходящем порядке.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	if userID == 0 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}
	otherID, err := strconv.ParseInt(chi.URLParam(r, "otherUserId"), 10, 64)
	if err != nil || otherID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid otherUserId"})
		return
	}

	opts := service.HistoryOptions{}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.Limit = n
		}
	}
	if s := r.URL.Query().Get("since"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid since timestamp"})
			return
		}
		opts.Since = &ts
	}
	if s := r.URL.Query().Get("cursor"); s != "" {
		beforeID, err := postgres.DecodeCursor(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		opts.BeforeID = beforeID
	}

	items, err := h.messageSvc.History(r.Context(), userID, otherID, opts)
	if err != nil {
		slog.Error("handler.GetHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "try again later"})
		return
	}

	resp := HistoryResponse{
		Items:           make([]MessageItem, 0, len(items)),
		ConversationKey: domain.ConversationKey(userID, otherID),
	}
	for i := range items {
		resp.Items = append(resp.Items, toMessageItem(&items[i]))
	}
	// курсор назад — от самого старого сообщения страницы
	if len(items) > 0 && opts.Since == nil {
		resp.NextCursor = postgres.EncodeCursor(items[0].ID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /presence/{userId}
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid userId"})
		return
	}

	rec := h.presenceSvc.Diagnose(r.Context(), userID)
	writeJSON(w, http.StatusOK, PresenceResponse{
		UserID:     formatID(rec.UserID),
		IsOnline:   rec.IsOnline,
		LastSeenAt: rec.LastSeenAt,
	})
}
