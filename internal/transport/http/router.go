package http

import (
	"net/http"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/presence"
	httpmw "github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/http/middleware"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, tracker *presence.Tracker, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint: авторизация — первым кадром (authenticate)
	r.Get("/ws", wsServer.HandleWS)

	// Query surface: все маршруты требуют Bearer + X-User-ID
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware)
		pr.Use(httpmw.LastSeenMiddleware(tracker))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/messages", func(m chi.Router) {
			m.Post("/", h.SendMessage)
			m.Post("/{id}/read", h.MarkRead)
		})
		pr.Get("/conversations/{otherUserId}/messages", h.GetHistory)
		pr.Get("/presence/{userId}", h.GetPresence)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
