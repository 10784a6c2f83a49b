package httpmw

import (
	"net/http"
)

// LastSeenToucher — presence tracker: обновление last_seen без broadcast.
type LastSeenToucher interface {
	MarkHeartbeat(userID int64)
}

// LastSeenMiddleware освежает last_seen авторизованного пользователя
// на каждом запросе query-поверхности.
func LastSeenMiddleware(tracker LastSeenToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := UserIDFromCtx(r.Context()); userID != 0 {
				// best-effort: ошибки не прерывают запрос
				tracker.MarkHeartbeat(userID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
