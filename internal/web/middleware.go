package web

import (
	"context"
	"net/http"

	"github.com/go-portfolio/chat-transport/internal/auth"
)

type ctxKey string

const ctxUserKey ctxKey = "user" // Ключ для хранения имени пользователя в контексте запроса

// UsernameFromContext возвращает имя, положенное AuthMiddleware
func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(ctxUserKey).(string)
	return username
}

// =========================
// AuthMiddleware проверяет cookie с сессионным JWT
// =========================
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing auth cookie")
			return
		}

		userName, err := auth.ParseSessionJWT(c.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserKey, userName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
