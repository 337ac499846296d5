package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-portfolio/chat-transport/internal/auth"
	"github.com/go-portfolio/chat-transport/internal/chat"
	"github.com/go-portfolio/chat-transport/internal/user"
	"github.com/rs/zerolog"
)

// CookieName — имя cookie с сессионным JWT
const CookieName = "auth"

// Handlers — HTTP и WebSocket обработчики сервера чата
type Handlers struct {
	Users        user.UserStore // Хранилище пользователей
	Hub          *chat.Hub      // Hub бесед
	ChatTokenTTL time.Duration  // Время жизни чат-токена
	SecureCookie bool           // Secure для cookie (за HTTPS)
	Logger       zerolog.Logger
}

// =========================
// Регистрация пользователя
// POST /api/register
// тело JSON { "username": "...", "password": "..." }
// =========================
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var cred user.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.Users.Register(cred.Username, cred.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Logger.Info().Str("user", cred.Username).Msg("user registered")
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// =========================
// Логин пользователя
// POST /api/login
// тело JSON { "username": "...", "password": "..." }
// =========================
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var cred user.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	cred, err := cred.Normalize()
	if err != nil || !h.Users.Authenticate(cred.Username, cred.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.IssueSessionJWT(cred.Username)
	if err != nil {
		h.Logger.Error().Err(err).Msg("issue session token")
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true, // недоступно JS
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.SessionTTL / time.Second),
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =========================
// Короткоживущий токен для сокета
// GET /auth/chat-token (под AuthMiddleware)
// =========================
func (h *Handlers) ChatTokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	username := UsernameFromContext(r.Context())
	if username == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	token, err := auth.IssueChatToken(username, h.ChatTokenTTL)
	if err != nil {
		h.Logger.Error().Err(err).Msg("issue chat token")
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
