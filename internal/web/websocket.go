package web

import (
	"net/http"

	"github.com/go-portfolio/chat-transport/internal/auth"
	"github.com/go-portfolio/chat-transport/internal/chat"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Клиент — не браузер, Origin не проверяем
		return true
	},
}

// =========================
// ChatConnectionHandler
// GET /ws?token=<чат-токен>
// =========================
func (h *Handlers) ChatConnectionHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	username, err := auth.ParseChatToken(token)
	if err != nil {
		h.Logger.Debug().Err(err).Msg("rejecting socket")
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	client := chat.NewClient(h.Hub, conn, username, h.Logger)
	h.Hub.RegisterClient(client)
	h.Logger.Info().Str("user", username).Msg("socket connected")

	go client.WriteSocket()
	client.ReadSocket()
}
