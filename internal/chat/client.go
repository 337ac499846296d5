package chat

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// Client представляет подключенного пользователя
type Client struct {
	Hub      HubManager         // Hub для членства и рассылки
	Conn     WebSocketConn      // WebSocket-соединение клиента
	Send     chan OutboundFrame // Канал для отправки кадров клиенту
	CloseCh  chan struct{}      // Канал для безопасного закрытия клиента
	Username string             // Имя пользователя из чат-токена

	logger    zerolog.Logger
	closeOnce sync.Once
}

func NewClient(hub HubManager, conn WebSocketConn, username string, logger zerolog.Logger) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan OutboundFrame, sendBuffer),
		CloseCh:  make(chan struct{}),
		Username: username,
		logger:   logger.With().Str("user", username).Logger(),
	}
}

func (client *Client) GetUsername() string { return client.Username }

func (client *Client) PrivateChan() chan OutboundFrame { return client.Send }

// Close останавливает WriteSocket; повторный вызов безопасен
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.CloseCh) })
	return nil
}

// ReadSocket читает кадры клиента и передаёт их в Hub
func (client *Client) ReadSocket() {
	defer func() {
		// При завершении чтения удаляем клиента из Hub и закрываем соединение
		client.Hub.UnregisterClient(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error { // Обновление таймаута при получении PONG
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				client.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		client.handleFrame(data)
	}
}

func (client *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		client.logger.Debug().Err(err).Msg("malformed frame")
		return
	}

	switch frame.Type {
	case FrameJoin:
		client.Hub.Join(client, frame.ConversationID)
	case FrameLeave:
		client.Hub.Leave(client, frame.ConversationID)
	case FrameMessage:
		content := strings.TrimSpace(frame.Content)
		if content == "" || frame.ConversationID == "" {
			return // Игнорируем пустые сообщения
		}
		client.Hub.Publish(Message{
			ConversationID: frame.ConversationID,
			From:           client.Username,
			Content:        content,
		})
	default:
		client.logger.Debug().Str("type", frame.Type).Msg("unknown frame type")
	}
}

// WriteSocket отправляет кадры клиенту и поддерживает heartbeat (PING)
func (client *Client) WriteSocket() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close() // Закрываем соединение при завершении
	}()

	for {
		select {
		case frame := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(frame); err != nil {
				return // Завершаем при ошибке записи
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Завершаем при ошибке PING
			}

		case <-client.CloseCh:
			// Hub закрыл клиента: вежливо прощаемся
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
