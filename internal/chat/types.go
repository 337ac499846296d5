package chat

import "time"

// Типы кадров протокола
const (
	FrameJoin       = "join"
	FrameLeave      = "leave"
	FrameMessage    = "message"
	FrameNewMessage = "new_message"
)

// Message — сообщение беседы в том виде, в каком его получают участники
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"` // epoch-ms сервера
}

// OutboundFrame — кадр сервер -> клиент
type OutboundFrame struct {
	Type string  `json:"type"`
	Data Message `json:"data"`
}

// inboundFrame — кадр клиент -> сервер (join/leave/message)
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
}

// Интерфейс для клиента чата
type UserClient interface {
	GetUsername() string
	PrivateChan() chan OutboundFrame
	Close() error
}

// Relay пересылает локальные сообщения другим экземплярам сервера
type Relay interface {
	Publish(msg Message) error
}

// Интерфейс для Hub
type HubManager interface {
	RegisterClient(c UserClient)
	UnregisterClient(c UserClient)
	Join(c UserClient, conversationID string)
	Leave(c UserClient, conversationID string)
	Publish(msg Message)
	BroadcastToLocal(msg Message)
}

// Минимальные методы websocket.Conn, которые нужны клиенту
type WebSocketConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}
