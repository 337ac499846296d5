package chatclient

import (
	"bytes"
	"encoding/json"
)

// Типы кадров протокола чата
const (
	FrameJoin       = "join"
	FrameLeave      = "leave"
	FrameMessage    = "message"
	FrameNewMessage = "new_message"
)

// ControlFrame — join/leave для беседы.
type ControlFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"` // epoch-ms клиента
}

// MessageFrame — исходящее сообщение чата.
type MessageFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// InboundFrame — входящий кадр. Data передаётся обработчику как есть.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// hasData: поле data присутствует и не равно null
func (f InboundFrame) hasData() bool {
	d := bytes.TrimSpace(f.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}
