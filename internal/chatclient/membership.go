package chatclient

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// SetConversation переключает активную беседу.
// При открытом сокете уходит leave для прежней беседы и join для новой;
// без соединения изменение откладывается до следующего подключения.
func (c *Client) SetConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversation = id
	c.syncMembershipLocked()
}

// Conversation возвращает активную беседу ("" — нет).
func (c *Client) Conversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// syncMembershipLocked приводит joined к conversation.
// Кадры join/leave уходят только в состоянии Connected.
func (c *Client) syncMembershipLocked() {
	if c.state != StateConnected || c.conn == nil {
		return
	}
	if c.joined == c.conversation {
		return
	}

	if c.joined != "" {
		if err := c.writeLocked(c.controlFrame(FrameLeave, c.joined)); err != nil {
			c.logger.Debug().Err(err).Str("conversation", c.joined).Msg("leave failed")
		}
		c.joined = ""
	}
	if c.conversation == "" {
		return
	}
	if err := c.writeLocked(c.controlFrame(FrameJoin, c.conversation)); err != nil {
		c.logger.Warn().Err(err).Str("conversation", c.conversation).Msg("join failed")
		return
	}
	c.joined = c.conversation
	c.logger.Debug().Str("conversation", c.joined).Msg("joined conversation")
}

func (c *Client) controlFrame(kind, conversationID string) ControlFrame {
	return ControlFrame{
		Type:           kind,
		ConversationID: conversationID,
		Timestamp:      c.now().UnixMilli(),
	}
}

// writeLocked сериализует кадр и пишет его в текущий сокет.
// Все записи идут под mu: у websocket.Conn может быть только один писатель.
func (c *Client) writeLocked(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
