package chatclient

import (
	"encoding/json"
)

// SendMessage отправляет сообщение в беседу conversationID
// (пустая строка — активная беседа). Возвращает false без побочных
// эффектов, если беседы нет или сокет не открыт. Доставка не подтверждается.
func (c *Client) SendMessage(content, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := conversationID
	if target == "" {
		target = c.conversation
	}
	if target == "" || c.state != StateConnected || c.conn == nil {
		return false
	}

	frame := MessageFrame{
		Type:           FrameMessage,
		ConversationID: target,
		Content:        content,
		Timestamp:      c.now().UnixMilli(),
	}
	if err := c.writeLocked(frame); err != nil {
		c.logger.Warn().Err(err).Msg("send message failed")
		return false
	}
	return true
}

// OnMessage подписывает обработчик на входящие new_message.
// Обработчик получает поле data без изменений. Возвращает функцию отписки.
func (c *Client) OnMessage(handler func(json.RawMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.msgHandlers[id] = handler

	return func() {
		c.mu.Lock()
		delete(c.msgHandlers, id)
		c.mu.Unlock()
	}
}

// OnConnectivity подписывает обработчик на переходы в Connected и обратно.
func (c *Client) OnConnectivity(handler func(connected bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.connHandlers[id] = handler

	return func() {
		c.mu.Lock()
		delete(c.connHandlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) connectivityLocked(connected bool) effects {
	fx := make(effects, 0, len(c.connHandlers))
	for _, h := range c.connHandlers {
		h := h
		fx = append(fx, func() { h(connected) })
	}
	return fx
}

// handleFrame разбирает входящий кадр. Битый JSON не должен ронять
// транспорт: он пишется в debug-лог и отбрасывается.
func (c *Client) handleFrame(data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug().Err(err).Int("size", len(data)).Msg("dropping malformed frame")
		return
	}
	if frame.Type != FrameNewMessage || !frame.hasData() {
		return
	}

	c.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(c.msgHandlers))
	for _, h := range c.msgHandlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(frame.Data)
	}
}
