package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 60 * time.Second // сервер шлёт PING каждые 45 секунд
)

// Conn — минимальные методы websocket.Conn, которые нужны клиенту.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer открывает сокет по полному URL (с токеном в query).
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer — Dialer поверх gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer // nil → websocket.DefaultDialer
	Header http.Header
}

// Dial выполняет handshake; при отказе код ответа сервера попадает в ошибку.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		// URL не логируем: в нём токен
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		// Каждый PING сервера продлевает таймаут чтения
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return &wsConn{conn: conn}, nil
}

// wsConn добавляет дедлайн записи к каждому кадру
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// closeCode извлекает код закрытия из ошибки чтения.
// Всё, что не является кадром закрытия, считается аварийным разрывом (1006).
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
