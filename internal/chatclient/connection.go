package chatclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-portfolio/chat-transport/internal/notify"
	"github.com/gorilla/websocket"
)

// newBackOff: первая задержка Base·2, далее удвоение до Max, без джиттера
func newBackOff(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * p.Base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Max
	b.Reset()
	return b
}

// Connect открывает соединение, если его ещё нет и есть токен.
// Повторный Connect после Disconnect или исчерпания попыток начинает
// жизненный цикл заново; запланированная попытка при этом отменяется.
// Ошибка установления соединения обрабатывается как аварийное закрытие
// (с планированием переподключения) и возвращается вызывающему.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped || c.exhausted {
		c.stopped = false
		c.suspended = false
		c.exhausted = false
		c.attempts = 0
		c.bo.Reset()
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.conn != nil || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	tok := c.tokens.Current()
	if tok == "" {
		c.mu.Unlock()
		c.logger.Debug().Msg("no chat token, not connecting")
		return nil
	}
	// Ручное подключение отменяет запланированную попытку
	c.stopTimerLocked()
	c.state = StateConnecting
	c.dialSeq++
	seq := c.dialSeq
	c.mu.Unlock()

	c.logger.Debug().Str("url", c.wsBase).Msg("connecting")
	conn, err := c.dialer.Dial(ctx, c.socketURL(tok))

	c.mu.Lock()
	if seq != c.dialSeq || c.stopped {
		// Пока шёл handshake, соединение разобрали
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrStopped
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("chat socket dial failed")
		fx := c.closedLocked(websocket.CloseAbnormalClosure)
		c.mu.Unlock()
		fx.run()
		return fmt.Errorf("connect chat: %w", err)
	}
	c.conn = conn
	fx := c.openedLocked()
	c.mu.Unlock()

	c.logger.Info().Msg("chat connected")
	fx.run()
	go c.readLoop(conn)
	return nil
}

// Disconnect разбирает соединение: отменяет таймер, отправляет leave,
// закрывает сокет. Счётчик попыток выставляется в максимум, чтобы
// запоздалое событие закрытия не запустило новый цикл переподключений.
func (c *Client) Disconnect() {
	c.mu.Lock()
	fx := c.teardownLocked()
	c.mu.Unlock()
	fx.run()
}

func (c *Client) teardownLocked() effects {
	c.stopTimerLocked()
	c.dialSeq++
	c.stopped = true
	c.attempts = c.policy.MaxAttempts

	conn := c.conn
	wasConnected := c.state == StateConnected
	if conn != nil && c.joined != "" {
		// best-effort: сокет может быть уже мёртв
		if err := c.writeLocked(c.controlFrame(FrameLeave, c.joined)); err != nil {
			c.logger.Debug().Err(err).Msg("leave on teardown failed")
		}
	}
	c.conn = nil
	c.state = StateDisconnected
	c.joined = ""

	var fx effects
	if conn != nil {
		fx = append(fx, func() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}
	if wasConnected {
		fx = append(fx, c.connectivityLocked(false)...)
	}
	return fx
}

// HandleTokenChange реагирует на смену токена у поставщика.
// Пустой токен разбирает соединение; появление токена после этого
// подключает заново. Ротация токена при живом сокете его не трогает:
// новый токен будет использован при следующем подключении.
func (c *Client) HandleTokenChange(ctx context.Context, tok string) {
	c.mu.Lock()
	if tok == "" {
		if c.stopped {
			c.mu.Unlock()
			return
		}
		fx := c.teardownLocked()
		c.suspended = true
		c.mu.Unlock()
		c.logger.Info().Msg("chat token cleared, disconnected")
		fx.run()
		return
	}

	// Во время попытки по таймеру подключением занимается reconnect
	idle := c.state == StateDisconnected && c.timer == nil && !c.reconnecting
	resume := c.suspended
	blocked := (c.stopped && !c.suspended) || c.exhausted
	c.mu.Unlock()

	switch {
	case blocked || !idle:
		return
	case resume:
		_ = c.Connect(ctx)
	default:
		_ = c.connect(ctx)
	}
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Ошибка чтения всегда заканчивается закрытием: сообщаем один раз, по коду
			c.handleClose(conn, closeCode(err))
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleClose(conn Conn, code int) {
	c.mu.Lock()
	if conn != c.conn {
		// Событие от старого сокета после разбора или переподключения
		c.mu.Unlock()
		return
	}
	c.logger.Info().Int("code", code).Msg("chat socket closed")
	fx := c.closedLocked(code)
	c.mu.Unlock()

	_ = conn.Close()
	fx.run()
}

func (c *Client) openedLocked() effects {
	c.stopTimerLocked()
	c.state = StateConnected
	c.attempts = 0
	c.exhausted = false
	c.bo.Reset()
	c.joined = ""
	c.syncMembershipLocked()
	return c.connectivityLocked(true)
}

func (c *Client) closedLocked(code int) effects {
	var fx effects

	wasConnected := c.state == StateConnected
	c.conn = nil
	c.state = StateDisconnected
	c.joined = ""
	if wasConnected {
		fx = append(fx, c.connectivityLocked(false)...)
	}

	if code == websocket.CloseAbnormalClosure || code == websocket.ClosePolicyViolation {
		fx = append(fx, func() { c.sink.ShowInfo(notify.MsgConnectionLost) })
	}

	switch {
	case c.attempts >= c.policy.MaxAttempts:
		c.exhausted = true
		attempts := c.attempts
		fx = append(fx, func() {
			c.logger.Error().Int("attempts", attempts).Msg("reconnect attempts exhausted")
			c.sink.ShowError(notify.MsgReconnectExhausted)
		})
	case c.tokens.Current() == "":
		c.logger.Debug().Msg("no chat token, not reconnecting")
	default:
		c.attempts++
		delay := c.nextDelayLocked()
		c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")
		c.scheduleLocked(delay)
	}
	return fx
}

func (c *Client) nextDelayLocked() time.Duration {
	d := c.bo.NextBackOff()
	if d < c.policy.Min {
		d = c.policy.Min
	}
	if d > c.policy.Max {
		d = c.policy.Max
	}
	return d
}

// scheduleLocked ставит таймер переподключения; старый таймер всегда снимается
func (c *Client) scheduleLocked(delay time.Duration) {
	c.stopTimerLocked()
	seq := c.timerSeq
	c.timer = c.sched.AfterFunc(delay, func() { c.reconnect(seq) })
}

// stopTimerLocked снимает таймер и делает недействительным уже сработавший колбэк
func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Client) reconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.reconnectTimeout)
	defer cancel()

	// Перед каждой попыткой берём свежий токен
	c.tokens.Invalidate()
	if _, err := c.tokens.Token(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("token refresh before reconnect failed")
		return
	}

	c.mu.Lock()
	stale := seq != c.timerSeq || c.stopped
	c.mu.Unlock()
	if stale {
		return
	}

	if err := c.connect(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("reconnect attempt failed")
	}
}
