package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-portfolio/chat-transport/internal/notify"
	"github.com/rs/zerolog"
)

// ErrStopped — соединение было разобрано вызовом Disconnect.
var ErrStopped = errors.New("chat client stopped")

// TokenSource — то, что клиенту нужно от поставщика токена.
type TokenSource interface {
	// Current — последний известный токен без сетевых запросов ("" — токена нет)
	Current() string
	// Invalidate помечает токен устаревшим
	Invalidate()
	// Token возвращает свежий токен, при необходимости запрашивая новый
	Token(ctx context.Context) (string, error)
}

// Policy — политика переподключения: delay = clamp(Base·2^attempt, Min, Max).
type Policy struct {
	Base        time.Duration
	Min         time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultPolicy: 2с база и нижняя граница, 30с потолок, 10 попыток.
func DefaultPolicy() Policy {
	return Policy{
		Base:        2 * time.Second,
		Min:         2 * time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
	}
}

// Options — зависимости клиента. Tokens обязателен.
type Options struct {
	WSBaseURL string // ws(s)://host
	Tokens    TokenSource
	Dialer    Dialer
	Scheduler Scheduler
	Sink      notify.Sink
	Logger    zerolog.Logger
	Policy    Policy
	Now       func() time.Time

	// ReconnectTimeout ограничивает обновление токена и handshake при переподключении
	ReconnectTimeout time.Duration
}

// Client держит одно логическое WebSocket-соединение с чатом:
// переподключение с экспоненциальной задержкой, членство в беседе,
// маршрутизация входящих new_message и отправка сообщений.
type Client struct {
	wsBase           string
	tokens           TokenSource
	dialer           Dialer
	sched            Scheduler
	sink             notify.Sink
	logger           zerolog.Logger
	policy           Policy
	now              func() time.Time
	reconnectTimeout time.Duration

	// Всё ниже защищено mu
	mu        sync.Mutex
	conn      Conn
	state     ConnectionState
	attempts  int
	bo        *backoff.ExponentialBackOff
	timer     Timer
	timerSeq  uint64 // меняется при каждой отмене/постановке таймера
	dialSeq   uint64 // меняется при каждом разборе соединения
	stopped   bool   // после Disconnect автоматических переподключений нет
	suspended bool   // разобраны из-за потери токена, ждём новый
	exhausted bool   // попытки исчерпаны, нужна ручная перезагрузка

	reconnecting bool // сработал таймер, идёт обновление токена и dial

	conversation string // беседа, в которой хочет быть пользователь
	joined       string // беседа, в которую отправлен join на текущем сокете

	msgHandlers  map[int]func(json.RawMessage)
	connHandlers map[int]func(bool)
	nextHandler  int
}

// New создаёт клиента. Соединение не открывается до Connect.
func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = WSDialer{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.Sink == nil {
		opts.Sink = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.ReconnectTimeout <= 0 {
		opts.ReconnectTimeout = 30 * time.Second
	}

	return &Client{
		wsBase:           strings.TrimRight(opts.WSBaseURL, "/"),
		tokens:           opts.Tokens,
		dialer:           opts.Dialer,
		sched:            opts.Scheduler,
		sink:             opts.Sink,
		logger:           opts.Logger.With().Str("component", "chatclient").Logger(),
		policy:           opts.Policy,
		now:              opts.Now,
		reconnectTimeout: opts.ReconnectTimeout,
		bo:               newBackOff(opts.Policy),
		msgHandlers:      make(map[int]func(json.RawMessage)),
		connHandlers:     make(map[int]func(bool)),
	}
}

// State возвращает текущее состояние соединения.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts — сколько переподключений подряд было запланировано.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ReconnectPending сообщает, ждёт ли клиент таймера переподключения.
func (c *Client) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Client) socketURL(tok string) string {
	return c.wsBase + "/ws?token=" + url.QueryEscape(tok)
}

// effects — действия, которые выполняются после снятия блокировки
// (уведомления и обработчики не должны вызываться под mu)
type effects []func()

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}
