package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/go-portfolio/chat-transport/internal/chat"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrStopped   = errors.New("redis bridge stopped")
	ErrQueueFull = errors.New("redis bridge queue full")
)

const outboundBuffer = 128

// BroadcastTarget — локальная доставка сообщений (chat.Hub)
type BroadcastTarget interface {
	BroadcastToLocal(msg chat.Message)
}

// RedisConfig — параметры подключения к Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// relayed — сообщение в канале Redis вместе с id экземпляра-источника
type relayed struct {
	Origin  string       `json:"instance_id"`
	Message chat.Message `json:"message"`
}

// ----------------------------
// RedisBridge (чат между экземплярами)
// ----------------------------
type RedisBridge struct {
	client  *redis.Client
	sub     *redis.PubSub
	channel string
	origin  string
	hub     BroadcastTarget
	logger  zerolog.Logger

	outboundCh chan []byte
	publish    func(ctx context.Context, payload []byte) error
	running    atomic.Bool
	done       chan struct{}
}

func NewRedisBridge(cfg RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	b := &RedisBridge{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel:    cfg.Prefix + "messages",
		origin:     uuid.NewString(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		outboundCh: make(chan []byte, outboundBuffer),
		done:       make(chan struct{}),
	}
	b.publish = func(ctx context.Context, payload []byte) error {
		return b.client.Publish(ctx, b.channel, payload).Err()
	}
	return b
}

// Connect проверяет Redis и подписывается на канал сообщений.
// Ошибка означает, что сервер работает одиночным экземпляром.
func (b *RedisBridge) Connect(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return err
	}
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	b.sub = sub
	return nil
}

// Главный цикл bridge: входящие из Redis уходят в Hub, исходящие публикуются.
// Завершается по ctx или при закрытии подписки.
func (b *RedisBridge) Run(ctx context.Context) {
	var incoming <-chan *redis.Message
	if b.sub != nil {
		incoming = b.sub.Channel()
	}
	b.loop(ctx, incoming)
}

func (b *RedisBridge) loop(ctx context.Context, incoming <-chan *redis.Message) {
	defer close(b.done)
	b.running.Store(true)
	defer b.running.Store(false)

	b.logger.Info().Str("instance_id", b.origin).Str("channel", b.channel).Msg("redis bridge running")
	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				b.logger.Warn().Msg("redis subscription closed")
				return
			}
			b.receive(msg.Payload)

		case payload := <-b.outboundCh:
			if err := b.publish(ctx, payload); err != nil {
				b.logger.Error().Err(err).Msg("redis publish failed")
			}

		case <-ctx.Done():
			return
		}
	}
}

// Publish ставит сообщение в очередь на отправку другим экземплярам.
// Не блокирует Hub: при переполненной очереди сообщение теряется.
func (b *RedisBridge) Publish(msg chat.Message) error {
	payload, err := json.Marshal(relayed{Origin: b.origin, Message: msg})
	if err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrStopped
	default:
	}
	select {
	case b.outboundCh <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Available — цикл запущен и подписка жива
func (b *RedisBridge) Available() bool {
	return b.running.Load()
}

// Close закрывает подписку и клиента Redis.
func (b *RedisBridge) Close() error {
	var errs []error
	if b.sub != nil {
		errs = append(errs, b.sub.Close())
	}
	errs = append(errs, b.client.Close())
	return errors.Join(errs...)
}

// receive отдаёт в Hub только сообщения других экземпляров
func (b *RedisBridge) receive(payload string) {
	var r relayed
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		b.logger.Error().Err(err).Msg("bad payload in redis channel")
		return
	}
	if r.Origin == b.origin {
		return
	}
	b.logger.Debug().
		Str("origin", r.Origin).
		Str("conversation", r.Message.ConversationID).
		Msg("message from another instance")
	b.hub.BroadcastToLocal(r.Message)
}
