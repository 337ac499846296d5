package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type membership struct {
	client         UserClient
	conversationID string
}

// ----------------------------
// Hub (менеджер бесед)
// ----------------------------
type Hub struct {
	Clients      map[UserClient]string // клиент -> текущая беседа ("" если нет)
	Rooms        map[string]*Room
	registerCh   chan UserClient
	unregisterCh chan UserClient
	joinCh       chan membership
	leaveCh      chan membership
	broadcastCh  chan Message
	mu           sync.RWMutex

	relay  Relay
	logger zerolog.Logger
	now    func() time.Time
	done   chan struct{}
}

// HubOption настраивает Hub
type HubOption func(*Hub)

// WithRelay включает пересылку сообщений другим экземплярам
func WithRelay(r Relay) HubOption {
	return func(h *Hub) { h.relay = r }
}

func WithLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = l.With().Str("component", "hub").Logger() }
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		Clients:      make(map[UserClient]string),
		Rooms:        make(map[string]*Room),
		registerCh:   make(chan UserClient),
		unregisterCh: make(chan UserClient),
		joinCh:       make(chan membership),
		leaveCh:      make(chan membership),
		broadcastCh:  make(chan Message, 128),
		logger:       zerolog.Nop(),
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetRelay подключает relay после создания (bridge сам ссылается на Hub)
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Главный цикл Hub. После отмены ctx все клиенты закрываются.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.registerCh:
			h.mu.Lock()
			if _, ok := h.Clients[client]; !ok {
				h.Clients[client] = ""
			}
			h.mu.Unlock()

		case client := <-h.unregisterCh:
			h.mu.Lock()
			if conv, ok := h.Clients[client]; ok {
				h.leaveLocked(client, conv)
				delete(h.Clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case m := <-h.joinCh:
			h.mu.Lock()
			if current, ok := h.Clients[m.client]; ok {
				// Клиент находится максимум в одной беседе
				h.leaveLocked(m.client, current)
				h.roomLocked(m.conversationID).AddClient(m.client)
				h.Clients[m.client] = m.conversationID
				h.logger.Debug().Str("user", m.client.GetUsername()).Str("conversation", m.conversationID).Msg("joined")
			}
			h.mu.Unlock()

		case m := <-h.leaveCh:
			h.mu.Lock()
			if current, ok := h.Clients[m.client]; ok && current == m.conversationID {
				h.leaveLocked(m.client, current)
				h.Clients[m.client] = ""
			}
			h.mu.Unlock()

		case msg := <-h.broadcastCh:
			h.mu.RLock()
			room, ok := h.Rooms[msg.ConversationID]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			if dropped := room.Deliver(OutboundFrame{Type: FrameNewMessage, Data: msg}); dropped > 0 {
				h.logger.Warn().Int("dropped", dropped).Str("conversation", msg.ConversationID).Msg("slow clients skipped")
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.Clients {
				client.Close()
			}
			h.Clients = make(map[UserClient]string)
			h.Rooms = make(map[string]*Room)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) roomLocked(name string) *Room {
	if room, ok := h.Rooms[name]; ok {
		return room
	}
	room := NewRoom(name)
	h.Rooms[name] = room
	return room
}

func (h *Hub) leaveLocked(c UserClient, conv string) {
	if conv == "" {
		return
	}
	room, ok := h.Rooms[conv]
	if !ok {
		return
	}
	room.RemoveClient(c)
	if room.Len() == 0 {
		delete(h.Rooms, conv)
	}
}

func (h *Hub) RegisterClient(c UserClient) {
	select {
	case h.registerCh <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) UnregisterClient(c UserClient) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) Join(c UserClient, conversationID string) {
	if conversationID == "" {
		return
	}
	select {
	case h.joinCh <- membership{client: c, conversationID: conversationID}:
	case <-h.done:
	}
}

func (h *Hub) Leave(c UserClient, conversationID string) {
	if conversationID == "" {
		return
	}
	select {
	case h.leaveCh <- membership{client: c, conversationID: conversationID}:
	case <-h.done:
	}
}

// Publish присваивает сообщению id и время, рассылает участникам
// беседы на этом экземпляре и отдаёт его relay.
func (h *Hub) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = h.now().UnixMilli()
	}
	h.BroadcastToLocal(msg)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		if err := relay.Publish(msg); err != nil {
			h.logger.Error().Err(err).Str("id", msg.ID).Msg("relay publish failed")
		}
	}
}

// BroadcastToLocal доставляет сообщение только локальным участникам
func (h *Hub) BroadcastToLocal(msg Message) {
	select {
	case h.broadcastCh <- msg:
	case <-h.done:
	}
}

// OnlineUsers возвращает участников беседы на этом экземпляре
func (h *Hub) OnlineUsers(conversationID string) []string {
	h.mu.RLock()
	room, ok := h.Rooms[conversationID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.OnlineUsers()
}

// ClientCount — число подключённых клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients)
}
