package chat

import (
	"sort"
	"sync"
)

// Room — участники одной беседы
type Room struct {
	Name    string
	Clients map[UserClient]bool
	Mu      sync.RWMutex
}

func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		Clients: make(map[UserClient]bool),
	}
}

// Deliver кладёт кадр в каналы всех участников. Медленный клиент
// кадр теряет, но не тормозит остальных. Возвращает число пропущенных.
func (r *Room) Deliver(frame OutboundFrame) int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	dropped := 0
	for c := range r.Clients {
		select {
		case c.PrivateChan() <- frame:
		default:
			dropped++
		}
	}
	return dropped
}

// OnlineUsers возвращает отсортированный список участников
func (r *Room) OnlineUsers() []string {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	users := make([]string, 0, len(r.Clients))
	for c := range r.Clients {
		users = append(users, c.GetUsername())
	}
	sort.Strings(users)
	return users
}

func (r *Room) AddClient(c UserClient) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Clients[c] = true
}

func (r *Room) RemoveClient(c UserClient) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	delete(r.Clients, c)
}

func (r *Room) Len() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Clients)
}
