package user

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// UserStore — хранилище пользователей чата.
type UserStore interface {
	Register(username, password string) error
	Authenticate(username, password string) bool
	Close() error
}

// MemoryStore — простое in-memory хранилище пользователей.
// Карта username -> bcrypt hash под RWMutex.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Register регистрирует нового пользователя.
func (store *MemoryStore) Register(username, password string) error {
	cred, err := Credentials{Username: username, Password: password}.Normalize()
	if err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.data[cred.Username]; exists {
		return ErrExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	store.data[cred.Username] = string(hash)
	return nil
}

// Authenticate сравнивает пароль с сохранённым bcrypt-хэшем.
func (store *MemoryStore) Authenticate(username, password string) bool {
	store.mu.RLock()
	hash, ok := store.data[username]
	store.mu.RUnlock()

	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (store *MemoryStore) Close() error { return nil }
