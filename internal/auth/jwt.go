package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Значения claim "typ": сессионный токен живёт в cookie, чат-токен — в query сокета
const (
	TypeSession = "session"
	TypeChat    = "chat"

	SessionTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("wrong token type")
)

var (
	mu     sync.RWMutex
	secret []byte
)

// InitSecret устанавливает секрет для подписи JWT.
// Обычно вызывается при старте сервера.
func InitSecret(s []byte) {
	mu.Lock()
	defer mu.Unlock()
	secret = append([]byte(nil), s...)
}

func currentSecret() []byte {
	mu.RLock()
	defer mu.RUnlock()
	return secret
}

// claims — стандартные поля плюс тип токена
type claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueSessionJWT создаёт сессионный токен для cookie (24 часа).
func IssueSessionJWT(username string) (string, error) {
	return issue(username, TypeSession, SessionTTL)
}

// IssueChatToken создаёт короткоживущий токен для подключения к сокету чата.
func IssueChatToken(username string, ttl time.Duration) (string, error) {
	return issue(username, TypeChat, ttl)
}

func issue(username, typ string, ttl time.Duration) (string, error) {
	if username == "" {
		return "", fmt.Errorf("missing subject")
	}
	now := time.Now()
	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	// HMAC SHA256, подписываем текущим секретом
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(currentSecret())
}

// ParseSessionJWT проверяет сессионный токен и возвращает username.
func ParseSessionJWT(tokenStr string) (string, error) {
	return parse(tokenStr, TypeSession)
}

// ParseChatToken проверяет чат-токен и возвращает username.
func ParseChatToken(tokenStr string) (string, error) {
	return parse(tokenStr, TypeChat)
}

// parse проверяет подпись (только HMAC), срок действия и тип токена.
func parse(tokenStr, typ string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return currentSecret(), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Type != typ {
		return "", ErrWrongType
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
