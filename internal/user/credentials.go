package user

import (
	"errors"
	"fmt"
	"strings"
)

const maxUsernameLen = 24

var (
	ErrRequired = errors.New("username and password are required")
	ErrTooLong  = fmt.Errorf("username too long (max %d)", maxUsernameLen)
	ErrExists   = errors.New("username already exists")
)

// Credentials — тело /api/register и /api/login
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Normalize обрезает пробелы вокруг логина и проверяет поля.
// Пароль не трогаем: пробелы в нём значимы.
func (c Credentials) Normalize() (Credentials, error) {
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" || c.Password == "" {
		return c, ErrRequired
	}
	if len(c.Username) > maxUsernameLen {
		return c, ErrTooLong
	}
	return c, nil
}
