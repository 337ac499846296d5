package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// LoginPath — эндпоинт входа; успешный ответ ставит сессионную cookie.
const LoginPath = "/api/login"

// NewSessionClient возвращает HTTP-клиент с cookiejar: сессия,
// полученная Login, переживает последующие запросы токена.
func NewSessionClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil) // ошибка возможна только при непустых Options
	return &http.Client{Jar: jar, Timeout: timeout}
}

// Login выполняет вход по логину и паролю. Клиент должен иметь Jar.
func Login(ctx context.Context, client *http.Client, baseURL, username, password string) error {
	if client.Jar == nil {
		return fmt.Errorf("login: http client has no cookie jar")
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+LoginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: status %d", resp.StatusCode)
	}
	return nil
}
