package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-portfolio/chat-transport/internal/notify"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Path — эндпоинт бэкенда, выдающий короткоживущий токен для чата.
const Path = "/auth/chat-token"

const (
	DefaultStaleTime       = 4 * time.Minute
	DefaultRefreshInterval = 3*time.Minute + 30*time.Second

	maxBodySize = 64 << 10
)

// FetchError — бэкенд ответил неуспешным статусом или запрос не дошёл.
type FetchError struct {
	StatusCode int   // 0, если ответа не было вовсе
	Err        error // транспортная ошибка, если была
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat token fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("chat token fetch failed: status %d", e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InvalidError — ответ успешный, но в теле нет строкового поля token.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "chat token response invalid: " + e.Reason
}

// Options задаёт источник и политику обновления токена.
type Options struct {
	BaseURL         string       // http(s)://host без завершающего слэша
	HTTPClient      *http.Client // должен нести cookie-сессию (cookiejar)
	StaleTime       time.Duration
	RefreshInterval time.Duration
	Sink            notify.Sink
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Supplier получает токен чата, кэширует его и периодически обновляет.
// Безопасен для использования из нескольких горутин.
type Supplier struct {
	baseURL         string
	client          *http.Client
	staleTime       time.Duration
	refreshInterval time.Duration
	sink            notify.Sink
	logger          zerolog.Logger
	now             func() time.Time

	group singleflight.Group // параллельные запросы схлопываются в один

	mu        sync.RWMutex
	token     string
	fetchedAt time.Time
	expiresAt time.Time // exp из JWT, если токен им является
	invalid   bool
	subs      map[int]func(string)
	nextSub   int
}

// New создаёт Supplier. Нулевые поля Options заменяются значениями по умолчанию.
func New(opts Options) *Supplier {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Sink == nil {
		opts.Sink = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Supplier{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		client:          opts.HTTPClient,
		staleTime:       opts.StaleTime,
		refreshInterval: opts.RefreshInterval,
		sink:            opts.Sink,
		logger:          opts.Logger.With().Str("component", "token").Logger(),
		now:             opts.Now,
		subs:            make(map[int]func(string)),
	}
}

// Token возвращает закэшированный токен, если он свежий, иначе запрашивает новый.
func (s *Supplier) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	tok, fresh := s.token, s.freshLocked(s.now())
	s.mu.RUnlock()
	if fresh {
		return tok, nil
	}
	return s.Fetch(ctx)
}

// Current возвращает последний известный токен без сетевых запросов.
// Пустая строка означает, что токена нет.
func (s *Supplier) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt возвращает exp текущего токена (нулевое время, если неизвестно).
func (s *Supplier) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Invalidate помечает токен устаревшим: следующий Token пойдёт в сеть.
func (s *Supplier) Invalidate() {
	s.mu.Lock()
	s.invalid = true
	s.mu.Unlock()
}

// Revalidate обновляет токен, только если он устарел.
// Вызывается, когда пользователь возвращается в приложение.
func (s *Supplier) Revalidate(ctx context.Context) error {
	_, err := s.Token(ctx)
	return err
}

// Fetch всегда запрашивает новый токен у бэкенда.
func (s *Supplier) Fetch(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("token", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Run выполняет первичную загрузку и затем каждые RefreshInterval
// безусловно сбрасывает и перезапрашивает токен. Блокируется до отмены ctx.
func (s *Supplier) Run(ctx context.Context) {
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial token fetch failed")
	}

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Invalidate()
			if _, err := s.Fetch(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled token refresh failed")
			}
		}
	}
}

// Clear забывает токен (например, при выходе из аккаунта).
func (s *Supplier) Clear() {
	s.mu.Lock()
	changed := s.token != ""
	s.token = ""
	s.fetchedAt = time.Time{}
	s.expiresAt = time.Time{}
	s.invalid = false
	subs := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn("")
		}
	}
}

// Subscribe регистрирует обработчик смены токена. Возвращает функцию отписки.
func (s *Supplier) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Supplier) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+Path, nil)
	if err != nil {
		return "", s.fail(&FetchError{Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", s.fail(&FetchError{Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", s.fail(&FetchError{StatusCode: resp.StatusCode})
	}

	var body struct {
		Token json.RawMessage `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return "", s.fail(&InvalidError{Reason: "malformed body"})
	}
	if len(body.Token) == 0 {
		return "", s.fail(&InvalidError{Reason: "missing token field"})
	}
	var tok string
	if err := json.Unmarshal(body.Token, &tok); err != nil {
		return "", s.fail(&InvalidError{Reason: "token is not a string"})
	}
	if tok == "" {
		return "", s.fail(&InvalidError{Reason: "empty token"})
	}

	s.store(tok)
	return tok, nil
}

func (s *Supplier) store(tok string) {
	exp := expiry(tok)

	s.mu.Lock()
	changed := tok != s.token
	s.token = tok
	s.fetchedAt = s.now()
	s.expiresAt = exp
	s.invalid = false
	subs := s.snapshotLocked()
	s.mu.Unlock()

	ev := s.logger.Debug().Bool("changed", changed)
	if !exp.IsZero() {
		ev = ev.Time("expires_at", exp)
	}
	ev.Msg("chat token refreshed")

	if changed {
		for _, fn := range subs {
			fn(tok)
		}
	}
}

// fail сообщает пользователю об ошибке и возвращает её вызывающему.
// Отмена контекста (штатное завершение) пользователю не показывается.
func (s *Supplier) fail(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Warn().Err(err).Msg("chat token unavailable")
	s.sink.ShowError(notify.MsgTokenFailed)
	return err
}

func (s *Supplier) freshLocked(now time.Time) bool {
	if s.token == "" || s.invalid {
		return false
	}
	if now.Sub(s.fetchedAt) >= s.staleTime {
		return false
	}
	return s.expiresAt.IsZero() || now.Before(s.expiresAt)
}

func (s *Supplier) snapshotLocked() []func(string) {
	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

// expiry достаёт exp из токена, если это JWT. Подпись здесь не проверяется:
// токен для клиента непрозрачен, проверяет его сервер.
func expiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
