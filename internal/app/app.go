package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-portfolio/chat-transport/config"
	"github.com/go-portfolio/chat-transport/internal/auth"
	"github.com/go-portfolio/chat-transport/internal/bridge"
	"github.com/go-portfolio/chat-transport/internal/chat"
	"github.com/go-portfolio/chat-transport/internal/token"
	"github.com/go-portfolio/chat-transport/internal/user"
	"github.com/go-portfolio/chat-transport/internal/web"
	"github.com/rs/zerolog"
)

type App struct {
	Mux   *http.ServeMux
	Hub   *chat.Hub
	Users user.UserStore

	bridge *bridge.RedisBridge
	logger zerolog.Logger
}

// New собирает сервер: хранилище пользователей, секрет JWT, Hub и маршруты.
func New(cfg *config.ServerConfig, logger zerolog.Logger) (*App, error) {
	// User store: Postgres, если задан DATABASE_URL, иначе память
	var store user.UserStore
	if cfg.DatabaseURL != "" {
		pg, err := user.NewPGStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory user store")
		store = user.NewMemoryStore()
	}

	// JWT secret
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "dev-secret"
		logger.Warn().Msg("JWT_SECRET not set, using default secret")
	}
	auth.InitSecret([]byte(secret))

	hub := chat.NewHub(chat.WithLogger(logger))

	a := &App{
		Hub:    hub,
		Users:  store,
		logger: logger,
	}

	if cfg.RedisAddr != "" {
		a.bridge = bridge.NewRedisBridge(bridge.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, hub, logger)
	}

	h := &web.Handlers{
		Users:        store,
		Hub:          hub,
		ChatTokenTTL: cfg.ChatTokenTTL,
		Logger:       logger.With().Str("component", "web").Logger(),
	}

	// Роуты
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", h.RegisterHandler)
	mux.HandleFunc("/api/login", h.LoginHandler)
	mux.Handle(token.Path, web.AuthMiddleware(http.HandlerFunc(h.ChatTokenHandler)))
	mux.HandleFunc("/ws", h.ChatConnectionHandler)
	a.Mux = mux

	return a, nil
}

// Start запускает Hub и, если настроен, Redis bridge.
// Без Redis сервер продолжает работу как одиночный экземпляр.
func (a *App) Start(ctx context.Context) {
	go a.Hub.Run(ctx)

	if a.bridge == nil {
		return
	}
	if err := a.bridge.Connect(ctx); err != nil {
		a.logger.Error().Err(err).Msg("redis bridge unavailable, running single instance")
		_ = a.bridge.Close()
		a.bridge = nil
		return
	}
	go a.bridge.Run(ctx)
	a.Hub.SetRelay(a.bridge)
}

// Close освобождает bridge и хранилище.
func (a *App) Close() error {
	var errs []error
	if a.bridge != nil {
		a.Hub.SetRelay(nil)
		errs = append(errs, a.bridge.Close())
	}
	errs = append(errs, a.Users.Close())
	return errors.Join(errs...)
}
