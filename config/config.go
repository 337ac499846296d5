package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ClientConfig хранит настройки чат-клиента.
type ClientConfig struct {
	APIBaseURL string `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8080"`
	WSBaseURL  string `env:"CHAT_WS_BASE_URL"  envDefault:"ws://localhost:8080"`

	Username string `env:"CHAT_USERNAME"`
	Password string `env:"CHAT_PASSWORD"`

	// Политика токена: свежесть и принудительное обновление по таймеру
	TokenStaleTime       time.Duration `env:"CHAT_TOKEN_STALE_TIME"       envDefault:"4m"`
	TokenRefreshInterval time.Duration `env:"CHAT_TOKEN_REFRESH_INTERVAL" envDefault:"3m30s"`

	// Политика переподключения
	ReconnectBase        time.Duration `env:"CHAT_RECONNECT_BASE"         envDefault:"2s"`
	ReconnectMin         time.Duration `env:"CHAT_RECONNECT_MIN"          envDefault:"2s"`
	ReconnectMax         time.Duration `env:"CHAT_RECONNECT_MAX"          envDefault:"30s"`
	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"10"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// ServerConfig хранит настройки эталонного чат-бэкенда.
type ServerConfig struct {
	Addr         string        `env:"ADDR"           envDefault:":8080"`
	JWTSecret    string        `env:"JWT_SECRET"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	ChatTokenTTL time.Duration `env:"CHAT_TOKEN_TTL" envDefault:"5m"`

	// Redis используется только для ретрансляции сообщений между инстансами
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"     envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"chat:"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// LoadDotEnv подгружает переменные из .env-файлов, если они есть.
// Локально читаем .env, в продакшене переменные берутся из окружения.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// LoadClient загружает конфигурацию клиента из переменных окружения.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	if cfg.MaxReconnectAttempts < 0 {
		return nil, fmt.Errorf("CHAT_MAX_RECONNECT_ATTEMPTS must be >= 0")
	}
	return &cfg, nil
}

// LoadServer загружает конфигурацию сервера из переменных окружения.
func LoadServer() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse server env: %w", err)
	}
	return &cfg, nil
}
