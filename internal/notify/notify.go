package notify

import "github.com/rs/zerolog"

// Тексты уведомлений, которые видит пользователь
const (
	MsgTokenFailed        = "Failed to get chat credentials. Please refresh the page."
	MsgConnectionLost     = "Connection lost. Reconnecting..."
	MsgReconnectExhausted = "Unable to reconnect to chat. Please refresh the page."
)

// Sink — поверхность для уведомлений пользователя (тосты, алерты, строка статуса).
type Sink interface {
	ShowInfo(msg string)
	ShowError(msg string)
}

// LogSink выводит уведомления в лог. Используется терминальным клиентом.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink пишет уведомления в logger с полем component=notify.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSink) ShowInfo(msg string) {
	s.logger.Info().Msg(msg)
}

func (s *LogSink) ShowError(msg string) {
	s.logger.Error().Msg(msg)
}

// Nop глотает все уведомления.
type Nop struct{}

func (Nop) ShowInfo(string)  {}
func (Nop) ShowError(string) {}
