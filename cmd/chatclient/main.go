package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-portfolio/chat-transport/config"
	"github.com/go-portfolio/chat-transport/internal/chat"
	"github.com/go-portfolio/chat-transport/internal/chatclient"
	"github.com/go-portfolio/chat-transport/internal/logging"
	"github.com/go-portfolio/chat-transport/internal/notify"
	"github.com/go-portfolio/chat-transport/internal/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `commands:
  /join <id>   switch to conversation
  /leave       leave current conversation
  /focus       revalidate chat token
  /quit        exit
anything else is sent to the current conversation`

func main() {
	config.LoadDotEnv(".env")

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	if cfg.Username == "" || cfg.Password == "" {
		logger.Fatal().Msg("CHAT_USERNAME and CHAT_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := token.NewSessionClient(15 * time.Second)
	if err := token.Login(ctx, httpClient, cfg.APIBaseURL, cfg.Username, cfg.Password); err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	sink := notify.NewLogSink(logger)
	tokens := token.New(token.Options{
		BaseURL:         cfg.APIBaseURL,
		HTTPClient:      httpClient,
		StaleTime:       cfg.TokenStaleTime,
		RefreshInterval: cfg.TokenRefreshInterval,
		Sink:            sink,
		Logger:          logger,
	})
	client := chatclient.New(chatclient.Options{
		WSBaseURL: cfg.WSBaseURL,
		Tokens:    tokens,
		Sink:      sink,
		Logger:    logger,
		Policy: chatclient.Policy{
			Base:        cfg.ReconnectBase,
			Min:         cfg.ReconnectMin,
			Max:         cfg.ReconnectMax,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
	})
	defer client.Disconnect()

	client.OnMessage(func(data json.RawMessage) { printMessage(data, logger) })
	client.OnConnectivity(func(connected bool) {
		if connected {
			fmt.Println("* connected")
		} else {
			fmt.Println("* disconnected")
		}
	})

	// Появление и смена токена управляют соединением
	unsubscribe := tokens.Subscribe(func(tok string) { client.HandleTokenChange(ctx, tok) })
	defer unsubscribe()
	go tokens.Run(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(usage)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, strings.TrimSpace(line), client, tokens) {
				return
			}
		}
	}
}

// handleLine выполняет команду; false — выход
func handleLine(ctx context.Context, line string, client *chatclient.Client, tokens *token.Supplier) bool {
	switch {
	case line == "":
	case line == "/quit":
		return false
	case line == "/leave":
		client.SetConversation("")
	case line == "/focus":
		// как возврат фокуса во вкладку: обновляем токен, если устарел
		if err := tokens.Revalidate(ctx); err == nil {
			_ = client.Connect(ctx)
		}
	case strings.HasPrefix(line, "/join "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		client.SetConversation(id)
		fmt.Printf("* conversation %s\n", id)
	case strings.HasPrefix(line, "/"):
		fmt.Println(usage)
	default:
		if !client.SendMessage(line, "") {
			fmt.Println("* not sent: no conversation or not connected")
		}
	}
	return true
}

func printMessage(data json.RawMessage, logger zerolog.Logger) {
	var msg chat.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug().Err(err).Msg("unexpected message payload")
		return
	}
	ts := time.UnixMilli(msg.Timestamp).Format(time.TimeOnly)
	fmt.Printf("[%s] %s@%s: %s\n", ts, msg.From, msg.ConversationID, msg.Content)
}
