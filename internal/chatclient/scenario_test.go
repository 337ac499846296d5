package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-portfolio/chat-transport/internal/notify"
	"github.com/go-portfolio/chat-transport/internal/token"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Полный сценарий: токен → сокет → join → new_message → 1006 → уведомление →
// после задержки новый сокет со свежим токеном
func TestScenario_ReceiveDropReconnect(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		tok := "tok-1"
		if n > 1 {
			tok = "tok-2"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	}))
	defer api.Close()

	sink := &recordingSink{}
	supplier := token.New(token.Options{
		BaseURL:    api.URL,
		HTTPClient: api.Client(),
		Sink:       sink,
		Logger:     zerolog.Nop(),
	})
	dialer := &fakeDialer{}
	sched := &fakeScheduler{}
	client := New(Options{
		WSBaseURL: "ws://chat.test",
		Tokens:    supplier,
		Dialer:    dialer,
		Scheduler: sched,
		Sink:      sink,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})
	defer client.Disconnect()

	received := make(chan json.RawMessage, 4)
	client.OnMessage(func(data json.RawMessage) { received <- data })
	client.SetConversation("conv-42")

	// 1. токен
	tok, err := supplier.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	// 2. сокет и join
	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, "ws://chat.test/ws?token=tok-1", dialer.lastURL())
	first := dialer.lastConn()
	frames := first.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "join", frames[0]["type"])
	assert.Equal(t, "conv-42", frames[0]["conversationId"])

	// 3. сервер присылает сообщение — обработчик получает его ровно один раз
	first.inbound <- []byte(`{"type":"new_message","data":{"id":1,"text":"hi"}}`)
	select {
	case data := <-received:
		assert.JSONEq(t, `{"id":1,"text":"hi"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("new_message не доставлено")
	}

	// 4. аварийное закрытие
	first.serverClose(websocket.CloseAbnormalClosure)
	require.Eventually(t, client.ReconnectPending, time.Second, time.Millisecond)
	infos, _ := sink.snapshot()
	assert.Equal(t, []string{notify.MsgConnectionLost}, infos)
	assert.Equal(t, 4*time.Second, sched.last().delay)

	// 5. по таймеру — новый сокет с перезапрошенным токеном
	require.True(t, sched.advance())
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "ws://chat.test/ws?token=tok-2", dialer.lastURL())
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, "join", dialer.lastConn().frames(t)[0]["type"])

	select {
	case extra := <-received:
		t.Fatalf("лишняя доставка: %s", extra)
	default:
	}
}
