package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// fakeConn — сокет в памяти: тест сам решает, что прочитает клиент
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	closes   int // сколько close-кадров записал клиент
	writeErr error

	inbound chan []byte
	closeCh chan int
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan int, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case code := <-c.closeCh:
		return 0, nil, &websocket.CloseError{Code: code}
	case <-c.done:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if messageType == websocket.CloseMessage {
		c.closes++
		return nil
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// serverClose имитирует закрытие сокета сервером с кодом code
func (c *fakeConn) serverClose(code int) {
	c.closeCh <- code
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// frames декодирует записанные кадры
func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.writes))
	for _, w := range c.writes {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err != nil {
			t.Fatalf("клиент записал не-JSON кадр: %q", w)
		}
		out = append(out, m)
	}
	return out
}

// fakeDialer выдаёт fakeConn или ошибку по сценарию
type fakeDialer struct {
	mu       sync.Mutex
	urls     []string
	conns    []*fakeConn
	failNext int
	failAll  bool
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

// fakeTimer/fakeScheduler — ручное время для таймеров переподключения
type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

// advance "прокручивает время" до последнего таймера: срабатывает только не отменённый
func (s *fakeScheduler) advance() bool {
	t := s.last()
	if t == nil || !t.Stop() {
		return false
	}
	t.f()
	return true
}

// fakeTokens — источник токенов по сценарию
type fakeTokens struct {
	mu            sync.Mutex
	current       string
	next          []string
	invalidations int
	fetches       int
	err           error
	onFetch       func(tok string) // как Subscribe у настоящего поставщика
}

func (f *fakeTokens) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.fetches++
	if f.err != nil {
		f.mu.Unlock()
		return "", f.err
	}
	changed := false
	if len(f.next) > 0 {
		changed = f.next[0] != f.current
		f.current, f.next = f.next[0], f.next[1:]
	}
	tok, hook := f.current, f.onFetch
	f.mu.Unlock()

	if changed && hook != nil {
		hook(tok)
	}
	return tok, nil
}

func (f *fakeTokens) set(tok string) {
	f.mu.Lock()
	f.current = tok
	f.mu.Unlock()
}

// recordingSink запоминает уведомления
type recordingSink struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (s *recordingSink) ShowInfo(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, msg)
}

func (s *recordingSink) ShowError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *recordingSink) snapshot() (infos, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.infos...), append([]string(nil), s.errors...)
}

type harness struct {
	client *Client
	dialer *fakeDialer
	sched  *fakeScheduler
	tokens *fakeTokens
	sink   *recordingSink
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		sched:  &fakeScheduler{},
		tokens: &fakeTokens{current: "tok-1"},
		sink:   &recordingSink{},
	}
	h.client = New(Options{
		WSBaseURL: "ws://chat.test/",
		Tokens:    h.tokens,
		Dialer:    h.dialer,
		Scheduler: h.sched,
		Sink:      h.sink,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})
	t.Cleanup(h.client.Disconnect)
	return h
}
