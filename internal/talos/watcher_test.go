package talos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/execwatch/execwatch/internal/notify"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
	ch   chan string
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan string, 32)}
}

func (c *captureSink) Send(text string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	c.ch <- text
	return nil
}

func (c *captureSink) wait(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return ""
	}
}

func testWatcher(t *testing.T, cfg WatcherConfig, sink notify.Sink) *StreamWatcher {
	t.Helper()
	w, err := NewStreamWatcher(cfg, sink)
	require.NoError(t, err)
	return w
}

func TestNewStreamWatcherValidation(t *testing.T) {
	_, err := NewStreamWatcher(WatcherConfig{}, notify.Func(func(string) error { return nil }))
	require.Error(t, err)

	_, err = NewStreamWatcher(WatcherConfig{StreamURL: "wss://venue/ws/v1"}, nil)
	require.Error(t, err)
}

func TestNewStreamWatcherDerivesHostAndPath(t *testing.T) {
	w := testWatcher(t, WatcherConfig{
		Name:      "prime",
		StreamURL: "wss://tal-59.example.com/ws/v1",
	}, notify.Func(func(string) error { return nil }))

	require.Equal(t, "tal-59.example.com", w.host)
	require.Equal(t, "/ws/v1", w.path)
	require.Equal(t, defaultReadTimeout, w.cfg.ReadTimeout)
	require.Equal(t, defaultBackoffFloor, w.cfg.BackoffFloor)
	require.Equal(t, defaultBackoffCeiling, w.cfg.BackoffCeiling)
}

func TestBackoffSequence(t *testing.T) {
	w := testWatcher(t, WatcherConfig{StreamURL: "wss://venue/ws/v1"},
		notify.Func(func(string) error { return nil }))

	bo := w.newBackoff()
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, expect := range want {
		got := bo.NextBackOff()
		if got > w.cfg.BackoffCeiling {
			got = w.cfg.BackoffCeiling
		}
		require.Equal(t, expect, got, "step %d", i)
	}

	bo.Reset()
	require.Equal(t, time.Second, bo.NextBackOff(), "reset returns to the floor")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "receiving", StateReceiving.String())
	require.Equal(t, "backing_off", StateBackingOff.String())
	require.Equal(t, "stopped", StateStopped.String())
}

func TestOnSessionFailureDiagnostics(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:      "prime",
		StreamURL: "wss://venue.example.com/ws/v1",
		APISecret: "super-secret-value",
	}, sink)

	w.onSessionFailure(context.Background(), context.DeadlineExceeded)
	msg := sink.wait(t)

	require.Contains(t, msg, "🛑 Talos loop error")
	require.Contains(t, msg, "host=venue.example.com")
	require.Contains(t, msg, "path=/ws/v1")
	require.NotContains(t, msg, "super-secret-value")
	require.Equal(t, 1, w.retries)
	require.False(t, w.downtimeStart.IsZero())

	w.onSessionFailure(context.Background(), context.DeadlineExceeded)
	sink.wait(t)
	require.Equal(t, 2, w.retries, "downtime start is kept, retries accumulate")
}

func TestAfterHandshakeReconnectBanner(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:         "prime",
		StreamURL:    "wss://venue/ws/v1",
		AccountLabel: "Desk A",
	}, sink)

	w.prevSession = "old-session-123"
	w.downtimeStart = time.Now().Add(-90 * time.Second)
	w.retries = 3

	w.afterHandshake(context.Background(), helloMessage{SessionID: "new-session-456", TS: "2026-02-01T10:00:00.000000Z"})
	msg := sink.wait(t)

	require.Contains(t, msg, "🟢 Reconnected to Talos — Desk A")
	require.Contains(t, msg, "old-sess… → new-sess…")
	require.Contains(t, msg, "attempt 3")
	require.Contains(t, msg, "1m 30s")
	require.True(t, w.downtimeStart.IsZero())
	require.Zero(t, w.retries)
	require.True(t, w.bannerSent)
}

func TestAfterHandshakeConnectedBannerOnce(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:         "prime",
		StreamURL:    "wss://venue/ws/v1",
		AccountLabel: "Desk A",
	}, sink)

	w.afterHandshake(context.Background(), helloMessage{SessionID: "sess-1", TS: "2026-02-01T10:00:00.000000Z"})
	msg := sink.wait(t)
	require.Contains(t, msg, "🟢 Connected to Talos — Desk A")
	require.Contains(t, msg, "Session: sess-1")

	w.afterHandshake(context.Background(), helloMessage{SessionID: "sess-2", TS: "2026-02-01T11:00:00.000000Z"})
	select {
	case extra := <-sink.ch:
		t.Fatalf("unexpected second banner: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleEventDeferredBanner(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:      "prime",
		StreamURL: "wss://venue/ws/v1",
	}, sink)
	w.helloSession = "sess-abcdef123"
	w.helloTS = "2026-02-01T10:00:00.000000Z"

	ev := newEvent(func(e *ExecutionReport) {
		e.ExecType = ExecTypeNew
		e.Account = "Learned Desk"
	})
	w.handleEvent(context.Background(), ev)

	banner := sink.wait(t)
	require.Contains(t, banner, "🟢 Connected to Talos — Learned Desk")

	notification := sink.wait(t)
	require.Contains(t, notification, "🆕 New order")

	w.handleEvent(context.Background(), ev)
	again := sink.wait(t)
	require.Contains(t, again, "🆕 New order", "banner is not repeated")
}

func TestHandleFrameVenueError(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{Name: "prime", StreamURL: "wss://venue/ws/v1"}, sink)

	w.handleFrame(context.Background(), []byte(`{"type":"error","error":{"code":42}}`))
	msg := sink.wait(t)
	require.Contains(t, msg, "⚠️ Talos error:")
	require.Contains(t, msg, `"code":42`)
}

func TestHandleFrameIgnoresOtherTypes(t *testing.T) {
	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{Name: "prime", StreamURL: "wss://venue/ws/v1"}, sink)

	w.handleFrame(context.Background(), []byte(`{"type":"hello","session_id":"x"}`))
	w.handleFrame(context.Background(), []byte(`not json`))

	select {
	case msg := <-sink.ch:
		t.Fatalf("unexpected notification: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIdleStreamPingsWithoutReconnecting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dials atomic.Int32
	pings := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")

		writeCtx, writeCancel := context.WithTimeout(ctx, time.Second)
		err = conn.Write(writeCtx, websocket.MessageText,
			[]byte(`{"session_id":"sess-idle-001","ts":"2026-02-01T10:00:00.000000Z"}`))
		writeCancel()
		require.NoError(t, err)

		// Stay silent; the subscribe frame and keep-alive pings are all
		// the client should send.
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil && msg["type"] == "ping" {
				pings <- struct{}{}
			}
		}
	}))
	t.Cleanup(server.Close)

	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:         "idle",
		StreamURL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		APIKey:       "test-key",
		APISecret:    "test-secret",
		AccountLabel: "Desk A",
		ReadTimeout:  200 * time.Millisecond,
	}, sink)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	banner := sink.wait(t)
	require.Contains(t, banner, "🟢 Connected to Talos")

	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(3 * time.Second):
			t.Fatal("expected keep-alive ping on idle stream")
		}
	}

	require.EqualValues(t, 1, dials.Load(), "idle stream must not reconnect")
	select {
	case msg := <-sink.ch:
		t.Fatalf("unexpected notification on idle stream: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribePayload := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("TALOS-KEY"))
		require.NotEmpty(t, r.Header.Get("TALOS-TS"))
		require.NotEmpty(t, r.Header.Get("TALOS-SIGN"))

		conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")

		writeCtx, writeCancel := context.WithTimeout(ctx, time.Second)
		err = conn.Write(writeCtx, websocket.MessageText,
			[]byte(`{"session_id":"sess-e2e-001","ts":"2026-02-01T10:00:00.000000Z"}`))
		writeCancel()
		require.NoError(t, err)

		readCtx, readCancel := context.WithTimeout(ctx, time.Second)
		_, data, err := conn.Read(readCtx)
		readCancel()
		require.NoError(t, err)
		subscribePayload <- append([]byte(nil), data...)

		report := `{"type":"ExecutionReport","data":[{"ExecType":"New","Symbol":"BTC-USD","Side":"Buy","OrderQty":"1.5","Price":"65000","OrderID":"X1","AccountName":"Desk A","RequestUser":"alice"}]}`
		writeCtx, writeCancel = context.WithTimeout(ctx, time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, []byte(report))
		writeCancel()
		require.NoError(t, err)

		<-ctx.Done()
	}))
	t.Cleanup(server.Close)

	sink := newCaptureSink()
	w := testWatcher(t, WatcherConfig{
		Name:         "e2e",
		StreamURL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		APIKey:       "test-key",
		APISecret:    "test-secret",
		AccountLabel: "Desk A",
	}, sink)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	banner := sink.wait(t)
	require.Contains(t, banner, "🟢 Connected to Talos — Desk A")
	require.Contains(t, banner, "sess-e2e…")

	select {
	case raw := <-subscribePayload:
		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, "subscribe", req["type"])
		streams, ok := req["streams"].([]any)
		require.True(t, ok)
		require.Len(t, streams, 1)
		first, ok := streams[0].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "ExecutionReport", first["name"])
		require.NotEmpty(t, first["StartDate"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected subscribe payload")
	}

	notification := sink.wait(t)
	require.Contains(t, notification, "🆕 New order — Desk A")
	require.Contains(t, notification, "X1")
	require.Contains(t, notification, "65,000.00")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
