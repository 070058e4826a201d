package talos

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/execwatch/execwatch/errs"
	"github.com/execwatch/execwatch/internal/notify"
)

// State is the externally visible phase of a watcher's connection loop.
type State int32

const (
	// StateConnecting covers dial, handshake and subscribe.
	StateConnecting State = iota
	// StateReceiving means the watcher is inside the read loop.
	StateReceiving
	// StateBackingOff means the watcher sleeps before the next attempt.
	StateBackingOff
	// StateStopped is terminal, entered only on an external stop.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReceiving:
		return "receiving"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	defaultReadTimeout    = 25 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultBackoffFloor   = time.Second
	defaultBackoffCeiling = 60 * time.Second
	streamReadLimit       = 2 * 1024 * 1024

	subscribeReqID = 100
	pingReqID      = 1
)

// WatcherConfig describes one stream connection. It is immutable once the
// watcher starts.
type WatcherConfig struct {
	Name      string
	StreamURL string
	// Host and Path override the values parsed from StreamURL for signing.
	Host string
	Path string

	APIKey    string
	APISecret string

	// SubscribeUser scopes the subscription server-side.
	SubscribeUser string

	ExcludeUsers      []string
	SubAccounts       []string
	AccountLabel      string
	PerExecFills      bool
	QuoteQtyOverrides map[string]bool

	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration

	Logger *log.Logger
}

// StreamWatcher owns one long-lived execution report stream: connect,
// handshake, subscribe, receive, reconnect with backoff. It never gives up
// until its context is cancelled.
type StreamWatcher struct {
	cfg     WatcherConfig
	host    string
	path    string
	signer  *Signer
	sink    notify.Sink
	cls     *Classifier
	metrics *watcherMetrics
	logger  *log.Logger
	runID   string

	state atomic.Int32

	// Session continuity, touched only from the Run goroutine.
	prevSession   string
	downtimeStart time.Time
	retries       int
	bannerSent    bool
	helloSession  string
	helloTS       string
}

// NewStreamWatcher validates the connection parameters and builds a watcher.
// Run must be called to start it.
func NewStreamWatcher(cfg WatcherConfig, sink notify.Sink) (*StreamWatcher, error) {
	if strings.TrimSpace(cfg.StreamURL) == "" {
		return nil, errs.New("talos", errs.CodeInvalid, errs.WithMessage("stream url required"))
	}
	if sink == nil {
		return nil, errs.New("talos", errs.CodeInvalid, errs.WithMessage("notification sink required"))
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.StreamURL))
	if err != nil {
		return nil, errs.New("talos", errs.CodeInvalid,
			errs.WithMessage("parse stream url"), errs.WithCause(err))
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = parsed.Host
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = parsed.Path
	}
	if path == "" {
		path = "/ws/v1"
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = defaultBackoffFloor
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = defaultBackoffCeiling
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &StreamWatcher{
		cfg:    cfg,
		host:   host,
		path:   path,
		signer: NewSigner(cfg.APIKey, cfg.APISecret),
		sink:   sink,
		cls: NewClassifier(ClassifierConfig{
			AccountLabel:      cfg.AccountLabel,
			ExcludeUsers:      cfg.ExcludeUsers,
			SubAccounts:       cfg.SubAccounts,
			PerExecFills:      cfg.PerExecFills,
			QuoteQtyOverrides: cfg.QuoteQtyOverrides,
		}),
		metrics: newWatcherMetrics(cfg.Name),
		logger:  logger,
		runID:   uuid.NewString(),
	}, nil
}

// Name returns the watcher's configured name.
func (w *StreamWatcher) Name() string { return w.cfg.Name }

// State reports the current connection phase.
func (w *StreamWatcher) State() State { return State(w.state.Load()) }

// Run drives the reconnect loop until ctx is cancelled. The returned error
// is always the context's; stream failures are retried forever.
func (w *StreamWatcher) Run(ctx context.Context) error {
	defer w.state.Store(int32(StateStopped))
	w.logger.Printf("watcher [%s]: starting run %s", w.cfg.Name, w.runID)
	bo := w.newBackoff()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.state.Store(int32(StateConnecting))

		err := w.runSession(ctx, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.onSessionFailure(ctx, err)

		w.state.Store(int32(StateBackingOff))
		sleep := bo.NextBackOff()
		if sleep == backoff.Stop || sleep > w.cfg.BackoffCeiling {
			sleep = w.cfg.BackoffCeiling
		}
		w.logger.Printf("watcher [%s]: backing off %s (attempt %d)", w.cfg.Name, sleep, w.retries)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *StreamWatcher) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.BackoffFloor
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = w.cfg.BackoffCeiling
	bo.Reset()
	return bo
}

// runSession runs one full connection: dial, hello, banner, subscribe,
// receive. Any returned error sends the watcher through the backoff path.
func (w *StreamWatcher) runSession(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	headers, sctx := w.signer.Headers(http.MethodGet, w.host, w.path, "")

	dialCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	conn, _, err := websocket.Dial(dialCtx, w.cfg.StreamURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	cancel()
	if err != nil {
		return errs.New("talos", errs.CodeNetwork,
			errs.WithEndpoint(w.path),
			errs.WithMessage("stream dial failed at "+sctx.Timestamp),
			errs.WithCause(err))
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()
	conn.SetReadLimit(streamReadLimit)

	hello, err := w.readHello(ctx, conn)
	if err != nil {
		return err
	}
	// A good handshake resets the retry schedule even before any message
	// arrives.
	bo.Reset()
	w.metrics.recordReconnect(ctx, "success")
	w.afterHandshake(ctx, hello)

	if err := w.subscribe(ctx, conn); err != nil {
		return err
	}

	w.state.Store(int32(StateReceiving))
	return w.receiveLoop(ctx, conn)
}

// readHello consumes the mandatory first frame. A malformed hello counts as
// a connection failure, not a skippable protocol error.
func (w *StreamWatcher) readHello(ctx context.Context, conn *websocket.Conn) (helloMessage, error) {
	readCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()
	_, payload, err := conn.Read(readCtx)
	if err != nil {
		return helloMessage{}, errs.New("talos", errs.CodeNetwork,
			errs.WithEndpoint(w.path),
			errs.WithMessage("read hello"),
			errs.WithCause(err))
	}
	var hello helloMessage
	if err := json.Unmarshal(payload, &hello); err != nil {
		return helloMessage{}, errs.New("talos", errs.CodeProtocol,
			errs.WithEndpoint(w.path),
			errs.WithMessage("decode hello"),
			errs.WithCause(err))
	}
	return hello, nil
}

// afterHandshake updates session continuity state and emits the connected or
// reconnected banner. The connected banner is deferred until an account
// label is known, possibly learned from the first event.
func (w *StreamWatcher) afterHandshake(ctx context.Context, hello helloMessage) {
	helloTS := hello.TS
	if helloTS == "" {
		helloTS = UTCTimestamp()
	}

	if !w.downtimeStart.IsZero() {
		downtime := time.Since(w.downtimeStart)
		w.metrics.recordDowntime(ctx, downtime.Seconds())
		sess := shortID(hello.SessionID)
		if w.prevSession != "" {
			sess = shortID(w.prevSession) + " → " + shortID(hello.SessionID)
		}
		w.send(ctx, "banner", strings.Join([]string{
			"🟢 Reconnected to Talos — " + orDash(w.cls.AccountLabel()),
			"Session: " + sess,
			"Time: " + helloTS,
			"(after " + fmtDuration(downtime) + ", attempt " + fmtInt(w.retries) + ")",
		}, "\n"))
		w.downtimeStart = time.Time{}
		w.retries = 0
		w.bannerSent = true
	} else if w.cls.AccountLabel() != "" && !w.bannerSent {
		w.sendConnectedBanner(ctx, hello.SessionID, helloTS)
	}

	w.prevSession = hello.SessionID
	w.helloSession = hello.SessionID
	w.helloTS = helloTS
}

func (w *StreamWatcher) sendConnectedBanner(ctx context.Context, session, ts string) {
	w.send(ctx, "banner", strings.Join([]string{
		"🟢 Connected to Talos — " + orDash(w.cls.AccountLabel()),
		"Session: " + shortID(session),
		"Time: " + ts,
	}, "\n"))
	w.bannerSent = true
}

func (w *StreamWatcher) subscribe(ctx context.Context, conn *websocket.Conn) error {
	spec := streamSpec{
		Name:      msgTypeExecutionReport,
		StartDate: UTCTimestamp(),
		User:      w.cfg.SubscribeUser,
	}
	req := subscribeRequest{
		ReqID:   subscribeReqID,
		Type:    "subscribe",
		Streams: []streamSpec{spec},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return errs.New("talos", errs.CodeNetwork,
			errs.WithEndpoint(w.path),
			errs.WithMessage("write subscribe"),
			errs.WithCause(err))
	}
	return nil
}

// receiveLoop reads frames until the connection fails or ctx is cancelled.
// Reads block on the session context; an idle stream is not a failure. The
// keep-alive timer runs on the write side, reset by every received frame,
// because cancelling a read context closes the whole connection.
func (w *StreamWatcher) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan struct{}, 1)
	pingFailed := make(chan error, 1)
	go w.keepAlive(loopCtx, conn, frames, pingFailed, cancel)

	for {
		_, payload, err := conn.Read(loopCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case pingErr := <-pingFailed:
				return pingErr
			default:
			}
			return errs.New("talos", errs.CodeNetwork,
				errs.WithEndpoint(w.path),
				errs.WithMessage("stream read"),
				errs.WithCause(err))
		}

		select {
		case frames <- struct{}{}:
		default:
		}
		w.metrics.recordMessage(ctx, len(payload))
		w.handleFrame(ctx, payload)
	}
}

// keepAlive pings the venue whenever no frame has arrived for a full read
// timeout. A failed ping reports its error and tears the session down.
func (w *StreamWatcher) keepAlive(ctx context.Context, conn *websocket.Conn, frames <-chan struct{}, failed chan<- error, cancel context.CancelFunc) {
	timer := time.NewTimer(w.cfg.ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frames:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.cfg.ReadTimeout)
		case <-timer.C:
			if err := w.ping(ctx, conn); err != nil {
				failed <- err
				cancel()
				return
			}
			timer.Reset(w.cfg.ReadTimeout)
		}
	}
}

func (w *StreamWatcher) ping(ctx context.Context, conn *websocket.Conn) error {
	msg := pingMessage{ReqID: pingReqID, Type: "ping", TS: UTCTimestamp()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ping: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return errs.New("talos", errs.CodeNetwork,
			errs.WithEndpoint(w.path),
			errs.WithMessage("write ping"),
			errs.WithCause(err))
	}
	w.metrics.recordPing(ctx)
	return nil
}

// handleFrame dispatches one inbound frame. Malformed frames are skipped;
// they only matter during the hello read.
func (w *StreamWatcher) handleFrame(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		w.logger.Printf("watcher [%s]: skipping malformed frame: %v", w.cfg.Name, err)
		return
	}

	switch env.Type {
	case msgTypeError:
		w.metrics.recordVenueError(ctx, "stream_error")
		w.send(ctx, "venue_error", "⚠️ Talos error:\n"+string(payload))
	case msgTypeExecutionReport:
		for _, raw := range env.Data {
			ev, err := ParseExecutionReport(raw, env.Initial)
			if err != nil {
				w.logger.Printf("watcher [%s]: skipping bad record: %v", w.cfg.Name, err)
				continue
			}
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *StreamWatcher) handleEvent(ctx context.Context, ev ExecutionReport) {
	if ev.Account != "" {
		w.cls.SetAccountLabel(ev.Account)
	}
	// The connected banner may have been waiting on the first event to
	// supply an account label.
	if !w.bannerSent && w.cls.AccountLabel() != "" {
		w.sendConnectedBanner(ctx, w.helloSession, w.helloTS)
	}

	text, ok := w.cls.Classify(ev)
	if !ok {
		return
	}
	w.send(ctx, strings.ToLower(string(ev.ExecType)), text)
}

// onSessionFailure records downtime tracking and tells the sink what broke.
// Diagnostics carry host, path and timestamp but never credentials.
func (w *StreamWatcher) onSessionFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if w.downtimeStart.IsZero() {
		w.downtimeStart = time.Now()
		w.retries = 0
	}
	w.retries++
	w.metrics.recordReconnect(ctx, "error")
	w.logger.Printf("watcher [%s]: session failed: %v", w.cfg.Name, err)

	kind := "loop error"
	if errs.IsCode(err, errs.CodeProtocol) {
		kind = "handshake error"
	}
	w.send(ctx, "diagnostic", strings.Join([]string{
		"🛑 Talos " + kind + ": " + err.Error(),
		"Check WS URL / keys / system clock.",
		"Debug: host=" + w.host + " path=" + w.path + " ts=" + UTCTimestamp(),
	}, "\n"))
}

// send pushes one notification, swallowing sink failures.
func (w *StreamWatcher) send(ctx context.Context, eventType, text string) {
	if err := w.sink.Send(text); err != nil {
		w.logger.Printf("watcher [%s]: sink send failed: %v", w.cfg.Name, err)
		return
	}
	w.metrics.recordNotification(ctx, eventType)
}
