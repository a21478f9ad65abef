package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnection and heartbeat tuning.
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	WriteTimeout   = 10 * time.Second
	RequestTimeout = 10 * time.Second
)

type subKind int

const (
	subAccount subKind = iota
	subLogs
)

// subscription is one desired subscription. The client-side handle is
// stable; the server-side id is refreshed on every reconnect.
type subscription struct {
	handle    uint64
	kind      subKind
	address   string
	onAccount func(AccountUpdate)
	onLogs    func(LogsUpdate)
	serverID  uint64
}

func (s *subscription) method() string {
	if s.kind == subAccount {
		return "accountSubscribe"
	}
	return "logsSubscribe"
}

func (s *subscription) unsubMethod() string {
	if s.kind == subAccount {
		return "accountUnsubscribe"
	}
	return "logsUnsubscribe"
}

func (s *subscription) params() []interface{} {
	if s.kind == subAccount {
		return []interface{}{
			s.address,
			map[string]interface{}{"encoding": "base64", "commitment": commitment},
		}
	}
	return []interface{}{
		map[string]interface{}{"mentions": []string{s.address}},
		map[string]interface{}{"commitment": commitment},
	}
}

// Subscriber maintains the WebSocket connection to the provider and
// multiplexes account-change and log-stream subscriptions over it. Desired
// subscriptions survive reconnects: handles stay valid while the server-side
// ids are re-established.
type Subscriber struct {
	url string

	conn   *websocket.Conn
	connMu sync.Mutex

	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	stopChan chan struct{}
	wg       sync.WaitGroup

	subMu      sync.Mutex
	nextHandle uint64
	subs       map[uint64]*subscription
	active     map[uint64]uint64 // server id -> handle

	reqID     atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan wsMessage

	connected atomic.Bool
}

// NewSubscriber creates a Subscriber for the given WebSocket endpoint.
func NewSubscriber(url string) *Subscriber {
	return &Subscriber{
		url:      url,
		backoff:  InitialBackoff,
		stopChan: make(chan struct{}),
		subs:     make(map[uint64]*subscription),
		active:   make(map[uint64]uint64),
		pending:  make(map[uint64]chan wsMessage),
	}
}

// Start begins the connection loop with automatic reconnection.
func (s *Subscriber) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.runLoop(ctx)

	s.wg.Add(1)
	go s.heartbeatMonitor(ctx)
}

// Stop gracefully shuts the subscriber down.
func (s *Subscriber) Stop() {
	close(s.stopChan)
	s.closeConnection()
	s.wg.Wait()
}

// Connected reports whether the provider connection is currently up.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// SubscribeAccount registers an account-change subscription and returns its
// handle once the provider acknowledges it.
func (s *Subscriber) SubscribeAccount(ctx context.Context, address string, handler func(AccountUpdate)) (uint64, error) {
	return s.subscribe(ctx, &subscription{kind: subAccount, address: address, onAccount: handler})
}

// SubscribeLogs registers a log-stream subscription for transactions
// mentioning the address.
func (s *Subscriber) SubscribeLogs(ctx context.Context, address string, handler func(LogsUpdate)) (uint64, error) {
	return s.subscribe(ctx, &subscription{kind: subLogs, address: address, onLogs: handler})
}

func (s *Subscriber) subscribe(ctx context.Context, sub *subscription) (uint64, error) {
	s.subMu.Lock()
	s.nextHandle++
	sub.handle = s.nextHandle
	s.subs[sub.handle] = sub
	s.subMu.Unlock()

	if err := s.establish(ctx, sub); err != nil {
		s.subMu.Lock()
		delete(s.subs, sub.handle)
		s.subMu.Unlock()
		return 0, err
	}
	return sub.handle, nil
}

// establish sends the subscribe request and records the server-side id.
// Called without any lock held; the network round-trip must not block other
// subscriptions.
func (s *Subscriber) establish(ctx context.Context, sub *subscription) error {
	resp, err := s.request(ctx, sub.method(), sub.params())
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrProviderUnavailable, sub.method(), sub.address, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s %s: %w", sub.method(), sub.address, resp.Error)
	}

	var serverID uint64
	if err := json.Unmarshal(resp.Result, &serverID); err != nil {
		return fmt.Errorf("decode %s result: %w", sub.method(), err)
	}

	s.subMu.Lock()
	sub.serverID = serverID
	s.active[serverID] = sub.handle
	s.subMu.Unlock()

	slog.Debug("rpc_subscribed", "method", sub.method(), "address", sub.address, "server_id", serverID)
	return nil
}

// Unsubscribe releases a subscription handle. The provider-side release is
// best-effort; the handle is always forgotten locally.
func (s *Subscriber) Unsubscribe(ctx context.Context, handle uint64) error {
	s.subMu.Lock()
	sub, ok := s.subs[handle]
	if ok {
		delete(s.subs, handle)
		if sub.serverID != 0 {
			delete(s.active, sub.serverID)
		}
	}
	s.subMu.Unlock()

	if !ok || sub.serverID == 0 {
		return nil
	}

	if _, err := s.request(ctx, sub.unsubMethod(), []interface{}{sub.serverID}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, sub.unsubMethod(), err)
	}
	return nil
}

// request performs one request/response round-trip over the socket.
func (s *Subscriber) request(ctx context.Context, method string, params []interface{}) (wsMessage, error) {
	id := s.reqID.Add(1)
	waiter := make(chan wsMessage, 1)

	s.pendingMu.Lock()
	s.pending[id] = waiter
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	s.connMu.Lock()
	conn := s.conn
	if conn == nil {
		s.connMu.Unlock()
		return wsMessage{}, fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	err := conn.WriteJSON(req)
	s.connMu.Unlock()
	if err != nil {
		return wsMessage{}, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		return wsMessage{}, ctx.Err()
	case <-s.stopChan:
		return wsMessage{}, fmt.Errorf("subscriber stopped")
	case <-time.After(RequestTimeout):
		return wsMessage{}, fmt.Errorf("%s timed out", method)
	}
}

// runLoop handles connection, reading, and reconnection.
func (s *Subscriber) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-s.stopChan:
			slog.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", s.backoff)
			s.waitBackoff(ctx)
			continue
		}

		s.resubscribeAll(ctx)

		if err := s.readLoop(ctx); err != nil {
			slog.Warn("ws_read_error", "error", err)
		}

		s.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
			s.waitBackoff(ctx)
		}
	}
}

// connect establishes the WebSocket connection.
func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.backoff = InitialBackoff
	s.connected.Store(true)
	s.updateLastMsg()

	slog.Info("ws_connected", "endpoint", s.url)
	return nil
}

// resubscribeAll re-establishes every desired subscription after a
// reconnect. Server-side ids from the previous connection are dead; handles
// stay stable.
func (s *Subscriber) resubscribeAll(ctx context.Context) {
	s.subMu.Lock()
	s.active = make(map[uint64]uint64)
	pending := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		sub.serverID = 0
		pending = append(pending, sub)
	}
	s.subMu.Unlock()

	for _, sub := range pending {
		if err := s.establish(ctx, sub); err != nil {
			slog.Warn("ws_resubscribe_failed", "method", sub.method(), "address", sub.address, "error", err)
		}
	}

	if len(pending) > 0 {
		slog.Info("ws_resubscribed", "count", len(pending))
	}
}

// readLoop reads frames and routes them to request waiters or notification
// handlers.
func (s *Subscriber) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopChan:
			return nil
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		s.updateLastMsg()
		s.handleMessage(message)
	}
}

// handleMessage dispatches one inbound frame.
func (s *Subscriber) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ws_parse_error", "error", err, "raw", string(data))
		return
	}

	// Response to one of our requests.
	if msg.Method == "" && msg.ID != 0 {
		s.pendingMu.Lock()
		waiter, ok := s.pending[msg.ID]
		s.pendingMu.Unlock()
		if ok {
			waiter <- msg
		}
		return
	}

	if msg.Params == nil {
		slog.Debug("ws_message", "method", msg.Method)
		return
	}

	s.subMu.Lock()
	handle, ok := s.active[msg.Params.Subscription]
	sub := s.subs[handle]
	s.subMu.Unlock()

	if !ok || sub == nil {
		slog.Debug("ws_orphan_notification", "method", msg.Method, "server_id", msg.Params.Subscription)
		return
	}

	switch msg.Method {
	case "accountNotification":
		update, err := parseAccountUpdate(msg.Params.Result)
		if err != nil {
			slog.Debug("ws_parse_error", "method", msg.Method, "error", err)
			return
		}
		sub.onAccount(update)
	case "logsNotification":
		update, err := parseLogsUpdate(msg.Params.Result)
		if err != nil {
			slog.Debug("ws_parse_error", "method", msg.Method, "error", err)
			return
		}
		sub.onLogs(update)
	default:
		slog.Debug("ws_message", "method", msg.Method)
	}
}

// heartbeatMonitor checks connection health.
func (s *Subscriber) heartbeatMonitor(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings the provider when no frame arrived recently.
func (s *Subscriber) checkHeartbeat() {
	s.lastMsgMu.RLock()
	lastMsg := s.lastMsg
	s.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed > HeartbeatTimeout {
		slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("ws_ping_failed", "error", err)
				s.closeConnection()
			}
		}
	}
}

func (s *Subscriber) updateLastMsg() {
	s.lastMsgMu.Lock()
	s.lastMsg = time.Now()
	s.lastMsgMu.Unlock()
}

func (s *Subscriber) closeConnection() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.connected.Store(false)
		slog.Info("ws_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (s *Subscriber) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(s.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := s.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	case <-time.After(wait):
	}

	s.backoff = time.Duration(float64(s.backoff) * BackoffFactor)
	if s.backoff > MaxBackoff {
		s.backoff = MaxBackoff
	}
}
