// Package wsclient implements ipc.Transport over a WebSocket connection to
// an ipcbind host server.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-ipcbind/internal/rpc"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

const writeWait = 10 * time.Second

// Client is a WebSocket transport. Event callbacks run on a single
// dispatch goroutine in arrival order and may call back into the client.
type Client struct {
	options Options
	log     zerolog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	state   State
	stateMu sync.RWMutex

	requestID atomic.Uint64
	pending   map[string]chan *rpc.Incoming
	pendingMu sync.Mutex

	subs   map[string]*subscription
	subsMu sync.Mutex

	// queue holds deliveries for the dispatch goroutine. It is unbounded so
	// the reader never waits on a callback.
	queue   []delivery
	queueMu sync.Mutex
	wake    chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type subscription struct {
	id     string
	event  string
	window string
	once   bool
	fn     ipc.Handler
	fired  atomic.Bool
}

type delivery struct {
	sub *subscription
	msg ipc.Message
}

// New creates a client without connecting.
func New(opts Options) *Client {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		options:    opts,
		log:        opts.Logger,
		state:      StateDisconnected,
		pending:    make(map[string]chan *rpc.Incoming),
		subs:       make(map[string]*subscription),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	go c.dispatch()
	return c
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c := New(opts)
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// State returns the current connection state
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// Label returns the window label sent to the host.
func (c *Client) Label() string {
	return c.options.Label
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.options.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if c.options.Label != "" {
		q := u.Query()
		q.Set("label", c.options.Label)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect establishes the WebSocket connection. It is a no-op unless the
// client is disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.stateMu.Lock()
	if c.state != StateDisconnected {
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.stateMu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.wsMu.Lock()
	if c.ctx.Err() != nil {
		c.wsMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.ws = conn
	c.wsMu.Unlock()

	c.setState(StateConnected)
	c.log.Debug().Str("url", endpoint).Msg("connected")

	go c.readMessages(conn)
	return nil
}

// Close closes the connection and stops reconnecting. Pending requests fail.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.wsMu.Lock()
		if c.ws != nil {
			c.ws.Close()
			c.ws = nil
		}
		c.wsMu.Unlock()

		c.setState(StateDisconnected)
		c.clearPendingRequests()
	})
	return nil
}

// Invoke implements ipc.Invoker.
func (c *Client) Invoke(ctx context.Context, command string, args any) (json.RawMessage, error) {
	raw, err := encode(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}
	return c.call(ctx, rpc.MethodInvoke, rpc.InvokeParams{Command: command, Args: raw})
}

// Listen implements ipc.Emitter for global events.
func (c *Client) Listen(ctx context.Context, event string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return c.subscribe(ctx, event, "", fn, false)
}

// Once implements ipc.Emitter for global events.
func (c *Client) Once(ctx context.Context, event string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return c.subscribe(ctx, event, "", fn, true)
}

// Emit implements ipc.Emitter. The event is broadcast to every listener.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	return c.emit(ctx, event, "", payload)
}

// Window returns the scoped operations of the window labelled label.
func (c *Client) Window(label string) ipc.Window {
	return &window{client: c, label: label}
}

func (c *Client) subscribe(ctx context.Context, event, window string, fn ipc.Handler, once bool) (ipc.UnlistenFunc, error) {
	sub := &subscription{
		id:     uuid.NewString(),
		event:  event,
		window: window,
		once:   once,
		fn:     fn,
	}

	// Register locally first so a notification racing the response is kept.
	c.subsMu.Lock()
	c.subs[sub.id] = sub
	c.subsMu.Unlock()

	if _, err := c.call(ctx, rpc.MethodListen, sub.params()); err != nil {
		c.removeSub(sub.id)
		return nil, err
	}

	var unlistenOnce sync.Once
	return func() {
		unlistenOnce.Do(func() {
			if c.removeSub(sub.id) {
				c.notifyHost(rpc.MethodUnlisten, rpc.UnlistenParams{ID: sub.id})
			}
		})
	}, nil
}

func (s *subscription) params() rpc.ListenParams {
	return rpc.ListenParams{ID: s.id, Event: s.event, Window: s.window, Once: s.once}
}

// removeSub drops a local subscription and reports whether it was live.
func (c *Client) removeSub(id string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	return ok
}

func (c *Client) emit(ctx context.Context, event, window string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = c.call(ctx, rpc.MethodEmit, rpc.EmitParams{Event: event, Window: window, Payload: raw})
	return err
}

// call sends a JSON-RPC request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if c.State() == StateDisconnected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	req, err := rpc.NewRequest(c.requestID.Add(1), method, params)
	if err != nil {
		return nil, err
	}
	key := string(req.ID)

	respChan := make(chan *rpc.Incoming, 1)
	c.pendingMu.Lock()
	c.pending[key] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, key)
		c.pendingMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.options.Timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Error != nil {
			return nil, &RPCError{
				Method:  method,
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return resp.Result, nil

	case <-timer.C:
		return nil, ErrTimeout

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// notifyHost sends a request without an ID; the host sends no response.
func (c *Client) notifyHost(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		return
	}
	if err := c.write(&rpc.Request{JSONRPC: rpc.Version, Method: method, Params: data}); err != nil {
		c.log.Debug().Err(err).Str("method", method).Msg("notification not sent")
	}
}

func (c *Client) write(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// readMessages reads incoming messages until conn fails.
func (c *Client) readMessages(conn *websocket.Conn) {
	for {
		var in rpc.Incoming
		if err := conn.ReadJSON(&in); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		if in.Method == rpc.NotifyEvent {
			c.route(in.Params)
			continue
		}

		if len(in.ID) > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[string(in.ID)]; ok {
				select {
				case ch <- &in:
				default:
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// route queues an event notification for its subscription.
func (c *Client) route(raw json.RawMessage) {
	var params rpc.EventParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.log.Warn().Err(err).Msg("malformed event notification")
		return
	}

	c.subsMu.Lock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.Unlock()
	if !ok {
		return
	}

	d := delivery{
		sub: sub,
		msg: ipc.Message{Event: params.Event, ID: params.ID, Window: params.Window, Payload: params.Payload},
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, d)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatch runs callbacks in arrival order until the client is closed.
func (c *Client) dispatch() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		c.queueMu.Lock()
		batch := c.queue
		c.queue = nil
		c.queueMu.Unlock()

		for _, d := range batch {
			if c.ctx.Err() != nil {
				return
			}
			c.deliver(d)
		}
	}
}

func (c *Client) deliver(d delivery) {
	if d.sub.once {
		if !d.sub.fired.CompareAndSwap(false, true) {
			return
		}
		c.removeSub(d.sub.id)
	} else if !c.live(d.sub.id) {
		return
	}
	d.sub.fn(d.msg)
}

func (c *Client) live(id string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[id]
	return ok
}

// handleDisconnect fails pending requests and starts reconnecting when enabled.
func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	c.wsMu.Lock()
	if c.ws != conn {
		c.wsMu.Unlock()
		return
	}
	c.ws = nil
	c.wsMu.Unlock()
	conn.Close()

	c.clearPendingRequests()

	if c.ctx.Err() != nil {
		c.setState(StateDisconnected)
		return
	}
	c.log.Warn().Err(cause).Msg("connection lost")

	if c.options.AutoReconnect {
		c.setState(StateReconnecting)
		go c.reconnect()
		return
	}
	c.setState(StateDisconnected)
}

// reconnect redials with exponential backoff and re-registers live
// subscriptions. Commands in flight are never retried.
func (c *Client) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.options.ReconnectDelay
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.options.MaxReconnectAttempts)), c.ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c.log.Debug().Int("attempt", attempt).Msg("reconnecting")
		return c.dial(c.ctx)
	}, bo)
	if err != nil {
		c.setState(StateDisconnected)
		c.log.Error().Err(err).Int("attempts", attempt).Msg("reconnect failed")
		return
	}

	c.subsMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()

	for _, sub := range subs {
		if _, err := c.call(c.ctx, rpc.MethodListen, sub.params()); err != nil {
			c.log.Warn().Err(err).Str("event", sub.event).Msg("re-listen failed")
		}
	}
	c.log.Info().Int("subscriptions", len(subs)).Msg("reconnected")
}

// clearPendingRequests fails every pending request
func (c *Client) clearPendingRequests() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[string]chan *rpc.Incoming)
}

// encode turns a Go value into JSON. nil and ipc.Void stay absent.
func encode(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	case ipc.Void:
		return nil, nil
	}
	return json.Marshal(v)
}

// window scopes client operations to one label.
type window struct {
	client *Client
	label  string
}

func (w *window) Label() string {
	return w.label
}

func (w *window) Listen(ctx context.Context, event string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return w.client.subscribe(ctx, event, w.label, fn, false)
}

func (w *window) Once(ctx context.Context, event string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return w.client.subscribe(ctx, event, w.label, fn, true)
}

func (w *window) Emit(ctx context.Context, event string, payload any) error {
	return w.client.emit(ctx, event, w.label, payload)
}
