package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-ipcbind/internal/rpc"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/host"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

const writeWait = 10 * time.Second

// serveIPC upgrades the request and serves JSON-RPC until the peer leaves.
// The optional label query parameter names the connecting window in logs.
func (s *Server) serveIPC(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	label := r.URL.Query().Get("label")
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		srv:       s,
		ws:        ws,
		label:     label,
		log:       s.log.With().Str("window", label).Str("remote", r.RemoteAddr).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		responses: make(chan *rpc.Response),
		events:    make(chan *rpc.Notification, s.config.OutboundBuffer),
		subs:      make(map[string]ipc.UnlistenFunc),
	}

	s.track(c)
	defer s.untrack(c)

	c.log.Debug().Msg("connected")
	c.run()
	c.log.Debug().Msg("disconnected")
}

// conn is one WebSocket client. Invokes run concurrently; listen, unlisten
// and emit run in the read loop so they apply in arrival order.
type conn struct {
	srv   *Server
	ws    *websocket.Conn
	label string
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	responses chan *rpc.Response
	events    chan *rpc.Notification

	mu   sync.Mutex
	subs map[string]ipc.UnlistenFunc

	inflight  sync.WaitGroup
	closeOnce sync.Once
}

func (c *conn) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()

	c.close()
	c.inflight.Wait()
	<-writerDone
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]ipc.UnlistenFunc)
		c.mu.Unlock()
		for _, unlisten := range subs {
			unlisten()
		}

		c.ws.Close()
	})
}

func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		var req rpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(rpc.Fail(nil, rpc.ParseError, "Parse error", err.Error()))
			continue
		}
		c.dispatch(&req)
	}
}

func (c *conn) writeLoop() {
	for {
		var msg any
		select {
		case <-c.ctx.Done():
			return
		case resp := <-c.responses:
			msg = resp
		case n := <-c.events:
			msg = n
		}

		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(msg); err != nil {
			c.log.Debug().Err(err).Msg("write failed")
			c.close()
			return
		}
	}
}

// reply queues a response. Responses are never dropped while the
// connection is open.
func (c *conn) reply(resp *rpc.Response) {
	select {
	case c.responses <- resp:
	case <-c.ctx.Done():
	}
}

func (c *conn) respond(req *rpc.Request, result any, rpcErr *rpc.Error) {
	if req.IsNotification() {
		return
	}
	if rpcErr != nil {
		c.reply(&rpc.Response{JSONRPC: rpc.Version, Error: rpcErr, ID: req.ID})
		return
	}
	c.reply(rpc.Result(req.ID, result))
}

func (c *conn) dispatch(req *rpc.Request) {
	if req.JSONRPC != rpc.Version {
		c.respond(req, nil, &rpc.Error{Code: rpc.InvalidRequest, Message: "Invalid JSON-RPC version"})
		return
	}

	switch req.Method {
	case rpc.MethodInvoke:
		var params rpc.InvokeParams
		if err := decodeParams(req.Params, &params); err != nil {
			c.respond(req, nil, err)
			return
		}
		if params.Command == "" {
			c.respond(req, nil, &rpc.Error{Code: rpc.InvalidParams, Message: "command is required"})
			return
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			result, err := c.srv.host.Invoke(c.ctx, params.Command, params.Args)
			if err != nil {
				c.respond(req, nil, invokeError(err))
				return
			}
			c.respond(req, result, nil)
		}()

	case rpc.MethodListen:
		result, err := c.listen(req.Params)
		c.respond(req, result, err)

	case rpc.MethodUnlisten:
		result, err := c.unlisten(req.Params)
		c.respond(req, result, err)

	case rpc.MethodEmit:
		result, err := c.emit(req.Params)
		c.respond(req, result, err)

	default:
		c.respond(req, nil, &rpc.Error{
			Code:    rpc.MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}
}

func (c *conn) listen(raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.ListenParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.ID == "" || params.Event == "" {
		return nil, &rpc.Error{Code: rpc.InvalidParams, Message: "id and event are required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[params.ID]; exists {
		return nil, &rpc.Error{Code: rpc.InvalidParams, Message: fmt.Sprintf("subscription %s already exists", params.ID)}
	}

	var target ipc.Emitter = c.srv.host
	if params.Window != "" {
		target = c.srv.host.Window(params.Window)
	}

	handler := func(msg ipc.Message) {
		if params.Once {
			c.mu.Lock()
			delete(c.subs, params.ID)
			c.mu.Unlock()
		}
		c.notify(params.ID, msg)
	}

	var (
		unlisten ipc.UnlistenFunc
		err      error
	)
	if params.Once {
		unlisten, err = target.Once(c.ctx, params.Event, handler)
	} else {
		unlisten, err = target.Listen(c.ctx, params.Event, handler)
	}
	if err != nil {
		return nil, &rpc.Error{Code: rpc.InternalError, Message: err.Error()}
	}

	c.subs[params.ID] = unlisten
	return map[string]string{"id": params.ID}, nil
}

func (c *conn) unlisten(raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.UnlistenParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	c.mu.Lock()
	unlisten, ok := c.subs[params.ID]
	delete(c.subs, params.ID)
	c.mu.Unlock()

	if ok {
		unlisten()
	}
	return map[string]bool{"removed": ok}, nil
}

func (c *conn) emit(raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.EmitParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Event == "" {
		return nil, &rpc.Error{Code: rpc.InvalidParams, Message: "event is required"}
	}

	var target ipc.Emitter = c.srv.host
	if params.Window != "" {
		target = c.srv.host.Window(params.Window)
	}
	if err := target.Emit(c.ctx, params.Event, params.Payload); err != nil {
		return nil, &rpc.Error{Code: rpc.InternalError, Message: err.Error()}
	}
	return nil, nil
}

// notify queues an event notification, dropping it when the client is
// not keeping up.
func (c *conn) notify(subscription string, msg ipc.Message) {
	n, err := rpc.Event(rpc.EventParams{
		Subscription: subscription,
		ID:           msg.ID,
		Event:        msg.Event,
		Window:       msg.Window,
		Payload:      msg.Payload,
	})
	if err != nil {
		c.log.Error().Err(err).Str("event", msg.Event).Msg("encode notification")
		return
	}

	select {
	case c.events <- n:
	case <-c.ctx.Done():
	default:
		c.log.Warn().
			Str("event", msg.Event).
			Str("subscription", subscription).
			Msg("event dropped: outbound queue full")
	}
}

func decodeParams(raw json.RawMessage, v any) *rpc.Error {
	if len(raw) == 0 {
		return &rpc.Error{Code: rpc.InvalidParams, Message: "Invalid parameters", Data: "params are required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &rpc.Error{Code: rpc.InvalidParams, Message: "Invalid parameters", Data: err.Error()}
	}
	return nil
}

// invokeError maps host errors to JSON-RPC errors.
func invokeError(err error) *rpc.Error {
	var cmdErr *host.CommandError
	switch {
	case errors.Is(err, host.ErrCommandNotFound):
		return &rpc.Error{Code: rpc.CommandNotFound, Message: err.Error()}
	case errors.Is(err, host.ErrInvalidArgs):
		return &rpc.Error{Code: rpc.InvalidParams, Message: err.Error()}
	case errors.As(err, &cmdErr):
		return &rpc.Error{Code: rpc.CommandFailed, Message: cmdErr.Err.Error(), Data: cmdErr.Command}
	default:
		return &rpc.Error{Code: rpc.InternalError, Message: err.Error()}
	}
}
