package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/go-practice/go-ipcbind/internal/rpc"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/host"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

type greetArgs struct {
	Name string `json:"name"`
}

func newTestServer(t *testing.T, cat *catalog.Catalog) (*host.Host, *httptest.Server) {
	t.Helper()

	h := host.New()
	require.NoError(t, host.Handle(h, "greet", func(ctx context.Context, args greetArgs) (string, error) {
		if args.Name == "" {
			return "", errors.New("name is required")
		}
		return "Hello, " + args.Name + "!", nil
	}))

	srv := New(DefaultConfig(), h, cat)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
		_ = h.Close()
	})
	return h, ts
}

// testClient speaks raw JSON-RPC and buffers notifications that arrive
// while it waits for a response.
type testClient struct {
	t      *testing.T
	ws     *websocket.Conn
	nextID int
	events []rpc.EventParams
}

func dial(t *testing.T, ts *httptest.Server, label string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ipc?label=" + label
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &testClient{t: t, ws: ws}
}

func (c *testClient) read() rpc.Incoming {
	c.t.Helper()
	var in rpc.Incoming
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(c.t, c.ws.ReadJSON(&in))
	return in
}

func (c *testClient) call(method string, params any) rpc.Incoming {
	c.t.Helper()
	c.nextID++
	req, err := rpc.NewRequest(uint64(c.nextID), method, params)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(req))

	want := strconv.Itoa(c.nextID)
	for {
		in := c.read()
		if in.Method == rpc.NotifyEvent {
			c.buffer(in)
			continue
		}
		if string(in.ID) == want {
			return in
		}
	}
}

func (c *testClient) buffer(in rpc.Incoming) {
	var params rpc.EventParams
	require.NoError(c.t, json.Unmarshal(in.Params, &params))
	c.events = append(c.events, params)
}

func (c *testClient) nextEvent() rpc.EventParams {
	c.t.Helper()
	for len(c.events) == 0 {
		in := c.read()
		require.Equal(c.t, rpc.NotifyEvent, in.Method)
		c.buffer(in)
	}
	ev := c.events[0]
	c.events = c.events[1:]
	return ev
}

// eventsUntil collects notifications up to and including the one for event.
func (c *testClient) eventsUntil(event string) []rpc.EventParams {
	c.t.Helper()
	var out []rpc.EventParams
	for {
		ev := c.nextEvent()
		out = append(out, ev)
		if ev.Event == event {
			return out
		}
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Commands)
}

func TestCatalog_FromHost(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body catalog.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []ipc.CommandDescriptor{{Name: "greet"}}, body.Commands)
	assert.Empty(t, body.Events)
}

func TestCatalog_Loaded(t *testing.T) {
	cat := &catalog.Catalog{
		Name:     "demo",
		Commands: []ipc.CommandDescriptor{{Name: "greet", Args: "{ name: string }", Result: "string"}},
		Events:   []ipc.EventDescriptor{{Key: "demoEvent", Name: "demo-event"}},
	}
	_, ts := newTestServer(t, cat)

	resp, err := http.Get(ts.URL + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body catalog.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, *cat, body)
}

func TestIPC_Invoke(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts, "main")

	in := c.call(rpc.MethodInvoke, rpc.InvokeParams{Command: "greet", Args: json.RawMessage(`{"name":"ws"}`)})
	require.Nil(t, in.Error)
	assert.JSONEq(t, `"Hello, ws!"`, string(in.Result))
}

func TestIPC_InvokeErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts, "main")

	tests := []struct {
		name   string
		params rpc.InvokeParams
		code   int
	}{
		{"unknown command", rpc.InvokeParams{Command: "missing"}, rpc.CommandNotFound},
		{"bad arguments", rpc.InvokeParams{Command: "greet", Args: json.RawMessage(`[]`)}, rpc.InvalidParams},
		{"command failure", rpc.InvokeParams{Command: "greet", Args: json.RawMessage(`{}`)}, rpc.CommandFailed},
		{"empty command", rpc.InvokeParams{}, rpc.InvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := c.call(rpc.MethodInvoke, tt.params)
			require.NotNil(t, in.Error)
			assert.Equal(t, tt.code, in.Error.Code)
		})
	}
}

func TestIPC_ProtocolErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts, "main")

	in := c.call("shell.execute", map[string]string{})
	require.NotNil(t, in.Error)
	assert.Equal(t, rpc.MethodNotFound, in.Error.Code)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("{")))
	in = c.read()
	require.NotNil(t, in.Error)
	assert.Equal(t, rpc.ParseError, in.Error.Code)

	require.NoError(t, c.ws.WriteJSON(map[string]any{"jsonrpc": "1.0", "method": "emit", "id": 99}))
	in = c.read()
	require.NotNil(t, in.Error)
	assert.Equal(t, rpc.InvalidRequest, in.Error.Code)
}

func TestIPC_ListenEmit(t *testing.T) {
	_, ts := newTestServer(t, nil)
	a := dial(t, ts, "main")
	b := dial(t, ts, "settings")

	in := a.call(rpc.MethodListen, rpc.ListenParams{ID: "s1", Event: "demo-event"})
	require.Nil(t, in.Error)

	in = b.call(rpc.MethodEmit, rpc.EmitParams{Event: "demo-event", Payload: json.RawMessage(`"hi"`)})
	require.Nil(t, in.Error)

	ev := a.nextEvent()
	assert.Equal(t, "s1", ev.Subscription)
	assert.Equal(t, "demo-event", ev.Event)
	assert.NotEmpty(t, ev.ID)
	assert.JSONEq(t, `"hi"`, string(ev.Payload))
}

func TestIPC_WindowScoping(t *testing.T) {
	_, ts := newTestServer(t, nil)
	a := dial(t, ts, "main")
	b := dial(t, ts, "settings")

	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "global", Event: "demo-event"}).Error)
	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "main", Event: "demo-event", Window: "main"}).Error)
	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "marker", Event: "marker"}).Error)

	require.Nil(t, b.call(rpc.MethodEmit, rpc.EmitParams{Event: "demo-event", Window: "main", Payload: json.RawMessage(`1`)}).Error)
	require.Nil(t, b.call(rpc.MethodEmit, rpc.EmitParams{Event: "marker"}).Error)

	events := a.eventsUntil("marker")
	require.Len(t, events, 2)
	assert.Equal(t, "main", events[0].Subscription)
	assert.Equal(t, "main", events[0].Window)
	assert.JSONEq(t, `null`, string(events[1].Payload))
}

func TestIPC_Once(t *testing.T) {
	_, ts := newTestServer(t, nil)
	a := dial(t, ts, "main")

	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "once", Event: "demo-event", Once: true}).Error)
	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "marker", Event: "marker"}).Error)

	require.Nil(t, a.call(rpc.MethodEmit, rpc.EmitParams{Event: "demo-event"}).Error)
	require.Nil(t, a.call(rpc.MethodEmit, rpc.EmitParams{Event: "demo-event"}).Error)
	require.Nil(t, a.call(rpc.MethodEmit, rpc.EmitParams{Event: "marker"}).Error)

	events := a.eventsUntil("marker")
	require.Len(t, events, 2)
	assert.Equal(t, "once", events[0].Subscription)

	in := a.call(rpc.MethodUnlisten, rpc.UnlistenParams{ID: "once"})
	assert.JSONEq(t, `{"removed":false}`, string(in.Result))
}

func TestIPC_Unlisten(t *testing.T) {
	h, ts := newTestServer(t, nil)
	a := dial(t, ts, "main")

	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "s1", Event: "demo-event"}).Error)
	assert.Equal(t, 1, h.Bus().Count("demo-event", ""))

	in := a.call(rpc.MethodListen, rpc.ListenParams{ID: "s1", Event: "demo-event"})
	require.NotNil(t, in.Error)
	assert.Equal(t, rpc.InvalidParams, in.Error.Code)

	in = a.call(rpc.MethodUnlisten, rpc.UnlistenParams{ID: "s1"})
	assert.JSONEq(t, `{"removed":true}`, string(in.Result))
	assert.Equal(t, 0, h.Bus().Count("demo-event", ""))
}

func TestIPC_DisconnectRemovesSubscriptions(t *testing.T) {
	h, ts := newTestServer(t, nil)
	a := dial(t, ts, "main")

	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "s1", Event: "demo-event"}).Error)
	require.Nil(t, a.call(rpc.MethodListen, rpc.ListenParams{ID: "s2", Event: "demo-event", Window: "main"}).Error)

	a.ws.Close()

	assert.Eventually(t, func() bool {
		return h.Bus().Count("demo-event", "") == 0 && h.Bus().Count("demo-event", "main") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamEvents(t *testing.T) {
	h, ts := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events/stream?pattern=demo-*", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, _ := readEvent()
	require.Equal(t, "connected", name)

	require.NoError(t, h.Emit(ctx, "other-event", 1))
	require.NoError(t, h.Window("main").Emit(ctx, "demo-event", "hello"))

	name, data := readEvent()
	require.Equal(t, "message", name)

	var env struct {
		Event   string          `json:"event"`
		Window  string          `json:"windowLabel"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, "demo-event", env.Event)
	assert.Equal(t, "main", env.Window)
	assert.JSONEq(t, `"hello"`, string(env.Payload))
}

func TestStreamEvents_InvalidPattern(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/events/stream?pattern=%5B")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ErrCodeInvalidRequest, body.Error.Code)
}
