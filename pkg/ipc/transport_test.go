package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// fakeTransport is an in-memory Transport. Emissions are delivered
// synchronously; targeted ones only reach listeners of that window.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*fakeSub
	invokes []fakeInvoke
	emits   []fakeEmit

	result json.RawMessage
	err    error
}

type fakeSub struct {
	event  string
	window string
	once   bool
	fn     Handler
}

type fakeInvoke struct {
	Command string
	Args    any
}

type fakeEmit struct {
	Event   string
	Window  string
	Payload any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[int]*fakeSub)}
}

func (f *fakeTransport) Invoke(ctx context.Context, command string, args any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokes = append(f.invokes, fakeInvoke{Command: command, Args: args})
	return f.result, f.err
}

func (f *fakeTransport) Listen(ctx context.Context, event string, fn Handler) (UnlistenFunc, error) {
	return f.subscribe(event, "", fn, false), nil
}

func (f *fakeTransport) Once(ctx context.Context, event string, fn Handler) (UnlistenFunc, error) {
	return f.subscribe(event, "", fn, true), nil
}

func (f *fakeTransport) Emit(ctx context.Context, event string, payload any) error {
	return f.emit(event, "", payload)
}

// Window returns a window-scoped view of the transport.
func (f *fakeTransport) Window(label string) Window {
	return &fakeWindow{t: f, label: label}
}

func (f *fakeTransport) subscribe(event, window string, fn Handler, once bool) UnlistenFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = &fakeSub{event: event, window: window, once: once, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeTransport) emit(event, window string, payload any) error {
	var raw json.RawMessage
	if payload == nil {
		raw = json.RawMessage("null")
	} else {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	f.mu.Lock()
	f.emits = append(f.emits, fakeEmit{Event: event, Window: window, Payload: payload})
	msg := Message{Event: event, ID: fmt.Sprint(len(f.emits)), Window: window, Payload: raw}
	var targets []Handler
	for id, s := range f.subs {
		if s.event != event {
			continue
		}
		if window != "" && s.window != window {
			continue
		}
		targets = append(targets, s.fn)
		if s.once {
			delete(f.subs, id)
		}
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(msg)
	}
	return nil
}

func (f *fakeTransport) listeners(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.event == event {
			n++
		}
	}
	return n
}

type fakeWindow struct {
	t     *fakeTransport
	label string
}

func (w *fakeWindow) Label() string { return w.label }

func (w *fakeWindow) Listen(ctx context.Context, event string, fn Handler) (UnlistenFunc, error) {
	return w.t.subscribe(event, w.label, fn, false), nil
}

func (w *fakeWindow) Once(ctx context.Context, event string, fn Handler) (UnlistenFunc, error) {
	return w.t.subscribe(event, w.label, fn, true), nil
}

func (w *fakeWindow) Emit(ctx context.Context, event string, payload any) error {
	return w.t.emit(event, w.label, payload)
}
