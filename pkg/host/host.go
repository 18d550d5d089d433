// Package host provides an in-process IPC host: a command router and an
// event bus that together implement ipc.Transport. It backs the WebSocket
// host server and serves as a transport for tests and embedded use.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-ipcbind/internal/event"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

var (
	// ErrCommandNotFound is returned when invoking a command that was never registered.
	ErrCommandNotFound = errors.New("command not found")

	// ErrDuplicateCommand is returned when registering a name twice.
	ErrDuplicateCommand = errors.New("command already registered")

	// ErrInvalidArgs is returned when command arguments do not decode.
	ErrInvalidArgs = errors.New("invalid command arguments")
)

// CommandFunc implements a command. args is the raw JSON argument, nil when
// the caller sent none. The returned value is JSON-encoded.
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

// CommandError wraps a failure raised by a command implementation.
type CommandError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Option configures a Host.
type Option func(*Host)

// WithBus makes the host publish on an existing bus instead of its own.
func WithBus(bus *event.Bus) Option {
	return func(h *Host) {
		h.bus = bus
	}
}

// WithLogger sets the host logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Host) {
		h.log = log
	}
}

// WithEvents registers the known events. Emitting a wire name outside this
// registry is still delivered but logged as a warning.
func WithEvents(names *ipc.EventNames) Option {
	return func(h *Host) {
		h.events = names
	}
}

// Host routes commands to registered implementations and events through a bus.
type Host struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc

	bus     *event.Bus
	ownsBus bool
	events  *ipc.EventNames
	log     zerolog.Logger
}

// New creates a host.
func New(opts ...Option) *Host {
	h := &Host{
		commands: make(map[string]CommandFunc),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.bus == nil {
		h.bus = event.NewBus()
		h.ownsBus = true
	}
	return h
}

// Register installs fn under name.
func (h *Host) Register(name string, fn CommandFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	h.commands[name] = fn
	return nil
}

// Handle registers a typed command implementation. Missing or null
// arguments decode to the zero value of A.
func Handle[A, R any](h *Host, name string, fn func(ctx context.Context, args A) (R, error)) error {
	return h.Register(name, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
			}
		}
		return fn(ctx, args)
	})
}

// Commands returns the sorted names of registered commands.
func (h *Host) Commands() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke implements ipc.Invoker.
func (h *Host) Invoke(ctx context.Context, command string, args any) (json.RawMessage, error) {
	h.mu.RLock()
	fn, ok := h.commands[command]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, command)
	}

	raw, err := encode(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := h.call(ctx, command, fn, raw)
	if err != nil {
		if errors.Is(err, ErrInvalidArgs) {
			return nil, err
		}
		return nil, &CommandError{Command: command, Err: err}
	}

	result, err := encode(out)
	if err != nil {
		return nil, &CommandError{Command: command, Err: err}
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return result, nil
}

// call runs fn, turning a panic into an error.
func (h *Host) call(ctx context.Context, command string, fn CommandFunc, raw json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("command", command).Interface("panic", r).Msg("command panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, raw)
}

// Listen implements ipc.Emitter on the global bus.
func (h *Host) Listen(ctx context.Context, name string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return h.subscribe(ctx, name, "", fn, false)
}

// Once implements ipc.Emitter on the global bus.
func (h *Host) Once(ctx context.Context, name string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return h.subscribe(ctx, name, "", fn, true)
}

// Emit implements ipc.Emitter. The payload is broadcast to global listeners
// and to listeners of every window.
func (h *Host) Emit(ctx context.Context, name string, payload any) error {
	return h.publish(ctx, name, "", payload)
}

// Window returns the scoped operations of the window labelled label.
func (h *Host) Window(label string) ipc.Window {
	return &window{host: h, label: label}
}

// Bus returns the underlying event bus.
func (h *Host) Bus() *event.Bus {
	return h.bus
}

// Close releases the bus when the host created it.
func (h *Host) Close() error {
	if h.ownsBus {
		return h.bus.Close()
	}
	return nil
}

func (h *Host) subscribe(ctx context.Context, name, scope string, fn ipc.Handler, once bool) (ipc.UnlistenFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deliver := func(env event.Envelope) {
		fn(ipc.Message{Event: env.Name, ID: env.ID, Window: env.Target, Payload: env.Payload})
	}

	var unsub func()
	if once {
		unsub = h.bus.SubscribeOnce(name, scope, deliver)
	} else {
		unsub = h.bus.Subscribe(name, scope, deliver)
	}
	return ipc.UnlistenFunc(unsub), nil
}

func (h *Host) publish(ctx context.Context, name, target string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", name, err)
	}

	if h.events != nil && !h.events.Has(name) {
		h.log.Warn().Str("event", name).Msg("event not registered")
	}

	n := h.bus.Publish(event.Envelope{Name: name, Target: target, Payload: raw})
	h.log.Debug().Str("event", name).Str("target", target).Int("delivered", n).Msg("event emitted")
	return nil
}

// encode turns a Go value into JSON. nil stays nil; raw JSON passes through.
func encode(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	case ipc.Void:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// window scopes host operations to one label.
type window struct {
	host  *Host
	label string
}

func (w *window) Label() string {
	return w.label
}

func (w *window) Listen(ctx context.Context, name string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return w.host.subscribe(ctx, name, w.label, fn, false)
}

func (w *window) Once(ctx context.Context, name string, fn ipc.Handler) (ipc.UnlistenFunc, error) {
	return w.host.subscribe(ctx, name, w.label, fn, true)
}

func (w *window) Emit(ctx context.Context, name string, payload any) error {
	return w.host.publish(ctx, name, w.label, payload)
}
