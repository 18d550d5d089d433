package ipc

import (
	"context"
	"encoding/json"
)

// Message is a single event occurrence delivered to a Handler.
type Message struct {
	// Event is the wire name the message was emitted under.
	Event string `json:"event"`

	// ID identifies this emission.
	ID string `json:"id"`

	// Window is the label of the targeted window, empty for broadcasts.
	Window string `json:"windowLabel,omitempty"`

	// Payload is the raw JSON payload, "null" when emitted without one.
	Payload json.RawMessage `json:"payload"`
}

// Handler receives event messages. Handlers run on the transport's delivery
// goroutine and must not block for long.
type Handler func(msg Message)

// UnlistenFunc cancels a subscription. Calling it more than once is a no-op.
type UnlistenFunc func()

// Invoker performs request/response command calls.
type Invoker interface {
	// Invoke calls the named command. args is nil for commands without arguments.
	Invoke(ctx context.Context, command string, args any) (json.RawMessage, error)
}

// Emitter is the subscribe/emit surface of an event bus.
type Emitter interface {
	// Listen subscribes h to every future occurrence of event.
	// It returns once the subscription is registered.
	Listen(ctx context.Context, event string, h Handler) (UnlistenFunc, error)

	// Once subscribes h to the next occurrence of event only.
	Once(ctx context.Context, event string, h Handler) (UnlistenFunc, error)

	// Emit broadcasts payload under event. payload may be nil.
	Emit(ctx context.Context, event string, payload any) error
}

// Transport is the global, unscoped IPC surface.
type Transport interface {
	Invoker
	Emitter
}

// Window is an opaque handle to a single window or webview. Its operations
// only observe, or only target, that window.
type Window interface {
	Emitter

	// Label identifies the window.
	Label() string
}
