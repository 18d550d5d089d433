package ipc

import (
	"bytes"
	"context"
	"encoding/json"
)

// Received is a decoded event occurrence. Err is set, and Payload left at
// its zero value, when the wire payload does not decode into T.
type Received[T any] struct {
	Message
	Payload T
	Err     error
}

// Event is a typed view over an EventHandle whose payload is T.
type Event[T any] struct {
	handle *EventHandle
}

// EventOf returns the typed handle for key.
func EventOf[T any](events *Events, key string) (Event[T], error) {
	h, err := events.Get(key)
	if err != nil {
		return Event[T]{}, err
	}
	return Event[T]{handle: h}, nil
}

// MustEvent is like EventOf but panics on an unknown key.
func MustEvent[T any](events *Events, key string) Event[T] {
	return Event[T]{handle: events.MustGet(key)}
}

// Handle returns the underlying untyped handle.
func (e Event[T]) Handle() *EventHandle {
	return e.handle
}

// Global returns typed operations on the global bus.
func (e Event[T]) Global() TypedOps[T] {
	return TypedOps[T]{ops: e.handle.Global()}
}

// ScopedTo returns typed operations bound to w.
func (e Event[T]) ScopedTo(w Window) TypedOps[T] {
	return TypedOps[T]{ops: e.handle.ScopedTo(w)}
}

// TypedOps decodes payloads into T on delivery and encodes T on emit.
type TypedOps[T any] struct {
	ops Ops
}

// Listen subscribes fn to every future occurrence.
func (o TypedOps[T]) Listen(ctx context.Context, fn func(Received[T])) (UnlistenFunc, error) {
	return o.ops.Listen(ctx, decoding(o.ops, fn))
}

// Once subscribes fn to the next occurrence.
func (o TypedOps[T]) Once(ctx context.Context, fn func(Received[T])) (UnlistenFunc, error) {
	return o.ops.Once(ctx, decoding(o.ops, fn))
}

// Emit sends payload.
func (o TypedOps[T]) Emit(ctx context.Context, payload T) error {
	return o.ops.Emit(ctx, payload)
}

// EmitEmpty sends the event without a payload. It fails with
// ErrPayloadRequired unless the event is nullable.
func (o TypedOps[T]) EmitEmpty(ctx context.Context) error {
	return o.ops.Emit(ctx, nil)
}

// decoding adapts fn to a Handler. A missing or null payload is only valid
// on nullable events or when T can hold null; otherwise fn gets
// ErrPayloadRequired.
func decoding[T any](ops Ops, fn func(Received[T])) Handler {
	return func(msg Message) {
		rec := Received[T]{Message: msg}
		raw := bytes.TrimSpace(msg.Payload)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			if !ops.nullable && !acceptsNull[T]() {
				rec.Err = &ShapeError{Name: ops.name, Err: ErrPayloadRequired}
			}
			fn(rec)
			return
		}
		if err := json.Unmarshal(raw, &rec.Payload); err != nil {
			var zero T
			rec.Payload = zero
			rec.Err = &ShapeError{Name: ops.name, Err: err}
		}
		fn(rec)
	}
}
