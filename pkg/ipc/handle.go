package ipc

import "context"

// EventHandle is the dual-mode handle for one wire event. Global returns the
// operations against the unscoped bus, ScopedTo the operations against a
// single window. The handle itself keeps no per-window state.
type EventHandle struct {
	name      string
	nullable  bool
	transport Transport
}

// Name returns the wire name the handle is bound to.
func (h *EventHandle) Name() string {
	return h.name
}

// Nullable reports whether the event may be emitted without a payload.
func (h *EventHandle) Nullable() bool {
	return h.nullable
}

// Global returns the operations on the global event bus.
func (h *EventHandle) Global() Ops {
	return Ops{name: h.name, nullable: h.nullable, target: h.transport}
}

// ScopedTo returns operations that only observe, or only target, w.
// A fresh value is returned on every call.
func (h *EventHandle) ScopedTo(w Window) Ops {
	if w == nil {
		return Ops{name: h.name, nullable: h.nullable}
	}
	return Ops{name: h.name, nullable: h.nullable, target: w}
}

// Listen is shorthand for h.Global().Listen.
func (h *EventHandle) Listen(ctx context.Context, fn Handler) (UnlistenFunc, error) {
	return h.Global().Listen(ctx, fn)
}

// Once is shorthand for h.Global().Once.
func (h *EventHandle) Once(ctx context.Context, fn Handler) (UnlistenFunc, error) {
	return h.Global().Once(ctx, fn)
}

// Emit is shorthand for h.Global().Emit.
func (h *EventHandle) Emit(ctx context.Context, payload any) error {
	return h.Global().Emit(ctx, payload)
}

// Ops is the listen/once/emit record of an event handle, bound either to the
// global bus or to one window.
type Ops struct {
	name     string
	nullable bool
	target   Emitter
}

// Name returns the wire name.
func (o Ops) Name() string {
	return o.name
}

// Listen subscribes fn to every future occurrence of the event.
func (o Ops) Listen(ctx context.Context, fn Handler) (UnlistenFunc, error) {
	if o.target == nil {
		return nil, ErrNilWindow
	}
	return o.target.Listen(ctx, o.name, fn)
}

// Once subscribes fn to the next occurrence of the event. The returned
// UnlistenFunc cancels the subscription before it fires.
func (o Ops) Once(ctx context.Context, fn Handler) (UnlistenFunc, error) {
	if o.target == nil {
		return nil, ErrNilWindow
	}
	return o.target.Once(ctx, o.name, fn)
}

// Emit sends payload under the event name. A nil payload is only accepted
// for nullable events. Failures are returned as is; nothing is retried.
func (o Ops) Emit(ctx context.Context, payload any) error {
	if o.target == nil {
		return ErrNilWindow
	}
	payload = forwardArgs(payload)
	if payload == nil && !o.nullable {
		return &ShapeError{Name: o.name, Err: ErrPayloadRequired}
	}
	return o.target.Emit(ctx, o.name, payload)
}
