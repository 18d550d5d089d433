/*
Package ipc provides a typed binding layer over an untyped IPC transport.

A host process exposes named commands (request/response) and named events
(fire-and-forget notifications). The transport only knows names and JSON
payloads; this package puts a statically typed surface on top of it.

# Commands

A command is referenced through a typed descriptor and called with Call:

	var helloWorld = ipc.NewCommand[HelloArgs, string]("hello_world")

	greeting, err := ipc.Call(ctx, transport, helloWorld, HelloArgs{MyName: "Ada"})

Each call is a single, independent round trip. Errors from the transport are
returned unchanged. A result that does not decode into the declared type is
reported as a *ShapeError instead of being coerced.

Commands without arguments use Void:

	var goodbyeWorld = ipc.NewCommand[ipc.Void, string]("goodbye_world")

Wrapping the transport in a Commands catalog adds a runtime check that the
name belongs to the catalog:

	cmds := ipc.NewCommands(transport, catalog.Commands...)
	_, err := ipc.Call(ctx, cmds, helloWorld, args) // ErrUnknownKey if absent

Commands that model failure as data return a Result:

	var hasError = ipc.NewCommand[ipc.Void, ipc.Result[string, int]]("has_error")

# Events

EventNames is the immutable table from logical keys to wire names. Events is
a cache over it that hands out one EventHandle per wire name:

	names := ipc.EventNamesFromMap(map[string]string{"progressEvent": "app://progress"})
	events := ipc.NewEvents(names, transport)

	h, err := events.Get("progressEvent")
	unlisten, err := h.Global().Listen(ctx, func(m ipc.Message) { ... })
	defer unlisten()

The same handle can be scoped to one window or webview:

	unlisten, err := h.ScopedTo(mainWindow).Listen(ctx, onProgress)
	err = h.ScopedTo(mainWindow).Emit(ctx, 42)

Event[T] adds payload decoding:

	progress := ipc.MustEvent[int](events, "progressEvent")
	progress.Global().Listen(ctx, func(r ipc.Received[int]) { ... })

# Concurrency

Commands and Events are safe for concurrent use. The handle cache is the
only mutable state; first access of a wire name is serialized so exactly one
handle is created. Listen and Once block only while the subscription is
registered; handlers run later on the transport's delivery goroutine.
Cancelling a subscription through its UnlistenFunc is the only cancellation
mechanism.
*/
package ipc
