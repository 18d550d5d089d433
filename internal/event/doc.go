/*
Package event provides the host-side pub/sub bus that backs IPC events.

# Scopes

Subscriptions are keyed by wire event name and scope. The empty scope is the
global bus; any other scope is a window label.

	bus := event.NewBus()
	defer bus.Close()

	unsub := bus.Subscribe("demo-event", "", func(e event.Envelope) {
		log.Info().Str("id", e.ID).Msg("global")
	})
	defer unsub()

	bus.Subscribe("demo-event", "main", onMainWindow)

Publishing without a Target broadcasts: global subscribers and every
window-scoped subscriber of the name receive the envelope. Publishing with a
Target reaches only the subscribers scoped to that window.

	bus.Publish(event.Envelope{Name: "demo-event", Payload: json.RawMessage(`"hi"`)})
	bus.Publish(event.Envelope{Name: "demo-event", Target: "main", Payload: data})

# Once

SubscribeOnce delivers at most one envelope, even when several publishers
race, and then removes itself.

# Subscriber Safety Guidelines

Publish calls subscribers synchronously in the publisher's goroutine.
Subscribers must return quickly; forward to a buffered channel and drop on
overflow when the consumer may be slow. Subscriber lists are copied before
delivery, so subscribers may publish or unsubscribe re-entrantly.

# Integration with Watermill

Every envelope is also published on the watermill gochannel topic Topic.
Tap returns a channel of those messages; it is used by the SSE stream of the
host server and can feed watermill routers or middleware.
*/
package event
