// Package event provides the host-side pub/sub bus for IPC events using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
)

// Topic is the watermill topic every envelope is mirrored to.
const Topic = "ipc.events"

// Metadata keys set on mirrored watermill messages.
const (
	MetaName   = "name"
	MetaTarget = "target"
)

// Envelope is one emission on the bus.
type Envelope struct {
	// ID identifies the emission. Publish assigns one when empty.
	ID string `json:"id"`

	// Name is the wire event name.
	Name string `json:"event"`

	// Target is the window label for scoped emissions, empty for broadcasts.
	Target string `json:"windowLabel,omitempty"`

	// Payload is the JSON payload, "null" when absent.
	Payload json.RawMessage `json:"payload"`
}

// Subscriber is a function that receives envelopes.
type Subscriber func(env Envelope)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id    uint64
	fn    Subscriber
	once  bool
	fired *atomic.Bool
}

// subKey addresses subscribers of one event name in one scope.
// An empty scope means the global bus.
type subKey struct {
	name  string
	scope string
}

// Bus delivers envelopes to subscribers keyed by wire name and window scope.
// Delivery is synchronous in the publisher's goroutine; subscriber lists are
// snapshotted under the lock so subscribers may publish or unsubscribe.
type Bus struct {
	mu sync.RWMutex

	// Watermill pub/sub mirrors every envelope for out-of-band consumers
	pubsub *gochannel.GoChannel

	subscribers map[subKey][]subscriberEntry
	taps        []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates a new event bus with watermill infrastructure.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[subKey][]subscriberEntry),
	}
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for name in scope ("" for the global bus).
// Returns an unsubscribe function.
func (b *Bus) Subscribe(name, scope string, fn Subscriber) func() {
	return b.add(subKey{name: name, scope: scope}, fn, false)
}

// SubscribeOnce registers fn for the next envelope matching name and scope.
// Returns an unsubscribe function usable before the first delivery.
func (b *Bus) SubscribeOnce(name, scope string, fn Subscriber) func() {
	return b.add(subKey{name: name, scope: scope}, fn, true)
}

func (b *Bus) add(key subKey, fn Subscriber, once bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	entry := subscriberEntry{id: b.newID(), fn: fn, once: once, fired: new(atomic.Bool)}
	b.subscribers[key] = append(b.subscribers[key], entry)

	return func() {
		b.unsubscribe(key, entry.id)
	}
}

// SubscribeAll registers a tap that sees every envelope regardless of scope.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	entry := subscriberEntry{id: b.newID(), fn: fn, fired: new(atomic.Bool)}
	b.taps = append(b.taps, entry)

	return func() {
		b.unsubscribeTap(entry.id)
	}
}

// unsubscribe removes a subscriber for a specific key.
func (b *Bus) unsubscribe(key subKey, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[key]
	for i, entry := range subs {
		if entry.id == id {
			next := make([]subscriberEntry, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subscribers, key)
			} else {
				b.subscribers[key] = next
			}
			break
		}
	}
}

// unsubscribeTap removes a tap.
func (b *Bus) unsubscribeTap(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.taps {
		if entry.id == id {
			next := make([]subscriberEntry, 0, len(b.taps)-1)
			next = append(next, b.taps[:i]...)
			b.taps = append(next, b.taps[i+1:]...)
			break
		}
	}
}

// Publish delivers env and returns the number of subscribers that received it.
//
// A broadcast (empty Target) reaches global subscribers of the name and
// every window-scoped subscriber of the name. A targeted envelope reaches
// only subscribers scoped to that window. Taps see both.
func (b *Bus) Publish(env Envelope) int {
	if env.ID == "" {
		env.ID = ulid.Make().String()
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("null")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}

	var subs []subscriberEntry
	if env.Target == "" {
		for key, entries := range b.subscribers {
			if key.name == env.Name {
				subs = append(subs, entries...)
			}
		}
	} else {
		subs = append(subs, b.subscribers[subKey{name: env.Name, scope: env.Target}]...)
	}
	taps := append([]subscriberEntry(nil), b.taps...)
	b.mu.RUnlock()

	delivered := 0
	for _, entry := range subs {
		if entry.once {
			if !entry.fired.CompareAndSwap(false, true) {
				continue
			}
			b.removeByID(env.Name, entry.id)
		}
		entry.fn(env)
		delivered++
	}
	for _, entry := range taps {
		entry.fn(env)
	}

	b.mirror(env)
	return delivered
}

// removeByID drops a fired once-subscriber from whichever scope holds it.
func (b *Bus) removeByID(name string, id uint64) {
	b.mu.RLock()
	var found *subKey
	for key, entries := range b.subscribers {
		if key.name != name {
			continue
		}
		for _, e := range entries {
			if e.id == id {
				k := key
				found = &k
				break
			}
		}
	}
	b.mu.RUnlock()

	if found != nil {
		b.unsubscribe(*found, id)
	}
}

// mirror forwards env to the watermill topic.
func (b *Bus) mirror(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	msg := message.NewMessage(env.ID, data)
	msg.Metadata.Set(MetaName, env.Name)
	msg.Metadata.Set(MetaTarget, env.Target)
	_ = b.pubsub.Publish(Topic, msg)
}

// Tap subscribes to the mirrored watermill stream. The channel closes when
// ctx is done or the bus is closed. Received messages must be acked.
func (b *Bus) Tap(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic)
}

// Count returns the number of subscribers registered for name in scope.
func (b *Bus) Count(name, scope string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[subKey{name: name, scope: scope}])
}

// Close closes the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[subKey][]subscriberEntry)
	b.taps = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel for advanced use cases.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
