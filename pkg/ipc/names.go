package ipc

import "sort"

// EventDescriptor maps a logical event key to its wire name.
type EventDescriptor struct {
	// Key is the identifier used by UI code.
	Key string `json:"key" yaml:"key"`

	// Name is the wire name sent over the transport.
	Name string `json:"name" yaml:"name"`

	// Payload names the payload shape, for documentation.
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Nullable marks events that may be emitted without a payload.
	Nullable bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// EventNames is an immutable registry from logical keys to wire names.
// It is safe for concurrent use.
type EventNames struct {
	byKey    map[string]EventDescriptor
	nullable map[string]bool
	keys     []string
}

// NewEventNames builds a registry from descs. The mapping is trusted: several
// keys may share one wire name, and a later descriptor for the same key
// replaces an earlier one.
func NewEventNames(descs ...EventDescriptor) *EventNames {
	n := &EventNames{
		byKey:    make(map[string]EventDescriptor, len(descs)),
		nullable: make(map[string]bool, len(descs)),
	}
	for _, d := range descs {
		n.byKey[d.Key] = d
	}
	for key, d := range n.byKey {
		n.keys = append(n.keys, key)
		n.nullable[d.Name] = n.nullable[d.Name] || d.Nullable
	}
	sort.Strings(n.keys)
	return n
}

// EventNamesFromMap builds a registry from a plain key to wire name table.
// Every event built this way requires a payload.
func EventNamesFromMap(mapping map[string]string) *EventNames {
	descs := make([]EventDescriptor, 0, len(mapping))
	for key, name := range mapping {
		descs = append(descs, EventDescriptor{Key: key, Name: name})
	}
	return NewEventNames(descs...)
}

// Lookup resolves key to its descriptor.
func (n *EventNames) Lookup(key string) (EventDescriptor, error) {
	d, ok := n.byKey[key]
	if !ok {
		return EventDescriptor{}, unknownKey(KindEvent, key, n.keys)
	}
	return d, nil
}

// Nullable reports whether any key mapping to the wire name is nullable.
func (n *EventNames) Nullable(wireName string) bool {
	return n.nullable[wireName]
}

// Has reports whether some key maps to the wire name.
func (n *EventNames) Has(wireName string) bool {
	_, ok := n.nullable[wireName]
	return ok
}

// Keys returns the sorted logical keys.
func (n *EventNames) Keys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of logical keys.
func (n *EventNames) Len() int {
	return len(n.keys)
}
