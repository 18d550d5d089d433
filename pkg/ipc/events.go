package ipc

import "sync"

// Events is the lazily populated handle cache over an EventNames registry.
// Handles are memoized by wire name, so repeated lookups, and lookups of
// different keys sharing a wire name, return the same *EventHandle for the
// life of the cache.
//
// Concurrent first lookups of the same wire name are resolved with a
// mutex-guarded insert-if-absent: exactly one handle is ever created.
type Events struct {
	names     *EventNames
	transport Transport

	mu      sync.RWMutex
	handles map[string]*EventHandle
}

// NewEvents creates a cache over names whose global operations go through t.
func NewEvents(names *EventNames, t Transport) *Events {
	return &Events{
		names:     names,
		transport: t,
		handles:   make(map[string]*EventHandle),
	}
}

// Get returns the handle for key, creating it on first access.
func (e *Events) Get(key string) (*EventHandle, error) {
	desc, err := e.names.Lookup(key)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	h, ok := e.handles[desc.Name]
	e.mu.RUnlock()
	if ok {
		return h, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.handles[desc.Name]; ok {
		return h, nil
	}
	h = &EventHandle{
		name:      desc.Name,
		nullable:  e.names.Nullable(desc.Name),
		transport: e.transport,
	}
	e.handles[desc.Name] = h
	return h, nil
}

// MustGet is like Get but panics on an unknown key. It is meant for
// generated bindings whose keys are known to be in the registry.
func (e *Events) MustGet(key string) *EventHandle {
	h, err := e.Get(key)
	if err != nil {
		panic(err)
	}
	return h
}

// Names returns the registry backing the cache.
func (e *Events) Names() *EventNames {
	return e.names
}

// Cached returns how many handles have been materialized.
func (e *Events) Cached() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handles)
}
