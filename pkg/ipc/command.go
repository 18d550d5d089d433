package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
)

// CommandDescriptor describes one command of the catalog.
type CommandDescriptor struct {
	// Name is the wire name and the unique discriminant of the command.
	Name string `json:"name" yaml:"name"`

	// Args names the argument shape. Empty means the command takes no argument.
	Args string `json:"args,omitempty" yaml:"args,omitempty"`

	// Result names the result shape.
	Result string `json:"result,omitempty" yaml:"result,omitempty"`
}

// Void is the argument (or result) type of commands that carry none.
type Void struct{}

// MarshalJSON encodes Void as null.
func (Void) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Command is a typed reference to a command taking A and returning R.
type Command[A, R any] struct {
	name string
}

// NewCommand returns a typed reference to the named command.
func NewCommand[A, R any](name string) Command[A, R] {
	return Command[A, R]{name: name}
}

// Name returns the wire name of the command.
func (c Command[A, R]) Name() string {
	return c.name
}

// Call invokes cmd through inv and decodes the result into R.
//
// Exactly one Invoke is made per call. Errors returned by inv are passed
// through unchanged. A result that does not decode into R yields a
// *ShapeError.
func Call[A, R any](ctx context.Context, inv Invoker, cmd Command[A, R], args A) (R, error) {
	var zero R

	raw, err := inv.Invoke(ctx, cmd.name, forwardArgs(args))
	if err != nil {
		return zero, err
	}

	out, err := decodeStrict[R](raw)
	if err != nil {
		return zero, &ShapeError{Name: cmd.name, Err: err}
	}
	return out, nil
}

// forwardArgs maps "no argument" values to nil.
func forwardArgs(args any) any {
	if args == nil {
		return nil
	}
	if _, ok := args.(Void); ok {
		return nil
	}
	v := reflect.ValueOf(args)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	return args
}

// decodeStrict decodes raw into T, rejecting unknown fields and trailing data.
// A null or empty body is accepted only when T can represent its absence.
func decodeStrict[T any](raw json.RawMessage) (T, error) {
	var out T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if _, ok := any(out).(Void); ok {
			return out, nil
		}
		if len(trimmed) == 0 {
			return out, errors.New("empty result")
		}
		if !acceptsNull[T]() {
			return out, fmt.Errorf("null is not a valid %T", out)
		}
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("trailing data after result")
	}
	return out, nil
}

// acceptsNull reports whether null is a meaningful value of T: Void, or a
// pointer, map, slice or interface type.
func acceptsNull[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t == reflect.TypeOf(Void{}) {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return true
	}
	return false
}

// Commands is a closed command catalog bound to an Invoker. Invoke rejects
// names outside the catalog without calling the underlying invoker.
type Commands struct {
	inv   Invoker
	known map[string]CommandDescriptor
	names []string
}

// NewCommands builds a catalog over inv. Later descriptors with the same name
// replace earlier ones.
func NewCommands(inv Invoker, descs ...CommandDescriptor) *Commands {
	c := &Commands{
		inv:   inv,
		known: make(map[string]CommandDescriptor, len(descs)),
	}
	for _, d := range descs {
		c.known[d.Name] = d
	}
	c.names = make([]string, 0, len(c.known))
	for name := range c.known {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Invoke implements Invoker.
func (c *Commands) Invoke(ctx context.Context, command string, args any) (json.RawMessage, error) {
	if _, ok := c.known[command]; !ok {
		return nil, unknownKey(KindCommand, command, c.names)
	}
	return c.inv.Invoke(ctx, command, args)
}

// Lookup returns the descriptor for name.
func (c *Commands) Lookup(name string) (CommandDescriptor, error) {
	d, ok := c.known[name]
	if !ok {
		return CommandDescriptor{}, unknownKey(KindCommand, name, c.names)
	}
	return d, nil
}

// Names returns the sorted command names.
func (c *Commands) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
