// Package demo holds the bindings of the example application: a handful of
// commands and two events, their host implementations and a typed client
// facade over any transport.
package demo

import (
	"context"
	"fmt"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/host"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

// UniversalConstant is exported alongside the bindings.
const UniversalConstant = 42

// Event keys and wire names.
const (
	DemoEventKey   = "demoEvent"
	DemoEventName  = "demo-event"
	EmptyEventKey  = "emptyEvent"
	EmptyEventName = "empty-event"
)

// HelloWorldArgs are the arguments of hello_world.
type HelloWorldArgs struct {
	MyName string `json:"myName"`
}

// MyStruct is returned by some_struct.
type MyStruct struct {
	SomeField string `json:"some_field"`
}

// MyError is a tagged error: IoError carries no data, AnotherError a message.
type MyError struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

func (e MyError) Error() string {
	if e.Data == "" {
		return e.Type
	}
	return e.Type + ": " + e.Data
}

// MyError2 is a tagged error whose IoError variant keeps the message.
type MyError2 struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (e MyError2) Error() string {
	return e.Type + ": " + e.Data
}

// Commands
var (
	HelloWorld              = ipc.NewCommand[HelloWorldArgs, string]("hello_world")
	GoodbyeWorld            = ipc.NewCommand[ipc.Void, string]("goodbye_world")
	HasError                = ipc.NewCommand[ipc.Void, ipc.Result[string, int]]("has_error")
	SomeStruct              = ipc.NewCommand[ipc.Void, MyStruct]("some_struct")
	TypesafeErrors          = ipc.NewCommand[ipc.Void, ipc.Result[ipc.Void, MyError]]("typesafe_errors_using_thiserror")
	TypesafeErrorsWithValue = ipc.NewCommand[ipc.Void, ipc.Result[ipc.Void, MyError2]]("typesafe_errors_using_thiserror_with_value")
)

// Catalog returns the binding table of the demo application.
func Catalog() *catalog.Catalog {
	return &catalog.Catalog{
		Name: "demo",
		Commands: []ipc.CommandDescriptor{
			{Name: HelloWorld.Name(), Args: "{ myName: string }", Result: "string"},
			{Name: GoodbyeWorld.Name(), Result: "string"},
			{Name: HasError.Name(), Result: "Result<string, number>"},
			{Name: SomeStruct.Name(), Result: "MyStruct"},
			{Name: TypesafeErrors.Name(), Result: "Result<null, MyError>"},
			{Name: TypesafeErrorsWithValue.Name(), Result: "Result<null, MyError2>"},
		},
		Events: []ipc.EventDescriptor{
			{Key: DemoEventKey, Name: DemoEventName, Payload: "string"},
			{Key: EmptyEventKey, Name: EmptyEventName, Payload: "null", Nullable: true},
		},
	}
}

// Register installs the demo command implementations on h.
func Register(h *host.Host) error {
	registrations := []func() error{
		func() error {
			return host.Handle(h, HelloWorld.Name(), func(_ context.Context, args HelloWorldArgs) (string, error) {
				return fmt.Sprintf("Hello, %s! You've been greeted from Go!", args.MyName), nil
			})
		},
		func() error {
			return host.Handle(h, GoodbyeWorld.Name(), func(context.Context, ipc.Void) (string, error) {
				return "Goodbye world :(", nil
			})
		},
		func() error {
			return host.Handle(h, HasError.Name(), func(context.Context, ipc.Void) (ipc.Result[string, int], error) {
				return ipc.Fail[string, int](32), nil
			})
		},
		func() error {
			return host.Handle(h, SomeStruct.Name(), func(context.Context, ipc.Void) (MyStruct, error) {
				return MyStruct{SomeField: "Hello World"}, nil
			})
		},
		func() error {
			return host.Handle(h, TypesafeErrors.Name(), func(context.Context, ipc.Void) (ipc.Result[ipc.Void, MyError], error) {
				return ipc.Fail[ipc.Void](MyError{Type: "IoError"}), nil
			})
		},
		func() error {
			return host.Handle(h, TypesafeErrorsWithValue.Name(), func(context.Context, ipc.Void) (ipc.Result[ipc.Void, MyError2], error) {
				return ipc.Fail[ipc.Void](MyError2{Type: "IoError", Data: "oh no!"}), nil
			})
		},
	}

	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// Bindings is the typed facade UI code uses against any transport.
type Bindings struct {
	commands *ipc.Commands
	events   *ipc.Events

	DemoEvent  ipc.Event[string]
	EmptyEvent ipc.Event[ipc.Void]
}

// NewBindings binds the demo catalog to t.
func NewBindings(t ipc.Transport) *Bindings {
	cat := Catalog()
	events := ipc.NewEvents(cat.EventNames(), t)

	return &Bindings{
		commands:   cat.Commands(t),
		events:     events,
		DemoEvent:  ipc.MustEvent[string](events, DemoEventKey),
		EmptyEvent: ipc.MustEvent[ipc.Void](events, EmptyEventKey),
	}
}

// Events returns the event handle cache.
func (b *Bindings) Events() *ipc.Events {
	return b.events
}

// Commands returns the closed command catalog.
func (b *Bindings) Commands() *ipc.Commands {
	return b.commands
}

// HelloWorld greets myName.
func (b *Bindings) HelloWorld(ctx context.Context, myName string) (string, error) {
	return ipc.Call(ctx, b.commands, HelloWorld, HelloWorldArgs{MyName: myName})
}

func (b *Bindings) GoodbyeWorld(ctx context.Context) (string, error) {
	return ipc.Call(ctx, b.commands, GoodbyeWorld, ipc.Void{})
}

func (b *Bindings) HasError(ctx context.Context) (ipc.Result[string, int], error) {
	return ipc.Call(ctx, b.commands, HasError, ipc.Void{})
}

func (b *Bindings) SomeStruct(ctx context.Context) (MyStruct, error) {
	return ipc.Call(ctx, b.commands, SomeStruct, ipc.Void{})
}

func (b *Bindings) TypesafeErrors(ctx context.Context) (ipc.Result[ipc.Void, MyError], error) {
	return ipc.Call(ctx, b.commands, TypesafeErrors, ipc.Void{})
}

func (b *Bindings) TypesafeErrorsWithValue(ctx context.Context) (ipc.Result[ipc.Void, MyError2], error) {
	return ipc.Call(ctx, b.commands, TypesafeErrorsWithValue, ipc.Void{})
}
