// Package catalog loads the declarative command and event tables that bind
// logical names to wire names.
//
// A catalog file lists commands by wire name and events by logical key:
//
//	name: demo
//	commands:
//	  - name: hello_world
//	    args: "{ myName: string }"
//	    result: string
//	events:
//	  - key: demoEvent
//	    name: demo-event
//	    payload: string
//	  - key: emptyEvent
//	    name: empty-event
//	    nullable: true
//
// JSON, JSONC and YAML are accepted; the format follows the file extension.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

// Format is a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid catalog")

// Catalog is the declarative binding table.
type Catalog struct {
	Name     string                  `json:"name,omitempty" yaml:"name,omitempty"`
	Commands []ipc.CommandDescriptor `json:"commands" yaml:"commands"`
	Events   []ipc.EventDescriptor   `json:"events" yaml:"events"`
}

// Load reads and validates the catalog at path from fs.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FormatOf infers the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported catalog extension %q", filepath.Ext(path))
	}
}

// Parse decodes and validates a catalog. JSON input may contain comments
// and trailing commas.
func Parse(data []byte, format Format) (*Catalog, error) {
	var c Catalog
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), &c); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that names are present, command names are unique and
// event keys are unique. Several keys may share one wire name.
func (c *Catalog) Validate() error {
	commands := make(map[string]bool, len(c.Commands))
	for i, cmd := range c.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("%w: command %d has no name", ErrInvalid, i)
		}
		if commands[cmd.Name] {
			return fmt.Errorf("%w: duplicate command %q", ErrInvalid, cmd.Name)
		}
		commands[cmd.Name] = true
	}

	keys := make(map[string]bool, len(c.Events))
	for i, ev := range c.Events {
		if ev.Key == "" {
			return fmt.Errorf("%w: event %d has no key", ErrInvalid, i)
		}
		if ev.Name == "" {
			return fmt.Errorf("%w: event %q has no wire name", ErrInvalid, ev.Key)
		}
		if keys[ev.Key] {
			return fmt.Errorf("%w: duplicate event key %q", ErrInvalid, ev.Key)
		}
		keys[ev.Key] = true
	}
	return nil
}

// EventNames returns the event registry described by the catalog.
func (c *Catalog) EventNames() *ipc.EventNames {
	return ipc.NewEventNames(c.Events...)
}

// Commands returns a closed command catalog bound to inv.
func (c *Catalog) Commands(inv ipc.Invoker) *ipc.Commands {
	return ipc.NewCommands(inv, c.Commands...)
}

// Command returns the descriptor of the named command.
func (c *Catalog) Command(name string) (ipc.CommandDescriptor, bool) {
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return ipc.CommandDescriptor{}, false
}

// Event returns the descriptor of the event with the given key.
func (c *Catalog) Event(key string) (ipc.EventDescriptor, bool) {
	for _, ev := range c.Events {
		if ev.Key == key {
			return ev, true
		}
	}
	return ipc.EventDescriptor{}, false
}
