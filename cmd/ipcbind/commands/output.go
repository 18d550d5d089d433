package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

// printer renders command results and events for the terminal.
type printer struct {
	w     io.Writer
	name  *color.Color
	dim   *color.Color
	event *color.Color
}

func newPrinter(w io.Writer) *printer {
	if noColor {
		color.NoColor = true
	}
	return &printer{
		w:     w,
		name:  color.New(color.FgCyan, color.Bold),
		dim:   color.New(color.FgHiBlack),
		event: color.New(color.FgMagenta),
	}
}

// JSON writes v indented.
func (p *printer) JSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(p.w, string(b))
	return nil
}

// Raw pretty-prints a JSON document, or writes it unchanged when it is not
// valid JSON.
func (p *printer) Raw(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Fprintln(p.w, string(raw))
		return
	}
	_ = p.JSON(v)
}

func (p *printer) Catalog(cat *catalog.Catalog, source string) {
	name := cat.Name
	if name == "" {
		name = "catalog"
	}
	fmt.Fprintf(p.w, "%s %s\n", p.name.Sprint(name), p.dim.Sprintf("(%s)", source))

	fmt.Fprintln(p.w, "\nCommands:")
	for _, c := range cat.Commands {
		args := c.Args
		if args == "" {
			args = "-"
		}
		fmt.Fprintf(p.w, "  %-44s %s %s\n", p.name.Sprint(c.Name), p.dim.Sprint(args+" ->"), c.Result)
	}

	fmt.Fprintln(p.w, "\nEvents:")
	for _, e := range cat.Events {
		payload := e.Payload
		if e.Nullable {
			payload += "?"
		}
		fmt.Fprintf(p.w, "  %-24s %-24s %s\n", p.event.Sprint(e.Key), p.dim.Sprint(e.Name), payload)
	}
}

func (p *printer) Message(msg ipc.Message) {
	scope := "global"
	if msg.Window != "" {
		scope = msg.Window
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.event.Sprint(msg.Event), p.dim.Sprintf("[%s %s]", scope, msg.ID), string(msg.Payload))
}

// jqFilter is a compiled jq expression applied to command results.
type jqFilter struct {
	code *gojq.Code
}

func compileFilter(expr string) (*jqFilter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("jq: filter parse error: %v", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq: compile error: %v", err)
	}
	return &jqFilter{code: code}, nil
}

// Apply runs the filter over raw and returns every emitted value.
func (f *jqFilter) Apply(raw json.RawMessage) ([]any, error) {
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("jq: invalid JSON input: %v", err)
	}

	var out []any
	iter := f.code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("jq: execution error: %v", err)
		}
		out = append(out, v)
	}
	return out, nil
}
