package commands

import (
	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

var emitWindow string

var emitCmd = &cobra.Command{
	Use:   "emit <event-key> [json-payload]",
	Short: "Emit an event through a running host",
	Long: `Emit an event of the catalog. Without --window the event is broadcast
to every listener; with --window it reaches only listeners of that window.
The payload may be omitted for nullable events.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEmit,
}

func init() {
	emitCmd.Flags().StringVar(&emitWindow, "window", "", "Target a single window")
	addClientFlags(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var rawPayload string
	if len(args) > 1 {
		rawPayload = args[1]
	}
	payload, err := parseJSONArg("payload", rawPayload)
	if err != nil {
		return err
	}

	c, cat, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	handle, err := ipc.NewEvents(cat.EventNames(), c).Get(args[0])
	if err != nil {
		return err
	}
	ops := handle.Global()
	if emitWindow != "" {
		ops = handle.ScopedTo(c.Window(emitWindow))
	}

	var value any
	if payload != nil {
		value = payload
	}
	return ops.Emit(ctx, value)
}
