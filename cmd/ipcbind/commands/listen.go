package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

var (
	listenWindow string
	listenOnce   bool
)

var listenCmd = &cobra.Command{
	Use:   "listen <event-key>",
	Short: "Print occurrences of an event",
	Long: `Subscribe to an event of the catalog and print every occurrence until
interrupted. With --window only emissions targeted at that window are shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenWindow, "window", "", "Only receive emissions targeted at this window")
	listenCmd.Flags().BoolVar(&listenOnce, "once", false, "Exit after the first occurrence")
	addClientFlags(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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
	if listenWindow != "" {
		ops = handle.ScopedTo(c.Window(listenWindow))
	}

	out := newPrinter(cmd.OutOrStdout())
	done := make(chan struct{})
	show := func(msg ipc.Message) {
		out.Message(msg)
		if listenOnce {
			close(done)
		}
	}

	var unlisten ipc.UnlistenFunc
	if listenOnce {
		unlisten, err = ops.Once(ctx, show)
	} else {
		unlisten, err = ops.Listen(ctx, show)
	}
	if err != nil {
		return err
	}
	defer unlisten()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
