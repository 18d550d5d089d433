package commands

import (
	"github.com/spf13/cobra"
)

var invokeFilter string

var invokeCmd = &cobra.Command{
	Use:   "invoke <command> [json-args]",
	Short: "Invoke a command on a running host",
	Long: `Invoke a command of the catalog and print its result. Arguments are
given as a single JSON document. The result can be narrowed with a jq filter:

  ipcbind invoke hello_world '{"myName":"Ada"}'
  ipcbind invoke some_struct --jq .some_field`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeFilter, "jq", "", "jq filter applied to the result")
	addClientFlags(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var filter *jqFilter
	if invokeFilter != "" {
		f, err := compileFilter(invokeFilter)
		if err != nil {
			return err
		}
		filter = f
	}

	var rawArgs string
	if len(args) > 1 {
		rawArgs = args[1]
	}
	payload, err := parseJSONArg("arguments", rawArgs)
	if err != nil {
		return err
	}

	c, cat, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var callArgs any
	if payload != nil {
		callArgs = payload
	}
	result, err := cat.Commands(c).Invoke(ctx, args[0], callArgs)
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	if filter == nil {
		out.Raw(result)
		return nil
	}

	values, err := filter.Apply(result)
	if err != nil {
		return err
	}
	for _, v := range values {
		if err := out.JSON(v); err != nil {
			return err
		}
	}
	return nil
}
