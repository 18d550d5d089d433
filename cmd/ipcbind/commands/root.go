// Package commands provides the CLI commands for ipcbind.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/internal/config"
	"github.com/telnet2/go-practice/go-ipcbind/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	noColor   bool
)

// appConfig is loaded before any subcommand runs.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "ipcbind",
	Short: "ipcbind - typed IPC bindings between a host and its windows",
	Long: `ipcbind serves a catalog of commands and events over WebSocket and
talks to a running host from the command line.

Run 'ipcbind serve' to start the demo host, then use 'ipcbind invoke',
'ipcbind listen' and 'ipcbind emit' against it.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print human-readable logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Working directory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("ipcbind %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(catalogCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

func setup(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	workDir = dir

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if printLogs {
		cfg.LogPretty = true
	}
	appConfig = cfg

	logging.Init(logging.Settings(cfg.LogLevel, cfg.LogPretty))
	return nil
}
