package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/internal/logging"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/wsclient"
)

// Client flags shared by invoke, listen and emit.
var (
	clientURL   string
	clientLabel string
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientURL, "url", "", "WebSocket URL of the host (default from config)")
	cmd.Flags().StringVar(&clientLabel, "label", "", "Window label of this connection (default from config)")
}

// connect dials the configured host and loads the catalog used to resolve
// command names and event keys.
func connect(ctx context.Context) (*wsclient.Client, *catalog.Catalog, error) {
	cat, _, err := loadCatalog(afero.NewOsFs())
	if err != nil {
		return nil, nil, err
	}

	opts := wsclient.Options{
		URL:                  appConfig.Client.URL,
		Label:                appConfig.Client.Label,
		Timeout:              appConfig.Client.Timeout.Std(),
		AutoReconnect:        appConfig.Client.AutoReconnect,
		MaxReconnectAttempts: appConfig.Client.MaxReconnectAttempts,
		ReconnectDelay:       appConfig.Client.ReconnectDelay.Std(),
		Logger:               logging.Component("client"),
	}
	if clientURL != "" {
		opts.URL = clientURL
	}
	if clientLabel != "" {
		opts.Label = clientLabel
	}

	c, err := wsclient.Dial(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", opts.URL, err)
	}
	return c, cat, nil
}

// parseJSONArg validates a JSON argument given on the command line.
// An empty argument yields nil.
func parseJSONArg(what, arg string) (json.RawMessage, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("%s is not valid JSON: %s", what, arg)
	}
	return json.RawMessage(arg), nil
}
